// Copyright © 2025 DBDiag Agents Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logingest is the log ingestion layer: tails a local file or
// fetches a time range from the managed-service observability API,
// always yielding a single byte buffer to the pattern extractor.
package logingest

import (
	"bufio"
	"bytes"
	"container/ring"
	"os"

	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
)

const defaultMaxLines = 5000

// TailLocal returns the last maxLines lines of path, or the whole file
// if it has fewer. When a local path is supplied the remote API is never
// consulted; callers enforce that, this function only implements the
// local half.
func TailLocal(path string, maxLines int) ([]byte, errs.DBDiagError) {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindFileNotFound, "tail_local: "+path, err)
		}
		if os.IsPermission(err) {
			return nil, errs.Wrap(errs.KindPermissionDenied, "tail_local: "+path, err)
		}
		return nil, errs.Wrap(errs.KindFileNotFound, "tail_local: "+path, err)
	}
	defer f.Close()

	buf := ring.New(maxLines)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		buf.Value = line
		buf = buf.Next()
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.KindBackendError, "tail_local: reading "+path, err)
	}

	var out bytes.Buffer
	buf.Do(func(v any) {
		if v == nil {
			return
		}
		out.Write(v.([]byte))
		out.WriteByte('\n')
	})
	return out.Bytes(), nil
}
