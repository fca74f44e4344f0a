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

package dbgateway

import (
	"strings"

	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
)

var allowedLeadingKeywords = []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

// validateQueryShape enforces the read-only query invariant: after trim
// and comment-strip, the first significant keyword must be one of
// SELECT, SHOW, DESCRIBE, DESC, EXPLAIN.
func validateQueryShape(sql string) errs.DBDiagError {
	stripped := stripLeadingComments(sql)
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return errs.New(errs.KindUnsafeQuery, "empty query")
	}

	upper := strings.ToUpper(stripped)
	for _, kw := range allowedLeadingKeywords {
		if strings.HasPrefix(upper, kw) {
			next := rune(0)
			if len(upper) > len(kw) {
				next = rune(upper[len(kw)])
			}
			if next == 0 || next == ' ' || next == '\t' || next == '\n' || next == '(' {
				return nil
			}
		}
	}
	return errs.Newf(errs.KindUnsafeQuery, "query does not start with an allowed read-only keyword: %q", firstWord(stripped))
}

// stripLeadingComments removes leading `--`, `#`, and `/* ... */` comment
// blocks and whitespace, repeatedly, so a comment cannot be used to hide
// the real leading keyword from the shape check.
func stripLeadingComments(sql string) string {
	s := sql
	for {
		trimmed := strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(trimmed, "--"):
			if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
				s = trimmed[idx+1:]
				continue
			}
			return ""
		case strings.HasPrefix(trimmed, "#"):
			if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
				s = trimmed[idx+1:]
				continue
			}
			return ""
		case strings.HasPrefix(trimmed, "/*"):
			if idx := strings.Index(trimmed, "*/"); idx >= 0 {
				s = trimmed[idx+2:]
				continue
			}
			return ""
		default:
			return trimmed
		}
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	if len(fields[0]) > 32 {
		return fields[0][:32]
	}
	return fields[0]
}
