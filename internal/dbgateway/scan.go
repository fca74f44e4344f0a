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
	"database/sql"
	"fmt"

	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

// scanRows materializes up to rowCap rows from rows, enforcing an
// absolute byte budget on the accumulated result. Either cap being hit
// sets Truncated.
func scanRows(rows *sql.Rows, rowCap, byteCap int) (*models.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &models.QueryResult{Columns: cols}
	byteCount := 0

	for rows.Next() {
		if result.RowCount >= rowCap {
			result.Truncated = true
			break
		}

		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return result, err
		}

		row := make([]any, len(cols))
		rowBytes := 0
		for i, v := range values {
			cell := normalizeCell(v)
			row[i] = cell
			rowBytes += cellSize(cell)
		}

		if byteCount+rowBytes > byteCap {
			result.Truncated = true
			break
		}
		byteCount += rowBytes
		result.Rows = append(result.Rows, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func normalizeCell(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func cellSize(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case nil:
		return 0
	default:
		return len(fmt.Sprintf("%v", t))
	}
}
