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

package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/skysql-oss/dbdiag-agents/internal/workflows"
	"github.com/spf13/cobra"
)

func newInspectorCmd() *cobra.Command {
	var rowCap, timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "db-inspector [SQL]",
		Short: "Execute a single read-only SQL statement via the database-inspector workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := args[0]
			if sql == "" {
				return fmt.Errorf("db-inspector requires a non-empty SQL statement")
			}
			report := workflows.RunInspector(cmd.Context(), standaloneDeps(), workflows.InspectorInput{
				SQL:            sql,
				RowCap:         rowCap,
				TimeoutSeconds: timeoutSeconds,
			}, uuid.NewString())
			renderReport(report)
			return nil
		},
	}

	cmd.Flags().IntVar(&rowCap, "row-cap", 100, "maximum rows to return")
	cmd.Flags().IntVar(&timeoutSeconds, "timeout-seconds", 10, "statement timeout in seconds")
	return cmd
}
