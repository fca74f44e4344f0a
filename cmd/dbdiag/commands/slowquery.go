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
	"github.com/google/uuid"
	"github.com/skysql-oss/dbdiag-agents/internal/workflows"
	"github.com/spf13/cobra"
)

func newSlowQueryCmd() *cobra.Command {
	var windowHours, maxPatterns int
	var slowLogPath string

	cmd := &cobra.Command{
		Use:   "slow-query",
		Short: "Run the slow-query diagnostic workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := workflows.RunSlowQuery(cmd.Context(), standaloneDeps(), workflows.SlowQueryInput{
				WindowHours: windowHours,
				MaxPatterns: maxPatterns,
				SlowLogPath: slowLogPath,
			}, uuid.NewString())
			renderReport(report)
			return nil
		},
	}

	cmd.Flags().IntVar(&windowHours, "window-hours", 1, "analysis window in hours")
	cmd.Flags().IntVar(&maxPatterns, "max-patterns", 8, "maximum number of slow-query digests to analyze")
	cmd.Flags().StringVar(&slowLogPath, "slow-log-path", "", "optional local slow-query log file path")
	return cmd
}
