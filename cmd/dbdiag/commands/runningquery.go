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

func newRunningQueryCmd() *cobra.Command {
	var minSeconds float64
	var includeSleeping bool
	var maxQueries int

	cmd := &cobra.Command{
		Use:   "running-query",
		Short: "Run the running-query diagnostic workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := workflows.RunRunningQuery(cmd.Context(), standaloneDeps(), workflows.RunningQueryInput{
				MinSeconds:      minSeconds,
				IncludeSleeping: includeSleeping,
				MaxQueries:      maxQueries,
			}, uuid.NewString())
			renderReport(report)
			return nil
		},
	}

	cmd.Flags().Float64Var(&minSeconds, "min-seconds", 1.0, "minimum elapsed time of interest")
	cmd.Flags().BoolVar(&includeSleeping, "include-sleeping", false, "include sessions in the Sleep command")
	cmd.Flags().IntVar(&maxQueries, "max-queries", 20, "maximum number of sessions to analyze")
	return cmd
}
