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

func newIncidentTriageCmd() *cobra.Command {
	var errorLogPath, managedServiceID string
	var maxErrorPatterns, maxLogLines int

	cmd := &cobra.Command{
		Use:   "incident-triage",
		Short: "Run the incident-triage diagnostic workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := workflows.RunTriage(cmd.Context(), standaloneDeps(), workflows.TriageInput{
				ErrorLogPath:     errorLogPath,
				ManagedServiceID: managedServiceID,
				MaxErrorPatterns: maxErrorPatterns,
				MaxLogLines:      maxLogLines,
			}, uuid.NewString())
			renderReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&errorLogPath, "error-log-path", "", "local error log file path")
	cmd.Flags().StringVar(&managedServiceID, "managed-service-id", "", "managed-service id for remote log/metrics enrichment")
	cmd.Flags().IntVar(&maxErrorPatterns, "max-error-patterns", 20, "maximum number of extracted error patterns")
	cmd.Flags().IntVar(&maxLogLines, "max-log-lines", 5000, "maximum number of log lines to read")
	return cmd
}
