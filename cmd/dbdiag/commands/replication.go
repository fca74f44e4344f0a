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

func newReplicationHealthCmd() *cobra.Command {
	var probeCount int

	cmd := &cobra.Command{
		Use:   "replication-health",
		Short: "Run the replication-health diagnostic workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := workflows.RunReplicationHealth(cmd.Context(), standaloneDeps(), workflows.ReplicationInput{
				ProbeCount: probeCount,
			}, uuid.NewString())
			renderReport(report)
			return nil
		},
	}

	cmd.Flags().IntVar(&probeCount, "probe-count", 10, "number of probe connections used to discover replicas")
	return cmd
}
