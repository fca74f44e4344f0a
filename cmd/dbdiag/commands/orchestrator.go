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
	"strings"

	"github.com/spf13/cobra"
)

// newOrchestratorCmd accepts a free-form natural-language request and
// routes it to one or more workflows.
func newOrchestratorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orchestrator [request...]",
		Short:   "Route a free-form symptom description to one or more diagnostic workflows",
		Example: `  dbdiag orchestrator why is it slow?`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.Join(args, " ")
			sr, err := orch.Handle(cmd.Context(), request)
			if err != nil {
				return fmt.Errorf("orchestrator: %w", err)
			}
			renderSynthesis(sr)
			return nil
		},
	}
	return cmd
}
