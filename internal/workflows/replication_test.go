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

package workflows

import (
	"context"
	"testing"

	"github.com/skysql-oss/dbdiag-agents/internal/llm/interfaces"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReplicationHealth_ClassifiesDegradedReplica(t *testing.T) {
	ft := fakeTools{
		runReadonly: func(args map[string]any) (*models.QueryResult, error) {
			return &models.QueryResult{
				Columns:  []string{"File", "Position"},
				Rows:     [][]any{{"binlog.000042", 982341}},
				RowCount: 1,
			}, nil
		},
		runReadonlyProbe: func(args map[string]any) (*models.ProbeScanResult, error) {
			assert.Equal(t, 10, args["probe_count"])
			return &models.ProbeScanResult{
				Replicas: []models.ReplicaStatusRow{
					{
						Identity: "replica-1",
						Columns: map[string]string{
							"Slave_IO_Running":      "Yes",
							"Slave_SQL_Running":     "Yes",
							"Seconds_Behind_Master": "87",
						},
					},
				},
				Note: "deduplicated across 10 probes",
			}, nil
		},
	}
	runtime := ft.buildRuntime()
	sink := telemetry.NewSink(false)

	fakeLLM := &scriptedLLM{
		responses: []*interfaces.ReasonResponse{
			toolCallResponse("run_readonly", map[string]any{"sql": "SHOW MASTER STATUS"}),
			toolCallResponse("run_readonly_probe", map[string]any{"sql": "SHOW REPLICA STATUS", "probe_count": 10}),
			textResponse("## replication-health\n\nreplica-1 is degraded: 87s behind source."),
		},
	}

	d := Deps{LLM: fakeLLM, Runtime: runtime, Telemetry: sink, Model: "test-model"}
	report := RunReplicationHealth(context.Background(), d, ReplicationInput{}, "root-1")

	require.Equal(t, models.StateComplete, report.State)
	assert.Contains(t, report.Markdown, "degraded")
}

func TestNormalizeReplicationInput_ClampsProbeCount(t *testing.T) {
	in := normalizeReplicationInput(ReplicationInput{ProbeCount: 500})
	assert.Equal(t, replicationMaxProbeCount, in.ProbeCount)

	in = normalizeReplicationInput(ReplicationInput{})
	assert.Equal(t, replicationDefaultProbeCount, in.ProbeCount)
}
