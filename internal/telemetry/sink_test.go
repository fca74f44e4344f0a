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

package telemetry

import (
	"sync"
	"testing"

	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSink_AggregateSumsLeafContributions(t *testing.T) {
	s := NewSink(false)
	s.Append(models.TelemetryRecord{RootInvocationID: "root-1", Attribution: "self", InputTokens: 10, OutputTokens: 5, TotalTokens: 15, RoundTrips: 1})
	s.Append(models.TelemetryRecord{RootInvocationID: "root-1", Attribution: "slow-query", InputTokens: 20, OutputTokens: 8, TotalTokens: 28, RoundTrips: 2})
	s.Append(models.TelemetryRecord{RootInvocationID: "root-2", Attribution: "self", InputTokens: 100, OutputTokens: 50, TotalTokens: 150, RoundTrips: 1})

	totals := s.Aggregate("root-1")
	assert.Equal(t, 30, totals.InputTokens)
	assert.Equal(t, 13, totals.OutputTokens)
	assert.Equal(t, 43, totals.TotalTokens)
	assert.Equal(t, 3, totals.RoundTrips)
	assert.Len(t, totals.ByAttribution, 2)
}

func TestSink_AggregateCountsToolInvocationsInRootChain(t *testing.T) {
	s := NewSink(false)
	s.AppendInvocation(models.ToolInvocationRecord{ID: "inv-1", ParentID: "root-1", ToolName: "run_readonly", Outcome: models.OutcomeOK})
	s.AppendInvocation(models.ToolInvocationRecord{ID: "inv-2", ParentID: "inv-1", ToolName: "server_capabilities", Outcome: models.OutcomeOK})
	s.AppendInvocation(models.ToolInvocationRecord{ID: "inv-3", ParentID: "root-2", ToolName: "run_readonly", Outcome: models.OutcomeOK})

	totals := s.Aggregate("root-1")
	assert.Equal(t, 2, totals.ToolInvocations)
	assert.Len(t, s.InvocationSnapshot(), 3)
}

func TestSink_ConcurrentAppendIsSafe(t *testing.T) {
	s := NewSink(false)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(models.TelemetryRecord{RootInvocationID: "root", Attribution: "self", TotalTokens: 1})
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot(), 50)
}
