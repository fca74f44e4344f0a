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

// Package telemetry is the observability sink: a thread-safe,
// append-only sequence of per-invocation telemetry records, with
// additive aggregation across a call tree and best-effort persistence.
package telemetry

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

const persistPath = "./.observability_log.json"

// Sink is the only process-wide mutable state: mutated concurrently,
// serialized by a single mutex; reads take a consistent snapshot.
type Sink struct {
	mu          sync.Mutex
	records     []models.TelemetryRecord
	invocations []models.ToolInvocationRecord
	log         logger.Logger
	persist     bool
}

// NewSink constructs an empty sink. When persist is true, every Append
// also appends to ./.observability_log.json, best-effort.
func NewSink(persist bool) *Sink {
	return &Sink{log: logger.NewLogger("telemetry"), persist: persist}
}

// Append records one LLM round-trip's accounting.
func (s *Sink) Append(rec models.TelemetryRecord) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	if s.persist {
		s.appendToDisk(rec)
	}
}

// AppendInvocation records one finalized tool invocation. Every
// invocation is appended regardless of outcome, including
// guardrail-rejected and failed calls.
func (s *Sink) AppendInvocation(rec models.ToolInvocationRecord) {
	s.mu.Lock()
	s.invocations = append(s.invocations, rec)
	s.mu.Unlock()

	if s.persist {
		s.appendToDisk(rec)
	}
}

// appendToDisk never surfaces a failure to the caller; persistence is
// best-effort.
func (s *Sink) appendToDisk(rec any) {
	f, err := os.OpenFile(persistPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Warnf("telemetry persistence unavailable: %v", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Warnf("telemetry record could not be marshaled: %v", err)
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		s.log.Warnf("telemetry record could not be persisted: %v", err)
	}
}

// Snapshot returns a consistent copy of every LLM round-trip record
// appended so far.
func (s *Sink) Snapshot() []models.TelemetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TelemetryRecord, len(s.records))
	copy(out, s.records)
	return out
}

// InvocationSnapshot returns a consistent copy of every tool invocation
// record appended so far.
func (s *Sink) InvocationSnapshot() []models.ToolInvocationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ToolInvocationRecord, len(s.invocations))
	copy(out, s.invocations)
	return out
}

// Aggregate sums input/output/total tokens and round-trips for every
// record whose RootInvocationID matches rootInvocationID, with a
// breakdown per attribution tag.
func (s *Sink) Aggregate(rootInvocationID string) models.TelemetryTotals {
	totals := models.TelemetryTotals{ByAttribution: make(map[string]models.TelemetryRecord)}

	for _, rec := range s.Snapshot() {
		if rec.RootInvocationID != rootInvocationID {
			continue
		}
		totals.InputTokens += rec.InputTokens
		totals.OutputTokens += rec.OutputTokens
		totals.TotalTokens += rec.TotalTokens
		totals.RoundTrips += rec.RoundTrips

		agg := totals.ByAttribution[rec.Attribution]
		agg.Attribution = rec.Attribution
		agg.InputTokens += rec.InputTokens
		agg.OutputTokens += rec.OutputTokens
		agg.TotalTokens += rec.TotalTokens
		agg.RoundTrips += rec.RoundTrips
		totals.ByAttribution[rec.Attribution] = agg
	}

	invocations := s.InvocationSnapshot()
	byID := make(map[string]models.ToolInvocationRecord, len(invocations))
	for _, inv := range invocations {
		byID[inv.ID] = inv
	}
	for _, inv := range invocations {
		if descendsFromRoot(inv, rootInvocationID, byID) {
			totals.ToolInvocations++
		}
	}
	return totals
}

// descendsFromRoot walks inv's parent chain looking for rootInvocationID.
// Parent chains are acyclic; the visited set keeps a malformed chain
// from looping anyway.
func descendsFromRoot(inv models.ToolInvocationRecord, rootInvocationID string, byID map[string]models.ToolInvocationRecord) bool {
	visited := make(map[string]bool)
	cur := inv
	for {
		if cur.ParentID == rootInvocationID {
			return true
		}
		if cur.ParentID == "" || visited[cur.ParentID] {
			return false
		}
		visited[cur.ParentID] = true
		parent, ok := byID[cur.ParentID]
		if !ok {
			return false
		}
		cur = parent
	}
}
