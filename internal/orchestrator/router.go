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

// Package orchestrator is the entry point: it routes a free-form
// request to one or more diagnostic workflows, runs them under a
// budget, conditionally chains at most one more, aggregates telemetry
// across the call tree, and synthesizes a single report.
package orchestrator

import "strings"

// Strategy is the routing decision for one request.
type Strategy string

const (
	StrategySlowQuery    Strategy = "slow-query"
	StrategyRunningQuery Strategy = "running-query"
	StrategyReplication  Strategy = "replication-health"
	StrategyInspector    Strategy = "db-inspector"
	StrategyTriage       Strategy = "incident-triage"
	StrategyClarify      Strategy = "clarify"
)

// keywordTable is checked in priority order: a request is tested
// against each row in turn and the first match wins.
var keywordTable = []struct {
	strategy Strategy
	keywords []string
}{
	{StrategySlowQuery, []string{"slow queries", "slow query", "query performance", "optimization", "slow log"}},
	{StrategyRunningQuery, []string{"running queries", "currently", "blocking", "active queries", "who's running", "whos running"}},
	{StrategyReplication, []string{"replication", "replica lag", "replica", "master/slave", "master slave", "replication health"}},
	{StrategyInspector, []string{"execute sql", "select ", "information_schema", "show variable"}},
	{StrategyTriage, []string{"health", "something is wrong", "incident", "why is it slow"}},
}

// RouteIntent selects a strategy from a free-form request.
// StrategyClarify means no row matched with confidence and the
// orchestrator should ask a clarifying question rather than default to
// the heaviest workflow.
func RouteIntent(request string) Strategy {
	lower := strings.ToLower(request)

	for _, row := range keywordTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.strategy
			}
		}
	}

	if looksLikeSQL(lower) {
		return StrategyInspector
	}

	return StrategyClarify
}

// looksLikeSQL gives the inspector route a second chance at requests
// that paste a statement without the "execute sql" phrasing.
func looksLikeSQL(lower string) bool {
	for _, verb := range []string{"select ", "show ", "describe ", "desc ", "explain "} {
		if strings.HasPrefix(strings.TrimSpace(lower), verb) {
			return true
		}
	}
	return false
}

// chainFor selects the single conditional chain hop from
// incident-triage's top cause category.
func chainFor(topCauseCategory string) Strategy {
	switch topCauseCategory {
	case "query-performance":
		return StrategySlowQuery
	case "lock-contention":
		return StrategyRunningQuery
	case "replication":
		return StrategyReplication
	default:
		return ""
	}
}
