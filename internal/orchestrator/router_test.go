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

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteIntent_KeywordTable(t *testing.T) {
	cases := []struct {
		request  string
		expected Strategy
	}{
		{"why are my slow queries piling up?", StrategySlowQuery},
		{"what's optimization look like for this digest", StrategySlowQuery},
		{"which sessions are currently blocking each other", StrategyRunningQuery},
		{"who's running the longest query right now", StrategyRunningQuery},
		{"is replica lag increasing on the master/slave pair", StrategyReplication},
		{"please execute sql SELECT 1", StrategyInspector},
		{"the server health looks bad, something is wrong", StrategyTriage},
		{"why is it slow today", StrategyTriage},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, RouteIntent(c.request), "request=%q", c.request)
	}
}

func TestRouteIntent_FallsBackToInspectorForBareSQL(t *testing.T) {
	assert.Equal(t, StrategyInspector, RouteIntent("describe mysql.user"))
	assert.Equal(t, StrategyInspector, RouteIntent("desc mysql.user"))
}

func TestRouteIntent_ClarifyWhenNothingMatches(t *testing.T) {
	assert.Equal(t, StrategyClarify, RouteIntent("good morning"))
}

func TestChainFor(t *testing.T) {
	assert.Equal(t, StrategySlowQuery, chainFor("query-performance"))
	assert.Equal(t, StrategyRunningQuery, chainFor("lock-contention"))
	assert.Equal(t, StrategyReplication, chainFor("replication"))
	assert.Equal(t, Strategy(""), chainFor("resource-pressure"))
	assert.Equal(t, Strategy(""), chainFor(""))
}
