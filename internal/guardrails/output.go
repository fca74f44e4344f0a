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

package guardrails

import (
	"regexp"
	"strings"
)

var (
	passwordAssignPattern = regexp.MustCompile(`(?i)(password)\s*[:=]\s*([^\s,;"']+)`)
	apiKeyPattern         = regexp.MustCompile(`(?i)(key|secret)\s*[:=]\s*([a-zA-Z0-9]{40,})`)
)

var placeholderMarkers = []string{"your", "example", "<...>", "xxx", "...", "placeholder"}

// RedactOutput applies the output guardrail: redacts probable secrets
// in-place, tolerates documentation placeholders, and
// never blocks an output solely on suspicion. An empty output produced
// by a tool-call-only chain is allowed through unchanged.
func RedactOutput(text string) string {
	text = passwordAssignPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := passwordAssignPattern.FindStringSubmatch(m)
		if len(sub) < 3 || isPlaceholder(sub[2]) {
			return m
		}
		return sub[1] + "=***"
	})

	text = apiKeyPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := apiKeyPattern.FindStringSubmatch(m)
		if len(sub) < 3 || isPlaceholder(sub[2]) {
			return m
		}
		return sub[1] + "=***"
	})

	return text
}

// isPlaceholder reports a value that is shorter than 16 characters or
// contains one of the documentation-placeholder markers; such values are
// never redacted.
func isPlaceholder(value string) bool {
	if len(value) < 16 {
		return true
	}
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
