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
	"fmt"
	"sort"
	"strings"

	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

const maxRecommendations = 10

// synthesize combines child reports into one response; when only one
// workflow ran, its report passes through with headers and telemetry
// appended.
func synthesize(reports []models.AgentReport, totals models.TelemetryTotals) *models.SynthesizedReport {
	if len(reports) == 1 {
		r := reports[0]
		markdown := fmt.Sprintf("# Diagnostic report\n\n%s\n\n%s", r.Markdown, telemetryMarkdown(totals))
		return &models.SynthesizedReport{
			ExecutiveSummary: executiveSummaryFor(r),
			WorkflowReports:  reports,
			Recommendations:  collectSuggestions(reports),
			NextSteps:        collectNextSteps(reports),
			Telemetry:        totals,
			Markdown:         markdown,
		}
	}

	summary := executiveSummaryMulti(reports)
	correlated := correlateFindings(reports)
	recs := collectSuggestions(reports)
	next := collectNextSteps(reports)

	var sb strings.Builder
	sb.WriteString("# Diagnostic report\n\n")
	sb.WriteString("## Executive summary\n\n" + summary + "\n\n")
	for _, r := range reports {
		sb.WriteString(fmt.Sprintf("## %s\n\n%s\n\n", r.WorkflowName, r.Markdown))
	}
	writeBulletSection(&sb, "Correlated findings", correlated)
	writeBulletSection(&sb, "Recommendations", recs)
	writeBulletSection(&sb, "Next steps", next)
	sb.WriteString(telemetryMarkdown(totals))

	return &models.SynthesizedReport{
		ExecutiveSummary:   summary,
		WorkflowReports:    reports,
		CorrelatedFindings: correlated,
		Recommendations:    recs,
		NextSteps:          next,
		Telemetry:          totals,
		Markdown:           sb.String(),
	}
}

func writeBulletSection(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("## " + title + "\n\n")
	for _, item := range items {
		sb.WriteString("- " + item + "\n")
	}
	sb.WriteString("\n")
}

func executiveSummaryFor(r models.AgentReport) string {
	switch r.State {
	case models.StatePartialBudget:
		return fmt.Sprintf("%s ran out of turn budget before reaching a conclusion; treat its findings as partial.", r.WorkflowName)
	case models.StatePartialError:
		return fmt.Sprintf("%s stopped after tool %q failed (%s); follow up with the database-inspector workflow.", r.WorkflowName, r.FailedTool, r.FailureNote)
	default:
		return fmt.Sprintf("%s completed with %d finding(s).", r.WorkflowName, len(r.Findings))
	}
}

func executiveSummaryMulti(reports []models.AgentReport) string {
	names := make([]string, len(reports))
	for i, r := range reports {
		names[i] = r.WorkflowName
	}
	summary := fmt.Sprintf("Ran %d workflow(s) in order: %s.", len(reports), strings.Join(names, " → "))
	if reports[0].TopCauseCategory != "" {
		summary += fmt.Sprintf(" Incident-triage's top cause category was %q, which triggered the chained workflow.", reports[0].TopCauseCategory)
	}
	return summary
}

// correlateFindings links the chained workflow's own findings back to
// the top cause that triggered the chain.
func correlateFindings(reports []models.AgentReport) []string {
	if len(reports) < 2 {
		return nil
	}
	first := reports[0]
	var out []string
	for _, r := range reports[1:] {
		if first.TopCauseCategory != "" {
			out = append(out, fmt.Sprintf("incident-triage flagged %q as the top cause; %s ran to corroborate it", first.TopCauseCategory, r.WorkflowName))
		}
		for _, f := range r.Findings {
			out = append(out, fmt.Sprintf("%s: %s", r.WorkflowName, f.Title))
		}
	}
	return out
}

func collectSuggestions(reports []models.AgentReport) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reports {
		for _, f := range r.Findings {
			for _, s := range f.Suggestions {
				if seen[s] {
					continue
				}
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out
}

func collectNextSteps(reports []models.AgentReport) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reports {
		for _, d := range r.DoNotActions {
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
		if r.State == models.StatePartialError {
			step := fmt.Sprintf("inspect %s's failing area directly via the database-inspector workflow", r.WorkflowName)
			if !seen[step] {
				seen[step] = true
				out = append(out, step)
			}
		}
	}
	return out
}

func telemetryMarkdown(totals models.TelemetryTotals) string {
	var sb strings.Builder
	sb.WriteString("## Telemetry\n\n")
	sb.WriteString(fmt.Sprintf("Total tokens: %d (input %d / output %d) across %d round-trip(s) and %d tool invocation(s).\n\n",
		totals.TotalTokens, totals.InputTokens, totals.OutputTokens, totals.RoundTrips, totals.ToolInvocations))
	if len(totals.ByAttribution) == 0 {
		return sb.String()
	}
	sb.WriteString("| Attribution | Input | Output | Total | Round-trips |\n|---|---|---|---|---|\n")
	attributions := make([]string, 0, len(totals.ByAttribution))
	for a := range totals.ByAttribution {
		attributions = append(attributions, a)
	}
	sort.Strings(attributions)
	for _, a := range attributions {
		rec := totals.ByAttribution[a]
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n", a, rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.RoundTrips))
	}
	return sb.String()
}
