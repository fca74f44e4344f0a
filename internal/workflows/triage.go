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
	"fmt"
	"strconv"
	"strings"

	"github.com/skysql-oss/dbdiag-agents/internal/logingest"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

// TriageInput parameterizes one incident-triage workflow run.
type TriageInput struct {
	ErrorLogPath     string
	ManagedServiceID string
	MaxErrorPatterns int // default 20
	MaxLogLines      int // default 5000
}

const (
	triageDefaultMaxPatterns = 20
	triageDefaultMaxLogLines = 5000
	maxLikelyCauses          = 3
)

// goldenSnapshotVariables is the canonical status-variable set the
// health snapshot samples. Limited to variables present on MySQL 5.7+
// and MariaDB 10.x so the snapshot degrades gracefully across versions.
// Keep this list stable; downstream correlation keys on these names.
var goldenSnapshotVariables = map[string]bool{
	"Threads_connected": true, "Threads_running": true, "Max_used_connections": true,
	"Aborted_connects": true, "Innodb_row_lock_time": true, "Innodb_row_lock_waits": true,
	"Slow_queries": true, "Questions": true, "Com_select": true, "Com_insert": true,
	"Com_update": true, "Com_delete": true, "Uptime": true,
}

// Soft thresholds for the conservative correlation rule: a cause is
// only reported when at least one of these is exceeded. Deliberately
// suggestion-grade, not alerting-grade.
const (
	thresholdSlowQueryRatio    = 0.01
	thresholdAvgLockWaitMillis = 1000.0
	thresholdReplicationLagSec = 30.0
	thresholdCPUPercent        = 80.0
	thresholdDiskPercent       = 85.0
)

// triageCause is the internal, pre-narration shape of a likely cause;
// causesToFindings renders it to the public Finding shape.
type triageCause struct {
	Category    string
	PatternName string
	Severity    string
	Indicators  []string
	Checks      []string
	Mitigations []string
	DoNots      []string
}

type causeCandidate struct {
	category    string
	keywords    []string
	checks      []string
	mitigations []string
	doNots      []string
}

var causeCandidates = []causeCandidate{
	{
		category: "lock-contention",
		keywords: []string{"lock wait timeout", "deadlock"},
		checks: []string{
			"inspect information_schema.innodb_lock_waits (or performance_schema.data_lock_waits) for current blockers",
			"check the Innodb_row_lock_waits / Innodb_row_lock_time trend over the last interval",
			"run the running-query workflow to identify the blocking session",
		},
		mitigations: []string{
			"shorten the transaction scope around the contended rows",
			"add or adjust an index so the update touches fewer rows",
		},
		doNots: []string{"do not raise innodb_lock_wait_timeout as a first response; it masks the underlying contention"},
	},
	{
		category: "query-performance",
		keywords: []string{"slow query", "query_time", "full scan", "using filesort"},
		checks: []string{
			"run the slow-query workflow over the last hour",
			"compare Slow_queries against Questions for the same interval",
			"review EXPLAIN FORMAT=JSON for the top digests",
		},
		mitigations: []string{
			"add an index on the scanned predicate",
			"rewrite a leading-wildcard LIKE against a FULLTEXT index where one exists",
		},
		doNots: []string{"do not add an index without checking its write-path cost first"},
	},
	{
		category: "replication",
		keywords: []string{"slave", "replica", "io thread", "sql thread", "relay log"},
		checks: []string{
			"run the replication-health workflow",
			"check Seconds_Behind_Source/Seconds_Behind_Master on each replica",
			"check the last IO/SQL error codes on the lagging replica",
		},
		mitigations: []string{
			"investigate network latency or saturation toward the lagging replica",
			"pause non-critical writes on the primary if the workload is I/O-bound",
		},
		doNots: []string{"do not fail over without first confirming GTID consistency"},
	},
	{
		category: "resource-pressure",
		keywords: []string{"out of memory", "disk full", "too many connections", "cannot allocate memory"},
		checks: []string{
			"check the CPU and disk utilization trend over the last hour",
			"compare Threads_connected against the configured max_connections",
			"check Aborted_connects for connection churn",
		},
		mitigations: []string{
			"scale the instance or shed non-critical connections",
			"identify and address the largest resource consumers via the running-query workflow",
		},
		doNots: []string{"do not restart the server as a first response; it discards diagnostic state"},
	},
}

// RunTriage builds the health snapshot and log pattern evidence
// deterministically (so the conservative soft-threshold rule is
// testable without a reasoning-service round-trip), then asks
// the reasoning service only to narrate the already-computed causes into
// the report's markdown.
func RunTriage(ctx context.Context, deps Deps, in TriageInput, rootInvocationID string) models.AgentReport {
	in = normalizeTriageInput(in)

	snapshot, notes := buildHealthSnapshot(ctx, deps, in, rootInvocationID)
	patterns, patternsNote := gatherLogPatterns(ctx, deps, in, rootInvocationID)
	if patternsNote != "" {
		notes = append(notes, patternsNote)
	}
	causes := correlateCauses(snapshot, patterns)

	catalog := registryCatalog(deps.Runtime, "run_readonly")
	systemPrompt := buildTriageNarrationPrompt(snapshot, patterns, causes, notes)

	text, state, derr, failedTool := runLoop(ctx, deps, "incident-triage", systemPrompt, catalog, triageTurnBudget, rootInvocationID)
	report := finalizeReport("incident-triage", text, state, derr, failedTool)

	report.Findings = causesToFindings(causes)
	if len(causes) > 0 {
		report.TopCauseCategory = causes[0].Category
		report.Severity = causes[0].Severity
	}
	for _, n := range notes {
		report.Markdown += "\n\n" + n
	}
	return report
}

func normalizeTriageInput(in TriageInput) TriageInput {
	if in.MaxErrorPatterns <= 0 {
		in.MaxErrorPatterns = triageDefaultMaxPatterns
	}
	if in.MaxLogLines <= 0 {
		in.MaxLogLines = triageDefaultMaxLogLines
	}
	return in
}

// buildHealthSnapshot samples the health snapshot once via direct tool
// dispatch rather than through the reasoning loop,
// so the snapshot is available before the workflow asks the reasoning
// service for anything.
func buildHealthSnapshot(ctx context.Context, deps Deps, in TriageInput, rootID string) (models.HealthSnapshot, []string) {
	var notes []string
	snapshot := models.HealthSnapshot{
		Connections:   map[string]string{},
		Locks:         map[string]string{},
		QueryActivity: map[string]string{},
	}

	statusResult, derr := dispatchRunReadonly(ctx, deps, rootID, "SHOW GLOBAL STATUS", 500)
	if derr != nil {
		notes = append(notes, fmt.Sprintf("could not read SHOW GLOBAL STATUS: %v", derr))
	} else {
		values := statusValues(statusResult)
		for name, v := range values {
			if !goldenSnapshotVariables[name] {
				continue
			}
			switch name {
			case "Innodb_row_lock_time", "Innodb_row_lock_waits":
				snapshot.Locks[name] = v
			case "Slow_queries", "Questions", "Com_select", "Com_insert", "Com_update", "Com_delete", "Uptime":
				snapshot.QueryActivity[name] = v
			default:
				snapshot.Connections[name] = v
			}
		}
	}

	if caps, capErr := dispatchServerCapabilities(ctx, deps, rootID); capErr == nil && !caps.InstrumentationEnabled {
		notes = append(notes, "performance instrumentation disabled")
	}

	pressure, pressureNote := buildResourcePressure(ctx, deps, rootID)
	snapshot.ResourcePressure = pressure
	if pressureNote != "" {
		notes = append(notes, pressureNote)
	}

	if repl, replErr := dispatchRunReadonly(ctx, deps, rootID, "SHOW SLAVE STATUS", 10); replErr == nil && repl.RowCount > 0 {
		snapshot.Replication = replicationRowToMap(repl)
	}

	if note := provisioningNote(ctx, deps, rootID); note != "" {
		notes = append(notes, note)
	}

	return snapshot, notes
}

// provisioningNote contextualizes the snapshot with the managed
// service's topology when observability is configured: a single
// replica reporting healthy thread state reads differently against a
// one-replica topology than against a five-replica one.
func provisioningNote(ctx context.Context, deps Deps, rootID string) string {
	if _, ok := deps.Runtime.Lookup("service_provisioning"); !ok {
		return ""
	}
	res, derr := deps.Runtime.Dispatch(ctx, "service_provisioning", map[string]any{}, rootID)
	if derr != nil {
		return ""
	}
	info, ok := res.Value.(*logingest.ProvisioningInfo)
	if !ok || info == nil {
		return ""
	}
	return fmt.Sprintf("managed-service topology: region=%s topology=%s replica_count=%d",
		info.Region, info.Topology, info.ReplicaCount)
}

func buildResourcePressure(ctx context.Context, deps Deps, rootID string) (models.ResourcePressure, string) {
	if _, ok := deps.Runtime.Lookup("resource_metrics"); ok {
		res, derr := deps.Runtime.Dispatch(ctx, "resource_metrics", map[string]any{"from_hours_ago": 1}, rootID)
		if derr == nil {
			if m, ok := res.Value.(map[string]any); ok {
				pressure := models.ResourcePressure{Source: "managed-service"}
				if cpuSamples, ok := m["cpu"].([]logingest.MetricSample); ok && len(cpuSamples) > 0 {
					pressure.CPUPercent = averageMetric(cpuSamples)
					pressure.HasCPU = true
				}
				if diskSamples, ok := m["disk_data"].([]logingest.MetricSample); ok && len(diskSamples) > 0 {
					pressure.DiskDataUsed = averageMetric(diskSamples)
					pressure.HasDisk = true
				}
				return pressure, ""
			}
		}
	}

	res, derr := deps.Runtime.Dispatch(ctx, "local_resource_snapshot", map[string]any{}, rootID)
	if derr != nil {
		return models.ResourcePressure{Source: "local"}, "observability not configured; local resource snapshot unavailable"
	}
	if pressure, ok := res.Value.(models.ResourcePressure); ok {
		return pressure, "observability not configured; resource pressure is host-local, not managed-service-sourced"
	}
	return models.ResourcePressure{Source: "local"}, "observability not configured"
}

func averageMetric(samples []logingest.MetricSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples))
}

func replicationRowToMap(qr *models.QueryResult) map[string]string {
	out := make(map[string]string, len(qr.Columns))
	if len(qr.Rows) == 0 {
		return out
	}
	row := qr.Rows[0]
	for i, col := range qr.Columns {
		if i < len(row) {
			out[col] = cellToString(row[i])
		}
	}
	return out
}

func dispatchRunReadonly(ctx context.Context, deps Deps, rootID, sql string, rowCap int) (*models.QueryResult, error) {
	res, derr := deps.Runtime.Dispatch(ctx, "run_readonly", map[string]any{
		"sql": sql, "row_cap": rowCap, "timeout_seconds": 10,
	}, rootID)
	if derr != nil {
		return nil, derr
	}
	qr, ok := res.Value.(*models.QueryResult)
	if !ok {
		return nil, fmt.Errorf("unexpected run_readonly result type")
	}
	return qr, nil
}

func dispatchServerCapabilities(ctx context.Context, deps Deps, rootID string) (models.ServerCapabilities, error) {
	res, derr := deps.Runtime.Dispatch(ctx, "server_capabilities", map[string]any{}, rootID)
	if derr != nil {
		return models.ServerCapabilities{}, derr
	}
	caps, ok := res.Value.(models.ServerCapabilities)
	if !ok {
		return models.ServerCapabilities{}, fmt.Errorf("unexpected server_capabilities result type")
	}
	return caps, nil
}

func statusValues(qr *models.QueryResult) map[string]string {
	out := make(map[string]string, len(qr.Rows))
	for _, row := range qr.Rows {
		if len(row) < 2 {
			continue
		}
		name := cellToString(row[0])
		out[name] = cellToString(row[1])
	}
	return out
}

func gatherLogPatterns(ctx context.Context, deps Deps, in TriageInput, rootID string) ([]models.ErrorPattern, string) {
	var text string

	switch {
	case in.ErrorLogPath != "":
		res, derr := deps.Runtime.Dispatch(ctx, "tail_local_log", map[string]any{
			"path": in.ErrorLogPath, "max_lines": in.MaxLogLines,
		}, rootID)
		if derr != nil {
			return nil, fmt.Sprintf("local error log unavailable: %v", derr)
		}
		text = textFromResult(res.Value)

	default:
		// The remote tool is only registered when credentials are
		// configured, so its presence is the availability signal even
		// when the caller did not pass a service id explicitly.
		if _, ok := deps.Runtime.Lookup("fetch_remote_log"); !ok {
			if in.ManagedServiceID != "" {
				return nil, "observability not configured; no remote error log fetched"
			}
			return nil, "no error log source configured"
		}
		res, derr := deps.Runtime.Dispatch(ctx, "fetch_remote_log", map[string]any{"from_hours_ago": 1}, rootID)
		if derr != nil {
			return nil, fmt.Sprintf("remote error log unavailable: %v", derr)
		}
		text = textFromResult(res.Value)
	}

	res, derr := deps.Runtime.Dispatch(ctx, "extract_patterns", map[string]any{
		"text": text, "max_patterns": in.MaxErrorPatterns,
	}, rootID)
	if derr != nil {
		return nil, fmt.Sprintf("pattern extraction failed: %v", derr)
	}
	patterns, _ := res.Value.([]models.ErrorPattern)
	return patterns, ""
}

func textFromResult(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["text"].(string)
	return s
}

// correlateCauses applies the conservative rule: a candidate cause is
// only reported when at least one measurable indicator from the
// snapshot exceeds its soft threshold.
func correlateCauses(snapshot models.HealthSnapshot, patterns []models.ErrorPattern) []triageCause {
	exceeded, detail := exceededIndicators(snapshot)

	var causes []triageCause
	for _, cand := range causeCandidates {
		if !exceeded[cand.category] {
			continue
		}
		patternName, severity := matchPattern(patterns, cand.keywords)
		causes = append(causes, triageCause{
			Category:    cand.category,
			PatternName: patternName,
			Severity:    severity,
			Indicators:  detail[cand.category],
			Checks:      cand.checks,
			Mitigations: cand.mitigations,
			DoNots:      cand.doNots,
		})
		if len(causes) == maxLikelyCauses {
			break
		}
	}
	return causes
}

func exceededIndicators(snapshot models.HealthSnapshot) (map[string]bool, map[string][]string) {
	exceeded := map[string]bool{}
	detail := map[string][]string{}

	if slow, ok := parseFloat(snapshot.QueryActivity["Slow_queries"]); ok {
		if questions, ok2 := parseFloat(snapshot.QueryActivity["Questions"]); ok2 && questions > 0 {
			ratio := slow / questions
			if ratio > thresholdSlowQueryRatio {
				exceeded["query-performance"] = true
				detail["query-performance"] = append(detail["query-performance"],
					fmt.Sprintf("Slow_queries/Questions = %.2f%% (> %.2f%% threshold)", ratio*100, thresholdSlowQueryRatio*100))
			}
		}
	}

	if waits, ok := parseFloat(snapshot.Locks["Innodb_row_lock_waits"]); ok && waits > 0 {
		if lockTime, ok2 := parseFloat(snapshot.Locks["Innodb_row_lock_time"]); ok2 {
			avg := lockTime / waits
			if avg > thresholdAvgLockWaitMillis {
				exceeded["lock-contention"] = true
				detail["lock-contention"] = append(detail["lock-contention"],
					fmt.Sprintf("average InnoDB row lock wait %.0fms (> %.0fms threshold)", avg, thresholdAvgLockWaitMillis))
			}
		}
	}

	if snapshot.Replication != nil {
		lagStr := firstNonEmpty(snapshot.Replication["Seconds_Behind_Master"], snapshot.Replication["Seconds_Behind_Source"])
		if lag, ok := parseFloat(lagStr); ok && lag > thresholdReplicationLagSec {
			exceeded["replication"] = true
			detail["replication"] = append(detail["replication"],
				fmt.Sprintf("replica lag %.0fs (> %.0fs threshold)", lag, thresholdReplicationLagSec))
		}
		ioRunning := firstNonEmpty(snapshot.Replication["Slave_IO_Running"], snapshot.Replication["Replica_IO_Running"])
		sqlRunning := firstNonEmpty(snapshot.Replication["Slave_SQL_Running"], snapshot.Replication["Replica_SQL_Running"])
		if (ioRunning != "" && ioRunning != "Yes") || (sqlRunning != "" && sqlRunning != "Yes") {
			exceeded["replication"] = true
			detail["replication"] = append(detail["replication"],
				fmt.Sprintf("IO thread=%s SQL thread=%s", orDash(ioRunning), orDash(sqlRunning)))
		}
	}

	if snapshot.ResourcePressure.HasCPU && snapshot.ResourcePressure.CPUPercent > thresholdCPUPercent {
		exceeded["resource-pressure"] = true
		detail["resource-pressure"] = append(detail["resource-pressure"],
			fmt.Sprintf("CPU %.1f%% (> %.1f%% threshold)", snapshot.ResourcePressure.CPUPercent, thresholdCPUPercent))
	}
	if snapshot.ResourcePressure.HasDisk && snapshot.ResourcePressure.DiskDataUsed > thresholdDiskPercent {
		exceeded["resource-pressure"] = true
		detail["resource-pressure"] = append(detail["resource-pressure"],
			fmt.Sprintf("disk %.1f%% used (> %.1f%% threshold)", snapshot.ResourcePressure.DiskDataUsed, thresholdDiskPercent))
	}

	return exceeded, detail
}

func matchPattern(patterns []models.ErrorPattern, keywords []string) (string, string) {
	for _, p := range patterns {
		lower := strings.ToLower(p.Sample)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return p.Sample, string(p.Severity)
			}
		}
	}
	return "(metric-only; no matching log pattern found)", string(models.SeverityWarning)
}

func causesToFindings(causes []triageCause) []models.Finding {
	out := make([]models.Finding, 0, len(causes))
	for _, c := range causes {
		out = append(out, models.Finding{
			Title:       fmt.Sprintf("%s: %s", c.Category, c.PatternName),
			Indicators:  c.Indicators,
			Suggestions: append(append([]string{}, c.Checks...), c.Mitigations...),
		})
	}
	return out
}

func buildTriageNarrationPrompt(snapshot models.HealthSnapshot, patterns []models.ErrorPattern, causes []triageCause, notes []string) string {
	var sb strings.Builder
	sb.WriteString("You are the incident-triage diagnostic workflow for a MariaDB/MySQL server.\n")
	sb.WriteString("The health snapshot and log patterns below were already gathered; do not re-derive them, only narrate them into a report.\n\n")

	sb.WriteString(fmt.Sprintf("Connections: %v\nLocks: %v\nQuery activity: %v\n", snapshot.Connections, snapshot.Locks, snapshot.QueryActivity))
	if snapshot.Replication != nil {
		sb.WriteString(fmt.Sprintf("Replication: %v\n", snapshot.Replication))
	}
	sb.WriteString(fmt.Sprintf("Resource pressure (%s): cpu=%.1f%% (has=%t) disk=%.1f%% (has=%t)\n",
		snapshot.ResourcePressure.Source, snapshot.ResourcePressure.CPUPercent, snapshot.ResourcePressure.HasCPU,
		snapshot.ResourcePressure.DiskDataUsed, snapshot.ResourcePressure.HasDisk))

	sb.WriteString(fmt.Sprintf("\n%d error pattern(s) extracted from the log; %d likely cause(s) were identified by the conservative threshold rule.\n",
		len(patterns), len(causes)))
	for _, c := range causes {
		sb.WriteString(fmt.Sprintf("- [%s/%s] %s — indicators: %v\n", c.Category, c.Severity, c.PatternName, c.Indicators))
	}
	for _, n := range notes {
		sb.WriteString("Note: " + n + "\n")
	}

	sb.WriteString("\nWrite the final report as markdown: a short summary, each likely cause with its checks, mitigations, and do-not actions, " +
		"and an explicit note when observability is not configured or instrumentation is disabled. " +
		"When you are done, respond with plain text instead of a tool call.")
	return sb.String()
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
