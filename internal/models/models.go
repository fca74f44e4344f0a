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

// Package models holds the data types shared across the diagnostic agent
// suite: connection descriptors, query requests and results, log lines
// and patterns, telemetry records, and agent reports.
package models

import "time"

// TLSMode is the negotiated TLS policy for a connection descriptor.
type TLSMode string

const (
	TLSDisabled                    TLSMode = "disabled"
	TLSRequiredVerifyCAAndIdentity TLSMode = "required-verify-ca-and-identity"
)

// ConnDescriptor is immutable after construction: one per logical
// service; the pool borrows short-lived connections from it.
type ConnDescriptor struct {
	Host     string
	Port     int
	User     string
	Password string
	Schema   string
	TLSMode  TLSMode
}

// CapabilityFlag marks what a tool is allowed to touch.
type CapabilityFlag string

const (
	CapReadsDB  CapabilityFlag = "reads-db"
	CapReadsLog CapabilityFlag = "reads-log"
	CapPure     CapabilityFlag = "pure"
)

// InvocationOutcome is the terminal state of a tool invocation record.
type InvocationOutcome string

const (
	OutcomeOK                 InvocationOutcome = "ok"
	OutcomeFailedWithKind     InvocationOutcome = "failed-with-kind"
	OutcomeGuardrailRejected  InvocationOutcome = "guardrail-rejected"
	OutcomeTimeout            InvocationOutcome = "timeout"
	OutcomeCancelled          InvocationOutcome = "cancelled"
)

// ToolInvocationRecord is immutable once finalized: created by the tool
// runtime on entry, finalized on exit, appended to the telemetry sink.
type ToolInvocationRecord struct {
	ID           string
	ParentID     string // nullable; "" means root
	ToolName     string
	Arguments    map[string]any
	StartTime    time.Time
	EndTime      time.Time
	Outcome      InvocationOutcome
	ErrorKind    string
	ResultBytes  int
	Truncated    bool
}

// QueryRequest is the input to the gateway's RunReadonly and
// RunReadonlyProbe operations.
type QueryRequest struct {
	SQL      string
	Database string
	RowCap   int
	Timeout  time.Duration
}

const (
	DefaultRowCap   = 100
	MaxRowCap       = 10000
	DefaultTimeout  = 10 * time.Second
	MaxTimeout      = 60 * time.Second
	ResultByteCap   = 64 * 1024
)

// QueryResult preserves column order; rows are ordered cell sequences.
type QueryResult struct {
	Columns     []string
	Rows        [][]any
	RowCount    int
	Truncated   bool
	ExecTime    time.Duration
}

// ReplicaStatusRow is an ordered mapping of vendor-supplied SHOW SLAVE
// STATUS-style columns, with a resolved identity for deduplication.
type ReplicaStatusRow struct {
	Identity string
	Columns  map[string]string
	Order    []string // preserves the vendor column order
}

// ProbeScanResult is the output of run_readonly_probe: a deduplicated
// set of replica rows plus an explanatory note about non-determinism.
type ProbeScanResult struct {
	Replicas []ReplicaStatusRow
	Note     string
}

// ServerVersion is the semver-parsed result of server_capabilities().
type ServerVersion struct {
	Raw   string
	Major uint64
	Minor uint64
	Patch uint64
}

// ServerCapabilities is memoized once per connection descriptor.
type ServerCapabilities struct {
	InstrumentationEnabled bool
	ServerFamily           string // "mysql" | "mariadb" | "unknown"
	Version                ServerVersion
	RoleHint               string // "primary" | "replica" | "unknown"
}

// ErrorLogLine is produced by the log ingestor, consumed and discarded
// by the pattern extractor.
type ErrorLogLine struct {
	Timestamp time.Time
	HasTime   bool
	ThreadID  string
	Severity  string
	Message   string
}

// Severity is one of the four classifications assigned to a pattern.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
	SeverityUnknown Severity = "UNKNOWN"
)

// ErrorPattern is a normalized equivalence class of log lines.
type ErrorPattern struct {
	Fingerprint string
	Severity    Severity
	FirstSeen   time.Time
	LastSeen    time.Time
	Count       int
	Sample      string
}

// HealthSnapshot is produced once per incident-triage run; immutable
// thereafter.
type HealthSnapshot struct {
	Connections      map[string]string
	ResourcePressure ResourcePressure
	Locks            map[string]string
	QueryActivity    map[string]string
	Replication      map[string]string // nil when not applicable
}

// ResourcePressure optionally carries observability-provider metrics;
// Source distinguishes a managed-service sample from the local
// gopsutil-derived fallback.
type ResourcePressure struct {
	Source        string // "managed-service" | "local"
	CPUPercent    float64
	DiskDataUsed  float64
	DiskLogUsed   float64
	HasCPU        bool
	HasDisk       bool
}

// TelemetryRecord is one LLM round-trip's token accounting.
type TelemetryRecord struct {
	RootInvocationID string
	InvocationID     string
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	RoundTrips       int
	Attribution      string // "self" or a sub-agent name
	RecordedAt       time.Time
}

// TelemetryTotals is the additive aggregation of a call tree.
type TelemetryTotals struct {
	InputTokens     int
	OutputTokens    int
	TotalTokens     int
	RoundTrips      int
	ToolInvocations int
	ByAttribution   map[string]TelemetryRecord
}

// TerminalState is the completion marker every agent report carries.
type TerminalState string

const (
	StateComplete      TerminalState = "complete"
	StatePartialBudget TerminalState = "partial-budget"
	StatePartialError  TerminalState = "partial-error"
)

// Finding is one item in an AgentReport's top-findings list.
type Finding struct {
	Title       string
	Indicators  []string
	Suggestions []string
}

// AgentReport is produced by a workflow on termination and consumed by
// the orchestrator's synthesizer.
type AgentReport struct {
	WorkflowName string
	State        TerminalState
	Markdown     string
	Severity     string
	Findings     []Finding
	DoNotActions []string
	FailedTool   string
	FailureNote  string
	// TopCauseCategory is set by incident-triage so the orchestrator can
	// decide its single conditional chain hop without re-parsing the
	// report's markdown.
	TopCauseCategory string
}

// SynthesizedReport is the orchestrator's final response: child reports
// combined into one.
type SynthesizedReport struct {
	ExecutiveSummary   string
	WorkflowReports    []AgentReport
	CorrelatedFindings []string
	Recommendations    []string
	NextSteps          []string
	Telemetry          TelemetryTotals
	Markdown           string
}
