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
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/skysql-oss/dbdiag-agents/internal/dbgateway"
	"github.com/skysql-oss/dbdiag-agents/internal/logingest"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/skysql-oss/dbdiag-agents/internal/patterns"
	"github.com/skysql-oss/dbdiag-agents/internal/tools"
)

// probeArgs is the typed, validated parameter struct for run_readonly_probe.
type probeArgs struct {
	SQL        string `mapstructure:"sql" json:"sql" validate:"required"`
	ProbeCount int    `mapstructure:"probe_count" json:"probe_count" validate:"gte=1,lte=20"`
}

// queryArgs is the typed, validated parameter struct for run_readonly.
type queryArgs struct {
	SQL     string `mapstructure:"sql" json:"sql" validate:"required"`
	RowCap  int    `mapstructure:"row_cap" json:"row_cap" validate:"gte=0,lte=10000"`
	Timeout int    `mapstructure:"timeout_seconds" json:"timeout_seconds" validate:"gte=0,lte=60"`
}

// BuildRegistry wires every read-only capability diagnostic workflows
// can call, backed by the DB gateway and the log ingestion pipeline. The
// managed-service tools are registered only when a remote client is
// configured.
func BuildRegistry(gw *dbgateway.Gateway, remote *logingest.RemoteClient, serviceID string) *tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(tools.Descriptor{
		Name:         "run_readonly",
		Description:  "Execute a single read-only SQL statement (SELECT/SHOW/DESCRIBE/EXPLAIN) and return its rows.",
		Capabilities: map[models.CapabilityFlag]bool{models.CapReadsDB: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "sql", Type: "string", Required: true},
			{Name: "row_cap", Type: "integer", Default: models.DefaultRowCap},
			{Name: "timeout_seconds", Type: "integer", Default: 10},
		}},
		ArgsStruct:           func() any { return &queryArgs{} },
		SelfValidatedSQLArgs: map[string]bool{"sql": true},
		DefaultDeadline:      models.MaxTimeout,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			a := decodeQueryArgs(args)
			return gw.RunReadonly(ctx, models.QueryRequest{
				SQL: a.SQL, RowCap: a.RowCap, Timeout: time.Duration(a.Timeout) * time.Second,
			})
		},
	})

	reg.Register(tools.Descriptor{
		Name:         "run_readonly_probe",
		Description:  "Execute a read-only statement repeatedly across fresh connections to discover distinct replicas behind a load balancer.",
		Capabilities: map[models.CapabilityFlag]bool{models.CapReadsDB: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "sql", Type: "string", Required: true},
			{Name: "probe_count", Type: "integer", Default: 10},
		}},
		ArgsStruct:           func() any { return &probeArgs{} },
		SelfValidatedSQLArgs: map[string]bool{"sql": true},
		DefaultDeadline:      models.MaxTimeout,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			a := decodeProbeArgs(args)
			return gw.RunReadonlyProbe(ctx, models.QueryRequest{SQL: a.SQL}, a.ProbeCount)
		},
	})

	reg.Register(tools.Descriptor{
		Name:            "server_capabilities",
		Description:     "Return memoized server family/version, instrumentation availability, and role hint.",
		Capabilities:    map[models.CapabilityFlag]bool{models.CapReadsDB: true},
		Schema:          tools.Schema{},
		DefaultDeadline: 10 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return gw.ServerCapabilities(ctx)
		},
	})

	reg.Register(tools.Descriptor{
		Name:         "tail_local_log",
		Description:  "Return the last N lines of a local error log file.",
		Capabilities: map[models.CapabilityFlag]bool{models.CapReadsLog: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "path", Type: "string", Required: true},
			{Name: "max_lines", Type: "integer", Default: 5000},
		}},
		DefaultDeadline: 10 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			maxLines := asInt(args["max_lines"], 5000)
			buf, err := logingest.TailLocal(path, maxLines)
			if err != nil {
				return nil, err
			}
			return map[string]any{"text": string(buf)}, nil
		},
	})

	if remote != nil {
		reg.Register(tools.Descriptor{
			Name:         "fetch_remote_log",
			Description:  "Download the error log for the configured managed-service id over a time range.",
			Capabilities: map[models.CapabilityFlag]bool{models.CapReadsLog: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "from_hours_ago", Type: "integer", Default: 1},
			}},
			DefaultDeadline: 30 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				hours := asInt(args["from_hours_ago"], 1)
				to := time.Now()
				from := to.Add(-time.Duration(hours) * time.Hour)
				buf, err := remote.FetchRemote(ctx, serviceID, from, to)
				if err != nil {
					return nil, err
				}
				return map[string]any{"text": string(buf)}, nil
			},
		})

		reg.Register(tools.Descriptor{
			Name:         "resource_metrics",
			Description:  "Fetch managed-service CPU and disk utilization samples over a time range.",
			Capabilities: map[models.CapabilityFlag]bool{models.CapPure: true},
			Schema: tools.Schema{Parameters: []tools.Parameter{
				{Name: "from_hours_ago", Type: "integer", Default: 1},
			}},
			DefaultDeadline: 30 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				hours := asInt(args["from_hours_ago"], 1)
				to := time.Now()
				from := to.Add(-time.Duration(hours) * time.Hour)
				cpuSamples, err := remote.Metrics(ctx, serviceID, logingest.MetricCPU, from, to)
				if err != nil {
					return nil, err
				}
				diskSamples, err := remote.Metrics(ctx, serviceID, logingest.MetricDiskData, from, to)
				if err != nil {
					return nil, err
				}
				return map[string]any{"cpu": cpuSamples, "disk_data": diskSamples}, nil
			},
		})

		reg.Register(tools.Descriptor{
			Name:            "service_provisioning",
			Description:     "Fetch the managed-service's region, topology, and replica count to contextualize incident-triage findings.",
			Capabilities:    map[models.CapabilityFlag]bool{models.CapPure: true},
			Schema:          tools.Schema{},
			DefaultDeadline: 10 * time.Second,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return remote.Provisioning(ctx, serviceID)
			},
		})
	}

	reg.Register(tools.Descriptor{
		Name:         "extract_patterns",
		Description:  "Normalize and group raw log text into severity-classified patterns.",
		Capabilities: map[models.CapabilityFlag]bool{models.CapPure: true},
		Schema: tools.Schema{Parameters: []tools.Parameter{
			{Name: "text", Type: "string", Required: true},
			{Name: "max_patterns", Type: "integer", Default: 20},
		}},
		DefaultDeadline: 10 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			maxPatterns := asInt(args["max_patterns"], 20)
			return patterns.Extract([]byte(text), maxPatterns), nil
		},
	})

	reg.Register(tools.Descriptor{
		Name:            "local_resource_snapshot",
		Description:     "Sample local CPU and disk utilization when no managed-service observability is configured.",
		Capabilities:    map[models.CapabilityFlag]bool{models.CapPure: true},
		Schema:          tools.Schema{},
		DefaultDeadline: 5 * time.Second,
		Handler:         localResourceSnapshot,
	})

	return reg
}

func decodeQueryArgs(args map[string]any) queryArgs {
	return queryArgs{
		SQL:     fmt.Sprintf("%v", args["sql"]),
		RowCap:  asInt(args["row_cap"], models.DefaultRowCap),
		Timeout: asInt(args["timeout_seconds"], 10),
	}
}

func decodeProbeArgs(args map[string]any) probeArgs {
	return probeArgs{
		SQL:        fmt.Sprintf("%v", args["sql"]),
		ProbeCount: asInt(args["probe_count"], 10),
	}
}

func asInt(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// dataDirMount and logDirMount are the conventional MariaDB/MySQL data and
// error-log mount points on a default package install. A host that splits
// these across separate volumes will still report the mount gopsutil
// resolves each path to; a host that doesn't have either mounted simply
// leaves HasDisk unset for that sample.
const (
	dataDirMount = "/var/lib/mysql"
	logDirMount  = "/"
)

// localResourceSnapshot is the host-local fallback for the triage
// resource-pressure bundle when the managed service is not configured,
// so the bundle is never empty.
func localResourceSnapshot(ctx context.Context, _ map[string]any) (any, error) {
	snapshot := models.ResourcePressure{Source: "local"}

	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
		snapshot.HasCPU = true
	}

	if du, err := disk.UsageWithContext(ctx, dataDirMount); err == nil {
		snapshot.DiskDataUsed = du.UsedPercent
		snapshot.HasDisk = true
	}
	if du, err := disk.UsageWithContext(ctx, logDirMount); err == nil {
		snapshot.DiskLogUsed = du.UsedPercent
		snapshot.HasDisk = true
	}

	return snapshot, nil
}
