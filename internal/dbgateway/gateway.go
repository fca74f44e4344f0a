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

package dbgateway

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	gosqldriver "github.com/go-sql-driver/mysql"
	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

const (
	connectDeadline     = 5 * time.Second
	maxOpenConns        = 10
	maxIdleConns        = 5
	connMaxLifetime     = 10 * time.Minute
	defaultProbeCount   = 10
	maxProbeCount       = 20
	maxExpectedReplicas = 5
)

// Gateway provides pooled, read-only, TLS-policy-aware access to a
// single logical MariaDB/MySQL service.
type Gateway struct {
	descriptor models.ConnDescriptor
	db         *sql.DB
	log        logger.Logger

	capsOnce sync.Once
	caps     models.ServerCapabilities
	capsErr  errs.DBDiagError
}

// Open constructs the pool for a connection descriptor. The TLS policy
// was already fixed at descriptor construction time (no downgrade here).
func Open(d models.ConnDescriptor) (*Gateway, error) {
	tlsConfigName := ""
	if d.TLSMode == models.TLSRequiredVerifyCAAndIdentity {
		tlsConfigName = "dbdiag-" + d.Host
		if err := gosqldriver.RegisterTLSConfig(tlsConfigName, &tls.Config{
			ServerName: d.Host,
			MinVersion: tls.VersionTLS12,
		}); err != nil {
			return nil, fmt.Errorf("dbgateway: register tls config: %w", err)
		}
	}

	db, err := sql.Open("mysql", dsn(d, tlsConfigName))
	if err != nil {
		return nil, fmt.Errorf("dbgateway: open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectDeadline)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classifyConnError(err)
	}

	return &Gateway{descriptor: d, db: db, log: logger.NewLogger("dbgateway")}, nil
}

// Close releases the pool. Capability memoization is invalidated.
func (g *Gateway) Close() error {
	g.capsOnce = sync.Once{}
	g.caps = models.ServerCapabilities{}
	g.capsErr = nil
	return g.db.Close()
}

// RunReadonly validates query shape, borrows a pooled connection, sets
// the session statement timeout, executes, and enforces row/byte caps.
func (g *Gateway) RunReadonly(ctx context.Context, req models.QueryRequest) (*models.QueryResult, errs.DBDiagError) {
	if shapeErr := validateQueryShape(req.SQL); shapeErr != nil {
		return nil, shapeErr
	}

	rowCap := req.RowCap
	if rowCap <= 0 {
		rowCap = models.DefaultRowCap
	}
	if rowCap > models.MaxRowCap {
		rowCap = models.MaxRowCap
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = models.DefaultTimeout
	}
	if timeout > models.MaxTimeout {
		timeout = models.MaxTimeout
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := g.db.Conn(qctx)
	if err != nil {
		return nil, classifyConnError(err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(qctx, fmt.Sprintf("SET SESSION MAX_EXECUTION_TIME=%d", timeout.Milliseconds())); err != nil {
		g.log.Debugf("session statement-timeout not supported: %v", err)
	}

	start := time.Now()
	rows, err := conn.QueryContext(qctx, req.SQL)
	if err != nil {
		return nil, classifyQueryError(err, qctx)
	}
	defer rows.Close()

	result, scanErr := scanRows(rows, rowCap, models.ResultByteCap)
	if scanErr != nil {
		return nil, errs.Wrap(errs.KindBackendError, "scanning result rows", scanErr)
	}
	result.ExecTime = time.Since(start)
	return result, nil
}

// RunReadonlyProbe executes the same query probeCount times on fresh
// borrows, exploiting a load-balancer's round-robin to reach multiple
// replicas, and deduplicates rows by replica identity.
func (g *Gateway) RunReadonlyProbe(ctx context.Context, req models.QueryRequest, probeCount int) (*models.ProbeScanResult, errs.DBDiagError) {
	if shapeErr := validateQueryShape(req.SQL); shapeErr != nil {
		return nil, shapeErr
	}
	if probeCount <= 0 {
		probeCount = defaultProbeCount
	}
	if probeCount > maxProbeCount {
		probeCount = maxProbeCount
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = models.DefaultTimeout
	}

	seen := make(map[string]bool)
	var replicas []models.ReplicaStatusRow
	succeeded := 0

	for i := 0; i < probeCount; i++ {
		row, err := g.probeOnce(ctx, req.SQL, timeout)
		if err != nil {
			g.log.Debugf("probe %d/%d failed, skipping: %v", i+1, probeCount, err)
			continue
		}
		succeeded++
		if row == nil {
			continue // probe succeeded but returned no rows (not a replica)
		}
		if !seen[row.Identity] {
			seen[row.Identity] = true
			replicas = append(replicas, *row)
		}
	}

	if succeeded == 0 && probeCount > 0 {
		return nil, errs.New(errs.KindBackendError, "all probes failed")
	}

	note := fmt.Sprintf(
		"results reflect non-deterministic load-balancer round-robin across up to %d probes; "+
			"the managed-service setting expects at most %d distinct replicas",
		probeCount, maxExpectedReplicas)
	return &models.ProbeScanResult{Replicas: replicas, Note: note}, nil
}

// probeOnce issues req on a fresh connection (autocommit, single
// statement) and resolves the replica identity from the first row, or
// returns (nil, nil) when the query returns no rows.
func (g *Gateway) probeOnce(ctx context.Context, sqlText string, timeout time.Duration) (*models.ReplicaStatusRow, error) {
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := g.db.Conn(qctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(qctx, "SET SESSION autocommit=1"); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(qctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := models.ReplicaStatusRow{Columns: make(map[string]string, len(cols)), Order: cols}
	for i, col := range cols {
		row.Columns[col] = stringify(values[i])
	}
	row.Identity = resolveReplicaIdentity(row)
	return &row, nil
}

// resolveReplicaIdentity picks the deduplication key in precedence
// order: connection/channel name, else source server id, else source
// host, else a fallback key built from all of the row's column values.
func resolveReplicaIdentity(row models.ReplicaStatusRow) string {
	for _, key := range []string{"Connection_name", "Channel_Name", "Source_Server_Id", "Master_Server_Id"} {
		if v, ok := row.Columns[key]; ok && v != "" {
			return key + ":" + v
		}
	}
	for _, key := range []string{"Master_Host", "Source_Host"} {
		if v, ok := row.Columns[key]; ok && v != "" {
			return key + ":" + v
		}
	}
	return fmt.Sprintf("fallback:%v", row.Columns)
}

// ServerCapabilities probes and memoizes, once per descriptor,
// instrumentation availability, server family/version, and role hint.
func (g *Gateway) ServerCapabilities(ctx context.Context) (models.ServerCapabilities, errs.DBDiagError) {
	g.capsOnce.Do(func() {
		caps := models.ServerCapabilities{RoleHint: "unknown"}

		var versionStr string
		if err := g.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&versionStr); err != nil {
			g.capsErr = errs.Wrap(errs.KindBackendError, "querying server version", err)
			return
		}
		caps.Version.Raw = versionStr
		caps.ServerFamily = "mysql"
		if strings.Contains(strings.ToLower(versionStr), "mariadb") {
			caps.ServerFamily = "mariadb"
		}
		if v, err := semver.NewVersion(leadingSemver(versionStr)); err == nil {
			caps.Version.Major = v.Major()
			caps.Version.Minor = v.Minor()
			caps.Version.Patch = v.Patch()
		}

		var name, value string
		row := g.db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'performance_schema'")
		if err := row.Scan(&name, &value); err == nil {
			caps.InstrumentationEnabled = value == "ON" || value == "1"
		}

		readOnly, haveReadOnly := false, false
		row = g.db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'read_only'")
		if err := row.Scan(&name, &value); err == nil {
			haveReadOnly = true
			readOnly = value == "ON" || value == "1"
		}

		logBin := false
		row = g.db.QueryRowContext(ctx, "SHOW VARIABLES LIKE 'log_bin'")
		if err := row.Scan(&name, &value); err == nil {
			logBin = value == "ON" || value == "1"
		}

		replicaConfigured := false
		if rows, err := g.db.QueryContext(ctx, "SHOW SLAVE STATUS"); err == nil {
			replicaConfigured = rows.Next()
			rows.Close()
		}

		// A replica temporarily running read_only=OFF (maintenance)
		// still carries its replication configuration, so the
		// slave-status signal outranks the read_only flag; a writable
		// server only reads as a primary when it also writes a binlog.
		switch {
		case replicaConfigured:
			caps.RoleHint = "replica"
		case haveReadOnly && readOnly:
			caps.RoleHint = "replica"
		case haveReadOnly && logBin:
			caps.RoleHint = "primary"
		}

		g.caps = caps
	})
	return g.caps, g.capsErr
}

func classifyConnError(err error) errs.DBDiagError {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.New(errs.KindTimeout, "connection acquire deadline exceeded")
	}
	var mysqlErr *gosqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1045:
			return errs.Wrap(errs.KindAuthFailed, "authentication failed", err)
		case 1049:
			return errs.Wrap(errs.KindSchemaMissing, "unknown database", err)
		}
		return errs.WithCode(errs.Wrap(errs.KindBackendError, "driver error", err), int(mysqlErr.Number))
	}
	return errs.Wrap(errs.KindConnectionLost, "connection failed", err)
}

func classifyQueryError(err error, qctx context.Context) errs.DBDiagError {
	if errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return errs.New(errs.KindTimeout, "query deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return errs.New(errs.KindCancelled, "query cancelled")
	}
	return classifyConnError(err)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// leadingSemver extracts the leading X.Y.Z from a free-form version
// string such as "8.0.34-0ubuntu0.22.04.1" or "10.6.12-MariaDB".
func leadingSemver(s string) string {
	out := make([]byte, 0, len(s))
	dots := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			out = append(out, c)
		case c == '.' && dots < 2:
			dots++
			out = append(out, c)
		default:
			return string(out)
		}
	}
	return string(out)
}
