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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Gateway{db: db, log: logger.NewLogger("test")}, mock
}

func TestValidateQueryShape(t *testing.T) {
	cases := []struct {
		sql string
		ok  bool
	}{
		{"SELECT 1", true},
		{"  select * from t", true},
		{"SHOW GLOBAL STATUS", true},
		{"DESCRIBE t", true},
		{"DESC t", true},
		{"EXPLAIN SELECT 1", true},
		{"-- comment\nSELECT 1", true},
		{"/* c */ SELECT 1", true},
		{"DELETE FROM users", false},
		{"INSERT INTO t VALUES (1)", false},
		{"", false},
	}
	for _, c := range cases {
		err := validateQueryShape(c.sql)
		if c.ok {
			assert.Nil(t, err, "sql=%q", c.sql)
		} else {
			assert.NotNil(t, err, "sql=%q", c.sql)
			assert.Equal(t, errs.KindUnsafeQuery, err.Kind())
		}
	}
}

func TestGateway_RunReadonly_UnsafeQuery(t *testing.T) {
	g, mock := newMockGateway(t)

	_, err := g.RunReadonly(context.Background(), models.QueryRequest{SQL: "DELETE FROM users"})
	require.NotNil(t, err)
	assert.Equal(t, errs.KindUnsafeQuery, err.Kind())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_RunReadonly_HappyPath(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("SET SESSION MAX_EXECUTION_TIME").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	result, err := g.RunReadonly(context.Background(), models.QueryRequest{SQL: "SELECT 1"})
	require.Nil(t, err)
	assert.Equal(t, 1, result.RowCount)
	assert.False(t, result.Truncated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_RunReadonly_RowCapTruncates(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("SET SESSION MAX_EXECUTION_TIME").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"n"}).AddRow(1).AddRow(2).AddRow(3)
	mock.ExpectQuery("SELECT n FROM t").WillReturnRows(rows)

	result, err := g.RunReadonly(context.Background(), models.QueryRequest{SQL: "SELECT n FROM t", RowCap: 2})
	require.Nil(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.True(t, result.Truncated)
}

func TestResolveReplicaIdentity(t *testing.T) {
	row := models.ReplicaStatusRow{Columns: map[string]string{"Connection_name": "replica-1"}}
	assert.Equal(t, "Connection_name:replica-1", resolveReplicaIdentity(row))

	fallback := models.ReplicaStatusRow{Columns: map[string]string{"Other": "x"}}
	assert.Contains(t, resolveReplicaIdentity(fallback), "fallback:")
}

func TestLeadingSemver(t *testing.T) {
	assert.Equal(t, "8.0.34", leadingSemver("8.0.34-0ubuntu0.22.04.1"))
	assert.Equal(t, "10.6.12", leadingSemver("10.6.12-MariaDB"))
}

func variableRow(name, value string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"Variable_name", "Value"}).AddRow(name, value)
}

func TestServerCapabilities_WritableBinloggingServerIsPrimary(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT VERSION").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("10.6.12-MariaDB"))
	mock.ExpectQuery("SHOW VARIABLES LIKE 'performance_schema'").
		WillReturnRows(variableRow("performance_schema", "ON"))
	mock.ExpectQuery("SHOW VARIABLES LIKE 'read_only'").
		WillReturnRows(variableRow("read_only", "OFF"))
	mock.ExpectQuery("SHOW VARIABLES LIKE 'log_bin'").
		WillReturnRows(variableRow("log_bin", "ON"))
	mock.ExpectQuery("SHOW SLAVE STATUS").
		WillReturnRows(sqlmock.NewRows([]string{"Slave_IO_Running"}))

	caps, err := g.ServerCapabilities(context.Background())
	require.Nil(t, err)
	assert.Equal(t, "mariadb", caps.ServerFamily)
	assert.True(t, caps.InstrumentationEnabled)
	assert.Equal(t, uint64(10), caps.Version.Major)
	assert.Equal(t, "primary", caps.RoleHint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServerCapabilities_ReplicaConfigOutranksWritableFlag(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT VERSION").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("8.0.34"))
	mock.ExpectQuery("SHOW VARIABLES LIKE 'performance_schema'").
		WillReturnRows(variableRow("performance_schema", "OFF"))
	mock.ExpectQuery("SHOW VARIABLES LIKE 'read_only'").
		WillReturnRows(variableRow("read_only", "OFF"))
	mock.ExpectQuery("SHOW VARIABLES LIKE 'log_bin'").
		WillReturnRows(variableRow("log_bin", "ON"))
	mock.ExpectQuery("SHOW SLAVE STATUS").
		WillReturnRows(sqlmock.NewRows([]string{"Slave_IO_Running"}).AddRow("Yes"))

	caps, err := g.ServerCapabilities(context.Background())
	require.Nil(t, err)
	assert.False(t, caps.InstrumentationEnabled)
	assert.Equal(t, "replica", caps.RoleHint)
	assert.NoError(t, mock.ExpectationsWereMet())
}
