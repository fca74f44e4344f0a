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

// Package dbgateway is the read-only database access layer: pooled
// connections, TLS policy selection, query-shape validation, row/byte
// caps, and the round-robin probe scan used to discover replicas behind
// a load balancer.
package dbgateway

import (
	"fmt"
	"strings"

	"github.com/skysql-oss/dbdiag-agents/internal/common/config"
	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

const managedServiceSuffix = ".skysql.com"

// NewDescriptor builds a connection descriptor from config, deriving the
// TLS mode from the host: any host matching the managed-service suffix
// gets required-verify-ca-and-identity, with no fallback downgrade.
func NewDescriptor(cfg config.DBConfig) models.ConnDescriptor {
	mode := models.TLSDisabled
	if strings.HasSuffix(strings.ToLower(cfg.Host), managedServiceSuffix) {
		mode = models.TLSRequiredVerifyCAAndIdentity
	}
	return models.ConnDescriptor{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Schema:   cfg.Database,
		TLSMode:  mode,
	}
}

// dsn builds a go-sql-driver/mysql DSN from the descriptor. tlsConfigName
// is the name under which a *tls.Config was registered with
// mysql.RegisterTLSConfig, empty when TLS is disabled.
func dsn(d models.ConnDescriptor, tlsConfigName string) string {
	var sb strings.Builder
	sb.WriteString(d.User)
	if d.Password != "" {
		sb.WriteString(":")
		sb.WriteString(d.Password)
	}
	sb.WriteString("@tcp(")
	sb.WriteString(fmt.Sprintf("%s:%d", d.Host, d.Port))
	sb.WriteString(")/")
	sb.WriteString(d.Schema)
	sb.WriteString("?charset=utf8mb4&parseTime=true&interpolateParams=true")
	if tlsConfigName != "" {
		sb.WriteString("&tls=" + tlsConfigName)
	}
	return sb.String()
}
