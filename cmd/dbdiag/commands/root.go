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

// Package commands is the thin CLI shim over the orchestrator: one
// subcommand per workflow plus a free-form orchestrator command. It
// exists so the core is invokable from a terminal and stays
// deliberately thin, delegating everything to the internal packages.
package commands

import (
	"fmt"
	"os"

	"github.com/skysql-oss/dbdiag-agents/internal/common/config"
	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/skysql-oss/dbdiag-agents/internal/dbgateway"
	"github.com/skysql-oss/dbdiag-agents/internal/llm/client"
	"github.com/skysql-oss/dbdiag-agents/internal/logingest"
	"github.com/skysql-oss/dbdiag-agents/internal/orchestrator"
	"github.com/skysql-oss/dbdiag-agents/internal/telemetry"
	"github.com/skysql-oss/dbdiag-agents/internal/tools"
	"github.com/skysql-oss/dbdiag-agents/internal/workflows"
	"github.com/spf13/cobra"
)

const (
	exitSuccess      = 0
	exitConfigError  = 2
	exitBackendError = 3
)

var (
	gw   *dbgateway.Gateway
	deps workflows.Deps
	orch *orchestrator.Orchestrator
)

var rootCmd = &cobra.Command{
	Use:   "dbdiag",
	Short: "dbdiag is a read-only diagnostic agent suite for MariaDB/MySQL.",
	Long: `dbdiag routes natural-language symptom descriptions (or a direct
workflow invocation) to one of five read-only diagnostic workflows:
slow-query, running-query, incident-triage, replication-health, and
database-inspector.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(exitConfigError)
		}

		logger.InitGlobalLogger(&cfg.Logger)
		log := logger.NewLogger("cmd")

		llmClient, err := client.NewFromConfig(&cfg.LLM)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(exitConfigError)
		}

		descriptor := dbgateway.NewDescriptor(cfg.DB)
		gw, err = dbgateway.Open(descriptor)
		if err != nil {
			fmt.Fprintln(os.Stderr, "backend error:", err)
			os.Exit(exitBackendError)
		}

		var remote *logingest.RemoteClient
		if cfg.RemoteObservabilityConfigured() {
			remote = logingest.NewRemoteClient(cfg.SkySQL.BaseURL, cfg.SkySQL.APIKey)
		}

		registry := workflows.BuildRegistry(gw, remote, cfg.SkySQL.ServiceID)
		sink := telemetry.NewSink(true)
		runtime := tools.NewRuntime(registry, sink)

		deps = workflows.Deps{LLM: llmClient, Runtime: runtime, Telemetry: sink, Model: cfg.LLM.Model}
		orch = orchestrator.New(deps)

		log.Info("dbdiag core initialized")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if gw != nil {
			return gw.Close()
		}
		return nil
	},
}

// standaloneDeps attributes telemetry to "self" when a workflow runs
// directly, with no orchestrator parent above it in the call tree.
func standaloneDeps() workflows.Deps {
	d := deps
	d.Attribution = "self"
	return d
}

// Execute runs the root command; it is the single entry point called
// from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBackendError)
	}
}

func init() {
	rootCmd.AddCommand(newSlowQueryCmd())
	rootCmd.AddCommand(newRunningQueryCmd())
	rootCmd.AddCommand(newReplicationHealthCmd())
	rootCmd.AddCommand(newInspectorCmd())
	rootCmd.AddCommand(newIncidentTriageCmd())
	rootCmd.AddCommand(newOrchestratorCmd())
}
