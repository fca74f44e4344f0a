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

// Package config loads the process-wide configuration from environment
// variables. It is constructed once at startup and passed by reference;
// no component reaches for a singleton.
package config

import (
	"fmt"
	"strings"

	"github.com/skysql-oss/dbdiag-agents/internal/common/logger"
	"github.com/spf13/viper"
)

// DBConfig is the connection descriptor's raw material, populated from
// the DB_* environment variables.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// LLMConfig selects and authenticates the reasoning-service client.
type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// SkySQLConfig enables the managed-service observability endpoint. When
// APIKey or ServiceID is empty the remote log/metrics features are inert.
type SkySQLConfig struct {
	APIKey    string `mapstructure:"api_key"`
	ServiceID string `mapstructure:"service_id"`
	BaseURL   string `mapstructure:"base_url"`
}

// Config is the top-level, immutable-after-load configuration value.
type Config struct {
	DB     DBConfig      `mapstructure:"db"`
	LLM    LLMConfig     `mapstructure:"llm"`
	SkySQL SkySQLConfig  `mapstructure:"skysql"`
	Logger logger.Config `mapstructure:"logger"`
}

// Load builds a Config purely from environment variables; there is no
// config file in this system.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("db.port", 3306)
	v.SetDefault("llm.model", "")
	v.SetDefault("skysql.base_url", "https://api.skysql.com")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "console")
	v.SetDefault("logger.maxSize", 100)
	v.SetDefault("logger.maxBackups", 3)
	v.SetDefault("logger.maxAge", 28)

	bind := map[string]string{
		"db.host":            "DB_HOST",
		"db.port":            "DB_PORT",
		"db.user":            "DB_USER",
		"db.password":        "DB_PASSWORD",
		"db.database":        "DB_DATABASE",
		"llm.api_key":        "OPENAI_API_KEY",
		"llm.model":          "OPENAI_MODEL",
		"llm.provider":       "LLM_PROVIDER",
		"skysql.api_key":     "SKYSQL_API_KEY",
		"skysql.service_id":  "SKYSQL_SERVICE_ID",
		"skysql.base_url":    "SKYSQL_LOG_API_URL",
	}
	for key, env := range bind {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}
	if v.GetString("llm.provider") == "" {
		v.Set("llm.provider", "openai")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate enforces the only required credential: the reasoning
// service's API key.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required")
	}
	return nil
}

// RemoteObservabilityConfigured reports whether SkySQL log/metrics
// fetches are enabled; when either credential is absent the remote
// features stay inert.
func (c *Config) RemoteObservabilityConfigured() bool {
	return c.SkySQL.APIKey != "" && c.SkySQL.ServiceID != ""
}
