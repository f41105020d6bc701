/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anvil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
connection:
  type: postgresql
  host: db.local
  port: 5432
  dbname: app
  conn_max_lifetime: 30m
command:
  timeout: 5s
  dialect: pg
script:
  run_on_startup: true
  environment: dev
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "db.local", cfg.ConnectionConfig.Host)
	assert.Equal(t, 30*time.Minute, cfg.ConnectionConfig.ConnMaxLifetime)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.CommandConfig.Timeout)
	assert.Equal(t, "pg", cfg.CommandConfig.Dialect)
	assert.True(t, cfg.ScriptConfig.RunOnStartup)
	assert.Equal(t, "configs/sql", cfg.ScriptConfig.Filepath)
	assert.Equal(t, "dev", cfg.ScriptConfig.Environment)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "connection:\n  type: mysql\n  host: db.local\n  dbname: app\n")
	t.Setenv("DB_HOST", "override.local")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90")
	t.Setenv("DB_SLOW_QUERY_TIME", "250ms")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "override.local", cfg.ConnectionConfig.Host)
	assert.Equal(t, 3307, cfg.ConnectionConfig.Port)
	assert.Equal(t, 90*time.Second, cfg.ConnectionConfig.ConnMaxLifetime)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.True(t, cfg.ConnectionConfig.EnableQueryLog)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "connection: [unclosed"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	assert.Error(t, ValidateConfig(nil))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"sqlite needs no host", func(c *Config) { c.ConnectionConfig.Type = "sqlite3"; c.ConnectionConfig.DBName = "app" }, ""},
		{"unknown type", func(c *Config) {
			c.ConnectionConfig.Type = "oracle"
			c.ConnectionConfig.Host = "h"
			c.ConnectionConfig.DBName = "app"
		}, "Type"},
		{"missing host", func(c *Config) { c.ConnectionConfig.Type = "mysql"; c.ConnectionConfig.DBName = "app" }, "Host"},
		{"missing dbname", func(c *Config) { c.ConnectionConfig.Type = "sqlite" }, "DBName"},
		{"bad dialect", func(c *Config) {
			c.ConnectionConfig.Type = "sqlite"
			c.ConnectionConfig.DBName = "app"
			c.CommandConfig.Dialect = "oracle"
		}, "Dialect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDataSourceName(t *testing.T) {
	driver, dsn, err := DataSourceName(&ConnectionConfig{
		Type: "postgresql", Host: "db", Port: 5432, Username: "u", Password: "p", DBName: "app", ConnectTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://u:p@db:5432/app?sslmode=disable&connect_timeout=10", dsn)

	driver, _, err = DataSourceName(&ConnectionConfig{Type: "pgx", Host: "db", DBName: "app"})
	require.NoError(t, err)
	assert.Equal(t, "pgx", driver)

	driver, dsn, err = DataSourceName(&ConnectionConfig{Type: "mysql", Host: "db", Port: 3306, Username: "u", DBName: "app"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", driver)
	assert.Contains(t, dsn, "tcp(db:3306)/app")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "parseTime=true")

	driver, dsn, err = DataSourceName(&ConnectionConfig{Type: "sqlite", DBName: "app"})
	require.NoError(t, err)
	assert.Equal(t, sqliteshim.ShimName, driver)
	assert.Equal(t, "app.db", dsn)

	_, dsn, _ = DataSourceName(&ConnectionConfig{Type: "sqlite", DBName: ":memory:"})
	assert.Equal(t, ":memory:", dsn)

	_, _, err = DataSourceName(&ConnectionConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestNormalizeType(t *testing.T) {
	assert.Equal(t, "postgres", NormalizeType(" PostgreSQL "))
	assert.Equal(t, "sqlite", NormalizeType("sqlite3"))
	assert.Equal(t, "mysql", NormalizeType("mysql"))
}
