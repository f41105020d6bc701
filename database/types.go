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
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

// AbstractDatabaseManager owns one database handle: connecting, health
// checks, reconnects, and handing out Connections.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	// NewConnection wraps the managed handle for command execution.
	NewConnection() (Connection, error)
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to reach a database and tune its pool.
type ConnectionConfig struct {
	// Type is mysql, postgres, pgx or sqlite.
	Type                string        `json:"type" yaml:"type" mapstructure:"type" validate:"required,oneof=mysql postgres pgx sqlite"`
	Host                string        `json:"host" yaml:"host" mapstructure:"host" validate:"required_unless=Type sqlite"`
	Port                int           `json:"port" yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	Username            string        `json:"username" yaml:"username" mapstructure:"username"`
	Password            string        `json:"password" yaml:"password" mapstructure:"password"`
	DBName              string        `json:"dbname" yaml:"dbname" mapstructure:"dbname" validate:"required"`
	SSLMode             string        `json:"sslmode" yaml:"sslmode" mapstructure:"sslmode"`
	Charset             string        `json:"charset" yaml:"charset" mapstructure:"charset"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect" yaml:"enable_reconnect" mapstructure:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval" yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries" yaml:"max_reconnect_tries" mapstructure:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval" mapstructure:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log" mapstructure:"enable_query_log"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time" mapstructure:"slow_query_time"`
}

// CommandConfig controls how Connections execute commands.
type CommandConfig struct {
	// Timeout is the default command timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	// RouteThroughBun executes via bun.DB so bun query hooks see every
	// command; placeholders become ?.
	RouteThroughBun bool `json:"route_through_bun" yaml:"route_through_bun" mapstructure:"route_through_bun"`
	// LogCommands installs a CommandLogHook.
	LogCommands bool `json:"log_commands" yaml:"log_commands" mapstructure:"log_commands"`
	// Dialect forces a SQL dialect (mssql, pg, mysql, sqlite); empty follows Type.
	Dialect string `json:"dialect" yaml:"dialect" mapstructure:"dialect" validate:"omitempty,oneof=mssql sqlserver pg postgres mysql sqlite"`
}

// ScriptConfig locates SQL scripts run at startup or by the CLI.
type ScriptConfig struct {
	RunOnStartup bool   `json:"run_on_startup" yaml:"run_on_startup" mapstructure:"run_on_startup"`
	Filepath     string `json:"filepath" yaml:"filepath" mapstructure:"filepath"`
	Environment  string `json:"environment" yaml:"environment" mapstructure:"environment"`
}

// Config aggregates connection, command and script settings.
type Config struct {
	ConnectionConfig ConnectionConfig `json:"connection_config" yaml:"connection" mapstructure:"connection"`
	CommandConfig    CommandConfig    `json:"command_config" yaml:"command" mapstructure:"command"`
	ScriptConfig     ScriptConfig     `json:"script_config" yaml:"script" mapstructure:"script"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig returns a Config with DefaultConnectionConfig and the
// default command timeout.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		CommandConfig:    CommandConfig{Timeout: DefaultCommandTimeout},
		ScriptConfig:     ScriptConfig{Filepath: "configs/sql", Environment: "prod"},
	}
}
