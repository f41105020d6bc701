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

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/utils"
)

// flagKeys binds persistent flags onto config keys.
var flagKeys = map[string]string{
	"type":         "connection.type",
	"host":         "connection.host",
	"port":         "connection.port",
	"dbname":       "connection.dbname",
	"log-commands": "command.log_commands",
}

// loadConfig merges defaults, the config file, ANVIL_* variables and flags.
// DB_* variables are applied last.
func loadConfig(cmd *cobra.Command) (*database.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	def := database.DefaultConfig()
	v.SetDefault("connection.max_idle_conns", def.ConnectionConfig.MaxIdleConns)
	v.SetDefault("connection.max_open_conns", def.ConnectionConfig.MaxOpenConns)
	v.SetDefault("connection.conn_max_lifetime", def.ConnectionConfig.ConnMaxLifetime)
	v.SetDefault("connection.conn_max_idle_time", def.ConnectionConfig.ConnMaxIdleTime)
	v.SetDefault("connection.connect_timeout", def.ConnectionConfig.ConnectTimeout)
	v.SetDefault("connection.read_timeout", def.ConnectionConfig.ReadTimeout)
	v.SetDefault("connection.write_timeout", def.ConnectionConfig.WriteTimeout)
	v.SetDefault("connection.slow_query_time", def.ConnectionConfig.SlowQueryTime)
	v.SetDefault("command.timeout", def.CommandConfig.Timeout)
	v.SetDefault("script.filepath", def.ScriptConfig.Filepath)
	v.SetDefault("script.environment", def.ScriptConfig.Environment)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("anvil")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("ANVIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg database.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// the health loop is for long running processes
	cfg.ConnectionConfig.HealthCheckInterval = 0
	database.OverrideFromEnv(&cfg.ConnectionConfig)
	if err := database.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		utils.ConfigureLogLevel(lvl)
	}
	return &cfg, nil
}

// openConnection connects a manager for cfg and returns a Connection plus a
// cleanup function.
func openConnection(ctx context.Context, cfg *database.Config) (database.Connection, func(), error) {
	manager := database.NewDatabaseManager(&cfg.ConnectionConfig, cfg.CommandConfig)
	if err := manager.Connect(ctx); err != nil {
		return nil, nil, err
	}
	conn, err := manager.NewConnection()
	if err != nil {
		_ = manager.Disconnect()
		return nil, nil, err
	}
	return conn, func() { _ = manager.Disconnect() }, nil
}

// parseParams turns name=value pairs into a parameter map.
func parseParams(pairs []string) (database.Map, error) {
	params := database.Map{}
	for _, kv := range pairs {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", kv)
		}
		params[name] = value
	}
	return params, nil
}
