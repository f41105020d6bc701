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
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// BaseDatabaseFactory creates and manages a configured database manager and
// provides helpers for initialization, health checks, and statistics.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	scripts ScriptConfig
	logger  Logger
}

// NewDatabaseFactory returns a new database factory using the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger: GetLogger(),
	}
}

// CreateFromConfig constructs a database manager from cfg, applying DB_*
// environment overrides and validating the result.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *Config) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	OverrideFromEnv(&cfg.ConnectionConfig)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	manager := NewDatabaseManager(&cfg.ConnectionConfig, cfg.CommandConfig)
	manager.SetLogger(f.logger)

	f.manager = manager
	f.scripts = cfg.ScriptConfig
	return manager, nil
}

// InitializeDatabase connects to the database and, when the script config
// asks for it, runs the startup SQL scripts.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}

	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if f.scripts.RunOnStartup {
		if err := f.RunScripts(ctx); err != nil {
			return fmt.Errorf("failed to run startup scripts: %w", err)
		}
	}
	f.logger.Info("Database initialization completed!")
	return nil
}

// RunScripts executes the SQL files found under the configured script path.
func (f *BaseDatabaseFactory) RunScripts(ctx context.Context) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	conn, err := f.manager.NewConnection()
	if err != nil {
		return err
	}
	runner := NewScriptRunner(conn, f.scripts.Environment)
	if f.scripts.Filepath != "" {
		runner.SetRootPath(f.scripts.Filepath)
	}
	runner.SetLogger(f.logger)
	_, err = runner.Run(ctx)
	return err
}

// ConnectionFactory returns a ConnectionFactory over the managed handle.
func (f *BaseDatabaseFactory) ConnectionFactory() ConnectionFactory {
	return func() (Connection, error) {
		if f.manager == nil {
			return nil, fmt.Errorf("database manager not created")
		}
		return f.manager.NewConnection()
	}
}

// GetManager returns the underlying database manager.
func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

// SetLogger sets the logger on the factory and the underlying manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close closes the database connection managed by the factory.
func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

// GetHealthStatus returns the current database health status from the manager.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

// GetStats returns database connection statistics from the manager.
func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
