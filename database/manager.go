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
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type defaultDatabaseManager struct {
	config  *ConnectionConfig
	command CommandConfig
	logger  Logger

	mu             sync.RWMutex
	db             *bun.DB
	sqlDB          *sql.DB
	connected      bool
	lastError      error
	reconnectTries int
	stopWatch      context.CancelFunc
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun. A nil
// config uses DefaultConnectionConfig; command settings are optional.
func NewDatabaseManager(config *ConnectionConfig, command ...CommandConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	cc := CommandConfig{Timeout: DefaultCommandTimeout}
	if len(command) > 0 {
		cc = command[0]
	}
	return &defaultDatabaseManager{config: config, command: cc, logger: GetLogger()}
}

// Connect opens and pings the handle. A positive HealthCheckInterval starts
// a watcher that pings periodically and reopens the handle on failure.
func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}
	if err := dm.open(ctx); err != nil {
		return err
	}
	if dm.config.HealthCheckInterval > 0 && dm.stopWatch == nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		dm.stopWatch = cancel
		go dm.watchHealth(watchCtx)
	}
	dm.logger.Info("Database connected successfully:", "type", dm.config.Type, "host", dm.config.Host)
	return nil
}

// open replaces the handle with a freshly pinged one. Callers hold mu.
func (dm *defaultDatabaseManager) open(ctx context.Context) error {
	sqlDB, db, err := dm.createConnection()
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		dm.lastError = err
		return fmt.Errorf("database connection test failed: %w", err)
	}
	dm.db, dm.sqlDB = db, sqlDB
	dm.connected = true
	dm.lastError = nil
	dm.reconnectTries = 0
	return nil
}

// closeHandle closes the current handle, if any. Callers hold mu.
func (dm *defaultDatabaseManager) closeHandle() error {
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB = nil, nil
	dm.connected = false
	return err
}

func (dm *defaultDatabaseManager) createConnection() (*sql.DB, *bun.DB, error) {
	if dm.config.ConnectTimeout <= 0 {
		dm.config.ConnectTimeout = 30 * time.Second
	}

	driverName, dsn, err := DataSourceName(dm.config)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, err
	}
	sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)

	var db *bun.DB
	switch NormalizeType(dm.config.Type) {
	case "mysql":
		db = bun.NewDB(sqlDB, mysqldialect.New())
	case "postgres", "pgx":
		db = bun.NewDB(sqlDB, pgdialect.New())
	default:
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: dm.config.SlowQueryTime, logger: dm.logger})
	}
	return sqlDB, db, nil
}

// DataSourceName returns the database/sql driver name and DSN for cfg.
func DataSourceName(cfg *ConnectionConfig) (driverName, dsn string, err error) {
	switch NormalizeType(cfg.Type) {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.Loc = time.Local
		mc.Timeout = cfg.ConnectTimeout
		mc.ReadTimeout = cfg.ReadTimeout
		mc.WriteTimeout = cfg.WriteTimeout
		charset := cfg.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		mc.Params = map[string]string{"charset": charset}
		return "mysql", mc.FormatDSN(), nil
	case "postgres", "pgx":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := &url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.Username, cfg.Password),
			Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Path:     "/" + cfg.DBName,
			RawQuery: fmt.Sprintf("sslmode=%s&connect_timeout=%d", url.QueryEscape(sslMode), int(cfg.ConnectTimeout.Seconds())),
		}
		if NormalizeType(cfg.Type) == "pgx" {
			return "pgx", u.String(), nil
		}
		return "postgres", u.String(), nil
	case "sqlite":
		name := cfg.DBName
		if name != ":memory:" && !strings.HasPrefix(name, "file:") && !strings.HasSuffix(name, ".db") {
			name += ".db"
		}
		return sqliteshim.ShimName, name, nil
	default:
		return "", "", fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Disconnect stops the health watcher and closes the handle.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.stopWatch != nil {
		dm.stopWatch()
		dm.stopWatch = nil
	}
	if dm.db == nil {
		return nil
	}
	if err := dm.closeHandle(); err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	dm.logger.Info("Database connection closed")
	return nil
}

// Reconnect reopens the handle in place; a running health watcher keeps
// running.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.logger.Info("Attempting to reconnect to the database", "type", dm.config.Type)
	if err := dm.closeHandle(); err != nil {
		dm.logger.Warn("Error disconnecting existing connection", "error", err)
	}
	return dm.open(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

// HealthCheck pings without holding the manager lock, so commands keep
// flowing while a slow ping is in progress.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.RLock()
	db, sqlDB, connected := dm.db, dm.sqlDB, dm.connected
	dm.mu.RUnlock()

	status := &HealthStatus{LastCheckTime: time.Now(), Connected: connected}
	if db == nil {
		status.LastError = "Database not initialized"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := db.PingContext(pingCtx)
	cancel()
	status.ResponseTime = time.Since(status.LastCheckTime)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}
	stats := sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections

	dm.mu.Lock()
	dm.lastError = err
	dm.mu.Unlock()
	return status
}

func (dm *defaultDatabaseManager) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status := dm.HealthCheck(checkCtx)
		cancel()
		if !status.Healthy && dm.config.EnableReconnect {
			dm.retryConnect(ctx)
		}
	}
}

// retryConnect makes one reconnect attempt, at most MaxReconnectTries in a
// row; a successful open resets the counter.
func (dm *defaultDatabaseManager) retryConnect(ctx context.Context) {
	dm.mu.Lock()
	try := dm.reconnectTries + 1
	if try > dm.config.MaxReconnectTries {
		dm.mu.Unlock()
		dm.logger.Error("Max reconnect attempts reached, stopping", "tries", try-1)
		return
	}
	dm.reconnectTries = try
	dm.mu.Unlock()

	dm.logger.Info("Starting database reconnect", "try", try)
	select {
	case <-ctx.Done():
		return
	case <-time.After(dm.config.ReconnectInterval):
	}

	connectCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := dm.Reconnect(connectCtx); err != nil {
		dm.logger.Error("Reconnect failed", "error", err, "try", try)
		return
	}
	dm.logger.Info("Reconnect succeeded")
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	sqlDB := dm.GetSQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	s := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

// NewConnection wraps the managed handle. By default commands run on the
// underlying *sql.DB with the dialect's native placeholders; with
// RouteThroughBun they go through bun.DB so its query hooks observe them.
func (dm *defaultDatabaseManager) NewConnection() (Connection, error) {
	dm.mu.RLock()
	db, sqlDB, logger := dm.db, dm.sqlDB, dm.logger
	dm.mu.RUnlock()
	if db == nil || sqlDB == nil {
		return nil, fmt.Errorf("database not connected")
	}

	opts := []ConnectionOption{WithConnectionLogger(logger)}
	if dm.command.Timeout > 0 {
		opts = append(opts, WithDefaultTimeout(dm.command.Timeout))
	}
	if dm.command.LogCommands {
		opts = append(opts, WithCommandHooks(NewCommandLogHook()))
	}
	if dm.config.SlowQueryTime > 0 && !dm.command.RouteThroughBun {
		opts = append(opts, WithCommandHooks(NewSlowCommandHook(dm.config.SlowQueryTime, logger)))
	}

	dialect := DialectOf(db)
	if dm.command.Dialect != "" {
		dialect = DialectByName(dm.command.Dialect)
	}
	if dm.command.RouteThroughBun {
		opts = append(opts, WithPlaceholderStyle(PlaceholderQuestion))
		return NewConnection(db, dialect, opts...), nil
	}
	return NewConnection(sqlDB, dialect, opts...), nil
}

// SetLogger replaces the manager logger; nil is ignored.
func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
