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
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/types"
)

// Executor runs SQL. *sql.DB, *sql.Tx, *bun.DB and bun.Tx satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// Connection creates and executes commands against one database handle.
// Every method that performs I/O takes a context; a cancelled context
// yields an error matching context.Canceled or context.DeadlineExceeded.
type Connection interface {
	Dialect() Dialect
	// EnsureOpen verifies the handle once; later calls are no-ops.
	EnsureOpen(ctx context.Context) error
	// CreateCommand binds the values of source that text references.
	CreateCommand(text string, source any, opts ...CommandOption) (*Command, error)
	// Execute returns the number of affected rows.
	Execute(ctx context.Context, cmd *Command) (int64, error)
	// ExecuteScalar returns the first column of the first row, or nil.
	ExecuteScalar(ctx context.Context, cmd *Command) (any, error)
	// ExecuteReader returns an open cursor the caller must close.
	ExecuteReader(ctx context.Context, cmd *Command) (*Rows, error)
	// RunInTx calls fn inside a transaction when the handle supports one,
	// committing on nil and rolling back otherwise. Pass tx to WithTx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Executor) error) error
	Close() error
}

// ConnectionFactory creates a Connection on first use.
type ConnectionFactory func() (Connection, error)

// Rows is a cursor that also releases the command timeout when closed.
type Rows struct {
	*sql.Rows
	cancel context.CancelFunc
}

func (r *Rows) Close() error {
	err := r.Rows.Close()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return err
}

type sqlConnection struct {
	db      Executor
	dialect Dialect
	style   PlaceholderStyle
	hooks   []CommandHook
	logger  Logger
	timeout time.Duration

	mu     sync.Mutex
	opened bool
}

type ConnectionOption func(*sqlConnection)

// WithPlaceholderStyle overrides the dialect's placeholder style.
func WithPlaceholderStyle(style PlaceholderStyle) ConnectionOption {
	return func(c *sqlConnection) { c.style = style }
}

func WithCommandHooks(hooks ...CommandHook) ConnectionOption {
	return func(c *sqlConnection) { c.hooks = append(c.hooks, hooks...) }
}

func WithConnectionLogger(logger Logger) ConnectionOption {
	return func(c *sqlConnection) { c.logger = logger }
}

// WithDefaultTimeout sets the timeout given to new commands.
func WithDefaultTimeout(d time.Duration) ConnectionOption {
	return func(c *sqlConnection) { c.timeout = d }
}

// NewConnection wraps db. A nil dialect selects SQLServer.
func NewConnection(db Executor, dialect Dialect, opts ...ConnectionOption) Connection {
	if dialect == nil {
		dialect = SQLServer()
	}
	c := &sqlConnection{
		db:      db,
		dialect: dialect,
		style:   dialect.Placeholder(),
		logger:  GetLogger(),
		timeout: DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewBunConnection routes commands through db so its query hooks fire.
// bun expects ? placeholders regardless of dialect.
func NewBunConnection(db *bun.DB, opts ...ConnectionOption) Connection {
	opts = append([]ConnectionOption{WithPlaceholderStyle(PlaceholderQuestion)}, opts...)
	return NewConnection(db, DialectOf(db), opts...)
}

// SQLFactory returns a factory for an existing *sql.DB.
func SQLFactory(db *sql.DB, dialect Dialect, opts ...ConnectionOption) ConnectionFactory {
	return func() (Connection, error) {
		if db == nil {
			return nil, types.NewArgumentError("db")
		}
		return NewConnection(db, dialect, opts...), nil
	}
}

// BunFactory returns a factory for an existing *bun.DB.
func BunFactory(db *bun.DB, opts ...ConnectionOption) ConnectionFactory {
	return func() (Connection, error) {
		if db == nil {
			return nil, types.NewArgumentError("db")
		}
		return NewBunConnection(db, opts...), nil
	}
}

func (c *sqlConnection) Dialect() Dialect { return c.dialect }

func (c *sqlConnection) EnsureOpen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return nil
	}
	if p, ok := c.db.(pinger); ok {
		if err := p.PingContext(ctx); err != nil {
			return canceled(ctx, err)
		}
	}
	c.opened = true
	return nil
}

func (c *sqlConnection) CreateCommand(text string, source any, opts ...CommandOption) (*Command, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewArgumentError("command text")
	}
	cmd := &Command{Text: text, Timeout: c.timeout}
	for _, opt := range opts {
		opt(cmd)
	}
	if err := AttachParameters(cmd, source); err != nil {
		return nil, err
	}
	c.logCommand(cmd)
	return cmd, nil
}

func (c *sqlConnection) logCommand(cmd *Command) {
	if c.logger == nil {
		return
	}
	params := make([]string, len(cmd.Parameters))
	for i, p := range cmd.Parameters {
		params[i] = p.String()
	}
	c.logger.Debug("command created",
		"text", cmd.Text,
		"parameters", "["+strings.Join(params, ", ")+"]",
		"timeout", cmd.Timeout,
	)
}

// begin opens the connection, renders cmd and starts its timeout.
func (c *sqlConnection) begin(ctx context.Context, cmd *Command) (context.Context, context.CancelFunc, *CommandEvent, Executor, error) {
	if cmd == nil {
		return nil, nil, nil, nil, types.NewArgumentError("command")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, nil, err
	}
	query, args, err := cmd.Render(c.style)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := c.EnsureOpen(ctx); err != nil {
		return nil, nil, nil, nil, err
	}
	exec := c.db
	if cmd.Tx != nil {
		exec = cmd.Tx
	}
	cancel := context.CancelFunc(func() {})
	if cmd.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	}
	event := &CommandEvent{Command: cmd, Query: query, Args: args, StartTime: time.Now()}
	for _, h := range c.hooks {
		ctx = h.BeforeCommand(ctx, event)
	}
	return ctx, cancel, event, exec, nil
}

func (c *sqlConnection) end(ctx context.Context, event *CommandEvent, err error) error {
	err = canceled(ctx, err)
	event.Err = err
	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i].AfterCommand(ctx, event)
	}
	return err
}

func (c *sqlConnection) Execute(ctx context.Context, cmd *Command) (int64, error) {
	ctx, cancel, event, exec, err := c.begin(ctx, cmd)
	if err != nil {
		return 0, err
	}
	defer cancel()
	var affected int64
	res, err := exec.ExecContext(ctx, event.Query, event.Args...)
	if err == nil {
		affected, err = res.RowsAffected()
	}
	return affected, c.end(ctx, event, err)
}

func (c *sqlConnection) ExecuteScalar(ctx context.Context, cmd *Command) (any, error) {
	ctx, cancel, event, exec, err := c.begin(ctx, cmd)
	if err != nil {
		return nil, err
	}
	defer cancel()
	value, err := scalar(ctx, exec, event.Query, event.Args)
	return value, c.end(ctx, event, err)
}

func scalar(ctx context.Context, exec Executor, query string, args []any) (any, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var value any
	if rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		if len(cols) > 0 {
			dest := make([]any, len(cols))
			dest[0] = &value
			for i := 1; i < len(dest); i++ {
				dest[i] = new(any)
			}
			if err := rows.Scan(dest...); err != nil {
				return nil, err
			}
		}
	}
	return value, rows.Err()
}

func (c *sqlConnection) ExecuteReader(ctx context.Context, cmd *Command) (*Rows, error) {
	ctx, cancel, event, exec, err := c.begin(ctx, cmd)
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx, event.Query, event.Args...)
	if err = c.end(ctx, event, err); err != nil {
		cancel()
		return nil, err
	}
	return &Rows{Rows: rows, cancel: cancel}, nil
}

func (c *sqlConnection) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Executor) error) error {
	if err := c.EnsureOpen(ctx); err != nil {
		return err
	}
	switch db := c.db.(type) {
	case *bun.DB:
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	case *sql.DB:
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return canceled(ctx, err)
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return canceled(ctx, tx.Commit())
	default:
		// already a transaction or a handle without one
		return fn(ctx, c.db)
	}
}

func (c *sqlConnection) Close() error {
	if closer, ok := c.db.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// canceled makes a cancellation observable through errors.Is even when the
// driver reports it with its own error value.
func canceled(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	ctxErr := ctx.Err()
	if ctxErr == nil || errors.Is(err, ctxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ctxErr, err)
}
