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

package repository

import (
	"context"
	"time"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/expr"
	"github.com/tomoncle/anvil/types"
)

const (
	// MaxBatchSize is the largest number of entities InsertMany writes in
	// one statement.
	MaxBatchSize = 1000
	// BatchCapacityExceeded is returned by InsertMany, together with a
	// *types.CapacityError, when the batch is larger than MaxBatchSize.
	BatchCapacityExceeded int64 = -1
)

// QueryRepository reads entities matching a predicate. A nil predicate
// matches every row.
type QueryRepository[T any] interface {
	Count(where expr.Expr) (int, error)
	CountContext(ctx context.Context, where expr.Expr) (int, error)

	LongCount(where expr.Expr) (int64, error)
	LongCountContext(ctx context.Context, where expr.Expr) (int64, error)

	Exist(where expr.Expr) (bool, error)
	ExistContext(ctx context.Context, where expr.Expr) (bool, error)

	// Fetch returns the first matching row, or nil when none matches.
	Fetch(where expr.Expr, order *expr.Ordering) (*T, error)
	FetchContext(ctx context.Context, where expr.Expr, order *expr.Ordering) (*T, error)

	Select(where expr.Expr) ([]*T, error)
	SelectContext(ctx context.Context, where expr.Expr) ([]*T, error)

	// SelectTop returns at most top rows; top <= 0 means all.
	SelectTop(top int, where expr.Expr, order *expr.Ordering) ([]*T, error)
	SelectTopContext(ctx context.Context, top int, where expr.Expr, order *expr.Ordering) ([]*T, error)
}

// PageQueryRepository pages through entities matching a predicate.
type PageQueryRepository[T any] interface {
	Paged(pageNumber, pageSize int, where expr.Expr, order *expr.Ordering) (*types.PagedResult[T], error)
	PagedContext(ctx context.Context, pageNumber, pageSize int, where expr.Expr, order *expr.Ordering) (*types.PagedResult[T], error)
}

// CommandRepository writes entities. Every method returns affected rows.
type CommandRepository[T any] interface {
	Insert(entity *T) (int64, error)
	InsertContext(ctx context.Context, entity *T) (int64, error)

	InsertMany(entities []*T) (int64, error)
	InsertManyContext(ctx context.Context, entities []*T) (int64, error)

	// Update sets one field on every matching row.
	Update(where expr.Expr, field string, value any) (int64, error)
	UpdateContext(ctx context.Context, where expr.Expr, field string, value any) (int64, error)

	// UpdateFields sets several fields, keyed by field name.
	UpdateFields(where expr.Expr, values map[string]any) (int64, error)
	UpdateFieldsContext(ctx context.Context, where expr.Expr, values map[string]any) (int64, error)

	Delete(where expr.Expr) (int64, error)
	DeleteContext(ctx context.Context, where expr.Expr) (int64, error)
}

// RawRepository runs caller supplied SQL. param is any source accepted by
// database.SourceOf.
type RawRepository[T any] interface {
	Execute(sql string, param any) (int64, error)
	ExecuteContext(ctx context.Context, sql string, param any) (int64, error)

	ExecuteScalar(sql string, param any) (any, error)
	ExecuteScalarContext(ctx context.Context, sql string, param any) (any, error)

	// Query materializes every row of sql into T.
	Query(sql string, param any) ([]*T, error)
	QueryContext(ctx context.Context, sql string, param any) ([]*T, error)
}

// Repository combines query, paging, command and raw operations over one
// entity type.
type Repository[T any] interface {
	QueryRepository[T]
	PageQueryRepository[T]
	CommandRepository[T]
	RawRepository[T]

	// Table returns the mapped table name.
	Table() string
	// Dialect returns the dialect used to render statements. It opens the
	// connection when no dialect was configured.
	Dialect() (database.Dialect, error)
	// WithTx returns a repository that runs every command on tx.
	WithTx(tx database.Executor) Repository[T]
}

type options struct {
	registry *database.Registry
	logger   database.Logger
	timeout  time.Duration
	dialect  database.Dialect
}

// Option configures NewRepository.
type Option func(*options)

// WithRegistry supplies the metadata registry; the default is
// database.DefaultRegistry.
func WithRegistry(r *database.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger used for mapping failures.
func WithLogger(l database.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCommandTimeout overrides the connection's default command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithDialect renders statements for d instead of the connection's dialect.
func WithDialect(d database.Dialect) Option {
	return func(o *options) { o.dialect = d }
}
