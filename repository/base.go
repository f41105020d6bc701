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
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/expr"
	"github.com/tomoncle/anvil/types"
)

// connState is the lazily created connection shared by a repository and
// the transaction-bound copies made from it.
type connState struct {
	mu      sync.Mutex
	factory database.ConnectionFactory
	conn    database.Connection
}

func (s *connState) get() (database.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.factory()
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, types.NewArgumentError("connection")
	}
	s.conn = conn
	return conn, nil
}

type baseRepositoryImpl[T any] struct {
	meta       *database.EntityMeta
	mappings   []types.ColumnMapping
	insertable []types.ColumnMapping
	selectList string
	state      *connState
	opts       options
	tx         database.Executor
}

// NewRepository returns a repository for T whose connection is created by
// factory on first use and shared by every later call. The repository never
// closes that connection.
func NewRepository[T any](factory database.ConnectionFactory, opts ...Option) (Repository[T], error) {
	if factory == nil {
		return nil, types.NewArgumentError("factory")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = database.DefaultRegistry()
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	meta, err := database.EntityOf[T](o.registry)
	if err != nil {
		return nil, err
	}
	return &baseRepositoryImpl[T]{
		meta:       meta,
		mappings:   meta.ColumnMappings(),
		insertable: meta.InsertableColumns(),
		selectList: meta.SelectList(),
		state:      &connState{factory: factory},
		opts:       o,
	}, nil
}

// MustNewRepository is NewRepository that panics on error.
func MustNewRepository[T any](factory database.ConnectionFactory, opts ...Option) Repository[T] {
	repo, err := NewRepository[T](factory, opts...)
	if err != nil {
		panic(err)
	}
	return repo
}

func (r *baseRepositoryImpl[T]) Table() string { return r.meta.Table }

func (r *baseRepositoryImpl[T]) Dialect() (database.Dialect, error) {
	if r.opts.dialect != nil {
		return r.opts.dialect, nil
	}
	conn, err := r.state.get()
	if err != nil {
		return nil, err
	}
	return conn.Dialect(), nil
}

func (r *baseRepositoryImpl[T]) WithTx(tx database.Executor) Repository[T] {
	cp := *r
	cp.tx = tx
	return &cp
}

func (r *baseRepositoryImpl[T]) where(predicate expr.Expr) (*expr.WhereClauseResult, error) {
	return expr.ParseWhereExpression(predicate, r.mappings)
}

func (r *baseRepositoryImpl[T]) command(conn database.Connection, text string, source any, params ...*database.Parameter) (*database.Command, error) {
	opts := make([]database.CommandOption, 0, 3)
	if len(params) > 0 {
		opts = append(opts, database.WithParameters(params...))
	}
	if r.tx != nil {
		opts = append(opts, database.WithTx(r.tx))
	}
	if r.opts.timeout > 0 {
		opts = append(opts, database.WithTimeout(r.opts.timeout))
	}
	return conn.CreateCommand(text, source, opts...)
}

func (r *baseRepositoryImpl[T]) exec(ctx context.Context, text string, source any, params ...*database.Parameter) (int64, error) {
	conn, err := r.state.get()
	if err != nil {
		return 0, err
	}
	cmd, err := r.command(conn, text, source, params...)
	if err != nil {
		return 0, err
	}
	return conn.Execute(ctx, cmd)
}

func (r *baseRepositoryImpl[T]) scalar(ctx context.Context, text string, source any) (any, error) {
	conn, err := r.state.get()
	if err != nil {
		return nil, err
	}
	cmd, err := r.command(conn, text, source)
	if err != nil {
		return nil, err
	}
	return conn.ExecuteScalar(ctx, cmd)
}

func (r *baseRepositoryImpl[T]) query(ctx context.Context, text string, source any) ([]*T, error) {
	conn, err := r.state.get()
	if err != nil {
		return nil, err
	}
	cmd, err := r.command(conn, text, source)
	if err != nil {
		return nil, err
	}
	rows, err := conn.ExecuteReader(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return database.CollectRows[T](rows, database.WithMapLogger(r.opts.logger), database.WithMapRegistry(r.opts.registry))
}

// statement translates the predicate and ordering, then asks build for the
// final SQL. Nothing touches the database when translation fails.
func (r *baseRepositoryImpl[T]) statement(predicate expr.Expr, order *expr.Ordering, build func(d database.Dialect, where, orderBy string) string) (string, *expr.WhereClauseResult, error) {
	where, err := r.where(predicate)
	if err != nil {
		return "", nil, err
	}
	orderBy, err := expr.OrderClause(order, r.mappings)
	if err != nil {
		return "", nil, err
	}
	d, err := r.Dialect()
	if err != nil {
		return "", nil, err
	}
	return build(d, where.Clause(), orderBy), where, nil
}

func (r *baseRepositoryImpl[T]) Count(where expr.Expr) (int, error) {
	return r.CountContext(context.Background(), where)
}

func (r *baseRepositoryImpl[T]) CountContext(ctx context.Context, where expr.Expr) (int, error) {
	n, err := r.LongCountContext(ctx, where)
	if err != nil {
		return 0, err
	}
	return database.ConvertTo[int](n)
}

func (r *baseRepositoryImpl[T]) LongCount(where expr.Expr) (int64, error) {
	return r.LongCountContext(context.Background(), where)
}

func (r *baseRepositoryImpl[T]) LongCountContext(ctx context.Context, where expr.Expr) (int64, error) {
	w, err := r.where(where)
	if err != nil {
		return 0, err
	}
	return r.count(ctx, w)
}

func (r *baseRepositoryImpl[T]) count(ctx context.Context, w *expr.WhereClauseResult) (int64, error) {
	v, err := r.scalar(ctx, "SELECT COUNT(1) FROM "+r.meta.Table+w.Clause(), w.Parameters)
	if err != nil || v == nil {
		return 0, err
	}
	return database.ConvertTo[int64](v)
}

func (r *baseRepositoryImpl[T]) Exist(where expr.Expr) (bool, error) {
	return r.ExistContext(context.Background(), where)
}

func (r *baseRepositoryImpl[T]) ExistContext(ctx context.Context, where expr.Expr) (bool, error) {
	text, w, err := r.statement(where, nil, func(d database.Dialect, where, _ string) string {
		return d.Exists(r.meta.Table, where)
	})
	if err != nil {
		return false, err
	}
	v, err := r.scalar(ctx, text, w.Parameters)
	if err != nil || v == nil {
		return false, err
	}
	return database.ConvertTo[bool](v)
}

func (r *baseRepositoryImpl[T]) Fetch(where expr.Expr, order *expr.Ordering) (*T, error) {
	return r.FetchContext(context.Background(), where, order)
}

func (r *baseRepositoryImpl[T]) FetchContext(ctx context.Context, where expr.Expr, order *expr.Ordering) (*T, error) {
	items, err := r.SelectTopContext(ctx, 1, where, order)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r *baseRepositoryImpl[T]) Select(where expr.Expr) ([]*T, error) {
	return r.SelectContext(context.Background(), where)
}

func (r *baseRepositoryImpl[T]) SelectContext(ctx context.Context, where expr.Expr) ([]*T, error) {
	return r.SelectTopContext(ctx, 0, where, nil)
}

func (r *baseRepositoryImpl[T]) SelectTop(top int, where expr.Expr, order *expr.Ordering) ([]*T, error) {
	return r.SelectTopContext(context.Background(), top, where, order)
}

func (r *baseRepositoryImpl[T]) SelectTopContext(ctx context.Context, top int, where expr.Expr, order *expr.Ordering) ([]*T, error) {
	text, w, err := r.statement(where, order, func(d database.Dialect, where, orderBy string) string {
		return d.SelectTop(r.selectList, r.meta.Table, where, orderBy, top)
	})
	if err != nil {
		return nil, err
	}
	return r.query(ctx, text, w.Parameters)
}

func (r *baseRepositoryImpl[T]) Paged(pageNumber, pageSize int, where expr.Expr, order *expr.Ordering) (*types.PagedResult[T], error) {
	return r.PagedContext(context.Background(), pageNumber, pageSize, where, order)
}

func (r *baseRepositoryImpl[T]) PagedContext(ctx context.Context, pageNumber, pageSize int, where expr.Expr, order *expr.Ordering) (*types.PagedResult[T], error) {
	page := types.NewPageRequest(pageNumber, pageSize)
	text, w, err := r.statement(where, order, func(d database.Dialect, where, orderBy string) string {
		return d.SelectPage(r.selectList, r.meta.Table, where, orderBy, page.GetOffset(), page.GetPageSize())
	})
	if err != nil {
		return nil, err
	}
	total, err := r.count(ctx, w)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return types.EmptyPagedResult[T](), nil
	}
	items, err := r.query(ctx, text, w.Parameters)
	if err != nil {
		return nil, err
	}
	return types.NewPagedResult(page, total, items), nil
}

func (r *baseRepositoryImpl[T]) Insert(entity *T) (int64, error) {
	return r.InsertContext(context.Background(), entity)
}

func (r *baseRepositoryImpl[T]) InsertContext(ctx context.Context, entity *T) (int64, error) {
	if entity == nil {
		return 0, types.NewArgumentError("entity")
	}
	if len(r.insertable) == 0 {
		return 0, fmt.Errorf("%w: %s has no insertable columns", types.ErrArgument, r.meta.Type)
	}
	params, err := r.rowParameters(entity, "")
	if err != nil {
		return 0, err
	}
	values := make([]string, len(r.insertable))
	for i, c := range r.insertable {
		values[i] = "@" + c.Column
	}
	text := "INSERT INTO " + r.meta.Table + " (" + r.insertColumns() + ") VALUES (" + strings.Join(values, ", ") + ")"
	return r.exec(ctx, text, nil, params...)
}

func (r *baseRepositoryImpl[T]) InsertMany(entities []*T) (int64, error) {
	return r.InsertManyContext(context.Background(), entities)
}

// InsertManyContext writes all entities in one statement. Parameters are
// named @column_i after the entity's index.
func (r *baseRepositoryImpl[T]) InsertManyContext(ctx context.Context, entities []*T) (int64, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	if len(entities) > MaxBatchSize {
		return BatchCapacityExceeded, &types.CapacityError{Count: len(entities), Limit: MaxBatchSize}
	}
	if len(r.insertable) == 0 {
		return 0, fmt.Errorf("%w: %s has no insertable columns", types.ErrArgument, r.meta.Type)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO " + r.meta.Table + " (" + r.insertColumns() + ") VALUES ")
	params := make([]*database.Parameter, 0, len(entities)*len(r.insertable))
	for i, entity := range entities {
		if entity == nil {
			return 0, types.NewArgumentError("entities[" + strconv.Itoa(i) + "]")
		}
		suffix := "_" + strconv.Itoa(i)
		row, err := r.rowParameters(entity, suffix)
		if err != nil {
			return 0, err
		}
		params = append(params, row...)
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, c := range r.insertable {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("@" + c.Column + suffix)
		}
		sb.WriteByte(')')
	}
	return r.exec(ctx, sb.String(), nil, params...)
}

func (r *baseRepositoryImpl[T]) insertColumns() string {
	cols := make([]string, len(r.insertable))
	for i, c := range r.insertable {
		cols[i] = c.Column
	}
	return strings.Join(cols, ", ")
}

// rowParameters reads the insertable fields of entity into parameters named
// after their columns plus suffix.
func (r *baseRepositoryImpl[T]) rowParameters(entity *T, suffix string) ([]*database.Parameter, error) {
	rv := reflect.ValueOf(entity)
	params := make([]*database.Parameter, len(r.insertable))
	for i, c := range r.insertable {
		v, err := r.meta.FieldValue(rv, c.Field)
		if err != nil {
			return nil, err
		}
		typ, _ := r.meta.FieldType(c.Field)
		params[i] = database.NewParameter(c.Column+suffix, v, typ)
	}
	return params, nil
}

func (r *baseRepositoryImpl[T]) Update(where expr.Expr, field string, value any) (int64, error) {
	return r.UpdateContext(context.Background(), where, field, value)
}

func (r *baseRepositoryImpl[T]) UpdateContext(ctx context.Context, where expr.Expr, field string, value any) (int64, error) {
	if field == "" {
		return 0, types.NewArgumentError("field")
	}
	return r.UpdateFieldsContext(ctx, where, map[string]any{field: value})
}

func (r *baseRepositoryImpl[T]) UpdateFields(where expr.Expr, values map[string]any) (int64, error) {
	return r.UpdateFieldsContext(context.Background(), where, values)
}

// UpdateFieldsContext sets each field in values. Parameters are named
// @set_<Field> so they never collide with predicate parameters; fields are
// assigned in name order.
func (r *baseRepositoryImpl[T]) UpdateFieldsContext(ctx context.Context, where expr.Expr, values map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	params := make([]*database.Parameter, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		m, err := r.mapping(name)
		if err != nil {
			return 0, err
		}
		if prev, dup := seen[m.Field]; dup {
			return 0, fmt.Errorf("%w: %q and %q both set field %s", types.ErrArgument, prev, name, m.Field)
		}
		seen[m.Field] = name
		typ, _ := r.meta.FieldType(m.Field)
		p := database.NewParameter("set_"+m.Field, values[name], typ)
		sets = append(sets, m.Column+" = @"+p.Name)
		params = append(params, p)
	}
	w, err := r.where(where)
	if err != nil {
		return 0, err
	}
	text := "UPDATE " + r.meta.Table + " SET " + strings.Join(sets, ", ") + w.Clause()
	return r.exec(ctx, text, w.Parameters, params...)
}

// mapping resolves a field name the way predicates do: exact first, then
// ignoring case.
func (r *baseRepositoryImpl[T]) mapping(field string) (types.ColumnMapping, error) {
	for _, m := range r.mappings {
		if m.Field == field {
			return m, nil
		}
	}
	for _, m := range r.mappings {
		if strings.EqualFold(m.Field, field) {
			return m, nil
		}
	}
	return types.ColumnMapping{}, &types.TranslationError{Construct: fmt.Sprintf("field %q", field), Reason: "not a mapped column"}
}

func (r *baseRepositoryImpl[T]) Delete(where expr.Expr) (int64, error) {
	return r.DeleteContext(context.Background(), where)
}

func (r *baseRepositoryImpl[T]) DeleteContext(ctx context.Context, where expr.Expr) (int64, error) {
	w, err := r.where(where)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, "DELETE FROM "+r.meta.Table+w.Clause(), w.Parameters)
}

func (r *baseRepositoryImpl[T]) Execute(sql string, param any) (int64, error) {
	return r.ExecuteContext(context.Background(), sql, param)
}

func (r *baseRepositoryImpl[T]) ExecuteContext(ctx context.Context, sql string, param any) (int64, error) {
	return r.exec(ctx, sql, param)
}

func (r *baseRepositoryImpl[T]) ExecuteScalar(sql string, param any) (any, error) {
	return r.ExecuteScalarContext(context.Background(), sql, param)
}

func (r *baseRepositoryImpl[T]) ExecuteScalarContext(ctx context.Context, sql string, param any) (any, error) {
	return r.scalar(ctx, sql, param)
}

func (r *baseRepositoryImpl[T]) Query(sql string, param any) ([]*T, error) {
	return r.QueryContext(context.Background(), sql, param)
}

func (r *baseRepositoryImpl[T]) QueryContext(ctx context.Context, sql string, param any) ([]*T, error) {
	return r.query(ctx, sql, param)
}

// ExecuteScalarAs runs sql on repo and converts the scalar to R. A NULL or
// missing row yields the zero R.
func ExecuteScalarAs[R any, T any](ctx context.Context, repo Repository[T], sql string, param any) (R, error) {
	var zero R
	v, err := repo.ExecuteScalarContext(ctx, sql, param)
	if err != nil || v == nil {
		return zero, err
	}
	return database.ConvertTo[R](v)
}
