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

package anvil

import (
	"context"
	"sync"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/expr"
	"github.com/tomoncle/anvil/repository"
	"github.com/tomoncle/anvil/types"
)

type Service[T any] interface {
	// Get returns the first entity matching where, or nil.
	Get(ctx context.Context, where expr.Expr, order *expr.Ordering) (*T, error)

	// List returns entities that match where.
	List(ctx context.Context, where expr.Expr) ([]*T, error)

	// Count returns the number of entities matching where.
	Count(ctx context.Context, where expr.Expr) (int64, error)

	// Exists reports whether any entity matches where.
	Exists(ctx context.Context, where expr.Expr) (bool, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest, where expr.Expr, order *expr.Ordering) (*types.PagedResult[T], error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) (int64, error)

	// Update sets fields on every entity matching where.
	Update(ctx context.Context, where expr.Expr, values map[string]any) (int64, error)

	// Delete removes every entity matching where.
	Delete(ctx context.Context, where expr.Expr) (int64, error)

	// Exec runs raw SQL with parameters bound from param.
	Exec(ctx context.Context, sql string, param any) (int64, error)

	// Repository exposes the underlying repository.
	Repository() (repository.Repository[T], error)
}

type baseServiceImpl[T any] struct {
	factory database.ConnectionFactory
	opts    []repository.Option

	once sync.Once
	repo repository.Repository[T]
	err  error
}

// NewService returns a Service backed by a repository on the process-wide
// connection factory installed by database.InitDB.
func NewService[T any](opts ...repository.Option) Service[T] {
	return newBaseServiceImpl[T](nil, opts)
}

// NewServiceWithFactory is NewService over an explicit ConnectionFactory.
func NewServiceWithFactory[T any](factory database.ConnectionFactory, opts ...repository.Option) Service[T] {
	return newBaseServiceImpl[T](factory, opts)
}

func newBaseServiceImpl[T any](factory database.ConnectionFactory, opts []repository.Option) *baseServiceImpl[T] {
	return &baseServiceImpl[T]{factory: factory, opts: opts}
}

func (s *baseServiceImpl[T]) Repository() (repository.Repository[T], error) {
	s.once.Do(func() {
		factory := s.factory
		if factory == nil {
			// resolved per call so InitDB may run after NewService
			factory = func() (database.Connection, error) {
				return database.GetConnectionFactory()()
			}
		}
		s.repo, s.err = repository.NewRepository[T](factory, s.opts...)
	})
	return s.repo, s.err
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, where expr.Expr, order *expr.Ordering) (*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.FetchContext(ctx, where, order)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, where expr.Expr) ([]*T, error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	return repo.SelectContext(ctx, where)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, where expr.Expr) (int64, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	return repo.LongCountContext(ctx, where)
}

func (s *baseServiceImpl[T]) Exists(ctx context.Context, where expr.Expr) (bool, error) {
	repo, err := s.Repository()
	if err != nil {
		return false, err
	}
	return repo.ExistContext(ctx, where)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest, where expr.Expr, order *expr.Ordering) (*types.PagedResult[T], error) {
	repo, err := s.Repository()
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = types.NewPageRequest(types.DefaultPageNumber, types.DefaultPageSize)
	}
	return repo.PagedContext(ctx, page.GetPage(), page.GetPageSize(), where, order)
}

// Save inserts a single entity with Insert and several with InsertMany.
func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) (int64, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	if len(model) == 1 {
		return repo.InsertContext(ctx, model[0])
	}
	return repo.InsertManyContext(ctx, model)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, where expr.Expr, values map[string]any) (int64, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	return repo.UpdateFieldsContext(ctx, where, values)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, where expr.Expr) (int64, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	return repo.DeleteContext(ctx, where)
}

func (s *baseServiceImpl[T]) Exec(ctx context.Context, sql string, param any) (int64, error) {
	repo, err := s.Repository()
	if err != nil {
		return 0, err
	}
	return repo.ExecuteContext(ctx, sql, param)
}
