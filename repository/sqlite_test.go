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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/expr"
	"github.com/tomoncle/anvil/types"
)

func sqlitePeople(t *testing.T) Repository[Person] {
	t.Helper()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = filepath.Join(t.TempDir(), "people.db")
	cfg.MaxOpenConns = 1
	cfg.HealthCheckInterval = 0
	cfg.SlowQueryTime = 0

	manager := database.NewDatabaseManager(cfg)
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })

	repo, err := NewRepository[Person](manager.NewConnection, WithRegistry(database.NewRegistry()))
	require.NoError(t, err)
	_, err = repo.Execute(`CREATE TABLE people (
		person_id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name TEXT NOT NULL,
		age INTEGER NOT NULL,
		manager_id INTEGER
	)`, nil)
	require.NoError(t, err)
	return repo
}

func TestRepository_SQLiteRoundTrip(t *testing.T) {
	repo := sqlitePeople(t)
	d, err := repo.Dialect()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	people := make([]*Person, 25)
	for i := range people {
		people[i] = &Person{Name: fmt.Sprintf("p%d", i), Age: i}
		if i%2 == 0 {
			manager := int64(100 + i)
			people[i].ManagerID = &manager
		}
	}
	n, err := repo.InsertMany(people)
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)

	n, err = repo.Insert(&Person{Name: "Zed", Age: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := repo.Count(nil)
	require.NoError(t, err)
	all, err := repo.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, 26, total)
	assert.Len(t, all, total)

	older, err := repo.LongCount(expr.Field("Age").Ge(20))
	require.NoError(t, err)
	assert.Equal(t, int64(6), older)

	ok, err := repo.Exist(expr.Field("Name").Eq("p3"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Exist(expr.Field("Name").Eq("nobody"))
	require.NoError(t, err)
	assert.False(t, ok)

	oldest, err := repo.Fetch(nil, expr.Desc("Age"))
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "Zed", oldest.Name)
	assert.Nil(t, oldest.ManagerID)

	p2, err := repo.Fetch(expr.Field("Name").Eq("p2"), nil)
	require.NoError(t, err)
	require.NotNil(t, p2)
	require.NotNil(t, p2.ManagerID)
	assert.Equal(t, int64(102), *p2.ManagerID)
	assert.NotZero(t, p2.ID)

	likes, err := repo.Select(expr.Field("Name").StartsWith("p1"))
	require.NoError(t, err)
	assert.Len(t, likes, 11)

	page, err := repo.Paged(3, 10, nil, expr.Asc("ID"))
	require.NoError(t, err)
	assert.Equal(t, int64(26), page.TotalCount)
	require.Len(t, page.Items, 6)
	assert.Equal(t, "Zed", page.Items[5].Name)

	empty, err := repo.Paged(1, 10, expr.Field("Age").Gt(100), nil)
	require.NoError(t, err)
	assert.Same(t, types.EmptyPagedResult[Person](), empty)

	n, err = repo.Update(expr.Field("ManagerID").IsNull(), "ManagerID", int64(1))
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)

	n, err = repo.Delete(expr.Field("Age").Lt(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	total, err = repo.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 21, total)

	maxAge, err := ExecuteScalarAs[int64](context.Background(), repo, "SELECT MAX(age) FROM people WHERE full_name <> @name", database.Map{"name": "nobody"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), maxAge)
}

func TestRepository_SQLiteTransaction(t *testing.T) {
	repo := sqlitePeople(t)
	conn, err := repo.(*baseRepositoryImpl[Person]).state.get()
	require.NoError(t, err)

	err = conn.RunInTx(context.Background(), func(ctx context.Context, tx database.Executor) error {
		if _, err := repo.WithTx(tx).InsertContext(ctx, &Person{Name: "Ann", Age: 30}); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.EqualError(t, err, "abort")

	n, err := repo.Count(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
