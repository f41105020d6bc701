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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun/dialect"
)

func TestSQLServerDialect(t *testing.T) {
	d := SQLServer()
	assert.Equal(t, "mssql", d.Name())
	assert.Equal(t, PlaceholderNamed, d.Placeholder())

	assert.Equal(t, "SELECT TOP(1) a AS A FROM t WHERE (a = @A) ORDER BY a DESC",
		d.SelectTop("a AS A", "t", " WHERE (a = @A)", " ORDER BY a DESC", 1))
	assert.Equal(t, "SELECT a AS A FROM t", d.SelectTop("a AS A", "t", "", "", 0))
	assert.Equal(t, "SELECT a AS A FROM t ORDER BY (SELECT NULL) OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY",
		d.SelectPage("a AS A", "t", "", "", 20, 10))
	assert.Equal(t, "SELECT a AS A FROM t ORDER BY a ASC OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY",
		d.SelectPage("a AS A", "t", "", " ORDER BY a ASC", 0, 5))
	assert.Equal(t, "SELECT CAST(IIF(EXISTS (SELECT TOP(1) 1 FROM t WHERE (a = @A)), 1, 0) AS BIT)",
		d.Exists("t", " WHERE (a = @A)"))
}

func TestLimitDialects(t *testing.T) {
	for _, d := range []Dialect{PostgreSQL(), MySQL(), SQLite()} {
		t.Run(d.Name(), func(t *testing.T) {
			assert.Equal(t, "SELECT a FROM t WHERE (a = @A) LIMIT 1", d.SelectTop("a", "t", " WHERE (a = @A)", "", 1))
			assert.Equal(t, "SELECT a FROM t ORDER BY a ASC", d.SelectTop("a", "t", "", " ORDER BY a ASC", -1))
			assert.Equal(t, "SELECT a FROM t ORDER BY a ASC LIMIT 10 OFFSET 30", d.SelectPage("a", "t", "", " ORDER BY a ASC", 30, 10))
			assert.Equal(t, "SELECT EXISTS (SELECT 1 FROM t)", d.Exists("t", ""))
		})
	}
	assert.Equal(t, PlaceholderDollar, PostgreSQL().Placeholder())
	assert.Equal(t, PlaceholderQuestion, MySQL().Placeholder())
	assert.Equal(t, PlaceholderQuestion, SQLite().Placeholder())
}

func TestDialectLookup(t *testing.T) {
	assert.Equal(t, "pg", DialectFor(dialect.PG).Name())
	assert.Equal(t, "mysql", DialectFor(dialect.MySQL).Name())
	assert.Equal(t, "sqlite", DialectFor(dialect.SQLite).Name())
	assert.Equal(t, "mssql", DialectFor(dialect.MSSQL).Name())

	tests := map[string]string{
		"postgres": "pg", "pgx": "pg", "mysql": "mysql", "sqlite3": "sqlite", "sqlserver": "mssql", "": "mssql",
	}
	for name, want := range tests {
		assert.Equal(t, want, DialectByName(name).Name(), name)
	}
}
