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
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Dialect renders the statement shapes whose syntax differs between
// databases. where and orderBy are complete clauses with a leading space,
// or empty.
type Dialect interface {
	Name() string
	Placeholder() PlaceholderStyle
	// SelectTop selects at most limit rows; limit <= 0 means no limit.
	SelectTop(columns, table, where, orderBy string, limit int) string
	// SelectPage skips offset rows and returns at most size rows.
	SelectPage(columns, table, where, orderBy string, offset, size int) string
	// Exists returns a single boolean column that is true when a row matches.
	Exists(table, where string) string
}

type sqlServerDialect struct{}

// SQLServer is the default dialect: TOP(n), OFFSET/FETCH paging and
// @name parameters.
func SQLServer() Dialect { return sqlServerDialect{} }

func (sqlServerDialect) Name() string { return "mssql" }

func (sqlServerDialect) Placeholder() PlaceholderStyle { return PlaceholderNamed }

func (sqlServerDialect) SelectTop(columns, table, where, orderBy string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("SELECT TOP(%d) %s FROM %s%s%s", limit, columns, table, where, orderBy)
	}
	return fmt.Sprintf("SELECT %s FROM %s%s%s", columns, table, where, orderBy)
}

func (sqlServerDialect) SelectPage(columns, table, where, orderBy string, offset, size int) string {
	if orderBy == "" {
		orderBy = " ORDER BY (SELECT NULL)"
	}
	return fmt.Sprintf("SELECT %s FROM %s%s%s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
		columns, table, where, orderBy, offset, size)
}

func (sqlServerDialect) Exists(table, where string) string {
	return fmt.Sprintf("SELECT CAST(IIF(EXISTS (SELECT TOP(1) 1 FROM %s%s), 1, 0) AS BIT)", table, where)
}

// limitDialect covers databases with LIMIT/OFFSET paging.
type limitDialect struct {
	name  string
	style PlaceholderStyle
}

func PostgreSQL() Dialect { return limitDialect{name: "pg", style: PlaceholderDollar} }

func MySQL() Dialect { return limitDialect{name: "mysql", style: PlaceholderQuestion} }

func SQLite() Dialect { return limitDialect{name: "sqlite", style: PlaceholderQuestion} }

func (d limitDialect) Name() string { return d.name }

func (d limitDialect) Placeholder() PlaceholderStyle { return d.style }

func (d limitDialect) SelectTop(columns, table, where, orderBy string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT %d", columns, table, where, orderBy, limit)
	}
	return fmt.Sprintf("SELECT %s FROM %s%s%s", columns, table, where, orderBy)
}

func (d limitDialect) SelectPage(columns, table, where, orderBy string, offset, size int) string {
	return fmt.Sprintf("SELECT %s FROM %s%s%s LIMIT %d OFFSET %d", columns, table, where, orderBy, size, offset)
}

func (d limitDialect) Exists(table, where string) string {
	return fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s%s)", table, where)
}

// DialectFor maps a bun dialect name. Unknown names, including
// dialect.MSSQL, use SQLServer.
func DialectFor(name dialect.Name) Dialect {
	switch name {
	case dialect.PG:
		return PostgreSQL()
	case dialect.MySQL:
		return MySQL()
	case dialect.SQLite:
		return SQLite()
	default:
		return SQLServer()
	}
}

// DialectByName maps a configured database type such as "postgres".
func DialectByName(name string) Dialect {
	switch name {
	case "postgres", "postgresql", "pg", "pgx":
		return PostgreSQL()
	case "mysql":
		return MySQL()
	case "sqlite", "sqlite3":
		return SQLite()
	default:
		return SQLServer()
	}
}

// DialectOf returns the dialect matching db.
func DialectOf(db *bun.DB) Dialect {
	return DialectFor(db.Dialect().Name())
}
