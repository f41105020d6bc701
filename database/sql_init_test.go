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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "comments and quoted semicolons",
			script: "CREATE TABLE a (x TEXT); -- trailing; comment\nINSERT INTO a VALUES ('x;y'); /* ; */ SELECT 1;",
			want:   []string{"CREATE TABLE a (x TEXT)", "INSERT INTO a VALUES ('x;y')", "SELECT 1"},
		},
		{
			name:   "doubled quotes",
			script: "SET @x = 'it''s; fine'",
			want:   []string{"SET @x = 'it''s; fine'"},
		},
		{
			name:   "blank statements",
			script: " ; ;\n-- only a comment\n",
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}

func TestParseFileOrder(t *testing.T) {
	assert.Equal(t, 1, ParseFileOrder("001_schema.sql"))
	assert.Equal(t, 42, ParseFileOrder("42_seed.sql"))
	assert.Equal(t, 999, ParseFileOrder("seed.sql"))
}

func TestScriptRunner_Files(t *testing.T) {
	root := writeScripts(t, map[string]string{
		"common/002_b.sql":                "",
		"common/001_a.sql":                "",
		"common/z.sql":                    "",
		"common/readme.txt":               "",
		"environments/dev/001_env.sql":    "",
		"environments/prod/001_other.sql": "",
	})
	runner := NewScriptRunner(nil, "dev")
	runner.SetRootPath(root)

	files, err := runner.Files()
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"001_a.sql", "002_b.sql", "z.sql", "001_env.sql"}, names)
	assert.Equal(t, "dev", files[3].Environment)

	runner.SetRootPath(filepath.Join(root, "absent"))
	files, err = runner.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestScriptRunner_RunScript(t *testing.T) {
	db, mock := newMock(t)
	runner := NewScriptRunner(NewConnection(db, SQLite()), "")

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t (a INT)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO t VALUES (@x)").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	statements, affected, err := runner.RunScript(context.Background(), "CREATE TABLE t (a INT);\nINSERT INTO t VALUES (@x);")
	require.NoError(t, err)
	assert.Equal(t, 2, statements)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScriptRunner_RunScriptRollsBack(t *testing.T) {
	db, mock := newMock(t)
	runner := NewScriptRunner(NewConnection(db, SQLite()), "prod")
	boom := errors.New("syntax error near BAD")

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t (a INT)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("BAD").WillReturnError(boom)
	mock.ExpectRollback()

	statements, affected, err := runner.RunScript(context.Background(), "CREATE TABLE t (a INT); BAD;")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, statements)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScriptRunner_RunTemplated(t *testing.T) {
	root := writeScripts(t, map[string]string{
		"common/001_schema.sql":         "CREATE TABLE t (a TEXT);",
		"environments/dev/001_seed.sql": "INSERT INTO t VALUES ('{{.ENVIRONMENT}}');",
	})
	db, mock := newMock(t)
	runner := NewScriptRunner(NewConnection(db, SQLite()), "dev")
	runner.SetRootPath(root)
	runner.EnableTemplate(true)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t (a TEXT)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t VALUES ('dev')").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	results, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[1].Statements)
	assert.Equal(t, int64(1), results[1].RowsAffected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScriptRunner_RunStopsAtFailure(t *testing.T) {
	root := writeScripts(t, map[string]string{
		"common/001_a.sql": "BAD;",
		"common/002_b.sql": "SELECT 1;",
	})
	db, mock := newMock(t)
	runner := NewScriptRunner(NewConnection(db, SQLite()), "prod")
	runner.SetRootPath(root)

	mock.ExpectBegin()
	mock.ExpectExec("BAD").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	results, err := runner.Run(context.Background())
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
