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
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// ScriptRunner discovers and executes SQL files through a Connection. Files
// live under <root>/common and <root>/environments/<environment>; common
// files run first, each group ordered by its numeric "NNN_" prefix.
type ScriptRunner struct {
	conn        Connection
	environment string
	rootPath    string
	templated   bool
	logger      Logger
}

// ScriptFile describes a SQL file to be executed.
type ScriptFile struct {
	Path        string
	Name        string
	Order       int
	Environment string
	ModTime     time.Time
}

// ScriptResult contains the outcome of executing a single SQL file.
type ScriptResult struct {
	File         string
	Statements   int
	RowsAffected int64
	Duration     time.Duration
	Err          error
}

// NewScriptRunner creates a runner for the given environment rooted at
// configs/sql.
func NewScriptRunner(conn Connection, environment string) *ScriptRunner {
	if environment == "" {
		environment = "prod"
	}
	return &ScriptRunner{
		conn:        conn,
		environment: environment,
		rootPath:    "configs/sql",
		logger:      GetLogger(),
	}
}

func (s *ScriptRunner) SetRootPath(path string) { s.rootPath = path }

func (s *ScriptRunner) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// EnableTemplate renders each file as a text/template over the process
// environment plus ENVIRONMENT and TIMESTAMP before splitting it.
func (s *ScriptRunner) EnableTemplate(on bool) { s.templated = on }

// Run executes every discovered file in order and stops at the first
// failure.
func (s *ScriptRunner) Run(ctx context.Context) ([]ScriptResult, error) {
	s.logger.Info("Starting SQL scripts", "environment", s.environment, "sql_path", s.rootPath)

	files, err := s.Files()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute")
		return nil, nil
	}

	results := make([]ScriptResult, 0, len(files))
	for _, file := range files {
		result := s.RunFile(ctx, file.Path)
		results = append(results, result)
		if result.Err != nil {
			s.logger.Error("SQL file execution failed", "file", result.File, "error", result.Err)
			return results, fmt.Errorf("SQL file execution failed %s: %w", result.File, result.Err)
		}
		s.logger.Info("SQL file executed successfully",
			"file", result.File,
			"duration", result.Duration,
			"rows_affected", result.RowsAffected,
		)
	}
	s.logger.Info("SQL scripts completed", "total_files", len(results), "environment", s.environment)
	return results, nil
}

// Files returns the SQL files from the common and environment directories.
// A missing directory contributes no files.
func (s *ScriptRunner) Files() ([]ScriptFile, error) {
	common, err := filesFromDir(filepath.Join(s.rootPath, "common"), "common")
	if err != nil {
		return nil, err
	}
	env, err := filesFromDir(filepath.Join(s.rootPath, "environments", s.environment), s.environment)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(common, func(i, j int) bool { return common[i].less(common[j]) })
	sort.SliceStable(env, func(i, j int) bool { return env[i].less(env[j]) })
	return append(common, env...), nil
}

func (f ScriptFile) less(o ScriptFile) bool {
	if f.Order != o.Order {
		return f.Order < o.Order
	}
	return f.Name < o.Name
}

func filesFromDir(dir, environment string) ([]ScriptFile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []ScriptFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, ScriptFile{
			Path:        path,
			Name:        d.Name(),
			Order:       ParseFileOrder(d.Name()),
			Environment: environment,
			ModTime:     info.ModTime(),
		})
		return nil
	})
	return files, err
}

var fileOrderPattern = regexp.MustCompile(`^(\d+)_`)

// ParseFileOrder reads the numeric prefix of "012_seed.sql"; files without
// one sort last.
func ParseFileOrder(filename string) int {
	if m := fileOrderPattern.FindStringSubmatch(filename); len(m) > 1 {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 999
}

// RunFile executes one file inside a single transaction.
func (s *ScriptRunner) RunFile(ctx context.Context, path string) ScriptResult {
	start := time.Now()
	result := ScriptResult{File: path}

	content, err := os.ReadFile(path)
	if err != nil {
		result.Err = fmt.Errorf("failed to read file: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	text := string(content)
	if s.templated {
		if text, err = s.render(text); err != nil {
			result.Err = err
			result.Duration = time.Since(start)
			return result
		}
	}
	result.Statements, result.RowsAffected, result.Err = s.RunScript(ctx, text)
	result.Duration = time.Since(start)
	return result
}

// RunScript splits text into statements and executes them in one
// transaction, returning the statement count and total affected rows.
func (s *ScriptRunner) RunScript(ctx context.Context, text string) (int, int64, error) {
	statements := SplitStatements(text)
	if len(statements) == 0 {
		return 0, 0, nil
	}
	var total int64
	err := s.conn.RunInTx(ctx, func(ctx context.Context, tx Executor) error {
		total = 0
		for _, stmt := range statements {
			cmd, err := s.conn.CreateCommand(stmt, nil, WithTx(tx), WithRawText())
			if err != nil {
				return err
			}
			n, err := s.conn.Execute(ctx, cmd)
			if err != nil {
				return fmt.Errorf("failed to execute SQL statement: %s, error: %w", stmt, err)
			}
			if n > 0 {
				total += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(statements), total, nil
}

func (s *ScriptRunner) render(content string) (string, error) {
	tmpl, err := template.New("sql").Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// SplitStatements splits a script on semicolons outside quotes and
// comments. Comments are dropped and blank statements skipped.
func SplitStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}
	for i := 0; i < len(content); {
		ch := content[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			j := skipQuoted(content, i)
			current.WriteString(content[i:j])
			i = j
		case ch == '-' && strings.HasPrefix(content[i:], "--"):
			j := strings.IndexByte(content[i:], '\n')
			if j < 0 {
				i = len(content)
			} else {
				i += j
			}
		case ch == '/' && strings.HasPrefix(content[i:], "/*"):
			j := strings.Index(content[i+2:], "*/")
			if j < 0 {
				i = len(content)
			} else {
				i += j + 4
			}
			current.WriteByte(' ')
		case ch == ';':
			flush()
			i++
		default:
			current.WriteByte(ch)
			i++
		}
	}
	flush()
	return statements
}
