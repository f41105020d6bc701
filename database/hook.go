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
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var commandLogSilent atomic.Bool

// EnableCommandLogSilent mutes every CommandLogHook and SlowCommandHook.
func EnableCommandLogSilent(b bool) {
	commandLogSilent.Store(b)
}

// CommandEvent describes one command execution as seen by hooks.
type CommandEvent struct {
	Command   *Command
	Query     string
	Args      []any
	StartTime time.Time
	Err       error
}

// Operation returns the leading SQL keyword in upper case.
func (e *CommandEvent) Operation() string {
	q := strings.TrimSpace(e.Query)
	if i := strings.IndexAny(q, " \t\n("); i > 0 {
		q = q[:i]
	}
	return strings.ToUpper(q)
}

// CommandHook observes command execution.
type CommandHook interface {
	BeforeCommand(ctx context.Context, event *CommandEvent) context.Context
	AfterCommand(ctx context.Context, event *CommandEvent)
}

var operationColors = map[string]*color.Color{
	"SELECT": color.New(color.FgGreen),
	"INSERT": color.New(color.FgBlue),
	"UPDATE": color.New(color.FgYellow),
	"DELETE": color.New(color.FgMagenta),
}

var operationBackgrounds = map[string]*color.Color{
	"SELECT": color.New(color.BgGreen, color.FgHiWhite),
	"INSERT": color.New(color.BgBlue, color.FgHiWhite),
	"UPDATE": color.New(color.BgYellow, color.FgHiWhite),
	"DELETE": color.New(color.BgMagenta, color.FgHiWhite),
}

func colorize(palette map[string]*color.Color, op, text string) string {
	if c, ok := palette[op]; ok {
		return c.Sprint(text)
	}
	return color.New(color.FgRed).Sprint(text)
}

// CommandLogHook prints executed commands to a writer. The environment
// variable named by envName overrides the configuration: "0" or empty
// disables, "1" logs failures, "2" logs everything.
type CommandLogHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

type CommandLogOption func(*CommandLogHook)

func WithCommandLogEnabled(on bool) CommandLogOption {
	return func(h *CommandLogHook) { h.enabled = on }
}

func WithCommandLogVerbose(on bool) CommandLogOption {
	return func(h *CommandLogHook) { h.verbose = on }
}

func WithCommandLogWriter(w io.Writer) CommandLogOption {
	return func(h *CommandLogHook) { h.writer = w }
}

func WithCommandLogEnv(name string) CommandLogOption {
	return func(h *CommandLogHook) { h.envName = name }
}

func NewCommandLogHook(opts ...CommandLogOption) *CommandLogHook {
	h := &CommandLogHook{envName: "ANVIL_SQL_DEBUG", enabled: true, writer: os.Stderr}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CommandLogHook) BeforeCommand(ctx context.Context, _ *CommandEvent) context.Context {
	return ctx
}

func (h *CommandLogHook) AfterCommand(_ context.Context, event *CommandEvent) {
	if commandLogSilent.Load() {
		return
	}
	enabled, verbose := h.enabled, h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}

	now := time.Now()
	args := []any{
		now.Format("2006-01-02 15:04:05.000"),
		color.New(color.FgCyan).Sprintf("%12s", "[ANVIL]"),
		fmt.Sprintf("%14s", now.Sub(event.StartTime).Round(time.Microsecond)),
		" ", colorize(operationColors, event.Operation(), event.Query),
	}
	if len(event.Args) > 0 {
		args = append(args, color.New(color.Faint).Sprint(event.Args))
	}
	if event.Err != nil {
		typ := reflect.TypeOf(event.Err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s ", typ+": "+event.Err.Error()))
	}
	_, _ = fmt.Fprintln(h.writer, args...)
}

// SlowCommandHook warns through the Logger when a successful command runs
// longer than threshold.
type SlowCommandHook struct {
	threshold time.Duration
	logger    Logger
}

func NewSlowCommandHook(threshold time.Duration, logger Logger) *SlowCommandHook {
	return &SlowCommandHook{threshold: threshold, logger: logger}
}

func (h *SlowCommandHook) BeforeCommand(ctx context.Context, _ *CommandEvent) context.Context {
	return ctx
}

func (h *SlowCommandHook) AfterCommand(_ context.Context, event *CommandEvent) {
	if commandLogSilent.Load() || event.Err != nil || h.logger == nil {
		return
	}
	if d := time.Since(event.StartTime); d > h.threshold {
		h.logger.Warn("slow command "+colorize(operationBackgrounds, event.Operation(), event.Operation()),
			"duration", d.Round(time.Microsecond),
			"slow_threshold", h.threshold,
			"query", event.Query,
		)
	}
}

// slowQueryHook is the bun counterpart of SlowCommandHook, installed on
// managed bun.DB instances.
type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func (h *slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if commandLogSilent.Load() || event.Err != nil || h.logger == nil {
		return
	}
	if d := time.Since(event.StartTime); d > h.slowTime {
		h.logger.Warn("slow query", "duration", d, "slow_threshold", h.slowTime, "query", event.Query)
	}
}
