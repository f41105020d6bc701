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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommandEvent_Operation(t *testing.T) {
	assert.Equal(t, "SELECT", (&CommandEvent{Query: "  select 1"}).Operation())
	assert.Equal(t, "WITH", (&CommandEvent{Query: "WITH(x) AS y"}).Operation())
	assert.Equal(t, "", (&CommandEvent{}).Operation())
}

func TestCommandLogHook(t *testing.T) {
	var buf bytes.Buffer
	hook := NewCommandLogHook(WithCommandLogWriter(&buf), WithCommandLogEnv("ANVIL_TEST_SQL_DEBUG_UNSET"))

	hook.AfterCommand(context.Background(), &CommandEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, buf.String(), "successful commands are only logged in verbose mode")

	hook.AfterCommand(context.Background(), &CommandEvent{Query: "DELETE FROM t", StartTime: time.Now(), Err: errors.New("locked")})
	assert.Contains(t, buf.String(), "DELETE FROM t")
	assert.Contains(t, buf.String(), "locked")

	buf.Reset()
	t.Setenv("ANVIL_TEST_SQL_DEBUG_UNSET", "2")
	hook.AfterCommand(context.Background(), &CommandEvent{Query: "SELECT 2", Args: []any{1}, StartTime: time.Now()})
	assert.Contains(t, buf.String(), "SELECT 2")

	buf.Reset()
	EnableCommandLogSilent(true)
	defer EnableCommandLogSilent(false)
	hook.AfterCommand(context.Background(), &CommandEvent{Query: "SELECT 3", StartTime: time.Now()})
	assert.Empty(t, buf.String())
}

func TestSlowCommandHook(t *testing.T) {
	logger := &recordingLogger{}
	hook := NewSlowCommandHook(10*time.Millisecond, logger)

	hook.AfterCommand(context.Background(), &CommandEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, logger.warns)

	hook.AfterCommand(context.Background(), &CommandEvent{Query: "SELECT 2", StartTime: time.Now().Add(-time.Second)})
	hook.AfterCommand(context.Background(), &CommandEvent{Query: "SELECT 3", StartTime: time.Now().Add(-time.Second), Err: errors.New("x")})
	assert.Len(t, logger.warns, 1)
	assert.Contains(t, logger.warns[0], "SELECT 2")
}
