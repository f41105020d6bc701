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
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/anvil/types"
)

type reading struct {
	ID     int64
	Sensor string `bun:"sensor_name"`
	Value  *float64
	Taken  time.Time
	Note   sql.NullString
	Level  stage
}

type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) SetLevel(LogLevel)     {}
func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, fields ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprint(append([]any{msg}, fields...)...))
}

func (l *recordingLogger) Error(msg string, fields ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprint(append([]any{msg}, fields...)...))
}

func queryRows(t *testing.T, rows *sqlmock.Rows) (*sql.Rows, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectQuery("SELECT 1").WillReturnRows(rows).RowsWillBeClosed()
	r, err := db.Query("SELECT 1")
	require.NoError(t, err)
	return r, mock
}

func TestCollectRows_Struct(t *testing.T) {
	taken := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows, mock := queryRows(t, sqlmock.NewRows([]string{"id", "SENSOR_NAME", "value", "taken", "note", "level", "extra"}).
		AddRow(int64(1), []byte("s1"), nil, taken, nil, int64(2), "ignored").
		AddRow(int64(2), "s2", 2.5, taken, "checked", "3", nil))

	items, err := CollectRows[reading](rows)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, reading{ID: 1, Sensor: "s1", Taken: taken, Level: 2}, *items[0])
	value := 2.5
	assert.Equal(t, reading{ID: 2, Sensor: "s2", Value: &value, Taken: taken,
		Note: sql.NullString{String: "checked", Valid: true}, Level: 3}, *items[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapRow_FieldNameBeatsColumnAlias(t *testing.T) {
	type row struct {
		Code  string `bun:"name"`
		Name  string
		Other string `bun:"code_alias"`
	}
	rows, _ := queryRows(t, sqlmock.NewRows([]string{"name", "code_alias"}).AddRow("n", "c"))
	require.True(t, rows.Next())

	v, err := MapRow[row](rows)
	require.NoError(t, err)
	assert.Equal(t, row{Name: "n", Other: "c"}, v)
}

type AuditBase struct {
	ID   int64
	Name string `bun:"audit_name"`
}

type auditedItem struct {
	AuditBase
	Name  string
	Title string `bun:"audit_name"`
}

func TestMapRow_OuterFieldShadowsEmbedded(t *testing.T) {
	rows, _ := queryRows(t, sqlmock.NewRows([]string{"id", "name", "audit_name"}).AddRow(int64(4), "outer", "titled"))
	require.True(t, rows.Next())

	v, err := MapRow[auditedItem](rows)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.ID)
	assert.Equal(t, "outer", v.Name)
	assert.Empty(t, v.AuditBase.Name)
	assert.Equal(t, "titled", v.Title)
}

func TestMapRow_PlansCachedPerRegistry(t *testing.T) {
	reg := NewRegistry()
	rows, _ := queryRows(t, sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	require.True(t, rows.Next())

	v, err := MapRow[auditedItem](rows, WithMapRegistry(reg))
	require.NoError(t, err)
	assert.Equal(t, int64(9), v.ID)

	plan, ok := reg.plans.Load(reflect.TypeOf(auditedItem{}))
	require.True(t, ok)
	assert.Same(t, plan, reg.rowPlan(reflect.TypeOf(auditedItem{})))
	assert.Equal(t, []int{1}, plan.fields["name"])
}

type primitives struct {
	G    uuid.UUID
	D    decimal.Decimal
	B    bool
	Bs   []byte
	Du   time.Duration
	U    uint32
	U64  uint64
	F    float32
	I8   int8
	S    string
	T    time.Time
	NG   *uuid.UUID
	NI   *int
	Kind stage
}

func TestCollectRows_PrimitiveRoundTrip(t *testing.T) {
	id := uuid.MustParse("6f1c2b7e-3d4a-4c55-9e0f-0a1b2c3d4e5f")
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	cols := []string{"g", "d", "b", "bs", "du", "u", "u64", "f", "i8", "s", "t", "ng", "ni", "kind"}
	rows, mock := queryRows(t, sqlmock.NewRows(cols).
		AddRow(id.String(), "12.5", true, []byte{1, 2}, int64(time.Second), int64(7), int64(1<<40), 1.5, int64(-3), []byte("x"), at, id.String(), int64(11), int64(2)).
		AddRow(nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil))

	items, err := CollectRows[primitives](rows)
	require.NoError(t, err)
	require.Len(t, items, 2)

	full := items[0]
	assert.Equal(t, id, full.G)
	assert.True(t, decimal.RequireFromString("12.5").Equal(full.D), full.D.String())
	assert.True(t, full.B)
	assert.Equal(t, []byte{1, 2}, full.Bs)
	assert.Equal(t, time.Second, full.Du)
	assert.Equal(t, uint32(7), full.U)
	assert.Equal(t, uint64(1<<40), full.U64)
	assert.Equal(t, float32(1.5), full.F)
	assert.Equal(t, int8(-3), full.I8)
	assert.Equal(t, "x", full.S)
	assert.Equal(t, at, full.T)
	if assert.NotNil(t, full.NG) {
		assert.Equal(t, id, *full.NG)
	}
	if assert.NotNil(t, full.NI) {
		assert.Equal(t, 11, *full.NI)
	}
	assert.Equal(t, stage(2), full.Kind)

	empty := items[1]
	assert.Equal(t, uuid.Nil, empty.G)
	assert.True(t, empty.D.IsZero())
	assert.False(t, empty.B)
	assert.Nil(t, empty.Bs)
	assert.Zero(t, empty.Du)
	assert.Zero(t, empty.U)
	assert.Zero(t, empty.U64)
	assert.Zero(t, empty.F)
	assert.Zero(t, empty.I8)
	assert.Empty(t, empty.S)
	assert.True(t, empty.T.IsZero())
	assert.Nil(t, empty.NG)
	assert.Nil(t, empty.NI)
	assert.Zero(t, empty.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapRow_BasicAndMapTargets(t *testing.T) {
	rows, _ := queryRows(t, sqlmock.NewRows([]string{"total", "label"}).AddRow(int64(5), []byte("x")))
	require.True(t, rows.Next())
	n, err := MapRow[int](rows)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	rows, _ = queryRows(t, sqlmock.NewRows([]string{"total", "label"}).AddRow(int64(5), []byte("x")))
	require.True(t, rows.Next())
	m, err := MapRow[map[string]any](rows)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": int64(5), "label": "x"}, m)

	rows, _ = queryRows(t, sqlmock.NewRows([]string{"id", "sensor_name"}).AddRow(int64(9), "s9"))
	require.True(t, rows.Next())
	p, err := MapRow[*reading](rows)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(9), p.ID)
	assert.Equal(t, "s9", p.Sensor)
}

func TestMapRow_MaterializationError(t *testing.T) {
	logger := &recordingLogger{}
	rows, _ := queryRows(t, sqlmock.NewRows([]string{"id"}).AddRow("abc"))
	require.True(t, rows.Next())

	_, err := MapRow[reading](rows, WithMapLogger(logger))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMaterialization)

	var me *types.MaterializationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "id", me.Column)
	assert.Equal(t, "ID", me.Field)
	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "failed to map row")
}

func TestMapRows_StopsOnBreakAndCloses(t *testing.T) {
	rows, mock := queryRows(t, sqlmock.NewRows([]string{"n"}).AddRow(1).AddRow(2).AddRow(3))

	var seen []int64
	for v, err := range MapRows[int64](rows) {
		require.NoError(t, err)
		seen = append(seen, v)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapRows_RowError(t *testing.T) {
	rows, _ := queryRows(t, sqlmock.NewRows([]string{"n"}).AddRow(1).AddRow(2).RowError(1, sql.ErrConnDone))

	items, err := CollectRows[int64](rows)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Nil(t, items)
}

func TestConvertTo(t *testing.T) {
	n, err := ConvertTo[int]("12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	b, err := ConvertTo[bool](int64(1))
	require.NoError(t, err)
	assert.True(t, b)

	s, err := ConvertTo[string](nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	p, err := ConvertTo[*int64](int64(7))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(7), *p)

	d, err := ConvertTo[time.Duration]("1s")
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	_, err = ConvertTo[int8](int64(300))
	assert.ErrorIs(t, err, types.ErrMaterialization)

	_, err = ConvertTo[[]int]("x")
	assert.ErrorIs(t, err, types.ErrMaterialization)
}
