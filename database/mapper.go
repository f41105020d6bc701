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
	"database/sql"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/vmihailenco/tagparser/v2"

	"github.com/tomoncle/anvil/types"
)

// RowScanner is the cursor surface the materializer needs. *sql.Rows and
// *Rows satisfy it.
type RowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

var (
	scannerType  = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	rowMapType   = reflect.TypeOf(map[string]any{})
)

// hasScanner reports whether t is read as a single value rather than
// field by field.
func hasScanner(t reflect.Type) bool {
	return t == timeType || reflect.PointerTo(t).Implements(scannerType)
}

type planKind int

const (
	planBasic planKind = iota
	planStruct
	planMap
)

// rowPlan is how rows are written into one target type.
type rowPlan struct {
	kind    planKind
	fields  map[string][]int
	names   map[string]string
	pointer bool
}

// rowPlan returns the cached plan for writing rows into t.
func (r *Registry) rowPlan(t reflect.Type) *rowPlan {
	plan, _ := r.plans.LoadOrCompute(t, func() *rowPlan { return buildRowPlan(t) })
	return plan
}

func buildRowPlan(t reflect.Type) *rowPlan {
	base := t
	pointer := false
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
		pointer = true
	}
	switch {
	case base == rowMapType:
		return &rowPlan{kind: planMap, pointer: pointer}
	case base.Kind() == reflect.Struct && !hasScanner(base):
		p := &rowPlan{kind: planStruct, fields: map[string][]int{}, names: map[string]string{}, pointer: pointer}
		var names, aliases []fieldCandidate
		planFields(base, nil, &names, &aliases)
		// field names beat bun column aliases; within each, the shallower
		// field wins as in Go field promotion
		for _, group := range [][]fieldCandidate{names, aliases} {
			sort.SliceStable(group, func(i, j int) bool { return len(group[i].index) < len(group[j].index) })
			for _, c := range group {
				if _, taken := p.fields[c.key]; !taken {
					p.fields[c.key] = c.index
					p.names[c.key] = c.name
				}
			}
		}
		return p
	default:
		return &rowPlan{kind: planBasic}
	}
}

type fieldCandidate struct {
	key   string
	name  string
	index []int
}

// planFields collects settable fields keyed by lower-cased field name, and
// by lower-cased bun column name as aliases.
func planFields(t reflect.Type, parent []int, names, aliases *[]fieldCandidate) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Type == bunBaseModelType {
			continue
		}
		index := append(append([]int(nil), parent...), i)
		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if sf.Anonymous && ft.Kind() == reflect.Struct && !hasScanner(ft) {
			if sf.IsExported() {
				planFields(ft, index, names, aliases)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		*names = append(*names, fieldCandidate{key: strings.ToLower(sf.Name), name: sf.Name, index: index})
		if tag := tagparser.Parse(sf.Tag.Get("bun")); tag.Name != "" && tag.Name != "-" {
			*aliases = append(*aliases, fieldCandidate{key: strings.ToLower(tag.Name), name: sf.Name, index: index})
		}
	}
}

type mapConfig struct {
	logger   Logger
	registry *Registry
}

type MapOption func(*mapConfig)

// WithMapRegistry caches row plans in r instead of DefaultRegistry.
func WithMapRegistry(r *Registry) MapOption {
	return func(c *mapConfig) { c.registry = r }
}

// WithMapLogger sets the logger that records mapping failures.
func WithMapLogger(l Logger) MapOption {
	return func(c *mapConfig) { c.logger = l }
}

func newMapConfig(opts []MapOption) *mapConfig {
	cfg := &mapConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = GetLogger()
	}
	if cfg.registry == nil {
		cfg.registry = DefaultRegistry()
	}
	return cfg
}

// MapRow converts the current row of rows into a T.
//
// Basic targets take the first column. Struct targets, or pointers to
// structs, receive each column whose name matches a field name ignoring
// case; the bun column name is tried when no field name matches. NULL
// leaves the zero value and fields implementing sql.Scanner scan
// themselves. A row without columns yields the zero T.
func MapRow[T any](rows RowScanner, opts ...MapOption) (T, error) {
	var zero T
	cols, values, err := readRow(rows)
	if err != nil {
		return zero, err
	}
	cfg := newMapConfig(opts)
	out, err := materialize[T](cfg.registry, cols, values)
	if err != nil {
		cfg.logger.Error("failed to map row",
			"target", reflect.TypeOf((*T)(nil)).Elem().String(),
			"columns", strings.Join(cols, ","),
			"error", err,
		)
		return zero, err
	}
	return out, nil
}

// MapRows lazily maps every remaining row and closes rows when iteration
// ends, including on early break. Iteration stops after the first error.
func MapRows[T any](rows RowScanner, opts ...MapOption) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer rows.Close()
		for rows.Next() {
			v, err := MapRow[T](rows, opts...)
			if !yield(v, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// CollectRows maps every row into a slice of pointers.
func CollectRows[T any](rows RowScanner, opts ...MapOption) ([]*T, error) {
	items := make([]*T, 0)
	for v, err := range MapRows[T](rows, opts...) {
		if err != nil {
			return nil, err
		}
		items = append(items, &v)
	}
	return items, nil
}

// ConvertTo converts a scalar as returned by a driver into R.
func ConvertTo[R any](v any) (R, error) {
	var zero R
	t := reflect.TypeOf((*R)(nil)).Elem()
	target := reflect.New(t).Elem()
	if err := assign(target, v); err != nil {
		return zero, &types.MaterializationError{Target: t, Err: err}
	}
	return target.Interface().(R), nil
}

func readRow(rows RowScanner) ([]string, []any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if len(dest) > 0 {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
	}
	return cols, values, nil
}

func materialize[T any](reg *Registry, cols []string, values []any) (T, error) {
	var zero T
	if len(cols) == 0 {
		return zero, nil
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	target := reflect.New(t).Elem()
	plan := reg.rowPlan(t)

	switch plan.kind {
	case planBasic:
		if err := assign(target, values[0]); err != nil {
			return zero, &types.MaterializationError{Column: cols[0], Target: t, Err: err}
		}
	case planMap:
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				m[col] = string(b)
				continue
			}
			m[col] = values[i]
		}
		if plan.pointer {
			target.Set(reflect.ValueOf(&m))
		} else {
			target.Set(reflect.ValueOf(m))
		}
	case planStruct:
		base := target
		if plan.pointer {
			target.Set(reflect.New(t.Elem()))
			base = target.Elem()
		}
		assigned := make(map[string]bool, len(cols))
		for i, col := range cols {
			key := strings.ToLower(col)
			index, ok := plan.fields[key]
			if !ok || assigned[key] {
				continue
			}
			assigned[key] = true
			field := fieldByIndexAlloc(base, index)
			if !field.CanSet() {
				continue
			}
			if err := assign(field, values[i]); err != nil {
				return zero, &types.MaterializationError{Column: col, Field: plan.names[key], Target: field.Type(), Err: err}
			}
		}
	}
	return target.Interface().(T), nil
}

// fieldByIndexAlloc is FieldByIndex that allocates nil embedded pointers.
func fieldByIndexAlloc(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// assign stores a driver value into dst. NULL stores the zero value.
func assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() {
		if s, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return s.Scan(src)
		}
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		if b, ok := src.([]byte); ok {
			sv = reflect.ValueOf(bytes.Clone(b))
		}
		dst.Set(sv)
		return nil
	}
	v, err := coerce(src, dst.Type())
	if err != nil {
		return err
	}
	dst.Set(v)
	return nil
}

func coerce(src any, t reflect.Type) (reflect.Value, error) {
	if b, ok := src.([]byte); ok {
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return reflect.ValueOf(bytes.Clone(b)).Convert(t), nil
		}
		src = string(b)
	}
	var (
		out any
		err error
	)
	switch t.Kind() {
	case reflect.String:
		out, err = cast.ToStringE(src)
	case reflect.Bool:
		out, err = cast.ToBoolE(src)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t == durationType {
			out, err = cast.ToDurationE(src)
			break
		}
		var n int64
		if n, err = cast.ToInt64E(src); err == nil {
			if reflect.New(t).Elem().OverflowInt(n) {
				return reflect.Value{}, fmt.Errorf("value %d overflows %s", n, t)
			}
			out = n
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		if n, err = cast.ToUint64E(src); err == nil {
			if reflect.New(t).Elem().OverflowUint(n) {
				return reflect.Value{}, fmt.Errorf("value %d overflows %s", n, t)
			}
			out = n
		}
	case reflect.Float32, reflect.Float64:
		out, err = cast.ToFloat64E(src)
	case reflect.Slice:
		if s, ok := src.(string); ok && t.Elem().Kind() == reflect.Uint8 {
			out = []byte(s)
		} else {
			err = fmt.Errorf("cannot convert %T to %s", src, t)
		}
	case reflect.Struct:
		if t == timeType {
			out, err = cast.ToTimeE(src)
		} else {
			err = fmt.Errorf("cannot convert %T to %s", src, t)
		}
	default:
		err = fmt.Errorf("cannot convert %T to %s", src, t)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.ValueOf(out)
	if !v.Type().ConvertibleTo(t) {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", src, t)
	}
	return v.Convert(t), nil
}
