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
	"reflect"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/tagparser/v2"

	"github.com/tomoncle/anvil/types"
)

var (
	bunBaseModelType = reflect.TypeOf(bun.BaseModel{})
	defaultRegistry  = NewRegistry()
)

// TableNamer lets an entity override its table name.
type TableNamer interface {
	TableName() string
}

// fieldMeta is one persisted struct field.
type fieldMeta struct {
	name      string
	column    string
	index     []int
	typ       reflect.Type
	generated bool
}

// EntityMeta is the immutable mapping of one struct type onto a table.
//
// Mapping follows bun tags: `bun:"table:users"` on an embedded bun.BaseModel
// names the table, the first tag element names the column, `bun:"-"` and
// relation fields are skipped, and autoincrement, identity or scanonly mark
// a column the database fills in.
type EntityMeta struct {
	Type  reflect.Type
	Table string

	fields  []*fieldMeta
	byField map[string]*fieldMeta
	columns []types.ColumnMapping

	insertOnce sync.Once
	insertable []types.ColumnMapping
}

// ColumnMappings returns every persisted column in declaration order.
func (m *EntityMeta) ColumnMappings() []types.ColumnMapping {
	out := make([]types.ColumnMapping, len(m.columns))
	copy(out, m.columns)
	return out
}

// InsertableColumns returns the columns written by INSERT, excluding
// database-generated ones. Computed on first use.
func (m *EntityMeta) InsertableColumns() []types.ColumnMapping {
	m.insertOnce.Do(func() {
		m.insertable = make([]types.ColumnMapping, 0, len(m.fields))
		for _, f := range m.fields {
			if !f.generated {
				m.insertable = append(m.insertable, types.ColumnMapping{Column: f.column, Field: f.name})
			}
		}
	})
	out := make([]types.ColumnMapping, len(m.insertable))
	copy(out, m.insertable)
	return out
}

// SelectList renders "column AS Field" for every column so that result
// columns carry field names.
func (m *EntityMeta) SelectList() string {
	parts := make([]string, len(m.columns))
	for i, c := range m.columns {
		parts[i] = c.Column + " AS " + c.Field
	}
	return strings.Join(parts, ", ")
}

// FieldValue reads field from entity, which must be a value or pointer of
// m.Type. A nil embedded pointer on the path reads as nil.
func (m *EntityMeta) FieldValue(entity reflect.Value, field string) (any, error) {
	f, ok := m.byField[field]
	if !ok {
		return nil, &types.TranslationError{Construct: fmt.Sprintf("field %q", field), Reason: "not a mapped column of " + m.Type.String()}
	}
	for entity.Kind() == reflect.Pointer {
		if entity.IsNil() {
			return nil, types.NewArgumentError("entity")
		}
		entity = entity.Elem()
	}
	v, err := entity.FieldByIndexErr(f.index)
	if err != nil {
		return nil, nil
	}
	return v.Interface(), nil
}

// FieldType returns the declared type of a mapped field.
func (m *EntityMeta) FieldType(field string) (reflect.Type, bool) {
	f, ok := m.byField[field]
	if !ok {
		return nil, false
	}
	return f.typ, true
}

// Registry caches EntityMeta per struct type, and the row plans the
// materializer uses per target type. Entries are computed once and never
// change; a Registry usually lives as long as the process.
type Registry struct {
	entities *xsync.MapOf[reflect.Type, entityEntry]
	plans    *xsync.MapOf[reflect.Type, *rowPlan]
}

type entityEntry struct {
	meta *EntityMeta
	err  error
}

func NewRegistry() *Registry {
	return &Registry{
		entities: xsync.NewMapOf[reflect.Type, entityEntry](),
		plans:    xsync.NewMapOf[reflect.Type, *rowPlan](),
	}
}

// DefaultRegistry is the process-wide registry used when none is supplied.
func DefaultRegistry() *Registry { return defaultRegistry }

// Entity returns the mapping of t, building it on first use. Concurrent
// first calls build it once.
func (r *Registry) Entity(t reflect.Type) (*EntityMeta, error) {
	if t == nil {
		return nil, types.NewArgumentError("type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	entry, _ := r.entities.LoadOrCompute(t, func() entityEntry {
		meta, err := buildEntityMeta(t)
		return entityEntry{meta: meta, err: err}
	})
	return entry.meta, entry.err
}

func (r *Registry) ColumnMappings(t reflect.Type) ([]types.ColumnMapping, error) {
	meta, err := r.Entity(t)
	if err != nil {
		return nil, err
	}
	return meta.ColumnMappings(), nil
}

func (r *Registry) InsertableColumns(t reflect.Type) ([]types.ColumnMapping, error) {
	meta, err := r.Entity(t)
	if err != nil {
		return nil, err
	}
	return meta.InsertableColumns(), nil
}

func (r *Registry) TableName(t reflect.Type) (string, error) {
	meta, err := r.Entity(t)
	if err != nil {
		return "", err
	}
	return meta.Table, nil
}

// EntityOf is Entity for a type parameter.
func EntityOf[T any](r *Registry) (*EntityMeta, error) {
	if r == nil {
		r = defaultRegistry
	}
	return r.Entity(reflect.TypeOf((*T)(nil)).Elem())
}

func buildEntityMeta(t reflect.Type) (*EntityMeta, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: entity type %s is not a struct", types.ErrArgument, t)
	}
	meta := &EntityMeta{Type: t, Table: resolveTableName(t), byField: map[string]*fieldMeta{}}
	if err := collectFields(t, nil, "", meta); err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(meta.fields))
	for _, f := range meta.fields {
		key := strings.ToLower(f.column)
		if other, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s maps column %q twice (%s, %s)", types.ErrArgument, t, f.column, other, f.name)
		}
		seen[key] = f.name
		meta.columns = append(meta.columns, types.ColumnMapping{Column: f.column, Field: f.name})
	}
	return meta, nil
}

func resolveTableName(t reflect.Type) string {
	if sf, ok := t.FieldByName("BaseModel"); ok && sf.Type == bunBaseModelType {
		if table, ok := tagparser.Parse(sf.Tag.Get("bun")).Options["table"]; ok && table != "" {
			return strings.Trim(table, `"`)
		}
	}
	if namer, ok := reflect.New(t).Interface().(TableNamer); ok {
		if name := namer.TableName(); name != "" {
			return name
		}
	}
	return t.Name()
}

func collectFields(t reflect.Type, parent []int, prefix string, meta *EntityMeta) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Type == bunBaseModelType {
			continue
		}
		raw, tagged := sf.Tag.Lookup("bun")
		tag := tagparser.Parse(raw)
		if tag.Name == "-" || tag.HasOption("rel") || tag.HasOption("m2m") {
			continue
		}
		index := append(append([]int(nil), parent...), i)

		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		embedPrefix, embed := tag.Options["embed"]
		if (sf.Anonymous && !tagged) || embed {
			if ft.Kind() == reflect.Struct && !hasScanner(ft) {
				// unexported embedded types stay out of the mapping
				if !sf.IsExported() {
					continue
				}
				if err := collectFields(ft, index, prefix+embedPrefix, meta); err != nil {
					return err
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		column := tag.Name
		if column == "" {
			column = sf.Name
		}
		f := &fieldMeta{
			name:      sf.Name,
			column:    prefix + column,
			index:     index,
			typ:       sf.Type,
			generated: tag.HasOption("autoincrement") || tag.HasOption("identity") || tag.HasOption("scanonly"),
		}
		if _, dup := meta.byField[f.name]; dup {
			return fmt.Errorf("%w: %s declares field %s more than once", types.ErrArgument, meta.Type, f.name)
		}
		meta.fields = append(meta.fields, f)
		meta.byField[f.name] = f
	}
	return nil
}
