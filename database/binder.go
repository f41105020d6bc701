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
	"regexp"
	"sort"

	"github.com/tomoncle/anvil/types"
)

// FieldList is an ordered list of named values with declared types, the
// equivalent of an anonymous tuple of arguments.
type FieldList []types.NamedValue

func (f FieldList) NamedValues() []types.NamedValue { return f }

// Fields builds a FieldList from alternating name, value pairs. It panics
// on an odd number of arguments or a name that is not a non-empty string.
//
//	database.Fields("Age", 18, "Name", "Alice")
func Fields(pairs ...any) FieldList {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("database.Fields: odd argument count %d, missing value for %v", len(pairs), pairs[len(pairs)-1]))
	}
	out := make(FieldList, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok || name == "" {
			panic(fmt.Sprintf("database.Fields: argument %d must be a parameter name, got %#v", i, pairs[i]))
		}
		out = append(out, types.NamedValue{Name: name, Value: pairs[i+1]})
	}
	return out
}

// Map is a string keyed parameter source. Kinds follow the runtime type of
// each value and keys are visited in sorted order.
type Map map[string]any

func (m Map) NamedValues() []types.NamedValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.NamedValue, 0, len(m))
	for _, k := range keys {
		out = append(out, types.NamedValue{Name: k, Value: m[k]})
	}
	return out
}

// objectSource reads the exported fields of a struct, flattening anonymous
// embedded structs. Kinds follow the declared field types.
type objectSource struct {
	value reflect.Value
}

// Object wraps a struct or pointer to struct as a parameter source.
func Object(v any) types.ParamSource {
	return objectSource{value: reflect.ValueOf(v)}
}

func (o objectSource) NamedValues() []types.NamedValue {
	v := o.value
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	var out []types.NamedValue
	collectNamedValues(v, &out)
	return out
}

func collectNamedValues(v reflect.Value, out *[]types.NamedValue) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if sf.Anonymous {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if ft.Kind() == reflect.Struct && !hasScanner(ft) {
				collectNamedValues(fv, out)
				continue
			}
		}
		if !sf.IsExported() || !fv.CanInterface() {
			continue
		}
		*out = append(*out, types.NamedValue{Name: sf.Name, Value: fv.Interface(), Type: sf.Type})
	}
}

// SourceOf classifies v as a parameter source. Maps with string keys and
// structs are accepted; nil yields a nil source.
func SourceOf(v any) (types.ParamSource, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case types.ParamSource:
		return s, nil
	case map[string]any:
		return Map(s), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: parameter map keys must be strings, got %s", types.ErrArgument, rv.Type())
		}
		m := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return m, nil
	case reflect.Struct:
		return Object(v), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			return Object(v), nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported parameter source %T", types.ErrArgument, v)
}

// referencePattern matches @name or :name the way Render recognizes them:
// not part of @@name or ::name, and not a prefix of a longer identifier.
func referencePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|[^@:])[@:]` + regexp.QuoteMeta(name) + `([^\p{L}\p{N}_]|$)`)
}

// AttachParameters binds the values of source that cmd.Text references and
// that are not bound yet. Nil values and nil pointers bind as NULL.
func AttachParameters(cmd *Command, source any) error {
	if cmd == nil {
		return types.NewArgumentError("command")
	}
	src, err := SourceOf(source)
	if err != nil || src == nil {
		return err
	}
	for _, nv := range src.NamedValues() {
		name := NormalizeParameterName(nv.Name)
		if name == "" || cmd.HasParameter(name) {
			continue
		}
		if !referencePattern(name).MatchString(cmd.Text) {
			continue
		}
		value := nv.Value
		if isNilValue(value) {
			value = nil
		}
		cmd.AddParameter(name, value, KindOf(nv.ValueType()))
	}
	return nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		return rv.IsNil()
	}
	return false
}
