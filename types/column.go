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

package types

import "reflect"

// ColumnMapping pairs a database column with the struct field it is read
// from and written to.
type ColumnMapping struct {
	Column string
	Field  string
}

// NamedValue is a single named argument offered to a command. Type is the
// declared type used for kind inference; when nil the runtime type of Value
// is used.
type NamedValue struct {
	Name  string
	Value any
	Type  reflect.Type
}

// ValueType returns the declared type, falling back to the dynamic type.
func (n NamedValue) ValueType() reflect.Type {
	if n.Type != nil {
		return n.Type
	}
	if n.Value == nil {
		return nil
	}
	return reflect.TypeOf(n.Value)
}

// ParamSource enumerates named values in a stable order.
type ParamSource interface {
	NamedValues() []NamedValue
}
