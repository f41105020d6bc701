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
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tomoncle/anvil/types"
)

// ParameterKind is the database-neutral type tag attached to a parameter.
type ParameterKind int

const (
	KindObject ParameterKind = iota
	KindByte
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindDecimal
	KindBool
	KindString
	KindFixedChar
	KindGuid
	KindDateTime
	KindDateTimeOffset
	KindDuration
	KindBinary
)

var kindNames = map[ParameterKind]string{
	KindObject:         "object",
	KindByte:           "byte",
	KindInt16:          "int16",
	KindInt32:          "int32",
	KindInt64:          "int64",
	KindFloat32:        "float32",
	KindFloat64:        "float64",
	KindDecimal:        "decimal",
	KindBool:           "bool",
	KindString:         "string",
	KindFixedChar:      "fixed-char",
	KindGuid:           "guid",
	KindDateTime:       "datetime",
	KindDateTimeOffset: "datetime-offset",
	KindDuration:       "duration",
	KindBinary:         "binary",
}

func (k ParameterKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "object"
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// kindTable is keyed by exact Go type. Go has no separate char or offset
// time types: rune is int32 and time.Time always carries its location, so
// KindFixedChar and KindDateTimeOffset are only assigned explicitly.
var kindTable = map[reflect.Type]ParameterKind{
	typeOf[uint8]():           KindByte,
	typeOf[int8]():            KindInt16,
	typeOf[int16]():           KindInt16,
	typeOf[uint16]():          KindInt32,
	typeOf[int32]():           KindInt32,
	typeOf[uint32]():          KindInt64,
	typeOf[int]():             KindInt64,
	typeOf[int64]():           KindInt64,
	typeOf[uint]():            KindDecimal,
	typeOf[uint64]():          KindDecimal,
	typeOf[float32]():         KindFloat32,
	typeOf[float64]():         KindFloat64,
	typeOf[decimal.Decimal](): KindDecimal,
	typeOf[bool]():            KindBool,
	typeOf[string]():          KindString,
	typeOf[uuid.UUID]():       KindGuid,
	typeOf[time.Time]():       KindDateTime,
	typeOf[time.Duration]():   KindDuration,
	typeOf[[]byte]():          KindBinary,
	typeOf[json.RawMessage](): KindBinary,

	typeOf[sql.NullByte]():        KindByte,
	typeOf[sql.NullInt16]():       KindInt16,
	typeOf[sql.NullInt32]():       KindInt32,
	typeOf[sql.NullInt64]():       KindInt64,
	typeOf[sql.NullFloat64]():     KindFloat64,
	typeOf[sql.NullBool]():        KindBool,
	typeOf[sql.NullString]():      KindString,
	typeOf[sql.NullTime]():        KindDateTime,
	typeOf[uuid.NullUUID]():       KindGuid,
	typeOf[decimal.NullDecimal](): KindDecimal,
}

// underlyingKinds resolves named types missing from kindTable, such as
// enums declared as `type Status int`.
var underlyingKinds = map[reflect.Kind]ParameterKind{
	reflect.Uint8:   KindByte,
	reflect.Int8:    KindInt16,
	reflect.Int16:   KindInt16,
	reflect.Uint16:  KindInt32,
	reflect.Int32:   KindInt32,
	reflect.Uint32:  KindInt64,
	reflect.Int:     KindInt64,
	reflect.Int64:   KindInt64,
	reflect.Uint:    KindDecimal,
	reflect.Uint64:  KindDecimal,
	reflect.Float32: KindFloat32,
	reflect.Float64: KindFloat64,
	reflect.Bool:    KindBool,
	reflect.String:  KindString,
}

// KindOf returns the parameter kind for a declared Go type. Pointers map to
// the kind of their element.
func KindOf(t reflect.Type) ParameterKind {
	if t == nil {
		return KindObject
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if k, ok := kindTable[t]; ok {
		return k
	}
	if types.IsBaseEnumType(t) {
		return KindInt32
	}
	if t.PkgPath() != "" {
		if k, ok := underlyingKinds[t.Kind()]; ok {
			return k
		}
	}
	return KindObject
}

// KindOfValue returns the kind for the dynamic type of v; nil is KindObject.
func KindOfValue(v any) ParameterKind {
	if v == nil {
		return KindObject
	}
	return KindOf(reflect.TypeOf(v))
}
