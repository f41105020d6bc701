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

package expr

import "reflect"

// FieldRef names a struct field of the entity a predicate is written for.
type FieldRef struct {
	Name string
}

// Field starts a predicate on the named struct field.
//
//	expr.And(expr.Field("Age").Gt(18), expr.Field("Name").Eq("Alice"))
func Field(name string) FieldRef {
	return FieldRef{Name: name}
}

func (f FieldRef) String() string { return f.Name }

func (f FieldRef) compare(op Operator, value any) Expr {
	return &Comparison{Field: f.Name, Op: op, Value: value}
}

func (f FieldRef) Eq(value any) Expr { return f.compare(OpEq, value) }

func (f FieldRef) Ne(value any) Expr { return f.compare(OpNe, value) }

func (f FieldRef) Gt(value any) Expr { return f.compare(OpGt, value) }

func (f FieldRef) Ge(value any) Expr { return f.compare(OpGe, value) }

func (f FieldRef) Lt(value any) Expr { return f.compare(OpLt, value) }

func (f FieldRef) Le(value any) Expr { return f.compare(OpLe, value) }

func (f FieldRef) IsNull() Expr { return &NullCheck{Field: f.Name} }

func (f FieldRef) IsNotNull() Expr { return &NullCheck{Field: f.Name, Not: true} }

func (f FieldRef) Contains(s string) Expr {
	return &Like{Field: f.Name, Mode: LikeContains, Value: s}
}

func (f FieldRef) StartsWith(s string) Expr {
	return &Like{Field: f.Name, Mode: LikeStartsWith, Value: s}
}

func (f FieldRef) EndsWith(s string) Expr {
	return &Like{Field: f.Name, Mode: LikeEndsWith, Value: s}
}

// In tests the field against the given values.
func (f FieldRef) In(values ...any) Expr {
	return &In{Field: f.Name, Values: values}
}

// InSlice is In for a typed slice or array, e.g. []int64 of ids. A value
// that is not a slice is treated as a single element.
func (f FieldRef) InSlice(values any) Expr {
	rv := reflect.ValueOf(values)
	if !rv.IsValid() {
		return &In{Field: f.Name}
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return &In{Field: f.Name, Values: []any{values}}
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return &In{Field: f.Name, Values: items}
}

// And joins the predicates left to right. Nil operands, typed nil pointers
// included, are skipped, so
// optional filters can be passed through unconditionally. It returns nil
// when every operand is nil.
func And(exprs ...Expr) Expr { return fold(OpAnd, exprs) }

// Or is And for disjunction.
func Or(exprs ...Expr) Expr { return fold(OpOr, exprs) }

func fold(op LogicalOp, exprs []Expr) Expr {
	var out Expr
	for _, e := range exprs {
		if isNilExpr(e) {
			continue
		}
		if out == nil {
			out = e
			continue
		}
		out = &Logical{Op: op, Left: out, Right: e}
	}
	return out
}

// isNilExpr reports whether e is nil or a nil pointer held in the interface.
func isNilExpr(e Expr) bool {
	if e == nil {
		return true
	}
	rv := reflect.ValueOf(e)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Ordering sorts by one field. The zero value of Ascending sorts descending.
type Ordering struct {
	Field     string
	Ascending bool
}

func Asc(field string) *Ordering { return &Ordering{Field: field, Ascending: true} }

func Desc(field string) *Ordering { return &Ordering{Field: field} }
