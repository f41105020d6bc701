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

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/anvil/types"
)

// LikeEscape is the escape character declared on every emitted LIKE.
const LikeEscape = '!'

var likeEscaper = strings.NewReplacer(
	string(LikeEscape), string(LikeEscape)+string(LikeEscape),
	"%", string(LikeEscape)+"%",
	"_", string(LikeEscape)+"_",
	"[", string(LikeEscape)+"[",
)

// Parameters is an insertion-ordered set of named values. Names are unique
// ignoring case.
type Parameters struct {
	names  []string
	values map[string]any
	taken  map[string]struct{}
}

func NewParameters() *Parameters {
	return &Parameters{values: map[string]any{}, taken: map[string]struct{}{}}
}

// Add stores value under name, replacing an existing value of that name.
func (p *Parameters) Add(name string, value any) {
	if _, ok := p.values[name]; !ok {
		p.names = append(p.names, name)
		p.taken[strings.ToLower(name)] = struct{}{}
	}
	p.values[name] = value
}

func (p *Parameters) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

func (p *Parameters) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

func (p *Parameters) Len() int { return len(p.names) }

// NamedValues implements types.ParamSource.
func (p *Parameters) NamedValues() []types.NamedValue {
	out := make([]types.NamedValue, 0, len(p.names))
	for _, name := range p.names {
		out = append(out, types.NamedValue{Name: name, Value: p.values[name]})
	}
	return out
}

// unique returns base, or base_N for the smallest N not yet used.
func (p *Parameters) unique(base string) string {
	if _, ok := p.taken[strings.ToLower(base)]; !ok {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if _, ok := p.taken[strings.ToLower(name)]; !ok {
			return name
		}
	}
}

// WhereClauseResult is a translated predicate. SQLText holds the condition
// without the WHERE keyword and is empty when there is no predicate.
type WhereClauseResult struct {
	SQLText    string
	Parameters *Parameters
}

// Clause returns " WHERE <condition>" with a leading space, or "".
func (w *WhereClauseResult) Clause() string {
	if w == nil || w.SQLText == "" {
		return ""
	}
	return " WHERE " + w.SQLText
}

// ResolveColumn maps a struct field name to its column. An exact match wins
// over a case-insensitive one.
func ResolveColumn(field string, mappings []types.ColumnMapping) (string, error) {
	for _, m := range mappings {
		if m.Field == field {
			return m.Column, nil
		}
	}
	for _, m := range mappings {
		if strings.EqualFold(m.Field, field) {
			return m.Column, nil
		}
	}
	return "", &types.TranslationError{Construct: fmt.Sprintf("field %q", field), Reason: "not a mapped column"}
}

// OrderClause renders " ORDER BY <column> [DESC]" for o, or "" for nil.
func OrderClause(o *Ordering, mappings []types.ColumnMapping) (string, error) {
	if o == nil {
		return "", nil
	}
	col, err := ResolveColumn(o.Field, mappings)
	if err != nil {
		return "", err
	}
	if o.Ascending {
		return " ORDER BY " + col + " ASC", nil
	}
	return " ORDER BY " + col + " DESC", nil
}

// ParseWhereExpression translates predicate into a parameterized condition.
// Parameter names derive from field names and are referenced as @name.
// A nil predicate yields an empty result.
func ParseWhereExpression(predicate Expr, mappings []types.ColumnMapping) (*WhereClauseResult, error) {
	t := &translator{mappings: mappings, params: NewParameters()}
	if predicate != nil {
		if err := t.visit(predicate); err != nil {
			return nil, err
		}
	}
	return &WhereClauseResult{SQLText: t.sb.String(), Parameters: t.params}, nil
}

type translator struct {
	mappings []types.ColumnMapping
	params   *Parameters
	sb       strings.Builder
}

func (t *translator) bind(field string, value any) string {
	name := t.params.unique(field)
	t.params.Add(name, value)
	return "@" + name
}

func (t *translator) visit(e Expr) error {
	if isNilExpr(e) {
		return &types.TranslationError{Construct: "nil operand", Reason: "predicate node is nil"}
	}
	switch n := e.(type) {
	case *Comparison:
		return t.comparison(n)
	case *Logical:
		return t.logical(n)
	case *NullCheck:
		return t.nullCheck(n.Field, n.Not)
	case *Like:
		return t.like(n)
	case *In:
		return t.in(n)
	default:
		return &types.TranslationError{Construct: fmt.Sprintf("%T", e), Reason: "node type not supported"}
	}
}

func (t *translator) comparison(c *Comparison) error {
	if !c.Op.valid() {
		return &types.TranslationError{Construct: c.Op.String(), Reason: "comparison operator not supported"}
	}
	col, err := ResolveColumn(c.Field, t.mappings)
	if err != nil {
		return err
	}
	if ref, ok := c.Value.(FieldRef); ok {
		other, err := ResolveColumn(ref.Name, t.mappings)
		if err != nil {
			return err
		}
		fmt.Fprintf(&t.sb, "%s %s %s", col, c.Op, other)
		return nil
	}
	if isNull(c.Value) {
		switch c.Op {
		case OpEq:
			return t.nullCheck(c.Field, false)
		case OpNe:
			return t.nullCheck(c.Field, true)
		default:
			return &types.TranslationError{Construct: c.String(), Reason: "only = and <> accept a nil operand"}
		}
	}
	fmt.Fprintf(&t.sb, "%s %s %s", col, c.Op, t.bind(c.Field, c.Value))
	return nil
}

func (t *translator) logical(l *Logical) error {
	if l.Op != OpAnd && l.Op != OpOr {
		return &types.TranslationError{Construct: l.Op.String(), Reason: "logical operator not supported"}
	}
	t.sb.WriteByte('(')
	if err := t.visit(l.Left); err != nil {
		return err
	}
	fmt.Fprintf(&t.sb, ") %s (", l.Op)
	if err := t.visit(l.Right); err != nil {
		return err
	}
	t.sb.WriteByte(')')
	return nil
}

func (t *translator) nullCheck(field string, not bool) error {
	col, err := ResolveColumn(field, t.mappings)
	if err != nil {
		return err
	}
	t.sb.WriteString(col)
	if not {
		t.sb.WriteString(" IS NOT NULL")
	} else {
		t.sb.WriteString(" IS NULL")
	}
	return nil
}

func (t *translator) like(l *Like) error {
	col, err := ResolveColumn(l.Field, t.mappings)
	if err != nil {
		return err
	}
	escaped := likeEscaper.Replace(l.Value)
	var pattern string
	switch l.Mode {
	case LikeContains:
		pattern = "%" + escaped + "%"
	case LikeStartsWith:
		pattern = escaped + "%"
	case LikeEndsWith:
		pattern = "%" + escaped
	default:
		return &types.TranslationError{Construct: l.Mode.String(), Reason: "like mode not supported"}
	}
	fmt.Fprintf(&t.sb, "%s LIKE %s ESCAPE '%c'", col, t.bind(l.Field, pattern), LikeEscape)
	return nil
}

func (t *translator) in(in *In) error {
	col, err := ResolveColumn(in.Field, t.mappings)
	if err != nil {
		return err
	}
	if len(in.Values) == 0 {
		t.sb.WriteString("(1 = 0)")
		return nil
	}
	refs := make([]string, len(in.Values))
	for i, v := range in.Values {
		refs[i] = t.bind(in.Field, v)
	}
	fmt.Fprintf(&t.sb, "%s IN (%s)", col, strings.Join(refs, ", "))
	return nil
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
