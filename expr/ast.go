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
	"strings"
)

// Operator is a binary comparison operator.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
)

// String returns the SQL spelling of the operator.
func (o Operator) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

func (o Operator) valid() bool { return o >= OpEq && o <= OpLe }

// LogicalOp joins two predicates.
type LogicalOp int

const (
	OpAnd LogicalOp = iota
	OpOr
)

func (o LogicalOp) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return fmt.Sprintf("LogicalOp(%d)", int(o))
	}
}

// LikeMode selects where wildcards are placed around a LIKE value.
type LikeMode int

const (
	LikeContains LikeMode = iota
	LikeStartsWith
	LikeEndsWith
)

func (m LikeMode) String() string {
	switch m {
	case LikeContains:
		return "Contains"
	case LikeStartsWith:
		return "StartsWith"
	case LikeEndsWith:
		return "EndsWith"
	default:
		return fmt.Sprintf("LikeMode(%d)", int(m))
	}
}

// Expr is a node of a boolean predicate over the fields of one entity.
// The translator accepts the node types declared in this package and
// rejects anything else.
type Expr interface {
	String() string
}

// Comparison compares a field with a value, or with another field when
// Value is a FieldRef.
type Comparison struct {
	Field string
	Op    Operator
	Value any
}

func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// Logical combines two predicates with AND or OR.
type Logical struct {
	Op    LogicalOp
	Left  Expr
	Right Expr
}

func (l *Logical) String() string {
	return fmt.Sprintf("(%v) %s (%v)", l.Left, l.Op, l.Right)
}

// NullCheck tests a field for NULL, or NOT NULL when Not is set.
type NullCheck struct {
	Field string
	Not   bool
}

func (n *NullCheck) String() string {
	if n.Not {
		return n.Field + " IS NOT NULL"
	}
	return n.Field + " IS NULL"
}

// Like matches a string field against Value. Value is literal text; any
// wildcard characters it contains are matched verbatim.
type Like struct {
	Field string
	Mode  LikeMode
	Value string
}

func (l *Like) String() string {
	return fmt.Sprintf("%s.%s(%q)", l.Field, l.Mode, l.Value)
}

// In tests membership of a field in a finite set of values.
type In struct {
	Field  string
	Values []any
}

func (in *In) String() string {
	parts := make([]string, len(in.Values))
	for i, v := range in.Values {
		parts[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s IN (%s)", in.Field, strings.Join(parts, ", "))
}
