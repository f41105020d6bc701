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
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tomoncle/anvil/types"
)

// DefaultCommandTimeout applies to commands created without WithTimeout.
const DefaultCommandTimeout = 60 * time.Second

// Parameter is a named value bound to a command.
type Parameter struct {
	Name  string
	Value any
	Kind  ParameterKind
}

func (p *Parameter) IsNull() bool { return p.Value == nil }

// DriverValue converts Value into what is handed to the driver.
func (p *Parameter) DriverValue() any {
	if p.Value == nil {
		return nil
	}
	switch v := p.Value.(type) {
	case types.BaseEnum:
		return int64(v.Number())
	case time.Duration:
		return int64(v)
	case uuid.UUID:
		return v.String()
	case driver.Valuer:
		return v
	}
	rv := reflect.ValueOf(p.Value)
	if rv.Type().PkgPath() == "" {
		return p.Value
	}
	// named scalar types such as enums go out as their underlying value
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	}
	return p.Value
}

func (p *Parameter) String() string {
	if p.Value == nil {
		return fmt.Sprintf("@%s=NULL(%s)", p.Name, p.Kind)
	}
	return fmt.Sprintf("@%s=%v(%s)", p.Name, p.Value, p.Kind)
}

// Command is a SQL statement with its bound parameters. Text references
// parameters as @name.
type Command struct {
	Text       string
	Parameters []*Parameter
	Tx         Executor
	Timeout    time.Duration
	// Raw sends Text verbatim with no driver arguments.
	Raw bool
}

// CommandOption configures a command created by Connection.CreateCommand.
type CommandOption func(*Command)

// WithParameters binds explicit parameters before the parameter source is
// applied. Names bound here take precedence; later duplicates are dropped.
func WithParameters(params ...*Parameter) CommandOption {
	return func(c *Command) {
		seen := make(map[string]struct{}, len(c.Parameters)+len(params))
		for _, p := range c.Parameters {
			seen[strings.ToLower(p.Name)] = struct{}{}
		}
		for _, p := range params {
			if p == nil {
				continue
			}
			p.Name = NormalizeParameterName(p.Name)
			key := strings.ToLower(p.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			c.Parameters = append(c.Parameters, p)
		}
	}
}

// NewParameter builds a parameter whose kind follows typ, or the runtime
// type of value when typ is nil. Nil pointers bind as NULL.
func NewParameter(name string, value any, typ reflect.Type) *Parameter {
	if typ == nil && value != nil {
		typ = reflect.TypeOf(value)
	}
	if isNilValue(value) {
		value = nil
	}
	return &Parameter{Name: NormalizeParameterName(name), Value: value, Kind: KindOf(typ)}
}

// WithTx runs the command on tx, usually a *sql.Tx or bun.Tx.
func WithTx(tx Executor) CommandOption {
	return func(c *Command) { c.Tx = tx }
}

// WithRawText skips placeholder rendering, for scripts that use @variables
// of their own.
func WithRawText() CommandOption {
	return func(c *Command) { c.Raw = true }
}

// WithTimeout overrides the command timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) CommandOption {
	return func(c *Command) { c.Timeout = d }
}

// NormalizeParameterName strips one leading @, : or ? from name.
func NormalizeParameterName(name string) string {
	if name != "" && strings.ContainsRune("@:?", rune(name[0])) {
		return name[1:]
	}
	return name
}

// Parameter looks a parameter up by name, ignoring case and sigil.
func (c *Command) Parameter(name string) (*Parameter, bool) {
	name = NormalizeParameterName(name)
	for _, p := range c.Parameters {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

func (c *Command) HasParameter(name string) bool {
	_, ok := c.Parameter(name)
	return ok
}

// AddParameter appends a parameter without checking for duplicates.
func (c *Command) AddParameter(name string, value any, kind ParameterKind) *Parameter {
	p := &Parameter{Name: NormalizeParameterName(name), Value: value, Kind: kind}
	c.Parameters = append(c.Parameters, p)
	return p
}

// PlaceholderStyle is how a driver expects parameters in SQL text.
type PlaceholderStyle int

const (
	// PlaceholderNamed keeps @name and passes sql.NamedArg values.
	PlaceholderNamed PlaceholderStyle = iota
	// PlaceholderQuestion emits ? once per reference.
	PlaceholderQuestion
	// PlaceholderDollar emits $n, reusing n for repeated names.
	PlaceholderDollar
)

func (s PlaceholderStyle) String() string {
	switch s {
	case PlaceholderQuestion:
		return "question"
	case PlaceholderDollar:
		return "dollar"
	default:
		return "named"
	}
}

// Render rewrites @name and :name references into the given placeholder
// style and returns the driver arguments in placeholder order. Quoted text,
// comments, @@variables and :: casts are copied unchanged.
func (c *Command) Render(style PlaceholderStyle) (string, []any, error) {
	if c.Raw {
		return c.Text, nil, nil
	}
	text := c.Text
	var (
		sb     strings.Builder
		args   []any
		index  = map[*Parameter]int{}
		lookup = make(map[string]*Parameter, len(c.Parameters))
	)
	for _, p := range c.Parameters {
		key := strings.ToLower(p.Name)
		if _, ok := lookup[key]; !ok {
			lookup[key] = p
		}
	}
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		ch := text[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`' || ch == '[':
			j := skipQuoted(text, i)
			sb.WriteString(text[i:j])
			i = j
		case ch == '-' && strings.HasPrefix(text[i:], "--"):
			j := strings.IndexByte(text[i:], '\n')
			if j < 0 {
				j = len(text) - i
			}
			sb.WriteString(text[i : i+j])
			i += j
		case ch == '/' && strings.HasPrefix(text[i:], "/*"):
			j := strings.Index(text[i+2:], "*/")
			end := len(text)
			if j >= 0 {
				end = i + 2 + j + 2
			}
			sb.WriteString(text[i:end])
			i = end
		case ch == '@' || ch == ':':
			if i+1 < len(text) && text[i+1] == ch {
				sb.WriteString(text[i : i+2])
				i += 2
				continue
			}
			n := identLength(text[i+1:])
			if n == 0 {
				sb.WriteByte(ch)
				i++
				continue
			}
			name := text[i+1 : i+1+n]
			p, ok := lookup[strings.ToLower(name)]
			if !ok {
				if style == PlaceholderNamed || ch == ':' {
					sb.WriteString(text[i : i+1+n])
					i += 1 + n
					continue
				}
				return "", nil, fmt.Errorf("%w: no value bound for @%s", types.ErrArgument, name)
			}
			switch style {
			case PlaceholderQuestion:
				sb.WriteByte('?')
				args = append(args, p.DriverValue())
			case PlaceholderDollar:
				pos, seen := index[p]
				if !seen {
					args = append(args, p.DriverValue())
					pos = len(args)
					index[p] = pos
				}
				fmt.Fprintf(&sb, "$%d", pos)
			default:
				sb.WriteByte('@')
				sb.WriteString(p.Name)
				if _, seen := index[p]; !seen {
					args = append(args, sql.Named(p.Name, p.DriverValue()))
					index[p] = len(args)
				}
			}
			i += 1 + n
		default:
			sb.WriteByte(ch)
			i++
		}
	}
	return sb.String(), args, nil
}

// skipQuoted returns the index just past the quoted run starting at i.
// Doubled closing quotes are treated as escapes.
func skipQuoted(text string, i int) int {
	closing := text[i]
	if closing == '[' {
		closing = ']'
	}
	j := i + 1
	for j < len(text) {
		if text[j] == closing {
			if j+1 < len(text) && text[j+1] == closing {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(text)
}

// identLength measures a parameter name: a letter or underscore followed by
// letters, digits or underscores.
func identLength(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if r == '_' || unicode.IsLetter(r) || (n > 0 && unicode.IsDigit(r)) {
			n += size
			continue
		}
		break
	}
	return n
}
