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

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrArgument reports a missing or malformed required argument.
	ErrArgument = errors.New("invalid argument")
	// ErrTranslation reports a predicate or selector that cannot be turned into SQL.
	ErrTranslation = errors.New("unsupported expression")
	// ErrCapacity reports a batch larger than the statement ceiling.
	ErrCapacity = errors.New("batch capacity exceeded")
	// ErrMaterialization reports a row value that cannot be assigned to its target.
	ErrMaterialization = errors.New("materialization failed")
)

// NewArgumentError reports that the named argument is nil or empty.
func NewArgumentError(name string) error {
	return fmt.Errorf("%w: %s must not be nil", ErrArgument, name)
}

// TranslationError names the construct the translator rejected.
type TranslationError struct {
	Construct string
	Reason    string
}

func (e *TranslationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", ErrTranslation, e.Construct)
	}
	return fmt.Sprintf("%s: %s: %s", ErrTranslation, e.Construct, e.Reason)
}

func (e *TranslationError) Unwrap() error { return ErrTranslation }

// CapacityError is returned when a batch exceeds Limit entities.
type CapacityError struct {
	Count int
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d entities, limit is %d", ErrCapacity, e.Count, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// MaterializationError describes a column value that could not be assigned.
type MaterializationError struct {
	Column string
	Field  string
	Target reflect.Type
	Err    error
}

func (e *MaterializationError) Error() string {
	target := "<nil>"
	if e.Target != nil {
		target = e.Target.String()
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: column %q into %s (%s): %v", ErrMaterialization, e.Column, e.Field, target, e.Err)
	}
	return fmt.Sprintf("%s: column %q into %s: %v", ErrMaterialization, e.Column, target, e.Err)
}

func (e *MaterializationError) Unwrap() []error { return []error{ErrMaterialization, e.Err} }
