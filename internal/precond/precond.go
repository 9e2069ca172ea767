// Package precond provides fluent argument assertions.
//
// Usage:
//
//	if err := precond.Assert(n, "count").IsInRange(func(n int64) bool { return n > 0 }, "must be greater than zero").Err(); err != nil {
//	    return nil, err
//	}
//
// The chain stops checking after the first violation, so Err always
// reports the earliest failed constraint.
package precond

import (
	"errors"
	"fmt"
	"reflect"
)

// PreconditionError reports an argument that violates a constraint.
// It is raised before any work is done, so retrying with a corrected
// argument is always safe.
type PreconditionError struct {
	// Argument is the parameter name.
	Argument string

	// Constraint describes the violated rule, e.g. "must not be null".
	Constraint string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: argument %q %s", e.Argument, e.Constraint)
}

// IsPreconditionError returns true if err is or wraps a *PreconditionError.
func IsPreconditionError(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// ConstraintNotNull is the constraint reported by IsNotNull.
const ConstraintNotNull = "must not be null"

// Assertion is one link of a fluent chain about a single argument.
type Assertion[T any] struct {
	value T
	name  string
	err   *PreconditionError
}

// Assert starts an assertion chain for the named argument.
func Assert[T any](value T, name string) *Assertion[T] {
	return &Assertion[T]{value: value, name: name}
}

// IsNotNull fails if the value is nil, including typed nil pointers,
// maps, slices, channels, funcs and interfaces.
func (a *Assertion[T]) IsNotNull() *Assertion[T] {
	if a.err != nil {
		return a
	}
	if isNil(a.value) {
		a.err = &PreconditionError{Argument: a.name, Constraint: ConstraintNotNull}
	}
	return a
}

// IsInRange fails if inRange returns false. constraint describes the
// accepted range, e.g. "must be greater than zero".
func (a *Assertion[T]) IsInRange(inRange func(T) bool, constraint string) *Assertion[T] {
	if a.err != nil {
		return a
	}
	if !inRange(a.value) {
		a.err = &PreconditionError{Argument: a.name, Constraint: constraint}
	}
	return a
}

// Err returns the first violation, or nil.
func (a *Assertion[T]) Err() error {
	if a.err == nil {
		return nil
	}
	return a.err
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
