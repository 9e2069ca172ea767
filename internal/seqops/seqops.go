// Package seqops holds the generic sequence algorithms that the operator
// registry instantiates once per registered element type.
//
// Every function is pure: inputs are never modified and sequence results
// never alias the input slice.
package seqops

import (
	"errors"
	"slices"
)

var (
	// ErrNoElements is returned by Single and First on an empty sequence.
	ErrNoElements = errors.New("sequence contains no elements")

	// ErrMoreThanOneElement is returned by Single and SingleOrDefault when
	// the sequence holds more than one element.
	ErrMoreThanOneElement = errors.New("sequence contains more than one element")
)

// Take returns the first n elements of src (all of src if it is shorter).
func Take[T any](src []T, n int64) []T {
	if n <= 0 {
		return []T{}
	}
	if n > int64(len(src)) {
		n = int64(len(src))
	}
	out := make([]T, n)
	copy(out, src[:n])
	return out
}

// Skip returns src without its first n elements.
func Skip[T any](src []T, n int64) []T {
	if n <= 0 {
		n = 0
	}
	if n >= int64(len(src)) {
		return []T{}
	}
	out := make([]T, int64(len(src))-n)
	copy(out, src[n:])
	return out
}

// Reverse returns a reversed copy of src.
func Reverse[T any](src []T) []T {
	out := append(make([]T, 0, len(src)), src...)
	slices.Reverse(out)
	return out
}

// Any reports whether src has at least one element.
func Any[T any](src []T) bool {
	return len(src) > 0
}

// Count returns the number of elements in src.
func Count[T any](src []T) int64 {
	return int64(len(src))
}

// First returns the first element of src.
func First[T any](src []T) (T, error) {
	if len(src) == 0 {
		var zero T
		return zero, ErrNoElements
	}
	return src[0], nil
}

// FirstOrDefault returns the first element of src, or zero when src is empty.
func FirstOrDefault[T any](src []T, zero T) T {
	if len(src) == 0 {
		return zero
	}
	return src[0]
}

// Single returns the only element of src.
func Single[T any](src []T) (T, error) {
	var zero T
	switch len(src) {
	case 0:
		return zero, ErrNoElements
	case 1:
		return src[0], nil
	default:
		return zero, ErrMoreThanOneElement
	}
}

// SingleOrDefault returns the only element of src, or zero when src is
// empty. More than one element is still an error.
func SingleOrDefault[T any](src []T, zero T) (T, error) {
	switch len(src) {
	case 0:
		return zero, nil
	case 1:
		return src[0], nil
	default:
		return zero, ErrMoreThanOneElement
	}
}
