package operator

import (
	"errors"
	"fmt"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryexpr"
)

// UnknownTypeError is returned when no implementation is registered for
// an element type.
type UnknownTypeError struct {
	ID ir.TypeID
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no operators registered for element type %q", e.ID)
}

// UnknownOperatorError is returned when the registry has the element type
// but not the operator.
type UnknownOperatorError struct {
	Op queryexpr.Op
	ID ir.TypeID
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("operator %q is not defined for element type %q", e.Op, e.ID)
}

// DuplicateTypeError is returned when an element type ID is registered twice.
type DuplicateTypeError struct {
	ID ir.TypeID
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("element type %q is already registered", e.ID)
}

// ShapeError is returned when a value handed to the registry is not the
// Go type registered for the element type.
type ShapeError struct {
	ID   ir.TypeID
	Op   queryexpr.Op // empty outside Invoke
	Want string
	Got  any
}

func (e *ShapeError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s[%s]: expected %s, got %T", e.Op, e.ID, e.Want, e.Got)
	}
	return fmt.Sprintf("element type %q: expected %s, got %T", e.ID, e.Want, e.Got)
}

// IsUnknownType returns true if err is or wraps an *UnknownTypeError.
func IsUnknownType(err error) bool {
	var ute *UnknownTypeError
	return errors.As(err, &ute)
}
