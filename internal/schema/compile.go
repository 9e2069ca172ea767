// Package schema loads row-type descriptors from CUE.
//
// A schema file declares row types under the top-level "row" struct:
//
//	row: Person: {
//		name: string
//		age:  int
//		active: bool
//	}
//
// Field order is declaration order and becomes column order in the SQL
// provider. Only int, string and bool fields are allowed. Floats are
// forbidden since the IR has no floating-point type.
package schema

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dynq/internal/ir"
)

// ReservedField is the column the SQL provider keeps insertion order in.
// No row field may take its name, in any case.
const ReservedField = "_ord"

// CompileRowType parses a CUE struct into a row descriptor. The type ID is
// the struct's label:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`row: Person: { name: string }`)
//	desc, err := CompileRowType(v.LookupPath(cue.ParsePath("row.Person")))
func CompileRowType(v cue.Value) (*ir.TypeDesc, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}
	if name == "" {
		return nil, &CompileError{Field: "row", Message: "row type has no name", Pos: v.Pos()}
	}

	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   "row." + name,
			Message: fmt.Sprintf("row type must be a struct, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []ir.Field
	for iter.Next() {
		if strings.EqualFold(iter.Label(), ReservedField) {
			return nil, &CompileError{
				Field:   "row." + name + "." + iter.Label(),
				Message: fmt.Sprintf("field name %q is reserved for sequence order", iter.Label()),
				Pos:     iter.Value().Pos(),
			}
		}
		kind, err := extractKind(iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, ir.Field{Name: iter.Label(), Kind: kind})
	}
	if len(fields) == 0 {
		return nil, &CompileError{
			Field:   "row." + name,
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}

	desc := ir.NewRowType(ir.TypeID(name), fields...)
	if err := desc.Validate(); err != nil {
		return nil, &CompileError{Field: "row." + name, Message: err.Error(), Pos: v.Pos()}
	}
	return desc, nil
}

// extractKind converts a CUE field type to a field kind.
func extractKind(v cue.Value) (ir.Kind, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.KindString, nil
	case cue.IntKind:
		return ir.KindInt, nil
	case cue.BoolKind:
		return ir.KindBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported field kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info wins
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
