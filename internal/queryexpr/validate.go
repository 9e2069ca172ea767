package queryexpr

import (
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

// ValidationResult lists the structural problems found in an expression.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each violation, root first.
	Problems []string
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Problems: r.Problems}
}

// ValidationError is returned by providers asked to run a malformed chain.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query expression: " + strings.Join(e.Problems, "; ")
}

// Validate checks that expr is a well-formed chain:
//  1. It ends in a Source with a name and element type
//  2. Every Call has a known operator and the right number of arguments
//  3. take and skip arguments are integers
//  4. Every Call is bound to the same element type as its predecessor
//  5. Terminal calls only appear at the top of the chain
//
// Validate is a pure function with no side effects.
func Validate(expr Expr) ValidationResult {
	v := &validator{problems: []string{}}
	v.validate(expr)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validate(expr Expr) {
	if expr == nil {
		v.addProblem("nil expression")
		return
	}

	depth := 0
	for e := expr; ; depth++ {
		switch n := e.(type) {
		case *Source:
			v.validateSource(n)
			return
		case *Call:
			if n == nil {
				v.addProblem("nil call node at depth %d", depth)
				return
			}
			v.validateCall(n, depth)
			if n.Prev == nil {
				v.addProblem("call at depth %d has no predecessor", depth)
				return
			}
			e = n.Prev
		default:
			v.addProblem("unknown expression type %T", e)
			return
		}
	}
}

func (v *validator) validateSource(s *Source) {
	if s == nil {
		v.addProblem("nil source node")
		return
	}
	if s.Name == "" {
		v.addProblem("source has no name")
	}
	if s.Type == nil {
		v.addProblem("source %q has no element type", s.Name)
	}
}

func (v *validator) validateCall(c *Call, depth int) {
	if c.Method == nil {
		v.addProblem("call at depth %d has no method", depth)
		return
	}
	op := c.Op()
	if !op.Known() {
		v.addProblem("unknown operator %q", op)
		return
	}
	if depth > 0 && op.Terminal() {
		v.addProblem("terminal operator %s cannot be composed further", op)
	}
	if len(c.Args) != op.Arity() {
		v.addProblem("%s expects %d argument(s), got %d", op, op.Arity(), len(c.Args))
	}
	for i, a := range c.Args {
		if _, ok := a.(ir.IRInt); !ok {
			v.addProblem("%s argument %d must be an integer, got %T", op, i, a)
		}
	}
	if c.Prev == nil {
		return
	}
	want := c.Method.ElementType()
	got := c.Prev.ElementType()
	if want == nil || got == nil || want.ID != got.ID {
		v.addProblem("%s bound to element type %s but input is %s", op, typeID(want), typeID(got))
	}
}
