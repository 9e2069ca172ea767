// Package query defines deferred query handles and the provider contract
// they are executed through.
//
// A Handle is the triple {provider, root expression, element type}. It
// carries no compile-time element type, which is what lets the operator
// bridge compose and execute queries whose row shape was decided at
// runtime. Handles are immutable and have no teardown; drop the
// reference when done.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryexpr"
)

// Provider is the execution engine behind handles.
//
// CreateDeferred wraps an expression in a new handle without running
// anything. Execute runs an expression and returns its materialized
// result: for a sequence expression the provider's sequence value (the
// []T registered for the element type), for a terminal expression a
// bool, an int64 or a single element.
//
// Execute may block on I/O. Cancellation and timeouts are the provider's
// concern and flow through ctx.
type Provider interface {
	CreateDeferred(expr queryexpr.Expr, elem *ir.TypeDesc) *Handle
	Execute(ctx context.Context, expr queryexpr.Expr) (any, error)
}

// Handle is a deferred, composable query.
type Handle struct {
	provider Provider
	expr     queryexpr.Expr
	elem     *ir.TypeDesc
}

// NewHandle creates a handle. Providers call this from CreateDeferred.
func NewHandle(p Provider, expr queryexpr.Expr, elem *ir.TypeDesc) *Handle {
	return &Handle{provider: p, expr: expr, elem: elem}
}

// Provider returns the provider that executes this handle.
func (h *Handle) Provider() Provider { return h.provider }

// Expression returns the root of the handle's expression chain.
func (h *Handle) Expression() queryexpr.Expr { return h.expr }

// ElementType returns the handle's element-type descriptor.
func (h *Handle) ElementType() *ir.TypeDesc { return h.elem }

// String renders the handle's expression.
func (h *Handle) String() string {
	if h == nil {
		return "<nil handle>"
	}
	return queryexpr.Format(h.expr)
}

// ExecutionError is returned by providers when a terminal operator's
// cardinality contract is violated (single on zero or several elements,
// first on zero elements). Err is seqops.ErrNoElements or
// seqops.ErrMoreThanOneElement.
type ExecutionError struct {
	Op  queryexpr.Op
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionError returns true if err is or wraps an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
