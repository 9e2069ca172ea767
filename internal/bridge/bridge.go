// Package bridge implements the operator bridge: sequence operators over
// deferred query handles whose element type is known only at runtime.
//
// Every operation follows the same three steps:
//
//  1. Validate arguments (precond). Nothing is built if a check fails.
//  2. Resolve the operator's implementation for the handle's element-type
//     descriptor in the registry and compose a new Call node over the
//     handle's expression.
//  3. Sequence operators (Take, Skip, Reverse) return a new deferred
//     handle from the provider. Terminal operators hand the node to the
//     provider's Execute and return its result.
//
// Provider errors, including *query.ExecutionError for cardinality
// violations, are returned unmodified.
package bridge

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/precond"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
)

// Argument names reported in precondition errors.
const (
	ArgSource = "source"
	ArgCount  = "count"
)

// Bridge composes and executes operators on untyped handles.
// A Bridge holds no mutable state and is safe for concurrent use.
type Bridge struct {
	reg    *operator.Registry
	logger *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for debug tracing of composed and
// executed expressions. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a bridge that dispatches through reg.
func New(reg *operator.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		reg:    reg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry returns the dispatch table the bridge resolves operators from.
func (b *Bridge) Registry() *operator.Registry { return b.reg }

// Take returns a handle for the first n elements of h. n must be > 0.
func (b *Bridge) Take(h *query.Handle, n int64) (*query.Handle, error) {
	if err := checkHandle(h); err != nil {
		return nil, err
	}
	if err := precond.Assert(n, ArgCount).
		IsInRange(func(n int64) bool { return n > 0 }, "must be greater than zero").
		Err(); err != nil {
		return nil, err
	}
	return b.compose(h, queryexpr.OpTake, ir.IRInt(n))
}

// Skip returns a handle that bypasses the first n elements of h. n must
// be >= 0. Skip(h, 0) returns h itself.
func (b *Bridge) Skip(h *query.Handle, n int64) (*query.Handle, error) {
	if err := checkHandle(h); err != nil {
		return nil, err
	}
	if err := precond.Assert(n, ArgCount).
		IsInRange(func(n int64) bool { return n >= 0 }, "must not be negative").
		Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return h, nil
	}
	return b.compose(h, queryexpr.OpSkip, ir.IRInt(n))
}

// Reverse returns a handle for h's elements in reverse order.
func (b *Bridge) Reverse(h *query.Handle) (*query.Handle, error) {
	if err := checkHandle(h); err != nil {
		return nil, err
	}
	return b.compose(h, queryexpr.OpReverse)
}

// Any executes h and reports whether it has at least one element.
func (b *Bridge) Any(ctx context.Context, h *query.Handle) (bool, error) {
	v, err := b.execute(ctx, h, queryexpr.OpAny)
	if err != nil {
		return false, err
	}
	has, ok := v.(bool)
	if !ok {
		return false, resultShapeError(queryexpr.OpAny, "bool", v)
	}
	return has, nil
}

// Count executes h and returns its number of elements.
func (b *Bridge) Count(ctx context.Context, h *query.Handle) (int64, error) {
	v, err := b.execute(ctx, h, queryexpr.OpCount)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, resultShapeError(queryexpr.OpCount, "int64", v)
	}
	return n, nil
}

// Single executes h and returns its only element. The provider fails
// with *query.ExecutionError unless h has exactly one element.
func (b *Bridge) Single(ctx context.Context, h *query.Handle) (any, error) {
	return b.execute(ctx, h, queryexpr.OpSingle)
}

// SingleOrDefault is Single, except an empty h yields the element type's
// zero value. More than one element is still an error.
func (b *Bridge) SingleOrDefault(ctx context.Context, h *query.Handle) (any, error) {
	return b.execute(ctx, h, queryexpr.OpSingleOrDefault)
}

// First executes h and returns its first element. The provider fails with
// *query.ExecutionError when h is empty.
func (b *Bridge) First(ctx context.Context, h *query.Handle) (any, error) {
	return b.execute(ctx, h, queryexpr.OpFirst)
}

// FirstOrDefault is First, except an empty h yields the element type's
// zero value.
func (b *Bridge) FirstOrDefault(ctx context.Context, h *query.Handle) (any, error) {
	return b.execute(ctx, h, queryexpr.OpFirstOrDefault)
}

// SingleDynamic is Single with the result in its dynamic view.
func (b *Bridge) SingleDynamic(ctx context.Context, h *query.Handle) (ir.IRValue, error) {
	return b.dynamic(ctx, h, queryexpr.OpSingle)
}

// SingleOrDefaultDynamic is SingleOrDefault with the result in its dynamic view.
func (b *Bridge) SingleOrDefaultDynamic(ctx context.Context, h *query.Handle) (ir.IRValue, error) {
	return b.dynamic(ctx, h, queryexpr.OpSingleOrDefault)
}

// FirstDynamic is First with the result in its dynamic view.
func (b *Bridge) FirstDynamic(ctx context.Context, h *query.Handle) (ir.IRValue, error) {
	return b.dynamic(ctx, h, queryexpr.OpFirst)
}

// FirstOrDefaultDynamic is FirstOrDefault with the result in its dynamic view.
func (b *Bridge) FirstOrDefaultDynamic(ctx context.Context, h *query.Handle) (ir.IRValue, error) {
	return b.dynamic(ctx, h, queryexpr.OpFirstOrDefault)
}

// AsLazySequence returns a sequence over h's elements in their dynamic
// view. Nothing runs until the sequence is ranged over; each range
// executes h again, so restartability is whatever the provider gives.
// Errors (including a nil handle) are yielded once and end the sequence.
func (b *Bridge) AsLazySequence(ctx context.Context, h *query.Handle) iter.Seq2[ir.IRValue, error] {
	err := checkHandle(h)
	return func(yield func(ir.IRValue, error) bool) {
		if err != nil {
			yield(nil, err)
			return
		}
		id := h.ElementType().ID
		if b.logger.Enabled(ctx, slog.LevelDebug) {
			b.logger.DebugContext(ctx, "materializing sequence", "type", id, "expr", queryexpr.Format(h.Expression()))
		}

		seq, err := h.Provider().Execute(ctx, h.Expression())
		if err != nil {
			yield(nil, err)
			return
		}
		elems, err := b.reg.Enumerate(id, seq)
		if err != nil {
			yield(nil, err)
			return
		}
		for v := range elems {
			dv, err := b.reg.Dynamic(id, v)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(dv, nil) {
				return
			}
		}
	}
}

// ToSlice drains AsLazySequence into a slice.
func (b *Bridge) ToSlice(ctx context.Context, h *query.Handle) ([]ir.IRValue, error) {
	out := []ir.IRValue{}
	for v, err := range b.AsLazySequence(ctx, h) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// compose resolves op for h's element type and asks the provider for a
// new handle over the new node.
func (b *Bridge) compose(h *query.Handle, op queryexpr.Op, args ...ir.IRValue) (*query.Handle, error) {
	call, err := b.bind(h, op, args...)
	if err != nil {
		return nil, err
	}
	b.trace(context.Background(), "composed", op, call)
	return h.Provider().CreateDeferred(call, h.ElementType()), nil
}

// execute composes a terminal node and runs it.
func (b *Bridge) execute(ctx context.Context, h *query.Handle, op queryexpr.Op) (any, error) {
	if err := checkHandle(h); err != nil {
		return nil, err
	}
	call, err := b.bind(h, op)
	if err != nil {
		return nil, err
	}
	b.trace(ctx, "executing", op, call)
	return h.Provider().Execute(ctx, call)
}

// trace logs call at debug level. Formatting walks the whole chain, so it
// only happens when the record will be emitted; composition stays O(1).
func (b *Bridge) trace(ctx context.Context, msg string, op queryexpr.Op, call *queryexpr.Call) {
	if !b.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	b.logger.DebugContext(ctx, msg, "op", op, "type", call.ElementType().ID, "expr", queryexpr.Format(call))
}

func (b *Bridge) dynamic(ctx context.Context, h *query.Handle, op queryexpr.Op) (ir.IRValue, error) {
	v, err := b.execute(ctx, h, op)
	if err != nil {
		return nil, err
	}
	return b.reg.Dynamic(h.ElementType().ID, v)
}

func (b *Bridge) bind(h *query.Handle, op queryexpr.Op, args ...ir.IRValue) (*queryexpr.Call, error) {
	m, err := b.reg.Resolve(op, h.ElementType().ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return queryexpr.NewCall(m, h.Expression(), args...), nil
}

func checkHandle(h *query.Handle) error {
	return precond.Assert(h, ArgSource).
		IsNotNull().
		IsInRange(func(h *query.Handle) bool {
			return h.ElementType() != nil && h.Expression() != nil && h.Provider() != nil
		}, "must carry a provider, an expression and an element type").
		Err()
}

func resultShapeError(op queryexpr.Op, want string, got any) error {
	return fmt.Errorf("%s: provider returned %T, want %s", op, got, want)
}
