package operator

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryexpr"
	"github.com/roach88/dynq/internal/seqops"
)

// Method is an operator bound to one element type. It implements
// queryexpr.Method so it can be placed directly into Call nodes.
type Method struct {
	op     queryexpr.Op
	typ    *ir.TypeDesc
	zero   any
	invoke func(src any, args []ir.IRValue) (any, error)
}

// Op implements queryexpr.Method.
func (m *Method) Op() queryexpr.Op { return m.op }

// ElementType implements queryexpr.Method.
func (m *Method) ElementType() *ir.TypeDesc { return m.typ }

// Shape returns what Invoke produces.
func (m *Method) Shape() queryexpr.Shape { return m.op.Shape() }

// Zero returns the element type's zero value in its registered Go type.
func (m *Method) Zero() any { return m.zero }

// Invoke runs the instantiated algorithm. src must be a []T of the
// registered Go type. Sequence operators return a new []T, any returns
// bool, count returns int64 and element operators return T.
//
// Cardinality violations are returned as seqops.ErrNoElements or
// seqops.ErrMoreThanOneElement, unwrapped.
func (m *Method) Invoke(src any, args []ir.IRValue) (any, error) {
	return m.invoke(src, args)
}

func (m *Method) String() string {
	return fmt.Sprintf("%s[%s]", m.op, m.typ.ID)
}

// binding holds everything registered for one element type.
type binding struct {
	desc      *ir.TypeDesc
	goType    string
	methods   map[queryexpr.Op]*Method
	accepts   func(rows any) bool
	enumerate func(seq any) (iter.Seq[any], bool)
	dynamic   func(v any) (ir.IRValue, bool)
}

// Registry maps element-type IDs to instantiated operator implementations.
type Registry struct {
	mu       sync.RWMutex
	bindings map[ir.TypeID]*binding
}

// NewEmptyRegistry creates a registry with no element types.
func NewEmptyRegistry() *Registry {
	return &Registry{bindings: make(map[ir.TypeID]*binding)}
}

// NewRegistry creates a registry with the built-in scalar types
// registered: ir.IntType as int64, ir.StringType as string and
// ir.BoolType as bool.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	MustRegister(r, ir.IntType, func(v int64) ir.IRValue { return ir.IRInt(v) })
	MustRegister(r, ir.StringType, func(v string) ir.IRValue { return ir.IRString(v) })
	MustRegister(r, ir.BoolType, func(v bool) ir.IRValue { return ir.IRBool(v) })
	return r
}

// Register instantiates every operator for T and stores them under
// desc.ID. toIR converts an element to its dynamic view; it receives the
// zero T for empty OrDefault results.
func Register[T any](r *Registry, desc *ir.TypeDesc, toIR func(T) ir.IRValue) error {
	if desc == nil {
		return fmt.Errorf("register: nil type descriptor")
	}
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if toIR == nil {
		return fmt.Errorf("register %s: nil dynamic converter", desc.ID)
	}

	b := &binding{
		desc:    desc,
		goType:  fmt.Sprintf("%T", []T(nil)),
		methods: instantiate[T](desc),
		accepts: func(rows any) bool {
			_, ok := rows.([]T)
			return ok
		},
		enumerate: func(seq any) (iter.Seq[any], bool) {
			s, ok := seq.([]T)
			if !ok {
				return nil, false
			}
			return func(yield func(any) bool) {
				for _, v := range s {
					if !yield(v) {
						return
					}
				}
			}, true
		},
		dynamic: func(v any) (ir.IRValue, bool) {
			t, ok := v.(T)
			if !ok {
				return nil, false
			}
			return toIR(t), true
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[desc.ID]; exists {
		return &DuplicateTypeError{ID: desc.ID}
	}
	r.bindings[desc.ID] = b
	return nil
}

// MustRegister is Register that panics on error. Intended for static
// registration in init functions and constructors.
func MustRegister[T any](r *Registry, desc *ir.TypeDesc, toIR func(T) ir.IRValue) {
	if err := Register(r, desc, toIR); err != nil {
		panic(err)
	}
}

// RegisterRow registers a row descriptor whose elements are ir.IRObject
// values. This is how element types discovered at runtime (schema files,
// SQL tables) become dispatchable.
func RegisterRow(r *Registry, desc *ir.TypeDesc) error {
	if desc != nil && desc.Kind != ir.KindObject {
		return fmt.Errorf("register row %s: kind is %s, want %s", desc.ID, desc.Kind, ir.KindObject)
	}
	return Register(r, desc, rowToIR)
}

func rowToIR(row ir.IRObject) ir.IRValue {
	if row == nil {
		return ir.IRNull{}
	}
	return row
}

// Resolve returns the implementation of op for the element type id.
func (r *Registry) Resolve(op queryexpr.Op, id ir.TypeID) (*Method, error) {
	b, err := r.binding(id)
	if err != nil {
		return nil, err
	}
	m, ok := b.methods[op]
	if !ok {
		return nil, &UnknownOperatorError{Op: op, ID: id}
	}
	return m, nil
}

// Lookup returns the registered descriptor for id.
func (r *Registry) Lookup(id ir.TypeID) (*ir.TypeDesc, bool) {
	b, err := r.binding(id)
	if err != nil {
		return nil, false
	}
	return b.desc, true
}

// Types returns every registered descriptor ordered by ID.
func (r *Registry) Types() []*ir.TypeDesc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ir.TypeDesc, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b.desc)
	}
	slices.SortFunc(out, func(a, b *ir.TypeDesc) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

// Accepts reports whether rows is a []T of the Go type registered for id.
func (r *Registry) Accepts(id ir.TypeID, rows any) bool {
	b, err := r.binding(id)
	if err != nil {
		return false
	}
	return b.accepts(rows)
}

// Enumerate yields the elements of a materialized sequence of type id.
func (r *Registry) Enumerate(id ir.TypeID, seq any) (iter.Seq[any], error) {
	b, err := r.binding(id)
	if err != nil {
		return nil, err
	}
	it, ok := b.enumerate(seq)
	if !ok {
		return nil, &ShapeError{ID: id, Want: b.goType, Got: seq}
	}
	return it, nil
}

// Dynamic converts an element of type id to its dynamic view.
func (r *Registry) Dynamic(id ir.TypeID, v any) (ir.IRValue, error) {
	b, err := r.binding(id)
	if err != nil {
		return nil, err
	}
	dv, ok := b.dynamic(v)
	if !ok {
		return nil, &ShapeError{ID: id, Want: strings.TrimPrefix(b.goType, "[]"), Got: v}
	}
	return dv, nil
}

func (r *Registry) binding(id ir.TypeID) (*binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[id]
	if !ok {
		return nil, &UnknownTypeError{ID: id}
	}
	return b, nil
}

// instantiate builds one Method per operator, each closing over the
// seqops algorithm instantiated for T.
func instantiate[T any](desc *ir.TypeDesc) map[queryexpr.Op]*Method {
	var zero T
	want := fmt.Sprintf("%T", []T(nil))

	input := func(op queryexpr.Op, src any) ([]T, error) {
		s, ok := src.([]T)
		if !ok {
			return nil, &ShapeError{ID: desc.ID, Op: op, Want: want, Got: src}
		}
		return s, nil
	}

	seq := func(op queryexpr.Op, fn func(src []T, args []ir.IRValue) ([]T, error)) *Method {
		return &Method{op: op, typ: desc, zero: zero, invoke: func(src any, args []ir.IRValue) (any, error) {
			s, err := input(op, src)
			if err != nil {
				return nil, err
			}
			return fn(s, args)
		}}
	}
	term := func(op queryexpr.Op, fn func(src []T) (any, error)) *Method {
		return &Method{op: op, typ: desc, zero: zero, invoke: func(src any, _ []ir.IRValue) (any, error) {
			s, err := input(op, src)
			if err != nil {
				return nil, err
			}
			return fn(s)
		}}
	}

	return map[queryexpr.Op]*Method{
		queryexpr.OpTake: seq(queryexpr.OpTake, func(s []T, args []ir.IRValue) ([]T, error) {
			n, err := countArg(queryexpr.OpTake, args)
			if err != nil {
				return nil, err
			}
			return seqops.Take(s, n), nil
		}),
		queryexpr.OpSkip: seq(queryexpr.OpSkip, func(s []T, args []ir.IRValue) ([]T, error) {
			n, err := countArg(queryexpr.OpSkip, args)
			if err != nil {
				return nil, err
			}
			return seqops.Skip(s, n), nil
		}),
		queryexpr.OpReverse: seq(queryexpr.OpReverse, func(s []T, _ []ir.IRValue) ([]T, error) {
			return seqops.Reverse(s), nil
		}),
		queryexpr.OpAny: term(queryexpr.OpAny, func(s []T) (any, error) {
			return seqops.Any(s), nil
		}),
		queryexpr.OpCount: term(queryexpr.OpCount, func(s []T) (any, error) {
			return seqops.Count(s), nil
		}),
		queryexpr.OpSingle: term(queryexpr.OpSingle, func(s []T) (any, error) {
			v, err := seqops.Single(s)
			if err != nil {
				return nil, err
			}
			return v, nil
		}),
		queryexpr.OpSingleOrDefault: term(queryexpr.OpSingleOrDefault, func(s []T) (any, error) {
			v, err := seqops.SingleOrDefault(s, zero)
			if err != nil {
				return nil, err
			}
			return v, nil
		}),
		queryexpr.OpFirst: term(queryexpr.OpFirst, func(s []T) (any, error) {
			v, err := seqops.First(s)
			if err != nil {
				return nil, err
			}
			return v, nil
		}),
		queryexpr.OpFirstOrDefault: term(queryexpr.OpFirstOrDefault, func(s []T) (any, error) {
			return seqops.FirstOrDefault(s, zero), nil
		}),
	}
}

func countArg(op queryexpr.Op, args []ir.IRValue) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s: expected 1 argument, got %d", op, len(args))
	}
	n, ok := args[0].(ir.IRInt)
	if !ok {
		return 0, fmt.Errorf("%s: count argument must be an integer, got %T", op, args[0])
	}
	return int64(n), nil
}
