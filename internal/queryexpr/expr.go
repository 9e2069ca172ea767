package queryexpr

import (
	"strconv"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

// Op names an operator.
type Op string

const (
	OpTake            Op = "take"
	OpSkip            Op = "skip"
	OpReverse         Op = "reverse"
	OpAny             Op = "any"
	OpCount           Op = "count"
	OpSingle          Op = "single"
	OpSingleOrDefault Op = "singleOrDefault"
	OpFirst           Op = "first"
	OpFirstOrDefault  Op = "firstOrDefault"
)

// Shape is what executing a Call produces.
type Shape int

const (
	ShapeSequence Shape = iota // a new sequence of the same element type
	ShapeBool                  // bool
	ShapeInt                   // int64
	ShapeElement               // one element (or the element type's zero value)
)

func (s Shape) String() string {
	switch s {
	case ShapeSequence:
		return "sequence"
	case ShapeBool:
		return "bool"
	case ShapeInt:
		return "int"
	case ShapeElement:
		return "element"
	default:
		return "unknown"
	}
}

type opInfo struct {
	shape Shape
	arity int
}

var ops = map[Op]opInfo{
	OpTake:            {ShapeSequence, 1},
	OpSkip:            {ShapeSequence, 1},
	OpReverse:         {ShapeSequence, 0},
	OpAny:             {ShapeBool, 0},
	OpCount:           {ShapeInt, 0},
	OpSingle:          {ShapeElement, 0},
	OpSingleOrDefault: {ShapeElement, 0},
	OpFirst:           {ShapeElement, 0},
	OpFirstOrDefault:  {ShapeElement, 0},
}

// Ops returns every known operator in a stable order.
func Ops() []Op {
	return []Op{
		OpTake, OpSkip, OpReverse,
		OpAny, OpCount,
		OpSingle, OpSingleOrDefault, OpFirst, OpFirstOrDefault,
	}
}

// Known reports whether o is a defined operator.
func (o Op) Known() bool {
	_, ok := ops[o]
	return ok
}

// Shape returns what the operator produces.
func (o Op) Shape() Shape {
	return ops[o].shape
}

// Arity returns the number of literal arguments the operator takes.
func (o Op) Arity() int {
	return ops[o].arity
}

// Terminal reports whether the operator executes to a value.
func (o Op) Terminal() bool {
	info, ok := ops[o]
	return ok && info.shape != ShapeSequence
}

// Method identifies the algorithm a Call node invokes: an operator name
// bound to the element type its generic implementation was instantiated
// for. The operator registry supplies concrete implementations.
type Method interface {
	Op() Op
	ElementType() *ir.TypeDesc
}

// Expr is a node of a query expression chain.
//
// This is a sealed interface - only *Source and *Call implement it.
// Nodes must not be modified once constructed.
type Expr interface {
	exprNode() // Marker method - seals interface to this package

	// ElementType is the element type of the sequence this node denotes.
	// For terminal calls it is the element type of the input sequence.
	ElementType() *ir.TypeDesc
}

// Source is the root of a chain.
type Source struct {
	Name string       // Data source name (table, in-memory source)
	Type *ir.TypeDesc // Element type of the source rows
}

func (*Source) exprNode() {}

// ElementType implements Expr.
func (s *Source) ElementType() *ir.TypeDesc {
	if s == nil {
		return nil
	}
	return s.Type
}

// Call is one pipeline step.
//
// Semantics:
//
//	Method(Prev, Args...)
//
// Args holds literal arguments only; take and skip carry their count as
// ir.IRInt.
type Call struct {
	Method Method
	Prev   Expr
	Args   []ir.IRValue
}

func (*Call) exprNode() {}

// ElementType implements Expr.
func (c *Call) ElementType() *ir.TypeDesc {
	if c == nil || c.Method == nil {
		return nil
	}
	return c.Method.ElementType()
}

// Op is shorthand for c.Method.Op().
func (c *Call) Op() Op { return c.Method.Op() }

// NewSource creates a root node.
func NewSource(name string, typ *ir.TypeDesc) *Source {
	return &Source{Name: name, Type: typ}
}

// NewCall creates a Call node over prev. The args slice is copied so the
// node stays immutable even if the caller reuses its slice.
func NewCall(m Method, prev Expr, args ...ir.IRValue) *Call {
	var copied []ir.IRValue
	if len(args) > 0 {
		copied = make([]ir.IRValue, len(args))
		copy(copied, args)
	}
	return &Call{Method: m, Prev: prev, Args: copied}
}

// Chain returns the nodes of expr root first. It stops at a nil Prev.
func Chain(expr Expr) []Expr {
	var rev []Expr
	for e := expr; e != nil; {
		rev = append(rev, e)
		c, ok := e.(*Call)
		if !ok || c == nil {
			break
		}
		e = c.Prev
	}
	out := make([]Expr, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}

// Root returns the Source at the bottom of expr, or nil.
func Root(expr Expr) *Source {
	chain := Chain(expr)
	if len(chain) == 0 {
		return nil
	}
	src, _ := chain[0].(*Source)
	return src
}

// Format renders expr as a deterministic single line, e.g.
//
//	source(nums:int).skip[int](1).take[int](1)
func Format(expr Expr) string {
	var b strings.Builder
	for i, e := range Chain(expr) {
		switch n := e.(type) {
		case *Source:
			b.WriteString("source(")
			b.WriteString(n.Name)
			b.WriteByte(':')
			b.WriteString(typeID(n.Type))
			b.WriteByte(')')
		case *Call:
			if i > 0 {
				b.WriteByte('.')
			}
			if n.Method == nil {
				b.WriteString("<nil method>")
				continue
			}
			b.WriteString(string(n.Op()))
			b.WriteByte('[')
			b.WriteString(typeID(n.Method.ElementType()))
			b.WriteString("](")
			for j, a := range n.Args {
				if j > 0 {
					b.WriteByte(',')
				}
				b.WriteString(formatArg(a))
			}
			b.WriteByte(')')
		}
	}
	return b.String()
}

func typeID(t *ir.TypeDesc) string {
	if t == nil {
		return "?"
	}
	return string(t.ID)
}

func formatArg(v ir.IRValue) string {
	switch a := v.(type) {
	case ir.IRInt:
		return strconv.FormatInt(int64(a), 10)
	case ir.IRString:
		return strconv.Quote(string(a))
	case ir.IRBool:
		return strconv.FormatBool(bool(a))
	default:
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			return "?"
		}
		return string(data)
	}
}

// Fingerprint returns a content hash of expr. Structurally equal chains
// built independently produce the same fingerprint.
func Fingerprint(expr Expr) (string, error) {
	chain := Chain(expr)
	steps := make(ir.IRArray, 0, len(chain))
	for _, e := range chain {
		switch n := e.(type) {
		case *Source:
			steps = append(steps, ir.IRObject{
				"source": ir.IRString(n.Name),
				"type":   ir.IRString(typeID(n.Type)),
			})
		case *Call:
			args := make(ir.IRArray, len(n.Args))
			copy(args, n.Args)
			step := ir.IRObject{"args": args}
			if n.Method != nil {
				step["op"] = ir.IRString(string(n.Op()))
				step["type"] = ir.IRString(typeID(n.Method.ElementType()))
			}
			steps = append(steps, step)
		}
	}
	return ir.Hash(ir.DomainExpression, steps)
}
