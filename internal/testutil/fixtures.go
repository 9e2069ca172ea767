package testutil

import "github.com/roach88/dynq/internal/ir"

// PersonType is the row type used across provider and bridge tests.
var PersonType = ir.NewRowType("Person",
	ir.Field{Name: "name", Kind: ir.KindString},
	ir.Field{Name: "age", Kind: ir.KindInt},
	ir.Field{Name: "active", Kind: ir.KindBool},
)

// Person builds a fully populated PersonType row.
func Person(name string, age int64, active bool) ir.IRObject {
	return ir.O("name", ir.IRString(name), "age", ir.IRInt(age), "active", ir.IRBool(active))
}

// Ints returns the dynamic view of a sequence of ints.
func Ints(vs ...int64) []ir.IRValue {
	out := make([]ir.IRValue, len(vs))
	for i, v := range vs {
		out[i] = ir.IRInt(v)
	}
	return out
}
