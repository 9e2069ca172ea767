// Package operator is the type-descriptor-keyed dispatch table behind the
// operator bridge.
//
// The bridge only ever holds an element-type descriptor (ir.TypeDesc),
// never a compile-time Go type. Register[T] closes that gap: at
// registration time it instantiates every generic algorithm in
// internal/seqops for T and stores the resulting closures under the
// descriptor's ID. Resolve later hands back a *Method, which is both the
// symbolic operator reference placed in an expression node and the
// callable implementation an in-memory provider runs.
//
// Registration is static and append-only: register every element type
// before handles of that type are built. A Registry is safe for
// concurrent use.
//
//	reg := operator.NewRegistry() // int, string, bool pre-registered
//	operator.MustRegister(reg, orderType, func(o Order) ir.IRValue { ... })
//	m, err := reg.Resolve(queryexpr.OpTake, orderType.ID)
package operator
