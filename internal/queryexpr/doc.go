// Package queryexpr provides the immutable query expression tree that
// deferred query handles carry.
//
// ARCHITECTURE:
//
// An expression is a singly linked chain of nodes, root first:
//
//	Source(nums:int) <- Call skip[int](1) <- Call take[int](1)
//
// Every Call node points at its predecessor through Prev. Composing an
// operator never touches existing nodes; it allocates one new Call whose
// Prev is the old root. Two handles composed from the same parent
// therefore share the parent's nodes, and concurrent composition needs no
// locking.
//
// NODE TYPES:
//
//   - Source: root of a chain. Names a data source and its element type.
//   - Call: one operator step. Holds the Method it calls (operator name
//     plus the element type the generic algorithm was instantiated for)
//     and the literal arguments.
//
// SEALED INTERFACE:
//
// Expr is sealed with a marker method, so providers can switch
// exhaustively:
//
//	switch e := expr.(type) {
//	case *Source:
//	    // load rows
//	case *Call:
//	    // apply e.Method to the result of e.Prev
//	}
//
// TERMINAL OPERATORS:
//
// any, count, single, singleOrDefault, first and firstOrDefault produce a
// value rather than a sequence. A terminal Call may be executed but must
// never be the Prev of another Call; Validate reports that.
package queryexpr
