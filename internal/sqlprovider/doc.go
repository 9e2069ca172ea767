// Package sqlprovider is a query provider backed by SQLite.
//
// Each source is a table. A row type maps to one column per field; a
// scalar type maps to a single "value" column. Every table also has an
// _ord INTEGER PRIMARY KEY assigned on insert, so element order is
// insertion order. Row fields may not be named _ord.
//
// # Compilation
//
// Expressions compile to nested subqueries over the source table, each
// carrying _ord:
//
//	source(nums:int).skip[int](1).take[int](1)
//
// becomes
//
//	SELECT * FROM (
//	  SELECT * FROM (
//	    SELECT _ord, "value" FROM "nums" ORDER BY _ord ASC
//	  ) ORDER BY _ord ASC LIMIT -1 OFFSET ?
//	) ORDER BY _ord ASC LIMIT ?
//
// with params [1, 1]. Every level orders by _ord explicitly, so results
// never depend on how SQLite flattens subqueries.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Tables created through Load are recorded in the dynq_tables catalog
// together with the descriptor's ir.TypeHash.
package sqlprovider
