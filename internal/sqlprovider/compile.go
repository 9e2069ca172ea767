package sqlprovider

import (
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/queryexpr"
)

// OrdColumn is the INTEGER PRIMARY KEY every provider table is created
// with. It records insertion order, is carried through every subquery,
// and all ordering is expressed against it. Row fields may not use the
// name.
const OrdColumn = "_ord"

// Statement is a compiled expression.
type Statement struct {
	// SQL is the parameterized query text.
	SQL string

	// Params holds the values for each ? placeholder, in order.
	Params []any

	// Shape is what executing the statement produces. Sequence and
	// element statements return rows of (_ord, columns...); bool and int
	// statements return a single scalar.
	Shape queryexpr.Shape

	// Descending is true when the sequence order is reversed relative to
	// the source table.
	Descending bool

	// Columns are the element columns following _ord.
	Columns []string
}

// Compiler compiles expression chains to parameterized SQL for SQLite.
//
// Every sequence query carries ORDER BY _ord so results are deterministic
// regardless of how SQLite plans subqueries. All counts are parameterized,
// never interpolated. Identifiers are validated before they are quoted.
type Compiler struct{}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile converts an expression chain to a Statement.
//
// The root source compiles to
//
//	SELECT _ord, <cols> FROM <table> ORDER BY _ord ASC
//
// and each sequence step wraps the previous statement as a subquery.
// reverse flips the direction; take and skip add LIMIT/OFFSET in the
// current direction. Terminals compile to COUNT(*), EXISTS, or a
// LIMIT 1 (first) / LIMIT 2 (single) probe whose cardinality is checked
// after scanning.
func (c *Compiler) Compile(expr queryexpr.Expr) (Statement, error) {
	if expr == nil {
		return Statement{}, fmt.Errorf("cannot compile nil expression")
	}

	var st Statement
	for _, e := range queryexpr.Chain(expr) {
		switch n := e.(type) {
		case *queryexpr.Source:
			root, err := c.compileSource(n)
			if err != nil {
				return Statement{}, err
			}
			st = root
		case *queryexpr.Call:
			next, err := c.compileCall(st, n)
			if err != nil {
				return Statement{}, fmt.Errorf("compile %s: %w", n.Op(), err)
			}
			st = next
		default:
			return Statement{}, fmt.Errorf("unsupported expression type: %T", e)
		}
	}
	return st, nil
}

func (c *Compiler) compileSource(s *queryexpr.Source) (Statement, error) {
	if !identRe.MatchString(s.Name) {
		return Statement{}, fmt.Errorf("invalid table name %q", s.Name)
	}
	if s.Type == nil {
		return Statement{}, fmt.Errorf("source %q has no element type", s.Name)
	}
	cols := columns(s.Type)
	for _, col := range cols {
		if !identRe.MatchString(col) {
			return Statement{}, fmt.Errorf("invalid column name %q", col)
		}
		if isOrdColumn(col) {
			return Statement{}, fmt.Errorf("column name %q is reserved", col)
		}
	}

	sql := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s",
		OrdColumn,
		strings.Join(quoteAll(cols), ", "),
		quoteIdent(s.Name),
		orderBy(false))

	return Statement{
		SQL:     sql,
		Params:  []any{},
		Shape:   queryexpr.ShapeSequence,
		Columns: cols,
	}, nil
}

func (c *Compiler) compileCall(prev Statement, call *queryexpr.Call) (Statement, error) {
	if prev.Shape != queryexpr.ShapeSequence {
		return Statement{}, fmt.Errorf("input is %s, want sequence", prev.Shape)
	}
	op := call.Op()

	next := Statement{
		Params:     append([]any{}, prev.Params...),
		Shape:      op.Shape(),
		Descending: prev.Descending,
		Columns:    prev.Columns,
	}

	switch op {
	case queryexpr.OpTake, queryexpr.OpSkip:
		n, err := countParam(call)
		if err != nil {
			return Statement{}, err
		}
		limit := "LIMIT ?"
		if op == queryexpr.OpSkip {
			limit = "LIMIT -1 OFFSET ?"
		}
		next.SQL = fmt.Sprintf("SELECT * FROM (%s) ORDER BY %s %s", prev.SQL, orderBy(prev.Descending), limit)
		next.Params = append(next.Params, n)

	case queryexpr.OpReverse:
		next.Descending = !prev.Descending
		next.SQL = fmt.Sprintf("SELECT * FROM (%s) ORDER BY %s", prev.SQL, orderBy(next.Descending))

	case queryexpr.OpCount:
		next.SQL = fmt.Sprintf("SELECT COUNT(*) FROM (%s)", prev.SQL)

	case queryexpr.OpAny:
		next.SQL = fmt.Sprintf("SELECT EXISTS (%s)", prev.SQL)

	case queryexpr.OpFirst, queryexpr.OpFirstOrDefault:
		next.SQL = fmt.Sprintf("SELECT * FROM (%s) ORDER BY %s LIMIT 1", prev.SQL, orderBy(prev.Descending))

	case queryexpr.OpSingle, queryexpr.OpSingleOrDefault:
		// Two rows are enough to tell "one" from "more than one".
		next.SQL = fmt.Sprintf("SELECT * FROM (%s) ORDER BY %s LIMIT 2", prev.SQL, orderBy(prev.Descending))

	default:
		return Statement{}, fmt.Errorf("unsupported operator %q", op)
	}

	return next, nil
}

// orderBy returns the ORDER BY key for the given direction.
// COLLATE is unnecessary: _ord is always an integer.
func orderBy(descending bool) string {
	if descending {
		return OrdColumn + " DESC"
	}
	return OrdColumn + " ASC"
}

func countParam(call *queryexpr.Call) (int64, error) {
	if len(call.Args) != 1 {
		return 0, fmt.Errorf("expects 1 argument, got %d", len(call.Args))
	}
	n, ok := call.Args[0].(ir.IRInt)
	if !ok {
		return 0, fmt.Errorf("argument must be an integer, got %T", call.Args[0])
	}
	return int64(n), nil
}
