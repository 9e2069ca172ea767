package sqlprovider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
	"github.com/roach88/dynq/internal/seqops"
)

// Execute implements query.Provider.
//
// Sequence expressions return the []T registered for the element type.
// Only descriptors registered with their canonical Go type are
// supported: int64, string and bool for scalars, ir.IRObject for rows.
// Cardinality violations come back as *query.ExecutionError.
func (p *Provider) Execute(ctx context.Context, expr queryexpr.Expr) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := queryexpr.Validate(expr).Err(); err != nil {
		return nil, err
	}

	st, err := p.compiler.Compile(expr)
	if err != nil {
		return nil, err
	}
	desc := expr.ElementType()

	switch st.Shape {
	case queryexpr.ShapeBool:
		var exists int64
		if err := p.db.QueryRowContext(ctx, st.SQL, st.Params...).Scan(&exists); err != nil {
			return nil, fmt.Errorf("execute any: %w", err)
		}
		return exists != 0, nil

	case queryexpr.ShapeInt:
		var n int64
		if err := p.db.QueryRowContext(ctx, st.SQL, st.Params...).Scan(&n); err != nil {
			return nil, fmt.Errorf("execute count: %w", err)
		}
		return n, nil

	case queryexpr.ShapeSequence:
		return p.fetch(ctx, st, desc)

	case queryexpr.ShapeElement:
		call := expr.(*queryexpr.Call)
		probe, err := p.fetch(ctx, st, desc)
		if err != nil {
			return nil, err
		}
		m, err := p.method(call)
		if err != nil {
			return nil, err
		}
		// The probe holds at most two rows; the instantiated algorithm
		// decides cardinality and supplies the zero value.
		v, err := m.Invoke(probe, nil)
		if err != nil {
			if errors.Is(err, seqops.ErrNoElements) || errors.Is(err, seqops.ErrMoreThanOneElement) {
				return nil, &query.ExecutionError{Op: call.Op(), Err: err}
			}
			return nil, fmt.Errorf("execute %s: %w", call.Op(), err)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("unsupported result shape %s", st.Shape)
	}
}

// fetch runs a row-returning statement and collects the typed slice.
func (p *Provider) fetch(ctx context.Context, st Statement, desc *ir.TypeDesc) (any, error) {
	rows, err := p.db.QueryContext(ctx, st.SQL, st.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	vals := []ir.IRValue{}
	for rows.Next() {
		v, err := scanElement(rows, desc)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	out, err := operator.Collect(desc, vals)
	if err != nil {
		return nil, err
	}
	if !p.reg.Accepts(desc.ID, out) {
		return nil, fmt.Errorf("element type %q is not registered with its canonical Go type %T", desc.ID, out)
	}
	return out, nil
}

func (p *Provider) method(c *queryexpr.Call) (*operator.Method, error) {
	if m, ok := c.Method.(*operator.Method); ok {
		return m, nil
	}
	return p.reg.Resolve(c.Op(), c.ElementType().ID)
}

// scanElement reads one (_ord, columns...) row into its dynamic view.
func scanElement(rows *sql.Rows, desc *ir.TypeDesc) (ir.IRValue, error) {
	cols := columns(desc)
	raw := make([]any, len(cols)+1)
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	if desc.Kind != ir.KindObject {
		v, err := columnValue(desc.Kind, raw[1])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", ScalarColumn, err)
		}
		if _, isNull := v.(ir.IRNull); isNull {
			return nil, fmt.Errorf("column %q: NULL in scalar sequence", ScalarColumn)
		}
		return v, nil
	}

	obj := make(ir.IRObject, len(desc.Fields))
	for i, f := range desc.Fields {
		v, err := columnValue(f.Kind, raw[i+1])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		obj[f.Name] = v
	}
	return obj, nil
}

// columnValue converts a driver value to the IRValue for kind.
// Floats are rejected: the IR has no floating-point type.
func columnValue(kind ir.Kind, raw any) (ir.IRValue, error) {
	switch v := raw.(type) {
	case nil:
		return ir.IRNull{}, nil
	case float64:
		return nil, fmt.Errorf("floating-point value %v is not supported", v)
	case int64:
		switch kind {
		case ir.KindInt:
			return ir.IRInt(v), nil
		case ir.KindBool:
			return ir.IRBool(v != 0), nil
		}
	case bool:
		if kind == ir.KindBool {
			return ir.IRBool(v), nil
		}
	case string:
		if kind == ir.KindString {
			return ir.IRString(v), nil
		}
	case []byte:
		if kind == ir.KindString {
			return ir.IRString(string(v)), nil
		}
	}
	return nil, fmt.Errorf("%T value does not match kind %s", raw, kind)
}
