package operator

import (
	"fmt"

	"github.com/roach88/dynq/internal/ir"
)

// Collect builds the canonical sequence value for desc from dynamic
// elements: []int64, []string or []bool for the scalar kinds and
// []ir.IRObject for rows. It is the inverse of Dynamic for types
// registered by NewRegistry and RegisterRow.
//
// A row element may be ir.IRNull, which collects as the zero row.
func Collect(desc *ir.TypeDesc, vals []ir.IRValue) (any, error) {
	if desc == nil {
		return nil, fmt.Errorf("collect: nil type descriptor")
	}
	switch desc.Kind {
	case ir.KindInt:
		return collect(desc, vals, func(v ir.IRValue) (int64, bool) {
			n, ok := v.(ir.IRInt)
			return int64(n), ok
		})
	case ir.KindString:
		return collect(desc, vals, func(v ir.IRValue) (string, bool) {
			s, ok := v.(ir.IRString)
			return string(s), ok
		})
	case ir.KindBool:
		return collect(desc, vals, func(v ir.IRValue) (bool, bool) {
			b, ok := v.(ir.IRBool)
			return bool(b), ok
		})
	case ir.KindObject:
		return collect(desc, vals, func(v ir.IRValue) (ir.IRObject, bool) {
			switch o := v.(type) {
			case ir.IRObject:
				return o, true
			case ir.IRNull:
				return nil, true
			}
			return nil, false
		})
	default:
		return nil, fmt.Errorf("collect %s: unsupported kind %q", desc.ID, desc.Kind)
	}
}

func collect[T any](desc *ir.TypeDesc, vals []ir.IRValue, conv func(ir.IRValue) (T, bool)) ([]T, error) {
	out := make([]T, 0, len(vals))
	for i, v := range vals {
		t, ok := conv(v)
		if !ok {
			return nil, fmt.Errorf("collect %s: element %d is %T, want %s", desc.ID, i, v, desc.Kind)
		}
		out = append(out, t)
	}
	return out, nil
}
