package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

// Assertion types reported in AssertionError.Type.
const (
	AssertValue       = "value"
	AssertTraceParity = "trace_parity"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace for debugging context, may be nil
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", formatEvent(ev))
		}
	}

	return buf.String()
}

// compareValues compares two dynamic values by their canonical JSON.
// It returns a failure message, or "" when they are equal.
func compareValues(want, got ir.IRValue) (string, error) {
	wantJSON, err := ir.MarshalCanonical(want)
	if err != nil {
		return "", fmt.Errorf("encode expected value: %w", err)
	}
	gotJSON, err := ir.MarshalCanonical(got)
	if err != nil {
		return "", fmt.Errorf("encode actual value: %w", err)
	}
	if bytes.Equal(wantJSON, gotJSON) {
		return "", nil
	}
	return fmt.Sprintf("expected %s, got %s", wantJSON, gotJSON), nil
}

// compareTraces requires two providers' traces to be identical event by
// event.
func compareTraces(baseName string, base []TraceEvent, name string, trace []TraceEvent) error {
	if len(base) != len(trace) {
		return &AssertionError{
			Type:     AssertTraceParity,
			Expected: fmt.Sprintf("%d events (as %s)", len(base), baseName),
			Actual:   fmt.Sprintf("%d events from %s", len(trace), name),
			Trace:    trace,
		}
	}
	for i := range base {
		a, b := formatEvent(base[i]), formatEvent(trace[i])
		if a != b {
			return &AssertionError{
				Type:     AssertTraceParity,
				Expected: fmt.Sprintf("%s: %s", baseName, a),
				Actual:   fmt.Sprintf("%s: %s", name, b),
			}
		}
	}
	return nil
}

// formatEvent renders a trace event on one line.
func formatEvent(ev TraceEvent) string {
	s := fmt.Sprintf("[%d] %s %s %s", ev.Seq, ev.Kind, ev.Op, ev.Expr)
	if ev.Error != "" {
		return s + " error=" + ev.Error
	}
	if ev.Result != nil {
		return s + " => " + render(ev.Result)
	}
	return s
}

// render returns the canonical JSON of v, or a Go rendering if v cannot
// be encoded.
func render(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
