package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/dynq/internal/bridge"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/memprovider"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/precond"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
	"github.com/roach88/dynq/internal/schema"
	"github.com/roach88/dynq/internal/sqlprovider"
)

// Error kind recorded in the trace for errors that are neither
// precondition nor execution errors.
const ErrorOther = "other"

// opAsLazySequence is the trace op of the materialization event.
const opAsLazySequence = "asLazySequence"

// harness holds per-provider state for one scenario run.
type harness struct {
	scenario *Scenario
	bridge   *bridge.Bridge
	desc     *ir.TypeDesc
	source   *query.Handle
	close    func() error
}

// Run executes a scenario against each of its providers and returns the
// result.
//
// Each provider gets a fresh registry and a fresh backing store, so runs
// are isolated. Failed expectations are reported in Result.Errors; the
// returned error is reserved for scenarios that cannot be set up (bad
// schema, unknown type, rows the provider refuses).
//
// Execution flow:
//  1. Register the schema row types and resolve the element type
//  2. Load the rows into the provider
//  3. Compose the steps through the bridge
//  4. Materialize the sequence and run the terminal checks concurrently
//  5. Compare every provider's trace with the first one
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario == nil {
		return nil, fmt.Errorf("nil scenario")
	}
	result := NewResult(scenario.Name)

	providers := scenario.Providers
	if len(providers) == 0 {
		providers = DefaultProviders
	}

	for i, name := range providers {
		h, err := setup(ctx, scenario, name)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %s: %w", scenario.Name, name, err)
		}
		trace, failures, err := h.run(ctx)
		closeErr := h.close()
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %s: %w", scenario.Name, name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("scenario %s: %s: close: %w", scenario.Name, name, closeErr)
		}

		result.Providers = append(result.Providers, name)
		for _, f := range failures {
			result.AddError(fmt.Sprintf("[%s] %s", name, f))
		}
		if i == 0 {
			result.Trace = trace
			continue
		}
		if err := compareTraces(providers[0], result.Trace, name, trace); err != nil {
			result.AddError(err.Error())
		}
	}

	return result, nil
}

// RunAll executes scenarios concurrently and returns results in input
// order. It stops at the first scenario that cannot be set up.
func RunAll(ctx context.Context, scenarios []*Scenario) ([]*Result, error) {
	results := make([]*Result, len(scenarios))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range scenarios {
		g.Go(func() error {
			r, err := Run(ctx, s)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// setup builds the registry, loads the rows and opens the source handle
// for one provider.
func setup(ctx context.Context, s *Scenario, provider string) (*harness, error) {
	reg := operator.NewRegistry()
	if s.Schema != "" {
		res, errs := schema.Load(s.Schema, schema.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("load schema: %w", errs[0])
		}
		if err := res.Register(reg); err != nil {
			return nil, fmt.Errorf("register schema: %w", err)
		}
	}

	desc, ok := reg.Lookup(ir.TypeID(s.Type))
	if !ok {
		return nil, fmt.Errorf("unknown element type %q", s.Type)
	}

	rows := make([]ir.IRValue, len(s.Rows))
	for i, r := range s.Rows {
		v, err := normalize(desc, r)
		if err != nil {
			return nil, fmt.Errorf("rows[%d]: %w", i, err)
		}
		rows[i] = v
	}

	source := s.Source
	if source == "" {
		source = "items"
	}

	h := &harness{
		scenario: s,
		bridge:   bridge.New(reg, bridge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		desc:     desc,
		close:    func() error { return nil },
	}

	switch provider {
	case ProviderMemory:
		src, err := memprovider.New(reg).AddValues(source, desc, rows)
		if err != nil {
			return nil, err
		}
		h.source = src
	case ProviderSQLite:
		p, err := sqlprovider.Open(":memory:", reg)
		if err != nil {
			return nil, err
		}
		src, err := p.Load(ctx, source, desc, rows)
		if err != nil {
			p.Close()
			return nil, err
		}
		h.source = src
		h.close = p.Close
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return h, nil
}

// run composes the steps, then materializes and checks the final handle.
// It returns the trace and the failed expectations.
func (h *harness) run(ctx context.Context) ([]TraceEvent, []string, error) {
	var (
		trace    []TraceEvent
		failures []string
	)
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	cur := h.source
	for i, step := range h.scenario.Steps {
		next, err := h.compose(cur, step)
		ev := TraceEvent{Kind: EventCompose, Op: step.Op, Expr: cur.String()}
		if err != nil {
			ev.Error = errorKind(err)
		} else {
			ev.Expr = next.String()
		}
		trace = append(trace, ev)

		switch {
		case step.Error != "" && err == nil:
			fail("steps[%d] %s: expected %s error, got none", i, step.Op, step.Error)
		case step.Error != "" && ev.Error != step.Error:
			fail("steps[%d] %s: expected %s error, got %v", i, step.Op, step.Error, err)
		case step.Error == "" && err != nil:
			fail("steps[%d] %s: unexpected error: %v", i, step.Op, err)
		}
		if err != nil {
			return assignSeq(trace), failures, nil
		}
		cur = next
	}

	seqEvent := TraceEvent{Kind: EventSequence, Op: opAsLazySequence, Expr: cur.String()}
	vals, err := h.bridge.ToSlice(ctx, cur)
	if err != nil {
		seqEvent.Error = errorKind(err)
		fail("sequence: unexpected error: %v", err)
	} else {
		seqEvent.Result = ir.IRArray(vals)
		if h.scenario.Sequence != nil {
			if msg, err := h.compareSequence(vals); err != nil {
				return nil, nil, err
			} else if msg != "" {
				fail("%s", msg)
			}
		}
	}
	trace = append(trace, seqEvent)

	checks, checkFailures, err := h.runChecks(ctx, cur)
	if err != nil {
		return nil, nil, err
	}
	trace = append(trace, checks...)
	failures = append(failures, checkFailures...)

	return assignSeq(trace), failures, nil
}

// compose applies one sequence operator through the bridge.
func (h *harness) compose(cur *query.Handle, step Step) (*query.Handle, error) {
	switch queryexpr.Op(step.Op) {
	case queryexpr.OpTake:
		return h.bridge.Take(cur, *step.N)
	case queryexpr.OpSkip:
		return h.bridge.Skip(cur, *step.N)
	case queryexpr.OpReverse:
		return h.bridge.Reverse(cur)
	default:
		return nil, fmt.Errorf("unknown operator %q", step.Op)
	}
}

// runChecks runs the terminal checks concurrently on the same handle.
// Events and failures are returned in declaration order.
func (h *harness) runChecks(ctx context.Context, cur *query.Handle) ([]TraceEvent, []string, error) {
	checks := h.scenario.Checks
	events := make([]TraceEvent, len(checks))
	msgs := make([]string, len(checks))

	g, ctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			got, err := h.terminal(ctx, cur, queryexpr.Op(c.Terminal))
			ev := TraceEvent{Kind: EventTerminal, Op: c.Terminal, Expr: cur.String()}
			if err != nil {
				ev.Error = errorKind(err)
			} else {
				ev.Result = got
			}
			events[i] = ev

			msg, err := h.evaluate(c, got, ev.Error, err)
			if err != nil {
				return fmt.Errorf("checks[%d]: %w", i, err)
			}
			if msg != "" {
				msgs[i] = fmt.Sprintf("checks[%d] %s: %s", i, c.Terminal, msg)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var failures []string
	for _, m := range msgs {
		if m != "" {
			failures = append(failures, m)
		}
	}
	return events, failures, nil
}

// terminal runs one terminal operator and returns its dynamic result.
func (h *harness) terminal(ctx context.Context, cur *query.Handle, op queryexpr.Op) (ir.IRValue, error) {
	switch op {
	case queryexpr.OpAny:
		ok, err := h.bridge.Any(ctx, cur)
		if err != nil {
			return nil, err
		}
		return ir.IRBool(ok), nil
	case queryexpr.OpCount:
		n, err := h.bridge.Count(ctx, cur)
		if err != nil {
			return nil, err
		}
		return ir.IRInt(n), nil
	case queryexpr.OpSingle:
		return h.bridge.SingleDynamic(ctx, cur)
	case queryexpr.OpSingleOrDefault:
		return h.bridge.SingleOrDefaultDynamic(ctx, cur)
	case queryexpr.OpFirst:
		return h.bridge.FirstDynamic(ctx, cur)
	case queryexpr.OpFirstOrDefault:
		return h.bridge.FirstOrDefaultDynamic(ctx, cur)
	default:
		return nil, fmt.Errorf("unknown terminal %q", op)
	}
}

// evaluate checks one terminal outcome against its expectation and
// returns a failure message, or "" if it matched. The error return is
// for malformed expectations.
func (h *harness) evaluate(c Check, got ir.IRValue, kind string, runErr error) (string, error) {
	if c.Error != "" {
		if runErr == nil {
			return fmt.Sprintf("expected %s error, got %s", c.Error, render(got)), nil
		}
		if kind != c.Error {
			return fmt.Sprintf("expected %s error, got %v", c.Error, runErr), nil
		}
		return "", nil
	}
	if runErr != nil {
		return fmt.Sprintf("unexpected error: %v", runErr), nil
	}
	if !c.HasWant() {
		return "", nil
	}

	raw, err := c.WantValue()
	if err != nil {
		return "", fmt.Errorf("decode want: %w", err)
	}
	want, err := h.expected(queryexpr.Op(c.Terminal), raw)
	if err != nil {
		return "", fmt.Errorf("want: %w", err)
	}
	return compareValues(want, got)
}

// expected converts a decoded YAML expectation to its dynamic view.
// Element results are normalized like source rows; a null element is the
// zero value of the element type.
func (h *harness) expected(op queryexpr.Op, raw any) (ir.IRValue, error) {
	if op.Shape() != queryexpr.ShapeElement {
		return ir.FromGo(raw)
	}
	if raw == nil {
		return h.desc.Zero(), nil
	}
	return normalize(h.desc, raw)
}

// compareSequence checks the materialized elements against the
// scenario's expected sequence.
func (h *harness) compareSequence(got []ir.IRValue) (string, error) {
	want := make(ir.IRArray, len(h.scenario.Sequence))
	for i, raw := range h.scenario.Sequence {
		v, err := normalize(h.desc, raw)
		if err != nil {
			return "", fmt.Errorf("sequence[%d]: %w", i, err)
		}
		want[i] = v
	}
	msg, err := compareValues(want, ir.IRArray(got))
	if msg != "" {
		msg = "sequence: " + msg
	}
	return msg, err
}

// normalize converts a decoded YAML element to the dynamic view of desc.
// Row fields absent from the map are filled with null.
func normalize(desc *ir.TypeDesc, raw any) (ir.IRValue, error) {
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, err
	}
	if desc.Kind != ir.KindObject {
		return v, nil
	}

	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected a %s row, got %T", desc.ID, v)
	}
	out := make(ir.IRObject, len(desc.Fields))
	for k, fv := range obj {
		if _, known := desc.Field(k); !known {
			return nil, fmt.Errorf("unknown field %q for %s", k, desc.ID)
		}
		out[k] = fv
	}
	for _, f := range desc.Fields {
		if _, present := out[f.Name]; !present {
			out[f.Name] = ir.IRNull{}
		}
	}
	return out, nil
}

// errorKind classifies an error for the trace.
func errorKind(err error) string {
	switch {
	case precond.IsPreconditionError(err):
		return ErrorPrecondition
	case query.IsExecutionError(err):
		return ErrorExecution
	default:
		return ErrorOther
	}
}

// assignSeq numbers trace events from 1 in order.
func assignSeq(trace []TraceEvent) []TraceEvent {
	for i := range trace {
		trace[i].Seq = int64(i + 1)
	}
	return trace
}
