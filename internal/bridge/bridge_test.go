package bridge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/memprovider"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/precond"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
	"github.com/roach88/dynq/internal/seqops"
	"github.com/roach88/dynq/internal/testutil"
)

type fixture struct {
	bridge *Bridge
	mem    *memprovider.Provider
	nums   *query.Handle
	empty  *query.Handle
	people *query.Handle
}

func setup(t *testing.T) *fixture {
	t.Helper()
	reg := operator.NewRegistry()
	require.NoError(t, operator.RegisterRow(reg, testutil.PersonType))
	mem := memprovider.New(reg)

	nums, err := mem.AddSource("nums", ir.IntType, []int64{3, 1, 2})
	require.NoError(t, err)
	empty, err := mem.AddSource("none", ir.IntType, []int64{})
	require.NoError(t, err)
	people, err := mem.AddSource("people", testutil.PersonType, []ir.IRObject{
		ir.O("name", ir.IRString("ada"), "age", ir.IRInt(36)),
		ir.O("name", ir.IRString("alan"), "age", ir.IRInt(41)),
	})
	require.NoError(t, err)

	return &fixture{
		bridge: New(reg),
		mem:    mem,
		nums:   nums,
		empty:  empty,
		people: people,
	}
}

func (f *fixture) values(t *testing.T, h *query.Handle) []ir.IRValue {
	t.Helper()
	out, err := f.bridge.ToSlice(context.Background(), h)
	require.NoError(t, err)
	return out
}

var ints = testutil.Ints

func TestTakeKeepsDescriptorAndProvider(t *testing.T) {
	f := setup(t)

	h, err := f.bridge.Take(f.people, 1)
	require.NoError(t, err)
	assert.Same(t, testutil.PersonType, h.ElementType())
	assert.Equal(t, f.mem, h.Provider())
	assert.Equal(t, "source(people:Person).take[Person](1)", h.String())
}

func TestTakeRejectsNonPositive(t *testing.T) {
	f := setup(t)

	for _, n := range []int64{0, -1} {
		h, err := f.bridge.Take(f.nums, n)
		assert.Nil(t, h)
		var pe *precond.PreconditionError
		require.ErrorAs(t, err, &pe, "n=%d", n)
		assert.Equal(t, ArgCount, pe.Argument)
	}
}

func TestSkipZeroIsIdentity(t *testing.T) {
	f := setup(t)

	h, err := f.bridge.Skip(f.nums, 0)
	require.NoError(t, err)
	assert.Same(t, f.nums, h)
}

func TestSkipRejectsNegative(t *testing.T) {
	f := setup(t)

	_, err := f.bridge.Skip(f.nums, -1)
	assert.True(t, precond.IsPreconditionError(err))
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestNilHandle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	checks := map[string]func() error{
		"take":            func() error { _, err := f.bridge.Take(nil, 1); return err },
		"skip":            func() error { _, err := f.bridge.Skip(nil, 0); return err },
		"reverse":         func() error { _, err := f.bridge.Reverse(nil); return err },
		"any":             func() error { _, err := f.bridge.Any(ctx, nil); return err },
		"count":           func() error { _, err := f.bridge.Count(ctx, nil); return err },
		"single":          func() error { _, err := f.bridge.Single(ctx, nil); return err },
		"singleOrDefault": func() error { _, err := f.bridge.SingleOrDefault(ctx, nil); return err },
		"first":           func() error { _, err := f.bridge.First(ctx, nil); return err },
		"firstOrDefault":  func() error { _, err := f.bridge.FirstOrDefault(ctx, nil); return err },
		"firstDynamic":    func() error { _, err := f.bridge.FirstDynamic(ctx, nil); return err },
		"lazy":            func() error { _, err := f.bridge.ToSlice(ctx, nil); return err },
	}
	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			err := check()
			var pe *precond.PreconditionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, ArgSource, pe.Argument)
			assert.Equal(t, precond.ConstraintNotNull, pe.Constraint)
		})
	}
}

func TestHandleWithoutElementType(t *testing.T) {
	f := setup(t)
	h := query.NewHandle(f.mem, f.nums.Expression(), nil)

	_, err := f.bridge.Reverse(h)
	assert.True(t, precond.IsPreconditionError(err))
}

func TestWorkedExample(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	skipped, err := f.bridge.Skip(f.nums, 1)
	require.NoError(t, err)
	taken, err := f.bridge.Take(skipped, 1)
	require.NoError(t, err)
	assert.Equal(t, ints(1), f.values(t, taken))

	reversed, err := f.bridge.Reverse(f.nums)
	require.NoError(t, err)
	assert.Equal(t, ints(2, 1, 3), f.values(t, reversed))

	n, err := f.bridge.Count(ctx, f.nums)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	past, err := f.bridge.Skip(f.nums, 5)
	require.NoError(t, err)
	v, err := f.bridge.FirstOrDefault(ctx, past)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestReverseTwiceRestoresOrder(t *testing.T) {
	f := setup(t)

	once, err := f.bridge.Reverse(f.nums)
	require.NoError(t, err)
	twice, err := f.bridge.Reverse(once)
	require.NoError(t, err)
	assert.Equal(t, f.values(t, f.nums), f.values(t, twice))
}

func TestCountMatchesMaterializedLength(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	skipped, err := f.bridge.Skip(f.nums, 2)
	require.NoError(t, err)
	for _, h := range []*query.Handle{f.nums, f.empty, f.people, skipped} {
		n, err := f.bridge.Count(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, int64(len(f.values(t, h))), n, h.String())
	}
}

func TestAny(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ok, err := f.bridge.Any(ctx, f.nums)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.bridge.Any(ctx, f.empty)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSingleCardinality(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	one, err := f.bridge.Take(f.nums, 1)
	require.NoError(t, err)

	v, err := f.bridge.Single(ctx, one)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = f.bridge.Single(ctx, f.empty)
	assert.True(t, query.IsExecutionError(err))
	assert.ErrorIs(t, err, seqops.ErrNoElements)

	_, err = f.bridge.Single(ctx, f.nums)
	assert.True(t, query.IsExecutionError(err))
	assert.ErrorIs(t, err, seqops.ErrMoreThanOneElement)
}

func TestSingleOrDefault(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	v, err := f.bridge.SingleOrDefault(ctx, f.empty)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, err = f.bridge.SingleOrDefault(ctx, f.nums)
	var ee *query.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, queryexpr.OpSingleOrDefault, ee.Op)
}

func TestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	v, err := f.bridge.First(ctx, f.nums)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = f.bridge.First(ctx, f.empty)
	assert.ErrorIs(t, err, seqops.ErrNoElements)

	v, err = f.bridge.FirstOrDefault(ctx, f.empty)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestRowTerminals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	rev, err := f.bridge.Reverse(f.people)
	require.NoError(t, err)
	v, err := f.bridge.First(ctx, rev)
	require.NoError(t, err)
	assert.Equal(t, ir.O("name", ir.IRString("alan"), "age", ir.IRInt(41)), v)

	past, err := f.bridge.Skip(f.people, 2)
	require.NoError(t, err)
	v, err = f.bridge.FirstOrDefault(ctx, past)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject(nil), v)
}

func TestDynamicVariants(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	one, err := f.bridge.Take(f.people, 1)
	require.NoError(t, err)
	past, err := f.bridge.Skip(f.people, 3)
	require.NoError(t, err)
	ada := ir.O("name", ir.IRString("ada"), "age", ir.IRInt(36))

	dv, err := f.bridge.SingleDynamic(ctx, one)
	require.NoError(t, err)
	assert.Equal(t, ada, dv)

	dv, err = f.bridge.FirstDynamic(ctx, f.people)
	require.NoError(t, err)
	assert.Equal(t, ada, dv)

	dv, err = f.bridge.FirstOrDefaultDynamic(ctx, past)
	require.NoError(t, err)
	assert.Equal(t, ir.IRNull{}, dv)

	dv, err = f.bridge.SingleOrDefaultDynamic(ctx, past)
	require.NoError(t, err)
	assert.Equal(t, testutil.PersonType.Zero(), dv)

	dv, err = f.bridge.FirstOrDefaultDynamic(ctx, f.empty)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(0), dv)

	_, err = f.bridge.SingleDynamic(ctx, f.people)
	assert.True(t, query.IsExecutionError(err))
}

func TestAsLazySequenceIsDeferredAndRestartable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	seq := f.bridge.AsLazySequence(ctx, f.nums)

	var first []ir.IRValue
	for v, err := range seq {
		require.NoError(t, err)
		first = append(first, v)
	}
	var second []ir.IRValue
	for v, err := range seq {
		require.NoError(t, err)
		second = append(second, v)
	}
	assert.Equal(t, ints(3, 1, 2), first)
	assert.Equal(t, first, second)
}

func TestAsLazySequenceEarlyBreak(t *testing.T) {
	f := setup(t)

	var got []ir.IRValue
	for v, err := range f.bridge.AsLazySequence(context.Background(), f.nums) {
		require.NoError(t, err)
		got = append(got, v)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, ints(3, 1), got)
}

func TestAsLazySequencePropagatesProviderError(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range f.bridge.AsLazySequence(ctx, f.nums) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestUnregisteredElementType(t *testing.T) {
	f := setup(t)
	ghost := ir.NewRowType("Ghost")
	h := query.NewHandle(f.mem, queryexpr.NewSource("ghost", ghost), ghost)

	_, err := f.bridge.Take(h, 1)
	require.Error(t, err)
	assert.True(t, operator.IsUnknownType(err))
	assert.Contains(t, err.Error(), "take: ")
}

func TestComposeDoesNotExecute(t *testing.T) {
	stub := &testutil.RecordingProvider{}
	b := New(operator.NewRegistry())
	root := stub.CreateDeferred(queryexpr.NewSource("nums", ir.IntType), ir.IntType)

	h, err := b.Take(root, 2)
	require.NoError(t, err)
	h, err = b.Reverse(h)
	require.NoError(t, err)
	_, err = b.Skip(h, 1)
	require.NoError(t, err)

	assert.Zero(t, stub.Executed())
	assert.Equal(t, int64(3), stub.Deferred()-1)
}

func TestProviderErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	stub := &testutil.RecordingProvider{Err: boom}
	b := New(operator.NewRegistry())
	h := stub.CreateDeferred(queryexpr.NewSource("nums", ir.IntType), ir.IntType)

	_, err := b.Count(context.Background(), h)
	assert.Same(t, boom, err)
}

func TestProviderResultShapeChecked(t *testing.T) {
	stub := &testutil.RecordingProvider{Result: "three"}
	b := New(operator.NewRegistry())
	h := stub.CreateDeferred(queryexpr.NewSource("nums", ir.IntType), ir.IntType)

	_, err := b.Count(context.Background(), h)
	require.Error(t, err)
	assert.Equal(t, "count: provider returned string, want int64", err.Error())

	_, err = b.Any(context.Background(), h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want bool")
}

func TestConcurrentCompositionFromSameHandle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := int64(1); i <= 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			h, err := f.bridge.Take(f.nums, n)
			if !assert.NoError(t, err) {
				return
			}
			got, err := f.bridge.Count(ctx, h)
			assert.NoError(t, err)
			assert.Equal(t, min(n, 3), got)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, ints(3, 1, 2), f.values(t, f.nums))
}

func TestWithLoggerTracesExpressions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg := operator.NewRegistry()
	mem := memprovider.New(reg)
	nums, err := mem.AddSource("nums", ir.IntType, []int64{1, 2})
	require.NoError(t, err)
	b := New(reg, WithLogger(logger))

	h, err := b.Reverse(nums)
	require.NoError(t, err)
	_, err = b.First(context.Background(), h)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "msg=composed")
	assert.Contains(t, out, "msg=executing")
	assert.Contains(t, out, "source(nums:int).reverse[int]().first[int]()")
}

func TestCompositionCostIndependentOfDepth(t *testing.T) {
	f := setup(t)

	deep := f.nums
	for range 1000 {
		var err error
		deep, err = f.bridge.Reverse(deep)
		require.NoError(t, err)
	}

	allocs := func(h *query.Handle) float64 {
		return testing.AllocsPerRun(100, func() {
			if _, err := f.bridge.Reverse(h); err != nil {
				t.Fatal(err)
			}
		})
	}
	assert.Equal(t, allocs(f.nums), allocs(deep))
}
