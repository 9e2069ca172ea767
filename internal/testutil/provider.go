package testutil

import (
	"context"
	"sync/atomic"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
)

// RecordingProvider is a query.Provider that counts calls and returns a
// canned result from Execute.
//
// It is used to check that composition never executes and that provider
// results and errors reach the caller unmodified.
//
// Thread-safety: counters are atomic; Result and Err must be set before
// the provider is shared.
type RecordingProvider struct {
	Result any
	Err    error

	deferred atomic.Int64
	executed atomic.Int64
	last     atomic.Pointer[string]
}

// CreateDeferred implements query.Provider.
func (p *RecordingProvider) CreateDeferred(expr queryexpr.Expr, elem *ir.TypeDesc) *query.Handle {
	p.deferred.Add(1)
	return query.NewHandle(p, expr, elem)
}

// Execute implements query.Provider.
func (p *RecordingProvider) Execute(_ context.Context, expr queryexpr.Expr) (any, error) {
	p.executed.Add(1)
	s := queryexpr.Format(expr)
	p.last.Store(&s)
	return p.Result, p.Err
}

// Deferred returns the number of CreateDeferred calls.
func (p *RecordingProvider) Deferred() int64 { return p.deferred.Load() }

// Executed returns the number of Execute calls.
func (p *RecordingProvider) Executed() int64 { return p.executed.Load() }

// LastExecuted returns the formatted expression of the latest Execute
// call, or "" if there was none.
func (p *RecordingProvider) LastExecuted() string {
	if s := p.last.Load(); s != nil {
		return *s
	}
	return ""
}
