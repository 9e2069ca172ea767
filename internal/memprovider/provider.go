// Package memprovider is a query provider over in-memory slices.
//
// Each source is a []T of the Go type registered for its element type.
// Execute walks the expression chain root first and applies each Call's
// instantiated algorithm to the previous step's result, so the provider
// never needs to know T itself.
package memprovider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
	"github.com/roach88/dynq/internal/seqops"
)

type source struct {
	desc *ir.TypeDesc
	rows any
}

// Provider executes expressions against named in-memory sources.
// It is safe for concurrent use.
type Provider struct {
	reg *operator.Registry

	mu      sync.RWMutex
	sources map[string]source
}

var _ query.Provider = (*Provider)(nil)

// New creates a provider that resolves element types through reg.
func New(reg *operator.Registry) *Provider {
	return &Provider{
		reg:     reg,
		sources: make(map[string]source),
	}
}

// AddSource registers rows under name and returns a root handle for it.
// rows must be the []T registered for desc and must not be modified
// afterwards.
func (p *Provider) AddSource(name string, desc *ir.TypeDesc, rows any) (*query.Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("source name is required")
	}
	if desc == nil {
		return nil, fmt.Errorf("source %q: nil element type", name)
	}
	if _, ok := p.reg.Lookup(desc.ID); !ok {
		return nil, fmt.Errorf("source %q: %w", name, &operator.UnknownTypeError{ID: desc.ID})
	}
	if !p.reg.Accepts(desc.ID, rows) {
		return nil, fmt.Errorf("source %q: rows of type %T do not match element type %q", name, rows, desc.ID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.sources[name]; exists {
		return nil, fmt.Errorf("source %q already exists", name)
	}
	p.sources[name] = source{desc: desc, rows: rows}

	return p.CreateDeferred(queryexpr.NewSource(name, desc), desc), nil
}

// AddValues is AddSource for dynamic elements. vals are collected into
// the canonical []T for desc (see operator.Collect).
func (p *Provider) AddValues(name string, desc *ir.TypeDesc, vals []ir.IRValue) (*query.Handle, error) {
	rows, err := operator.Collect(desc, vals)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", name, err)
	}
	return p.AddSource(name, desc, rows)
}

// CreateDeferred implements query.Provider.
func (p *Provider) CreateDeferred(expr queryexpr.Expr, elem *ir.TypeDesc) *query.Handle {
	return query.NewHandle(p, expr, elem)
}

// Execute implements query.Provider.
//
// Cardinality violations come back as *query.ExecutionError. A malformed
// chain yields *queryexpr.ValidationError before anything runs.
func (p *Provider) Execute(ctx context.Context, expr queryexpr.Expr) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := queryexpr.Validate(expr).Err(); err != nil {
		return nil, err
	}

	var cur any
	for _, e := range queryexpr.Chain(expr) {
		switch n := e.(type) {
		case *queryexpr.Source:
			rows, err := p.load(n)
			if err != nil {
				return nil, err
			}
			cur = rows
		case *queryexpr.Call:
			m, err := p.method(n)
			if err != nil {
				return nil, err
			}
			out, err := m.Invoke(cur, n.Args)
			if err != nil {
				if errors.Is(err, seqops.ErrNoElements) || errors.Is(err, seqops.ErrMoreThanOneElement) {
					return nil, &query.ExecutionError{Op: n.Op(), Err: err}
				}
				return nil, fmt.Errorf("execute %s: %w", n.Op(), err)
			}
			cur = out
		}
	}
	return cur, nil
}

func (p *Provider) load(s *queryexpr.Source) (any, error) {
	p.mu.RLock()
	src, ok := p.sources[s.Name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source %q", s.Name)
	}
	if src.desc.ID != s.Type.ID {
		return nil, fmt.Errorf("source %q holds %s, expression expects %s", s.Name, src.desc.ID, s.Type.ID)
	}
	return src.rows, nil
}

// method returns the Call's implementation. Calls built by the bridge
// already carry an *operator.Method; anything else is resolved by name.
func (p *Provider) method(c *queryexpr.Call) (*operator.Method, error) {
	if m, ok := c.Method.(*operator.Method); ok {
		return m, nil
	}
	return p.reg.Resolve(c.Op(), c.ElementType().ID)
}
