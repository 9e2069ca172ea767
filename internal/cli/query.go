package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dynq/internal/bridge"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/precond"
	"github.com/roach88/dynq/internal/query"
	"github.com/roach88/dynq/internal/queryexpr"
	"github.com/roach88/dynq/internal/sqlprovider"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Schema   string   // CUE schema directory
	Type     string   // element type ID
	Ops      []string // sequence operators, e.g. "skip=1", "reverse"
	Terminal string   // terminal operator, empty to list elements
}

// QueryResult is the success payload of the query command.
type QueryResult struct {
	Expr     string `json:"expr"`
	Terminal string `json:"terminal,omitempty"`
	Result   any    `json:"result"`
}

// pipelineStep is one parsed --op flag.
type pipelineStep struct {
	op queryexpr.Op
	n  int64
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <db> <table>",
		Short: "Run a pipeline against a SQLite table",
		Long: `Compose sequence operators over a table and print either the
resulting elements or the result of one terminal operator.

Operators are applied in flag order. take and skip need a count.

Exit codes:
  0 - Success
  1 - Cardinality violation (single on several elements, first on none)
  2 - Command error (missing database, bad operator, unknown type)

Examples:
  dynq query app.db nums --type int --op skip=1 --op take=1
  dynq query app.db people --schema ./schema --type Person --op reverse --terminal first
  dynq query app.db nums --type int --terminal count --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema directory declaring row types")
	cmd.Flags().StringVar(&opts.Type, "type", "", "element type (int, string, bool or a schema row type)")
	cmd.Flags().StringArrayVar(&opts.Ops, "op", nil, "sequence operator: take=N, skip=N or reverse (repeatable)")
	cmd.Flags().StringVar(&opts.Terminal, "terminal", "", "terminal operator: any, count, single, singleOrDefault, first, firstOrDefault")

	return cmd
}

func runQuery(opts *QueryOptions, dbPath, table string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	steps, err := parseOps(opts.Ops)
	if err != nil {
		return fail(formatter, ErrCodeInvalidOp, err)
	}
	terminal := queryexpr.Op(opts.Terminal)
	if terminal != "" && (!terminal.Known() || !terminal.Terminal()) {
		return fail(formatter, ErrCodeInvalidOp, NewExitError(ExitCommandError, fmt.Sprintf("unknown terminal %q", opts.Terminal)))
	}

	if err := requireFile("database", dbPath); err != nil {
		return fail(formatter, ErrCodeNotFound, err)
	}
	reg, err := loadRegistry(opts.Schema)
	if err != nil {
		return fail(formatter, errorCode(err), err)
	}
	desc, err := resolveType(reg, opts.Type)
	if err != nil {
		return fail(formatter, ErrCodeUnknownType, err)
	}

	p, err := sqlprovider.Open(dbPath, reg)
	if err != nil {
		return fail(formatter, ErrCodeNotFound, WrapExitError(ExitCommandError, "open database", err))
	}
	defer p.Close()

	ctx := cmd.Context()
	h, err := p.Table(ctx, table, desc)
	if err != nil {
		return fail(formatter, ErrCodeTable, WrapExitError(ExitCommandError, "open table", err))
	}
	formatter.Logf("Opened %s as %s", table, desc)

	b := bridge.New(reg, bridge.WithLogger(formatter.Logger()))
	for _, s := range steps {
		if h, err = compose(b, h, s); err != nil {
			return fail(formatter, ErrCodePrecondition, WrapExitError(ExitCommandError, string(s.op), err))
		}
	}

	result := QueryResult{Expr: h.String(), Terminal: opts.Terminal}
	var v ir.IRValue
	if terminal == "" {
		vals, err := b.ToSlice(ctx, h)
		if err != nil {
			return fail(formatter, queryErrorCode(err), queryExitError("materialize", err))
		}
		v = ir.IRArray(vals)
	} else {
		v, err = runTerminal(ctx, b, h, terminal)
		if err != nil {
			return fail(formatter, queryErrorCode(err), queryExitError(opts.Terminal, err))
		}
	}

	if formatter.JSON() {
		result.Result = ir.ToGo(v)
		return formatter.Success(result)
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fail(formatter, ErrCodeGeneric, err)
	}
	return formatter.Success(fmt.Sprintf("%s\n%s", result.Expr, data))
}

// parseOps parses --op flags of the form name[=N].
func parseOps(ops []string) ([]pipelineStep, error) {
	steps := make([]pipelineStep, 0, len(ops))
	for _, raw := range ops {
		name, arg, hasArg := strings.Cut(raw, "=")
		op := queryexpr.Op(name)
		switch op {
		case queryexpr.OpTake, queryexpr.OpSkip:
			if !hasArg {
				return nil, NewExitError(ExitCommandError, fmt.Sprintf("--op %s: %s needs a count, e.g. %s=1", raw, name, name))
			}
			n, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, fmt.Sprintf("--op %s: invalid count", raw), err)
			}
			steps = append(steps, pipelineStep{op: op, n: n})
		case queryexpr.OpReverse:
			if hasArg {
				return nil, NewExitError(ExitCommandError, fmt.Sprintf("--op %s: reverse takes no count", raw))
			}
			steps = append(steps, pipelineStep{op: op})
		default:
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("--op %s: unknown sequence operator %q", raw, name))
		}
	}
	return steps, nil
}

func compose(b *bridge.Bridge, h *query.Handle, s pipelineStep) (*query.Handle, error) {
	switch s.op {
	case queryexpr.OpTake:
		return b.Take(h, s.n)
	case queryexpr.OpSkip:
		return b.Skip(h, s.n)
	default:
		return b.Reverse(h)
	}
}

// runTerminal runs op and returns its result in the dynamic view.
func runTerminal(ctx context.Context, b *bridge.Bridge, h *query.Handle, op queryexpr.Op) (ir.IRValue, error) {
	switch op {
	case queryexpr.OpAny:
		ok, err := b.Any(ctx, h)
		return ir.IRBool(ok), err
	case queryexpr.OpCount:
		n, err := b.Count(ctx, h)
		return ir.IRInt(n), err
	case queryexpr.OpSingle:
		return b.SingleDynamic(ctx, h)
	case queryexpr.OpSingleOrDefault:
		return b.SingleOrDefaultDynamic(ctx, h)
	case queryexpr.OpFirst:
		return b.FirstDynamic(ctx, h)
	default:
		return b.FirstOrDefaultDynamic(ctx, h)
	}
}

func queryErrorCode(err error) string {
	switch {
	case query.IsExecutionError(err):
		return ErrCodeExecution
	case precond.IsPreconditionError(err):
		return ErrCodePrecondition
	default:
		return ErrCodeQueryFailed
	}
}

// queryExitError maps cardinality violations to ExitFailure and
// everything else to ExitCommandError.
func queryExitError(op string, err error) *ExitError {
	if query.IsExecutionError(err) {
		return WrapExitError(ExitFailure, op, err)
	}
	return WrapExitError(ExitCommandError, op, err)
}

// fail reports err through the formatter and returns it as an ExitError.
func fail(f *OutputFormatter, code string, err error) error {
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return WrapExitError(ExitCommandError, code, err)
}
