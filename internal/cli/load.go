package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/sqlprovider"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Schema string
	Type   string
}

// LoadResult is the success payload of the load command.
type LoadResult struct {
	Table string `json:"table"`
	Type  string `json:"type"`
	Rows  int    `json:"rows"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <db> <table> <rows.yaml>",
		Short: "Append rows from a YAML list to a table",
		Long: `Append the elements of a YAML list to a table, creating the database
and the table on first use. Row-type elements are maps; missing fields
are stored as NULL.

Examples:
  dynq load app.db nums nums.yaml --type int
  dynq load app.db people people.yaml --schema ./schema --type Person`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema directory declaring row types")
	cmd.Flags().StringVar(&opts.Type, "type", "", "element type (int, string, bool or a schema row type)")

	return cmd
}

func runLoad(opts *LoadOptions, dbPath, table, rowsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	reg, err := loadRegistry(opts.Schema)
	if err != nil {
		return fail(formatter, errorCode(err), err)
	}
	desc, err := resolveType(reg, opts.Type)
	if err != nil {
		return fail(formatter, ErrCodeUnknownType, err)
	}

	rows, err := readRows(rowsPath)
	if err != nil {
		return fail(formatter, ErrCodeLoadRows, err)
	}
	formatter.Logf("Read %d row(s) from %s", len(rows), rowsPath)

	p, err := sqlprovider.Open(dbPath, reg)
	if err != nil {
		return fail(formatter, ErrCodeNotFound, WrapExitError(ExitCommandError, "open database", err))
	}
	defer p.Close()

	if _, err := p.Load(cmd.Context(), table, desc, rows); err != nil {
		return fail(formatter, ErrCodeLoadRows, WrapExitError(ExitCommandError, "load rows", err))
	}

	result := LoadResult{Table: table, Type: string(desc.ID), Rows: len(rows)}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("Loaded %d row(s) of %s into %s", result.Rows, result.Type, result.Table))
}

// readRows reads a YAML list and converts each element to its dynamic view.
func readRows(path string) ([]ir.IRValue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read rows", err)
	}

	var raw []any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse rows", err)
	}

	rows := make([]ir.IRValue, len(raw))
	for i, r := range raw {
		v, err := ir.FromGo(r)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("rows[%d]", i), err)
		}
		rows[i] = v
	}
	return rows, nil
}
