package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/schema"
)

// SchemaField describes one field of a row type.
type SchemaField struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// SchemaType describes one loaded row type.
type SchemaType struct {
	ID     string        `json:"id"`
	Hash   string        `json:"hash"`
	Fields []SchemaField `json:"fields"`
}

// SchemaResult is the success payload of the schema command.
type SchemaResult struct {
	Files int          `json:"files"`
	Types []SchemaType `json:"types"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <dir>",
		Short: "List the row types declared in a CUE schema directory",
		Long: `Load the row types declared under row: in the CUE package in dir and
list them with their fields and type hashes. All errors are reported,
not just the first.

Examples:
  dynq schema ./schema
  dynq schema ./schema --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSchema(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	res, errs := schema.Load(dir, schema.LoadModeCollectAll)
	if len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, e := range errs {
			messages[i] = e.Error()
		}
		if err := formatter.Error(errorCode(errs[0]), fmt.Sprintf("%d schema error(s)", len(errs)), messages); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "load schema", errs[0])
	}

	formatter.Logf("Found %d CUE file(s) in %s", res.FileCount, dir)

	result := SchemaResult{Files: res.FileCount, Types: make([]SchemaType, 0, len(res.Types))}
	for _, t := range res.Types {
		st := SchemaType{ID: string(t.ID), Hash: ir.TypeHash(t), Fields: make([]SchemaField, len(t.Fields))}
		for i, f := range t.Fields {
			st.Fields[i] = SchemaField{Name: f.Name, Kind: string(f.Kind)}
		}
		result.Types = append(result.Types, st)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	var b strings.Builder
	for _, t := range result.Types {
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.Name + ": " + f.Kind
		}
		fmt.Fprintf(&b, "%s {%s}\n", t.ID, strings.Join(fields, ", "))
	}
	fmt.Fprintf(&b, "%d row type(s) in %d file(s)", len(result.Types), result.Files)
	return formatter.Success(b.String())
}
