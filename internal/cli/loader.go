package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/operator"
	"github.com/roach88/dynq/internal/schema"
)

// Error codes for CLI output. E0xx codes are shared with schema loading.
const (
	ErrCodeGeneric  = schema.ErrCodeGeneric
	ErrCodeNotFound = schema.ErrCodeNotFound

	ErrCodeInvalidOp    = "E201" // Malformed --op or --terminal
	ErrCodeUnknownType  = "E202" // --type not registered
	ErrCodeTable        = "E203" // Table missing or typed differently
	ErrCodePrecondition = "E204" // Operator argument rejected
	ErrCodeExecution    = "E205" // Cardinality violation
	ErrCodeQueryFailed  = "E206" // Provider failure
	ErrCodeLoadRows     = "E207" // Rows file unreadable or rejected
	ErrCodeTestFailed   = "E_TEST_FAILED"
)

// loadRegistry returns a registry holding the built-in scalar types plus
// the row types declared in schemaDir. An empty schemaDir registers
// scalars only.
func loadRegistry(schemaDir string) (*operator.Registry, error) {
	reg := operator.NewRegistry()
	if schemaDir == "" {
		return reg, nil
	}

	res, errs := schema.Load(schemaDir, schema.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, schemaExitError(errs[0])
	}
	if err := res.Register(reg); err != nil {
		return nil, WrapExitError(ExitCommandError, "register schema", err)
	}
	return reg, nil
}

// resolveType looks up the element type named by --type.
func resolveType(reg *operator.Registry, id string) (*ir.TypeDesc, error) {
	if id == "" {
		return nil, NewExitError(ExitCommandError, "--type is required")
	}
	desc, ok := reg.Lookup(ir.TypeID(id))
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown element type %q", id))
	}
	return desc, nil
}

// requireFile returns an ExitError if path does not exist.
func requireFile(kind, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s not found: %s", kind, path))
	}
	return nil
}

// schemaExitError converts a schema load error to an ExitError.
func schemaExitError(err error) *ExitError {
	var le *schema.LoadError
	if errors.As(err, &le) {
		return WrapExitError(ExitCommandError, "load schema", le)
	}
	return WrapExitError(ExitCommandError, "load schema", err)
}

// errorCode returns the CLI error code for err.
func errorCode(err error) string {
	var le *schema.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}
