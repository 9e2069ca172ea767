package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/operator"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeInvalidType = "E104" // Invalid field type (e.g., float)
	ErrCodeInvalidRow  = "E120" // Malformed row type
	ErrCodeNoRows      = "E121" // No row types declared
)

// Result contains the row types loaded from a directory, sorted by ID.
type Result struct {
	Types     []*ir.TypeDesc
	FileCount int
}

// Lookup returns the row type with the given ID.
func (r *Result) Lookup(id ir.TypeID) (*ir.TypeDesc, bool) {
	for _, t := range r.Types {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Register adds every loaded row type to reg.
func (r *Result) Register(reg *operator.Registry) error {
	for _, t := range r.Types {
		if err := operator.RegisterRow(reg, t); err != nil {
			return err
		}
	}
	return nil
}

// LoadError is an error that occurred while loading schemas.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load loads row types from the CUE package in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func Load(dir string, mode LoadMode) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &Result{FileCount: len(cueFiles)}
	errs := extractRows(value, mode, result)
	sort.Slice(result.Types, func(i, j int) bool { return result.Types[i].ID < result.Types[j].ID })
	return result, errs
}

// LoadString compiles a single CUE source. Used by tests and callers that
// embed their schema.
func LoadString(src string) (*Result, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{convertCompileError(formatCUEError(err), "schema")}
	}
	result := &Result{FileCount: 1}
	errs := extractRows(value, LoadModeCollectAll, result)
	sort.Slice(result.Types, func(i, j int) bool { return result.Types[i].ID < result.Types[j].ID })
	return result, errs
}

func extractRows(value cue.Value, mode LoadMode, result *Result) []error {
	var errs []error

	rowsVal := value.LookupPath(cue.ParsePath("row"))
	if rowsVal.Exists() {
		iter, iterErr := rowsVal.Fields()
		if iterErr != nil {
			return []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating rows: %v", iterErr)}}
		}
		for iter.Next() {
			desc, compileErr := CompileRowType(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, "row."+iter.Label()))
				if mode == LoadModeFailFast {
					return errs
				}
				continue
			}
			result.Types = append(result.Types, desc)
		}
	}

	if len(result.Types) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoRows, Message: "no row types found in schema"})
	}
	return errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compile error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		code := ErrCodeInvalidRow
		switch compileErr.Field {
		case "type":
			code = ErrCodeInvalidType
		case "cue":
			code = ErrCodeBuildFailed
		}
		return &LoadError{
			Code:    code,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
