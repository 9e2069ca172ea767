package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Cardinality violation or failing scenario
	ExitCommandError = 2 // Bad arguments, missing files, unknown types
)

// ExitError carries the process exit code for a failed command. Commands
// report the error through an OutputFormatter before returning it, so
// main only needs the code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code and context to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the envelope written by every command in --format json.
// Data and Error may both be set: a test run that fails still reports
// its per-scenario results.
type Response struct {
	Status  string       `json:"status"` // "ok" or "error"
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id"`
}

// ErrorDetail identifies a failure by code (E0xx schema, E2xx query and
// load, E_TEST_FAILED).
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results to Out and diagnostics to Diag.
type OutputFormatter struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// JSON reports whether results are written as Response envelopes.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success writes data. Text mode prints it with fmt.Println semantics.
func (f *OutputFormatter) Success(data any) error {
	if f.JSON() {
		return f.write(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Out, data)
	return err
}

// Error writes a failure. In text mode, []string details are listed one
// per line below the message.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.write(Response{
			Status: "error",
			Error:  &ErrorDetail{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Out, "Error [%s]: %s\n", code, message)
	if lines, ok := details.([]string); ok {
		for _, l := range lines {
			fmt.Fprintf(f.Out, "  %s\n", l)
		}
	}
	return nil
}

// write stamps resp with a trace ID and encodes it.
func (f *OutputFormatter) write(resp Response) error {
	resp.TraceID = NewTraceID()
	enc := json.NewEncoder(f.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Logf writes a diagnostic line to Diag in verbose mode. Diag keeps JSON
// on Out parseable.
func (f *OutputFormatter) Logf(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.Diag, format+"\n", args...)
	}
}

// Logger returns the slog logger handed to the bridge: debug level in
// verbose mode, warnings only otherwise.
func (f *OutputFormatter) Logger() *slog.Logger {
	level := slog.LevelWarn
	if f.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(f.Diag, &slog.HandlerOptions{Level: level}))
}

// NewTraceID returns a time-ordered trace ID for a response.
func NewTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
