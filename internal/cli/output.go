package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // operation failed (duplicate user, not found, store error)
	ExitCommandError = 2 // bad flags or configuration
)

// ExitError carries the process exit code for an error.
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error, ExitFailure by default.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope of every command's output.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// Output writes command results as text or JSON.
type Output struct {
	Format string
	Writer io.Writer
}

// JSON reports whether the output format is JSON.
func (o *Output) JSON() bool { return o.Format == "json" }

// Success prints message in text mode or data in JSON mode.
func (o *Output) Success(data interface{}, message string, args ...interface{}) error {
	if o.JSON() {
		enc := json.NewEncoder(o.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(Response{Status: "ok", Data: data})
	}
	_, err := color.New(color.FgGreen).Fprintf(o.Writer, message+"\n", args...)
	return err
}

// PrintError writes err to w, in red unless color output is disabled.
func PrintError(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprintf(w, "error: %v\n", err)
}
