// Package errors provides the CLI's rich error type and its plain-text
// display, trimmed from bib's TUI-aware error package down to the
// output this module actually has: a terminal, not a theme.
package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Code categorizes a CLI-facing failure.
type Code string

const (
	CodeInvalidParameters Code = "INVALID_PARAMETERS"
	CodeNotFound          Code = "NOT_FOUND"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeTransportFailure  Code = "TRANSPORT_FAILURE"
	CodeStoreFailure      Code = "STORE_FAILURE"
	CodeInternal          Code = "INTERNAL"
)

// exitStatus maps each Code to the process exit status shard returns.
// 0 is reserved for success; every failure code gets a distinct
// non-zero status so scripts can distinguish them without parsing text.
var exitStatus = map[Code]int{
	CodeInvalidParameters: 1,
	CodeNotFound:          2,
	CodeUnauthorized:      3,
	CodeTransportFailure:  4,
	CodeStoreFailure:      5,
	CodeInternal:          70,
}

// Rich is an enhanced error with the context shardcli needs to explain
// a failure and tell the user what to try next.
type Rich struct {
	Code        Code
	Message     string
	Details     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface.
func (e *Rich) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Rich) Unwrap() error {
	return e.Cause
}

// New creates a new Rich error.
func New(code Code, message string) *Rich {
	return &Rich{Code: code, Message: message}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *Rich {
	return &Rich{Code: code, Message: message, Cause: err}
}

// WithDetails adds technical details to the error.
func (e *Rich) WithDetails(details string) *Rich {
	e.Details = details
	return e
}

// WithSuggestions adds actionable suggestions.
func (e *Rich) WithSuggestions(suggestions ...string) *Rich {
	e.Suggestions = suggestions
	return e
}

// WithCause sets the underlying cause.
func (e *Rich) WithCause(cause error) *Rich {
	e.Cause = cause
	return e
}

// AsRich converts an error to a Rich error if possible.
func AsRich(err error) *Rich {
	var rich *Rich
	if errors.As(err, &rich) {
		return rich
	}
	return nil
}

// ExitCode returns the process exit status for err: 0 if err is nil,
// the mapped status for a Rich error, or CodeInternal's status for
// anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	rich := AsRich(err)
	if rich == nil {
		return exitStatus[CodeInternal]
	}
	if status, ok := exitStatus[rich.Code]; ok {
		return status
	}
	return exitStatus[CodeInternal]
}

// DisplaySimple formats an error for plain-text terminal output.
func DisplaySimple(err error) string {
	rich := AsRich(err)
	if rich == nil {
		return fmt.Sprintf("Error: %v\n", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s\n", rich.Code, rich.Message)

	if rich.Details != "" {
		fmt.Fprintf(&b, "  Details: %s\n", rich.Details)
	}
	if rich.Cause != nil {
		fmt.Fprintf(&b, "  Caused by: %v\n", rich.Cause)
	}
	if len(rich.Suggestions) > 0 {
		b.WriteString("  Suggestions:\n")
		for _, s := range rich.Suggestions {
			fmt.Fprintf(&b, "    - %s\n", s)
		}
	}
	return b.String()
}

// Report writes err's display form to stderr and returns its exit code,
// for cobra's RunE handlers to pass straight to os.Exit.
func Report(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprint(os.Stderr, DisplaySimple(err))
	return ExitCode(err)
}

// InvalidParameters returns a validation error for a bad flag or argument.
func InvalidParameters(message string, suggestions ...string) *Rich {
	return New(CodeInvalidParameters, message).WithSuggestions(suggestions...)
}

// NotFound returns a resource-not-found error.
func NotFound(resource, key string) *Rich {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, key)).
		WithSuggestions("Use 'shard ls' to see keys this node holds", "Verify the key is correct")
}

// Unauthorized returns an ownership-check failure.
func Unauthorized(key string) *Rich {
	return New(CodeUnauthorized, fmt.Sprintf("not the owner of share %q", key)).
		WithSuggestions("Only the peer that registered a share may read or refresh it")
}

// TransportFailure wraps a peer-to-peer networking error.
func TransportFailure(peerDesc string, cause error) *Rich {
	return Wrap(cause, CodeTransportFailure, fmt.Sprintf("failed to reach %s", peerDesc)).
		WithSuggestions(
			"Verify the peer address with --peer",
			"Check that the target node is running and reachable",
		)
}

// StoreFailure wraps a persistence error.
func StoreFailure(op string, cause error) *Rich {
	return Wrap(cause, CodeStoreFailure, fmt.Sprintf("store failure during %s", op)).
		WithSuggestions("Check --db-path is writable", "Inspect the database file for corruption")
}

// Internal wraps an unexpected error that doesn't fit another category.
func Internal(cause error) *Rich {
	return Wrap(cause, CodeInternal, "internal error")
}
