// Package errs classifies the failures of a cross-browser run so the CLI can
// turn them into exit statuses and logs can group them.
package errs

import (
	"errors"
)

// Code names the stage of a run that failed.
type Code string

const (
	// Invalid is malformed input: a flag, a descriptor or a status directive.
	Invalid Code = "invalid"
	// Config is a configuration the run cannot start with.
	Config Code = "config"
	// Driver is a Playwright driver that could not be started.
	Driver Code = "driver"
	// GridConnect is a grid session that could not be opened.
	GridConnect Code = "grid_connect"
	// Artifact is a failed read or write against the artifact store.
	Artifact Code = "artifact"
	// Internal is anything unclassified.
	Internal Code = "internal"
)

// ExitStatus is the process exit status the CLI uses for c.
func (c Code) ExitStatus() int {
	switch c {
	case Invalid:
		return 2
	case Config:
		return 3
	case Driver:
		return 4
	case GridConnect:
		return 5
	case Artifact:
		return 6
	default:
		return 1
	}
}

// Error is a classified failure. Message describes the operation that failed
// and Err is its cause, if any.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Message == "" && e.Err == nil:
		return string(e.Code)
	case e.Message == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns a classified error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies cause under code, prefixing message.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the code of the outermost classified error in err's chain.
// Unclassified and nil errors are Internal.
func CodeOf(err error) Code {
	var classified *Error
	if !errors.As(err, &classified) || classified.Code == "" {
		return Internal
	}
	return classified.Code
}

// Is reports whether err is classified as code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// ExitStatus maps err to a process exit status; nil is success.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	return CodeOf(err).ExitStatus()
}
