// Package failure holds the closed set of errors the provisioning engine can return.
package failure

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind tags an Error. The set is closed, callers are expected to switch on it.
type Kind int

const (
	Configuration Kind = iota + 1
	CommandNotFound
	PermissionDenied
	CommandTimeout
	ShellCommand
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrCommandNotFound  = errors.New("command not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrCommandTimeout   = errors.New("command timed out")
	ErrShellCommand     = errors.New("shell command failed")
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case CommandNotFound:
		return "command-not-found"
	case PermissionDenied:
		return "permission-denied"
	case CommandTimeout:
		return "command-timeout"
	case ShellCommand:
		return "shell-command"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case Configuration:
		return ErrConfiguration
	case CommandNotFound:
		return ErrCommandNotFound
	case PermissionDenied:
		return ErrPermissionDenied
	case CommandTimeout:
		return ErrCommandTimeout
	case ShellCommand:
		return ErrShellCommand
	}
	return nil
}

// Error is returned by every failing runner call and by plan validation.
type Error struct {
	Kind    Kind
	Message string
	// Command is the quoted command line, empty for configuration errors.
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Timeout  time.Duration
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	switch e.Kind {
	case ShellCommand, CommandNotFound, PermissionDenied:
		if e.Command != "" {
			fmt.Fprintf(&b, " (command: %s, exit code: %d)", e.Command, e.ExitCode)
		}
		if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
			fmt.Fprintf(&b, ": %s", stderr)
		}
	case CommandTimeout:
		if e.Command != "" {
			fmt.Fprintf(&b, " (command: %s, timeout: %s)", e.Command, e.Timeout)
		}
	}
	if e.Err != nil && e.Kind == Configuration {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error kind, so errors.Is(err, ErrCommandTimeout) works
// through any amount of wrapping.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the kind of the first *Error found in the chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Configurationf builds a configuration error.
func Configurationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Configuration, Message: fmt.Sprintf(format, args...)}
}

// WrapConfiguration wraps err, usually a multierror of violations, as a configuration error.
func WrapConfiguration(err error, msg string) *Error {
	return &Error{Kind: Configuration, Message: msg, Err: err}
}
