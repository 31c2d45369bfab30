// internal/pipeline/errors.go
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal run failure
type Kind string

const (
	KindConfig     Kind = "config"
	KindCollection Kind = "collection"
	KindBackend    Kind = "backend"
	KindWrite      Kind = "write"
)

// Error is a categorized pipeline failure
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// ExitCode is the process status for this failure
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindConfig:
		return 1
	case KindCollection:
		return 2
	case KindBackend:
		return 3
	case KindWrite:
		return 4
	default:
		return 1
	}
}

// Wrap builds an Error of kind around cause
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ExitCode maps any error returned by a run to a process status. nil is 0;
// uncategorized errors are 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.ExitCode()
	}
	return 1
}
