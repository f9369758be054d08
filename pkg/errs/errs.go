// Package errs provides the typed, stack-carrying error values used across
// the coordination core. Every error that crosses a signal boundary (worker
// to manager, manager to ProcessManager) carries one of the Kind values
// below so the receiving side can make a run-level decision without string
// matching, per the error handling design in the specification.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for run-level decision making.
type Kind int

// Kind values, one per error condition named by the specification.
const (
	// Unknown is the zero value; it is never intentionally returned.
	Unknown Kind = iota
	// InvalidScheme: empty or malformed combination scheme. Fatal for the run.
	InvalidScheme
	// TaskFailure: a task reported non-convergence or tripped a fault criterion.
	TaskFailure
	// GroupFailure: every rank of a process group went unresponsive past a deadline.
	GroupFailure
	// RelayFailure: the third-level relay socket errored mid-exchange.
	RelayFailure
	// MPIFailure: a communicator is in an unrecoverable error state. Fatal.
	MPIFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidScheme:
		return "InvalidScheme"
	case TaskFailure:
		return "TaskFailure"
	case GroupFailure:
		return "GroupFailure"
	case RelayFailure:
		return "RelayFailure"
	case MPIFailure:
		return "MPIFailure"
	default:
		return "Unknown"
	}
}

// E is the error value used throughout the engine: a Kind plus a wrapped,
// stack-carrying cause.
type E struct {
	Kind Kind
	Err  error
}

func (e *E) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *E) Unwrap() error { return e.Err }

// New builds an *E of the given kind from a format string, capturing a
// stack trace at the call site.
func New(kind Kind, format string, args ...interface{}) *E {
	return &E{Kind: kind, Err: errors.Errorf(format, args...)}
}

// Wrap builds an *E of the given kind, annotating an existing error with
// msg and a stack trace captured at the call site.
func Wrap(kind Kind, err error, msg string) *E {
	if err == nil {
		return nil
	}
	return &E{Kind: kind, Err: errors.Wrap(err, msg)}
}

// Is reports whether err is an *E of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*E)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind of err, or Unknown if err is not an *E.
func KindOf(err error) Kind {
	e, ok := err.(*E)
	if !ok {
		return Unknown
	}
	return e.Kind
}

// StackTrace renders the stack captured at the point E was created, for
// logging at the single point an error becomes a run-level decision.
func StackTrace(err error) string {
	type causer interface {
		Cause() error
	}
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	cur := err
	for {
		if st, ok := cur.(stackTracer); ok {
			return fmt.Sprintf("%+v", st.StackTrace())
		}
		c, ok := cur.(causer)
		if !ok {
			u, ok := cur.(interface{ Unwrap() error })
			if !ok {
				return ""
			}
			cur = u.Unwrap()
			continue
		}
		cur = c.Cause()
	}
}
