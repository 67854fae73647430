// Package xerr defines the error-kind vocabulary shared by every
// ofcore component. Pipeline-internal failures never surface through
// this package — they are counted and translated to a drop by the
// caller. Table-mutation and lifecycle failures do.
package xerr

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Kind classifies an error independent of the component that raised it.
type Kind int

const (
	KindOK Kind = iota
	KindInvalidArgs
	KindNoMemory
	KindNotFound
	KindAlreadyExists
	KindNotOperational
	KindTimedOut
	KindOutOfRange
	KindStopRequested
	KindNoMoreAction
	KindInvalidStateTransition
	KindTooLong
	KindTooShort
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindInvalidArgs:
		return "invalid-args"
	case KindNoMemory:
		return "no-memory"
	case KindNotFound:
		return "not-found"
	case KindAlreadyExists:
		return "already-exists"
	case KindNotOperational:
		return "not-operational"
	case KindTimedOut:
		return "timed-out"
	case KindOutOfRange:
		return "out-of-range"
	case KindStopRequested:
		return "stop-requested"
	case KindNoMoreAction:
		return "no-more-action"
	case KindInvalidStateTransition:
		return "invalid-state-transition"
	case KindTooLong:
		return "too-long"
	case KindTooShort:
		return "too-short"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error carrying an optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for op with the given kind and optional cause.
func New(op string, kind Kind, cause error) error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrWouldBlock is an alias for [iox.ErrWouldBlock], for ring/pool
// backpressure signals (queue full on enqueue, queue empty on dequeue).
// It is a control-flow signal, never propagated past the dataplane hot
// path — callers translate it into a drop counter increment.
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the operation would block.
func IsWouldBlock(err error) bool { return iox.IsWouldBlock(err) }

// IsSemantic reports whether err is a control-flow signal, not a failure.
func IsSemantic(err error) bool { return iox.IsSemantic(err) || Is(err, KindNoMoreAction) }

// IsNonFailure reports whether err represents a non-failure condition.
func IsNonFailure(err error) bool { return err == nil || IsWouldBlock(err) }

// Sentinel convenience constructors, mirroring the shape of the kinds above.
func NotFound(op string) error              { return New(op, KindNotFound, nil) }
func AlreadyExists(op string) error         { return New(op, KindAlreadyExists, nil) }
func InvalidArgs(op string, cause error) error { return New(op, KindInvalidArgs, cause) }
func OutOfRange(op string) error            { return New(op, KindOutOfRange, nil) }
func NotOperational(op string) error        { return New(op, KindNotOperational, nil) }
func TimedOut(op string) error              { return New(op, KindTimedOut, nil) }
func StopRequested(op string) error         { return New(op, KindStopRequested, nil) }
func NoMoreAction(op string) error          { return New(op, KindNoMoreAction, nil) }
func InvalidStateTransition(op string) error { return New(op, KindInvalidStateTransition, nil) }
func NoMemory(op string) error              { return New(op, KindNoMemory, nil) }
func TooLong(op string) error               { return New(op, KindTooLong, nil) }
func TooShort(op string) error              { return New(op, KindTooShort, nil) }
