package coro

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Canceled is the cooperative cancellation outcome. A task whose result
// error satisfies errors.Is(err, Canceled) was cancelled rather than
// failed; fail-fast scopes never treat it as a failure, and callers should
// not retry it as if it were one.
var Canceled = errors.New("coro: task canceled")

// ErrInvalidResume is returned by Continuation.Resume when the
// continuation has already been resumed once.
var ErrInvalidResume = errors.New("coro: continuation already resumed")

// ErrScopeClosed is the cancellation cause of tasks launched on a scope
// that has already been closed.
var ErrScopeClosed = errors.New("coro: scope closed")

// PanicError wraps a panic recovered from a task operation.
type PanicError struct {
	TaskID uint64
	Value  any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("coro: panic in task %d: %v", e.TaskID, e.Value)
}

// DeadlockError reports a join cycle in which no member can make progress.
// Every task along the cycle is resumed with this error and terminates as
// a failure.
type DeadlockError struct {
	// Cycle holds the task IDs along the cycle, starting at the join
	// call that closed it.
	Cycle []uint64
}

func (e DeadlockError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return "coro: join deadlock: " + strings.Join(parts, " -> ")
}

// canceledError carries a cancellation cause while still matching the
// Canceled sentinel, so a cancelled task's result reports both what
// happened (cancellation) and why (the cause).
type canceledError struct {
	cause error
}

func (e *canceledError) Error() string {
	return "coro: task canceled: " + e.cause.Error()
}

func (e *canceledError) Is(target error) bool { return target == Canceled }

func (e *canceledError) Unwrap() error { return e.cause }

func wrapCanceled(cause error) error {
	switch {
	case cause == nil || cause == Canceled:
		return Canceled
	case errors.Is(cause, Canceled):
		return cause
	default:
		return &canceledError{cause: cause}
	}
}
