package coro

import "sync/atomic"

// A Continuation is the captured resumption point of a suspended Task.
// Whatever external event the task is waiting on (a timer, another task's
// completion, I/O readiness) holds the continuation and calls Resume when
// the event fires.
//
// Resumption is single-shot: exactly one Resume call delivers a value or
// an error. A second call returns ErrInvalidResume and leaves the first
// resumption's effect intact.
type Continuation struct {
	task *Task
	next Op
	used atomic.Bool
}

// Resume re-enqueues the suspended task with the given outcome.
//
// A nil err delivers v to the task, which continues with the operation
// installed at the suspend point. A non-nil err terminates the task: a
// cancellation outcome (errors.Is(err, Canceled)) cancels it, any other
// error fails it.
func (c *Continuation) Resume(v any, err error) error {
	if !c.used.CompareAndSwap(false, true) {
		return ErrInvalidResume
	}
	c.task.deliver(c, v, err)
	return nil
}

// tryResume is Resume for internal racers, such as a timer racing a
// cancellation. Losing the race is expected, not an error.
func (c *Continuation) tryResume(v any, err error) {
	_ = c.Resume(v, err)
}
