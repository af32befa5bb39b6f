package coro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// An Op is one step of a task between suspend points. It runs to
// completion on whichever worker picked the task up; execution is
// non-preemptive within a step. Any unbounded loop inside an Op must
// either consult co.Canceled() each iteration or yield, otherwise
// cancellation is never observed and the task runs without bound.
type Op func(co *Coroutine) Result

type action int8

const (
	actionEnd action = iota
	actionFail
	actionYield
	actionSuspend
)

// Result tells the runtime what a Task does next after an Op returns:
// terminate (End, Return, Fail), reschedule immediately (Yield), or park
// until a Continuation resumes it (Delay, Join, Suspend).
type Result struct {
	action   action
	value    any
	err      error
	next     Op
	register func(*Continuation)
}

// A Task is a cancellable, awaitable handle over one unit of scheduled
// work. Tasks own the children they spawn; a task cannot complete while a
// child is live. Cancellation is cooperative: Cancel sets a flag and, if
// the task is parked, resumes it with a cancellation outcome. The running
// step is never interrupted.
type Task struct {
	id     uint64
	rt     *Runtime
	scope  *Scope
	parent *Task // back-reference only, no ownership

	co Coroutine

	mu          sync.Mutex
	state       State
	op          Op
	resumeVal   any
	pending     *Continuation
	running     bool
	resumed     bool
	timer       *time.Timer // armed by Delay while parked
	deadline    *time.Timer // armed by CancelAfter
	children    map[*Task]struct{}
	waiters     []*Continuation
	deferred    []func()
	value       any
	err         error
	started     time.Time
	panicked    bool
	cancelCause error
	done        chan struct{}

	queued   bool // guarded by rt.mu
	admitted bool // guarded by the owning scope's mutex

	cancelRequested atomic.Bool
}

func newTask(rt *Runtime, s *Scope, parent *Task, op Op) *Task {
	t := &Task{
		id:     rt.nextID.Add(1),
		rt:     rt,
		scope:  s,
		parent: parent,
		op:     op,
		state:  StateNew,
		done:   make(chan struct{}),
	}
	t.co.t = t
	rt.obs.TaskLaunched(t.id)
	return t
}

// deadTask builds a task that is already Cancelled, for launches that can
// no longer be admitted.
func deadTask(rt *Runtime, s *Scope, cause error) *Task {
	t := newTask(rt, s, nil, nil)
	t.transitionLocked(StateCancelled)
	t.err = wrapCanceled(cause)
	close(t.done)
	rt.obs.TaskFinished(t.id, 0, t.err, false)
	return t
}

// ID returns the task's process-unique identifier.
func (t *Task) ID() uint64 { return t.id }

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks the calling goroutine until the task is terminal and
// returns its result. Tasks joining other tasks should use Coroutine.Join
// instead, which suspends without holding a worker.
func (t *Task) Wait() (any, error) {
	<-t.done
	return t.value, t.err
}

// Cancel requests cooperative cancellation of t and all of its children,
// top-down. The request is monotonic: once set it is never reset. A task
// parked at a suspend point is resumed immediately with a cancellation
// outcome; a task mid-step observes the request at its next suspend point
// or via Coroutine.Canceled. Cancel always succeeds in intent; the effect
// lands asynchronously.
func (t *Task) Cancel(cause error) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	if !t.cancelRequested.Load() {
		t.cancelCause = wrapCanceled(cause)
		t.cancelRequested.Store(true)
	}
	children := t.childSnapshot()
	pending := t.pending
	timer := t.timer
	t.timer = nil
	running := t.running
	t.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	for _, c := range children {
		c.Cancel(cause)
	}
	if pending != nil {
		pending.tryResume(nil, Canceled)
	} else if !running {
		t.rt.enqueue(t)
	}
}

// CancelAfter arranges for t to be cancelled with
// context.DeadlineExceeded as the cause once d elapses, unless it
// terminates first. A timeout is exactly this: a race between the normal
// waiter and a timer-driven cancellation.
func (t *Task) CancelAfter(d time.Duration) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	if t.deadline != nil {
		t.deadline.Stop()
	}
	t.deadline = time.AfterFunc(d, func() { t.Cancel(context.DeadlineExceeded) })
	t.mu.Unlock()
}

func (t *Task) transitionLocked(to State) {
	from := t.state
	if !AllowedTransition(from, to) {
		panic(fmt.Sprintf("coro: disallowed transition for task %d: %s -> %s", t.id, from, to))
	}
	t.state = to
	t.rt.obs.TaskStateChanged(t.id, from, to)
}

func (t *Task) childSnapshot() []*Task {
	if len(t.children) == 0 {
		return nil
	}
	out := make([]*Task, 0, len(t.children))
	for c := range t.children {
		out = append(out, c)
	}
	return out
}

// step runs the task's current operation on the calling worker until it
// suspends or terminates.
func (t *Task) step() {
	t.mu.Lock()
	if t.state.Terminal() || t.state == StateCancelling {
		// Cancelling tasks only wait for children; childDone finishes them.
		t.mu.Unlock()
		return
	}
	if t.resumed {
		t.resumed = false
		t.rt.obs.TaskResumed(t.id)
	}
	if t.cancelRequested.Load() {
		t.finalizeCancel()
		return
	}
	if t.state == StateNew {
		t.transitionLocked(StateActive)
		t.started = time.Now()
	}
	op := t.op
	t.op = nil
	t.running = true
	t.mu.Unlock()

	res := t.call(op)

	t.mu.Lock()
	t.running = false
	if t.cancelRequested.Load() && (res.action == actionYield || res.action == actionSuspend) {
		// Cancellation wins at every suspend point.
		t.finalizeCancel()
		return
	}
	switch res.action {
	case actionEnd:
		t.value = res.value
		t.transitionLocked(StateCompleting)
		if t.cancelRequested.Load() {
			// A cancellation that raced the final step still wins; the
			// task must not settle as Completed with the request pending.
			t.finalizeCancel()
			return
		}
		if len(t.children) > 0 {
			t.mu.Unlock()
			return
		}
		t.finalize(StateCompleted)
	case actionFail:
		t.failLocked(res.err)
	case actionYield:
		t.op = res.next
		t.mu.Unlock()
		t.rt.enqueue(t)
	case actionSuspend:
		c := &Continuation{task: t, next: res.next}
		t.pending = c
		t.rt.obs.TaskSuspended(t.id)
		t.mu.Unlock()
		if res.register != nil {
			res.register(c)
		}
	}
}

func (t *Task) call(op Op) (res Result) {
	if t.rt.opts.PanicAsError {
		defer func() {
			if r := recover(); r != nil {
				t.mu.Lock()
				t.panicked = true
				t.mu.Unlock()
				res = Result{action: actionFail, err: PanicError{TaskID: t.id, Value: r}}
			}
		}()
	}
	return op(&t.co)
}

// failLocked records a failure. A failure that raced a cancellation
// request keeps the failure as the task's result; the error carries the
// diagnostic, and the terminal state is Cancelled either way. The caller
// holds t.mu; failLocked releases it.
func (t *Task) failLocked(err error) {
	t.err = err
	t.transitionLocked(StateCancelling)
	if len(t.children) > 0 {
		children := t.childSnapshot()
		t.mu.Unlock()
		for _, c := range children {
			c.Cancel(err)
		}
		return
	}
	t.finalize(StateCancelled)
}

// finalizeCancel drives the task toward Cancelled after a cancellation
// request. The caller holds t.mu; finalizeCancel releases it.
func (t *Task) finalizeCancel() {
	cause := t.cancelCause
	if cause == nil {
		cause = Canceled
	}
	switch t.state {
	case StateNew:
		// Cancelled before it ever ran; skips Active entirely.
		t.err = cause
		t.finalize(StateCancelled)
	case StateActive, StateCompleting:
		t.transitionLocked(StateCancelling)
		if t.err == nil {
			t.err = cause
		}
		if len(t.children) > 0 {
			children := t.childSnapshot()
			t.mu.Unlock()
			for _, c := range children {
				c.Cancel(cause)
			}
			return
		}
		t.finalize(StateCancelled)
	default:
		t.mu.Unlock()
	}
}

// finalize publishes the terminal state and result. The caller holds t.mu
// and must have set value/err beforehand; finalize releases the lock, runs
// deferred cleanups, resumes joiners, and notifies the owner.
func (t *Task) finalize(to State) {
	t.transitionLocked(to)
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.deadline != nil {
		t.deadline.Stop()
		t.deadline = nil
	}
	t.pending = nil
	waiters := t.waiters
	t.waiters = nil
	deferred := t.deferred
	t.deferred = nil
	err := t.err
	panicked := t.panicked
	var dur time.Duration
	if !t.started.IsZero() {
		dur = time.Since(t.started)
	}
	close(t.done)
	t.mu.Unlock()

	for i := len(deferred) - 1; i >= 0; i-- {
		deferred[i]()
	}
	for _, c := range waiters {
		c.tryResume(nil, nil)
	}
	t.rt.obs.TaskFinished(t.id, dur, err, panicked)

	if t.parent != nil {
		t.parent.childDone(t)
	} else if t.scope != nil {
		t.scope.taskDone(t)
	}
	if err != nil && !errors.Is(err, Canceled) && t.scope != nil {
		t.scope.fail(err)
	}
}

// childDone removes a terminal child and, if it was the last one, settles
// the parent's pending terminal state.
func (t *Task) childDone(child *Task) {
	t.mu.Lock()
	delete(t.children, child)
	if len(t.children) > 0 {
		t.mu.Unlock()
		return
	}
	switch t.state {
	case StateCompleting:
		if t.cancelRequested.Load() {
			cause := t.cancelCause
			if cause == nil {
				cause = Canceled
			}
			t.transitionLocked(StateCancelling)
			if t.err == nil {
				t.err = cause
			}
			t.finalize(StateCancelled)
			return
		}
		t.finalize(StateCompleted)
	case StateCancelling:
		t.finalize(StateCancelled)
	default:
		t.mu.Unlock()
	}
}

// deliver applies a resumption outcome and re-enqueues the task. Called
// from Continuation.Resume after the single-shot guard.
func (t *Task) deliver(c *Continuation, v any, err error) {
	t.mu.Lock()
	if t.pending != c {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	timer := t.timer
	t.timer = nil
	switch {
	case err == nil:
		t.resumeVal = v
		t.op = c.next
		t.resumed = true
	case errors.Is(err, Canceled):
		if !t.cancelRequested.Load() {
			t.cancelCause = wrapCanceled(err)
			t.cancelRequested.Store(true)
		}
		t.resumed = true
	default:
		failErr := err
		t.op = func(co *Coroutine) Result { return co.Fail(failErr) }
		t.resumed = true
	}
	t.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	t.rt.clearWait(t)
	t.rt.enqueue(t)
}

// A Coroutine is the in-task view of a running Task, passed to every Op.
// It is only valid for the duration of the call and must not be retained.
type Coroutine struct {
	t *Task
}

// Task returns the handle of the running task.
func (co *Coroutine) Task() *Task { return co.t }

// ID returns the running task's identifier.
func (co *Coroutine) ID() uint64 { return co.t.id }

// Canceled reports whether cancellation has been requested. Ops with
// computational loops must check this at each iteration; the runtime only
// checks on their behalf at suspend points.
func (co *Coroutine) Canceled() bool { return co.t.cancelRequested.Load() }

// ResumeValue returns the value delivered by the most recent resume, if
// the previous suspend point was resumed with one.
func (co *Coroutine) ResumeValue() any { return co.t.resumeVal }

// Defer registers f to run when the task reaches a terminal state, on
// every path: completion, failure and cancellation. Deferred functions
// run in LIFO order.
func (co *Coroutine) Defer(f func()) {
	t := co.t
	t.mu.Lock()
	t.deferred = append(t.deferred, f)
	t.mu.Unlock()
}

// Spawn launches a child task owned by the running task. The parent
// cannot reach Completed until every child is terminal, and cancelling
// the parent cancels its children top-down. If the parent is already
// being cancelled the child is born Cancelled.
func (co *Coroutine) Spawn(op Op) *Task {
	if op == nil {
		panic("coro: Spawn(nil): undefined behavior")
	}
	t := co.t
	if t.cancelRequested.Load() {
		return deadTask(t.rt, t.scope, Canceled)
	}
	child := newTask(t.rt, t.scope, t, op)
	t.mu.Lock()
	if t.children == nil {
		t.children = make(map[*Task]struct{})
	}
	t.children[child] = struct{}{}
	t.mu.Unlock()
	t.rt.enqueue(child)
	return child
}

// End completes the task with no value.
func (co *Coroutine) End() Result {
	return Result{action: actionEnd}
}

// Return completes the task with v as its result value.
func (co *Coroutine) Return(v any) Result {
	return Result{action: actionEnd, value: v}
}

// Fail terminates the task with err as its failure cause. Fail(nil) is
// equivalent to End.
func (co *Coroutine) Fail(err error) Result {
	if err == nil {
		return co.End()
	}
	return Result{action: actionFail, err: err}
}

// Yield reschedules the task at the back of the ready queue and continues
// with next. Yield is a suspend point: cancellation is observed here.
func (co *Coroutine) Yield(next Op) Result {
	if next == nil {
		panic("coro: Yield(nil): undefined behavior")
	}
	return Result{action: actionYield, next: next}
}
