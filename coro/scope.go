package coro

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Policy selects how a scope reacts to a child task failure.
type Policy int

const (
	// FailFast cancels every task in the scope when one of them fails.
	FailFast Policy = iota
	// Supervisor leaves siblings untouched by one child's failure; the
	// failure stays in the failed task's result and in Close's return.
	Supervisor
)

// ClosePolicy selects how Close treats tasks that are still live.
type ClosePolicy int

const (
	// AwaitAll waits for every task to reach a terminal state on its own.
	AwaitAll ClosePolicy = iota
	// CancelAll requests cancellation of every task, then waits.
	CancelAll
)

// ScopeOption configures a Scope.
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	maxInFlight int64
}

// WithMaxInFlight bounds how many of the scope's tasks may be admitted to
// the runtime at once; excess launches queue in launch order and are
// admitted as slots free up. Zero means no limit.
func WithMaxInFlight(n int) ScopeOption {
	return func(o *scopeOptions) { o.maxInFlight = int64(n) }
}

// A Scope owns the tasks launched under it and defines a structured
// cancellation boundary: closing the scope waits for every owned task to
// reach a terminal state, and cancellation or failure propagates over all
// of them according to the scope's Policy.
//
// There is deliberately no ambient global scope; callers create scopes
// explicitly and thread them through call sites, so every task has a
// lifecycle someone is responsible for.
type Scope struct {
	rt        *Runtime
	ctx       context.Context
	cancelCtx context.CancelFunc
	policy    Policy
	lim       *semaphore.Weighted

	mu        sync.Mutex
	tasks     map[*Task]struct{}
	backlog   []*Task
	firstErr  error
	canceled  bool
	closed    bool
	stopWatch func() bool
	wg        sync.WaitGroup
}

// NewScope creates a scope bound to rt. The parent context is bridged:
// when parent is cancelled, the scope is cancelled with the parent's
// cause.
func NewScope(rt *Runtime, parent context.Context, policy Policy, optFns ...ScopeOption) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	var opts scopeOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Scope{
		rt:        rt,
		ctx:       ctx,
		cancelCtx: cancel,
		policy:    policy,
		tasks:     make(map[*Task]struct{}),
	}
	if opts.maxInFlight > 0 {
		s.lim = semaphore.NewWeighted(opts.maxInFlight)
	}
	s.stopWatch = context.AfterFunc(parent, func() {
		s.Cancel(context.Cause(parent))
	})
	rt.obs.ScopeCreated()
	return s
}

// Context returns a context that is cancelled together with the scope,
// for interop with context-aware code.
func (s *Scope) Context() context.Context { return s.ctx }

// Launch creates a task running op, owned by the scope, and schedules it.
// Launch never blocks the caller. On a closed scope the returned task is
// already Cancelled with ErrScopeClosed as its cause.
func (s *Scope) Launch(op Op) *Task {
	if op == nil {
		panic("coro: Launch(nil): undefined behavior")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return deadTask(s.rt, s, ErrScopeClosed)
	}
	t := newTask(s.rt, s, nil, op)
	s.tasks[t] = struct{}{}
	s.wg.Add(1)
	canceled := s.canceled
	cause := s.firstErr
	admitted := s.lim == nil || s.lim.TryAcquire(1)
	if admitted {
		t.admitted = true
	} else {
		s.backlog = append(s.backlog, t)
	}
	s.mu.Unlock()

	if canceled {
		t.Cancel(cause)
		return t
	}
	if admitted {
		s.rt.enqueue(t)
	}
	return t
}

// Cancel requests cancellation of every task in the scope. The first
// non-nil cause is kept and reported by Close. Cancel is idempotent.
func (s *Scope) Cancel(cause error) {
	s.mu.Lock()
	wasCanceled := s.canceled
	s.canceled = true
	if s.firstErr == nil && cause != nil {
		s.firstErr = cause
	}
	first := s.firstErr
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	s.cancelCtx()
	if !wasCanceled {
		s.rt.obs.ScopeCancelled(first)
	}
	for _, t := range tasks {
		t.Cancel(cause)
	}
}

// Close ends the scope. No further launch is admitted, and the call
// blocks until every owned task is terminal: AwaitAll lets tasks finish
// on their own, CancelAll requests cancellation of all of them first.
// Close returns the scope's first failure or cancellation cause, if any.
//
// Close blocks the calling goroutine and must not be called from inside a
// task operation; use Join from there instead.
func (s *Scope) Close(policy ClosePolicy) error {
	s.mu.Lock()
	s.closed = true
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if policy == CancelAll {
		s.Cancel(nil)
	}
	start := time.Now()
	s.wg.Wait()
	s.cancelCtx()
	s.rt.obs.ScopeClosed(time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// fail records a task failure and, under FailFast, cancels the rest of
// the scope.
func (s *Scope) fail(err error) {
	s.mu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	shouldCancel := s.policy == FailFast
	cause := s.firstErr
	s.mu.Unlock()
	if shouldCancel {
		s.Cancel(cause)
	}
}

// taskDone removes a terminal top-level task, releases its admission slot
// and admits backlogged tasks into the freed capacity.
func (s *Scope) taskDone(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t)
	if t.admitted && s.lim != nil {
		s.lim.Release(1)
	}
	t.admitted = false
	var next []*Task
	if s.lim != nil {
		for len(s.backlog) > 0 && s.lim.TryAcquire(1) {
			nt := s.backlog[0]
			s.backlog[0] = nil
			s.backlog = s.backlog[1:]
			if nt.State().Terminal() {
				// Cancelled while waiting for admission.
				s.lim.Release(1)
				continue
			}
			nt.admitted = true
			next = append(next, nt)
		}
	}
	s.mu.Unlock()

	for _, nt := range next {
		s.rt.enqueue(nt)
	}
	s.wg.Done()
}
