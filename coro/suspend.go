package coro

import "time"

// Suspend parks the task and hands its Continuation to register, which
// must arrange for exactly one external Resume call (timer expiry, I/O
// readiness, a completion signal). The worker is freed immediately. When
// the continuation delivers a value the task continues with next;
// cancellation while parked resumes the task with a cancellation outcome
// instead. A nil register parks the task with no waiter at all, so only
// cancellation can end it.
//
// Within a single task, suspend points resume in the order they were
// reached: a task has at most one pending continuation at a time.
func (co *Coroutine) Suspend(next Op, register func(*Continuation)) Result {
	if next == nil {
		panic("coro: Suspend(nil): missing continuation")
	}
	return Result{action: actionSuspend, next: next, register: register}
}

// Delay suspends the task for d, then continues with next. The wait is
// cooperative: no worker is held, and cancellation during the delay
// resumes the task immediately rather than waiting for expiry.
func (co *Coroutine) Delay(d time.Duration, next Op) Result {
	if next == nil {
		panic("coro: Delay(nil): missing continuation")
	}
	return Result{action: actionSuspend, next: next, register: func(c *Continuation) {
		timer := time.AfterFunc(d, func() { c.tryResume(nil, nil) })
		t := c.task
		t.mu.Lock()
		if t.pending == c {
			t.timer = timer
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		// Resumed (or cancelled) before the timer was parked.
		timer.Stop()
	}}
}

// Join suspends the task until other reaches a terminal state, then
// continues with next. Join establishes ordering only, never ownership;
// read other's outcome from its handle afterwards. Reciprocal joins
// cannot progress: the Join call that closes a wait cycle fails every
// task along it with a DeadlockError instead of suspending forever, and a
// self-join fails immediately.
func (co *Coroutine) Join(other *Task, next Op) Result {
	if next == nil {
		panic("coro: Join(nil): missing continuation")
	}
	if other == nil {
		panic("coro: Join(nil task): undefined behavior")
	}
	joiner := co.t
	if other == joiner {
		return Result{action: actionFail, err: DeadlockError{Cycle: []uint64{joiner.id}}}
	}
	return Result{action: actionSuspend, next: next, register: func(c *Continuation) {
		joiner.rt.addJoin(joiner, other, c)
	}}
}
