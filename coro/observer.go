package coro

import "time"

// Observer receives lifecycle events from a Runtime and the scopes bound
// to it. Implementations must be safe for concurrent use and must not
// block; workers call them inline.
type Observer interface {
	ScopeCreated()
	ScopeCancelled(cause error)
	ScopeClosed(wait time.Duration)
	TaskLaunched(id uint64)
	TaskStateChanged(id uint64, from, to State)
	TaskSuspended(id uint64)
	TaskResumed(id uint64)
	TaskFinished(id uint64, dur time.Duration, err error, panicked bool)
}

type nopObserver struct{}

func (nopObserver) ScopeCreated()                                   {}
func (nopObserver) ScopeCancelled(error)                            {}
func (nopObserver) ScopeClosed(time.Duration)                       {}
func (nopObserver) TaskLaunched(uint64)                             {}
func (nopObserver) TaskStateChanged(uint64, State, State)           {}
func (nopObserver) TaskSuspended(uint64)                            {}
func (nopObserver) TaskResumed(uint64)                              {}
func (nopObserver) TaskFinished(uint64, time.Duration, error, bool) {}
