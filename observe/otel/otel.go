package otel

import (
	"time"

	"github.com/NetPo4ki/go-coro/coro"
)

// Nop is a no-op implementation of the coro.Observer interface.
// It serves as a placeholder for an OpenTelemetry-backed observer without
// adding dependencies.
type Nop struct{}

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

func (*Nop) ScopeCreated()                                   {}
func (*Nop) ScopeCancelled(error)                            {}
func (*Nop) ScopeClosed(time.Duration)                       {}
func (*Nop) TaskLaunched(uint64)                             {}
func (*Nop) TaskStateChanged(uint64, coro.State, coro.State) {}
func (*Nop) TaskSuspended(uint64)                            {}
func (*Nop) TaskResumed(uint64)                              {}
func (*Nop) TaskFinished(uint64, time.Duration, error, bool) {}
