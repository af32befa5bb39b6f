// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics on top of a coro scope. It enables incremental migration of
// errgroup-based code onto the runtime without changing call sites.
package errgroup

import (
	"context"

	"github.com/NetPo4ki/go-coro/coro"
)

// Group is an errgroup-like wrapper over a FailFast scope.
//
// Functions passed to Go run as single-step tasks on runtime workers, so
// they should not block for long; blocking holds a worker for the whole
// call.
type Group struct {
	s   *coro.Scope
	ctx context.Context
}

// WithContext creates a Group whose tasks run on rt. The returned context
// is cancelled when any function passed to Go returns a non-nil error.
func WithContext(ctx context.Context, rt *coro.Runtime) (*Group, context.Context) {
	s := coro.NewScope(rt, ctx, coro.FailFast)
	g := &Group{s: s, ctx: s.Context()}
	return g, g.ctx
}

// Go starts a function. It should return a non-nil error to signal failure.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	g.s.Launch(func(co *coro.Coroutine) coro.Result {
		return co.Fail(f())
	})
}

// Wait blocks until all functions have returned. It returns the first
// non-nil error (fail-fast semantics) or nil on success.
func (g *Group) Wait() error {
	return g.s.Close(coro.AwaitAll)
}
