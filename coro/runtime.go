package coro

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Option configures a Runtime.
type Option func(*Options)

// Options holds Runtime configuration.
type Options struct {
	// Workers is the number of pool workers. Zero or negative means
	// GOMAXPROCS. The worker count is fixed for the life of the Runtime
	// and independent of the number of live tasks.
	Workers int
	// Observer receives lifecycle events; nil means no observation.
	Observer Observer
	// PanicAsError converts panics in task operations into a PanicError
	// failure of the task. When false, panics propagate and crash the
	// worker.
	PanicAsError bool
}

func defaultOptions() Options {
	return Options{Workers: runtime.GOMAXPROCS(0), PanicAsError: true}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

// WithObserver attaches a lifecycle observer.
func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

// WithPanicAsError controls panic conversion.
func WithPanicAsError(v bool) Option { return func(o *Options) { o.PanicAsError = v } }

// A Runtime schedules tasks onto a bounded pool of workers.
//
// Ready tasks wait in a FIFO queue; a worker pops one and runs it until it
// suspends or terminates, then immediately picks the next ready task.
// Workers never block on timers, joins or other waits: suspension parks
// the task and frees the worker.
type Runtime struct {
	opts Options
	obs  Observer

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Task
	stopped bool

	wg     sync.WaitGroup
	once   sync.Once
	nextID atomic.Uint64

	// joinMu guards the wait-for graph used for deadlock detection.
	// Lock order: joinMu may be taken while no task mutex is held; task
	// mutexes may be taken under joinMu, never the other way around.
	joinMu sync.Mutex
	waits  map[*Task]*waitEdge
}

type waitEdge struct {
	to   *Task
	cont *Continuation
}

// NewRuntime creates a Runtime and starts its worker pool.
func NewRuntime(optFns ...Option) *Runtime {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	rt := &Runtime{opts: opts, obs: opts.Observer, waits: make(map[*Task]*waitEdge)}
	if rt.obs == nil {
		rt.obs = nopObserver{}
	}
	rt.cond = sync.NewCond(&rt.mu)
	rt.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go rt.worker()
	}
	return rt
}

// Workers returns the configured pool size.
func (rt *Runtime) Workers() int { return rt.opts.Workers }

// Stop drains the ready queue and joins the workers. Suspended tasks that
// resume after Stop are dropped, so callers should close all scopes first.
// Stop is idempotent.
func (rt *Runtime) Stop() {
	rt.once.Do(func() {
		rt.mu.Lock()
		rt.stopped = true
		rt.cond.Broadcast()
		rt.mu.Unlock()
		rt.wg.Wait()
	})
}

func (rt *Runtime) worker() {
	defer rt.wg.Done()
	rt.mu.Lock()
	for {
		for len(rt.queue) == 0 && !rt.stopped {
			rt.cond.Wait()
		}
		if len(rt.queue) == 0 {
			rt.mu.Unlock()
			return
		}
		t := rt.queue[0]
		rt.queue[0] = nil
		rt.queue = rt.queue[1:]
		t.queued = false
		rt.mu.Unlock()

		t.step()

		rt.mu.Lock()
	}
}

// enqueue adds t to the ready queue in FIFO position. It never blocks and
// is idempotent while t is already queued.
func (rt *Runtime) enqueue(t *Task) {
	rt.mu.Lock()
	if rt.stopped || t.queued {
		rt.mu.Unlock()
		return
	}
	t.queued = true
	rt.queue = append(rt.queue, t)
	rt.cond.Signal()
	rt.mu.Unlock()
}

// addJoin parks c until other terminates and records the wait-for edge
// t -> other. If the new edge closes a cycle, every member of the cycle is
// resumed with a DeadlockError instead of being left suspended forever.
func (rt *Runtime) addJoin(t, other *Task, c *Continuation) {
	// Registration and edge insertion happen under joinMu as one unit.
	// other's finalize clears t's edge via clearWait, which also takes
	// joinMu, so the edge cannot go stale between the two steps.
	rt.joinMu.Lock()
	other.mu.Lock()
	if other.state.Terminal() {
		other.mu.Unlock()
		rt.joinMu.Unlock()
		c.tryResume(nil, nil)
		return
	}
	other.waiters = append(other.waiters, c)
	other.mu.Unlock()

	rt.waits[t] = &waitEdge{to: other, cont: c}

	ids := []uint64{t.id}
	conts := []*Continuation{c}
	members := []*Task{t}
	found := false
	for cur := other; ; {
		if cur == t {
			found = true
			break
		}
		e, ok := rt.waits[cur]
		if !ok {
			break
		}
		ids = append(ids, cur.id)
		conts = append(conts, e.cont)
		members = append(members, cur)
		cur = e.to
	}
	if found {
		for _, m := range members {
			delete(rt.waits, m)
		}
	}
	rt.joinMu.Unlock()

	if found {
		derr := DeadlockError{Cycle: ids}
		for _, cc := range conts {
			cc.tryResume(nil, derr)
		}
	}
}

// clearWait removes t's outgoing wait-for edge, if any.
func (rt *Runtime) clearWait(t *Task) {
	rt.joinMu.Lock()
	delete(rt.waits, t)
	rt.joinMu.Unlock()
}
