package coro

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLaunchRunsToCompletion(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	ran := atomic.Int32{}
	task := s.Launch(Do(func() { ran.Add(1) }))
	if err := s.Close(AwaitAll); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ran.Load(); got != 1 {
		t.Fatalf("expected task to run once, got %d", got)
	}
	if st := task.State(); st != StateCompleted {
		t.Fatalf("expected Completed, got %s", st)
	}
}

func TestReturnValueDelivered(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	task := s.Launch(func(co *Coroutine) Result { return co.Return(42) })
	v, err := task.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %v", v)
	}
	_ = s.Close(AwaitAll)
}

func TestFIFOOrderSingleWorker(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(1))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	const n = 20
	ran := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		s.Launch(Do(func() { ran <- i }))
	}
	if err := s.Close(AwaitAll); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(ran)
	want := 0
	for got := range ran {
		if got != want {
			t.Fatalf("tasks ran out of order: got %d, want %d", got, want)
		}
		want++
	}
	if want != n {
		t.Fatalf("expected %d tasks to run, got %d", n, want)
	}
}

func TestManyTasksFewWorkers(t *testing.T) {
	t.Parallel()
	const workers = 8
	const tasks = 10_000

	rt := NewRuntime(WithWorkers(workers))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	var cur, maxSeen, completed atomic.Int64
	for i := 0; i < tasks; i++ {
		s.Launch(func(co *Coroutine) Result {
			c := cur.Add(1)
			for {
				m := maxSeen.Load()
				if c <= m || maxSeen.CompareAndSwap(m, c) {
					break
				}
			}
			cur.Add(-1)
			return co.Delay(10*time.Millisecond, func(co *Coroutine) Result {
				completed.Add(1)
				return co.End()
			})
		})
	}
	if err := s.Close(AwaitAll); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := completed.Load(); got != tasks {
		t.Fatalf("expected %d completions, got %d", tasks, got)
	}
	if observed := maxSeen.Load(); observed > workers {
		t.Fatalf("observed %d concurrent steps, pool size is %d", observed, workers)
	}
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	s := NewScope(rt, context.Background(), FailFast)
	s.Launch(Nop())
	_ = s.Close(AwaitAll)
	rt.Stop()
	rt.Stop()
}

func TestYieldReschedulesFairly(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(1))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	var order []string
	record := func(tag string) { order = append(order, tag) }

	// Single worker: a yields, b runs, then a's continuation runs.
	s.Launch(func(co *Coroutine) Result {
		record("a1")
		return co.Yield(Do(func() { record("a2") }))
	})
	s.Launch(Do(func() { record("b") }))
	if err := s.Close(AwaitAll); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a1", "b", "a2"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}
