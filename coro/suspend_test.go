package coro

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDelayCompletes(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	start := time.Now()
	task := s.Launch(func(co *Coroutine) Result {
		return co.Delay(30*time.Millisecond, Nop())
	})
	if _, err := task.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("delay returned early after %v", elapsed)
	}
	_ = s.Close(AwaitAll)
}

func TestDelayCancelledBeforeExpiry(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	task := s.Launch(func(co *Coroutine) Result {
		return co.Delay(200*time.Millisecond, Nop())
	})
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	task.Cancel(nil)
	_, err := task.Wait()
	if !errors.Is(err, Canceled) {
		t.Fatalf("expected cancellation outcome, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("cancellation waited for the timer: %v", elapsed)
	}
	_ = s.Close(AwaitAll)
}

func TestJoinOrdersAfterTarget(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	target := s.Launch(func(co *Coroutine) Result {
		return co.Delay(30*time.Millisecond, func(co *Coroutine) Result {
			return co.Return("payload")
		})
	})
	joiner := s.Launch(func(co *Coroutine) Result {
		return co.Join(target, func(co *Coroutine) Result {
			if st := target.State(); !st.Terminal() {
				return co.Fail(errors.New("joined before target was terminal"))
			}
			v, _ := target.Wait() // terminal, returns immediately
			return co.Return(v)
		})
	})
	v, err := joiner.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "payload" {
		t.Fatalf("expected target's payload, got %v", v)
	}
	_ = s.Close(AwaitAll)
}

func TestJoinAlreadyTerminal(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	target := s.Launch(Nop())
	<-target.Done()
	joiner := s.Launch(func(co *Coroutine) Result {
		return co.Join(target, Nop())
	})
	if _, err := joiner.Wait(); err != nil {
		t.Fatalf("join on a terminal task should succeed, got %v", err)
	}
	_ = s.Close(AwaitAll)
}

func TestDoubleResumeFailsSecondCall(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	contCh := make(chan *Continuation, 1)
	task := s.Launch(func(co *Coroutine) Result {
		return co.Suspend(func(co *Coroutine) Result {
			return co.Return(co.ResumeValue())
		}, func(c *Continuation) {
			contCh <- c
		})
	})
	cont := <-contCh
	if err := cont.Resume("first", nil); err != nil {
		t.Fatalf("first resume failed: %v", err)
	}
	if err := cont.Resume("second", nil); !errors.Is(err, ErrInvalidResume) {
		t.Fatalf("expected ErrInvalidResume, got %v", err)
	}
	v, err := task.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "first" {
		t.Fatalf("first resumption must stand, got %v", v)
	}
	_ = s.Close(AwaitAll)
}

func TestResumeWithErrorFailsTask(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), Supervisor)

	boom := errors.New("io failed")
	contCh := make(chan *Continuation, 1)
	task := s.Launch(func(co *Coroutine) Result {
		return co.Suspend(Nop(), func(c *Continuation) { contCh <- c })
	})
	cont := <-contCh
	if err := cont.Resume(nil, boom); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if _, err := task.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected task to fail with the resume error, got %v", err)
	}
	_ = s.Close(AwaitAll)
}

func TestMutualJoinReportsDeadlock(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), Supervisor)

	var ta, tb atomic.Pointer[Task]
	joinOther := func(other *atomic.Pointer[Task]) Op {
		return func(co *Coroutine) Result {
			return co.Delay(10*time.Millisecond, func(co *Coroutine) Result {
				return co.Join(other.Load(), Nop())
			})
		}
	}
	a := s.Launch(joinOther(&tb))
	b := s.Launch(joinOther(&ta))
	ta.Store(a)
	tb.Store(b)

	for _, task := range []*Task{a, b} {
		select {
		case <-task.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("mutually joined tasks hung instead of reporting a deadlock")
		}
		_, err := task.Wait()
		var de DeadlockError
		if !errors.As(err, &de) {
			t.Fatalf("expected DeadlockError, got %v", err)
		}
		if len(de.Cycle) != 2 {
			t.Fatalf("expected a 2-task cycle, got %v", de.Cycle)
		}
	}
	_ = s.Close(AwaitAll)
}

func TestSelfJoinFailsImmediately(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(2))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), Supervisor)

	task := s.Launch(func(co *Coroutine) Result {
		return co.Join(co.Task(), Nop())
	})
	_, err := task.Wait()
	var de DeadlockError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeadlockError on self-join, got %v", err)
	}
	if len(de.Cycle) != 1 {
		t.Fatalf("expected a 1-task cycle, got %v", de.Cycle)
	}
	_ = s.Close(AwaitAll)
}

func TestSequentialResumeOrderWithinTask(t *testing.T) {
	t.Parallel()
	rt := NewRuntime(WithWorkers(4))
	defer rt.Stop()
	s := NewScope(rt, context.Background(), FailFast)

	var order []int
	task := s.Launch(Seq(
		Do(func() { order = append(order, 1) }),
		func(co *Coroutine) Result {
			return co.Delay(5*time.Millisecond, Do(func() { order = append(order, 2) }))
		},
		func(co *Coroutine) Result {
			return co.Delay(5*time.Millisecond, Do(func() { order = append(order, 3) }))
		},
	))
	if _, err := task.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("suspend points resumed out of order: %v", order)
		}
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 steps, got %v", order)
	}
	_ = s.Close(AwaitAll)
}
