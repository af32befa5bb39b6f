package coro

// Then returns an Op that works on op and, once it ends, continues with
// next in the same task. Failures short-circuit; suspend points are
// preserved.
func (op Op) Then(next Op) Op {
	if next == nil {
		panic("coro: Then(nil): undefined behavior")
	}
	return func(co *Coroutine) Result {
		res := op(co)
		switch res.action {
		case actionEnd:
			return next(co)
		case actionFail:
			return res
		default:
			res.next = res.next.Then(next)
			return res
		}
	}
}

// Seq returns an Op that works through ops in order. The task's result is
// that of the last op, or the first failure.
func Seq(ops ...Op) Op {
	switch len(ops) {
	case 0:
		return Nop()
	case 1:
		return ops[0]
	}
	op := ops[len(ops)-1]
	for i := len(ops) - 2; i >= 0; i-- {
		op = ops[i].Then(op)
	}
	return op
}

// Do returns an Op that calls f and completes.
func Do(f func()) Op {
	return func(co *Coroutine) Result {
		f()
		return co.End()
	}
}

// Nop returns an Op that completes without doing anything.
func Nop() Op {
	return func(co *Coroutine) Result {
		return co.End()
	}
}

// Never returns an Op that suspends forever. Only cancellation ends it.
func Never() Op {
	var never Op
	never = func(co *Coroutine) Result {
		return co.Suspend(never, nil)
	}
	return never
}
