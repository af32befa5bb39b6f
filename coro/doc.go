// Package coro implements a cooperative coroutine runtime with structured
// cancellation. A Runtime drains a FIFO ready queue with a bounded pool of
// workers; Tasks run to their next suspend point without ever blocking a
// worker; Scopes own the tasks they launch, provide a join point (Close),
// and propagate cancellation and failures predictably according to a policy.
package coro
