// File: internal/concurrency/coroutine.go
// Package concurrency - stackful coroutine with symmetric transfer.
// License: Apache-2.0

package concurrency

import (
	"github.com/nisseweb/nisse/api"
)

// canceled unwinds a dropped coroutine's stack. Yield.Do panics with it when
// the coroutine is dropped while suspended; the body goroutine recovers it
// at the top of its stack and exits.
type canceled struct{}

// Body is the coroutine's entry point. It yields through y and may simply
// return, which is equivalent to a final Remove yield.
type Body func(y *Yield)

// Coroutine runs its body on a dedicated goroutine and transfers control
// symmetrically with the resuming worker: exactly one of the two runs at any
// instant, and one YieldAction passes at each suspension.
//
// Resume must not be called concurrently. The orchestrator guarantees this
// with the at-most-one-armed-interest invariant: a connection's readiness
// fires once per arm, so at most one worker holds the coroutine at a time.
type Coroutine struct {
	fd      int
	body    Body
	resume  chan struct{}
	actions chan api.YieldAction
	cancel  chan struct{}
	started bool
	dropped bool
	done    bool
}

// NewCoroutine prepares a coroutine for fd. The body does not start until
// the first Resume.
func NewCoroutine(fd int, body Body) *Coroutine {
	return &Coroutine{
		fd:      fd,
		body:    body,
		resume:  make(chan struct{}),
		actions: make(chan api.YieldAction),
		cancel:  make(chan struct{}),
	}
}

// Resume runs the body until its next yield or return and reports the
// yielded action. The first call begins the body; later calls continue from
// the last suspension. Resuming a finished coroutine reports Remove.
func (c *Coroutine) Resume() api.YieldAction {
	if c.done {
		return api.YieldAction{State: api.Remove, Fd: c.fd}
	}

	if !c.started {
		c.started = true
		go c.run()
	} else {
		c.resume <- struct{}{}
	}

	action := <-c.actions
	if action.State == api.Remove {
		c.done = true
	}
	return action
}

// Done reports whether the body has finished.
func (c *Coroutine) Done() bool {
	return c.done
}

// Drop abandons the coroutine: if the body goroutine is parked at a yield,
// its next scheduling point panics with canceled, unwinding the stack. Safe
// to call only when no worker is inside Resume and no interest for the fd is
// armed. A body that yielded a final Remove and is parked waiting for a
// resume that never comes is released here too.
func (c *Coroutine) Drop() {
	c.done = true
	if c.started && !c.dropped {
		c.dropped = true
		close(c.cancel)
	}
}

func (c *Coroutine) run() {
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(canceled); ok {
				return
			}
			// A panic escaping the body runs on this goroutine, out of
			// reach of the worker's recovery. Contain it here and end the
			// connection; the resumer still needs its action.
			c.finish()
		}
	}()

	c.body(&Yield{c: c})
	c.finish()
}

// finish delivers the implicit Remove for a body that returned without a
// final yield. A dropped coroutine has no resumer waiting, so finish must
// not block forever.
func (c *Coroutine) finish() {
	select {
	case c.actions <- api.YieldAction{State: api.Remove, Fd: c.fd}:
	case <-c.cancel:
	}
}

// Yield is the coroutine-side endpoint of the transfer.
type Yield struct {
	c *Coroutine
}

// Do suspends the body, handing action to the resumer, and returns when the
// coroutine is next resumed.
func (y *Yield) Do(action api.YieldAction) {
	select {
	case y.c.actions <- action:
	case <-y.c.cancel:
		panic(canceled{})
	}
	select {
	case <-y.c.resume:
	case <-y.c.cancel:
		panic(canceled{})
	}
}
