package utils

// This file is forked from https://github.com/golang/go/blob/bc593eac2dc63d979a575eccb16c7369a5ff81e0/src/sync/once.go.

import (
	"sync"
	"sync/atomic"
)

// OnceAgain is an object that will perform only one action "in flight". It's
// basically the same as sync.Once, but is automatically reused when the
// function was executed and everyone who waited has left.
// Important: This is somewhat racy when used heavily as it only resets _after_
// everyone who waited has left. So, while some goroutines are waiting to be
// activated again to leave the waiting state, other goroutines will call Do()
// without executing the function again.
type OnceAgain struct {
	// done indicates whether the action has been performed.
	// It is first in the struct because it is used in the hot path.
	// The hot path is inlined at every call site.
	// Placing done first allows more compact instructions on some architectures (amd64/x86),
	// and fewer instructions (to calculate offset) on other architectures.
	done uint32

	// Number of waiters waiting for the function to finish. The last waiter resets done.
	waiters int32

	m sync.Mutex
}

// Do calls the function f unless a call to f is already in flight on this
// OnceAgain. Callers that arrive while f is running wait for it to finish and
// return without calling f themselves, even if they passed a different f.
// Once the in-flight call has finished and every waiting caller has left,
// the next call to Do calls f again.
//
// Since f is niladic, it may be necessary to use a function literal to
// capture the arguments to a function to be invoked by Do:
//
//	config.once.Do(func() { config.init(filename) })
//
// Because no call to Do returns until the in-flight call to f returns, if f
// causes Do to be called, it will deadlock.
//
// If f panics, Do considers it to have returned; the reset after the last
// waiter leaves happens the same way.
func (o *OnceAgain) Do(f func()) {
	// Note: Here is an incorrect implementation of Do:
	//
	//	if atomic.CompareAndSwapUint32(&o.done, 0, 1) {
	//		f()
	//	}
	//
	// Do guarantees that when it returns, f has finished.
	// This implementation would not implement that guarantee:
	// given two simultaneous calls, the winner of the cas would
	// call f, and the second would return immediately, without
	// waiting for the first's call to f to complete.
	// This is why the slow path falls back to a mutex, and why
	// the atomic.StoreUint32 must be delayed until after f returns.

	if atomic.LoadUint32(&o.done) == 0 {
		// Outlined slow-path to allow inlining of the fast-path.
		o.doSlow(f)
	}
}

func (o *OnceAgain) doSlow(f func()) {
	atomic.AddInt32(&o.waiters, 1)
	defer func() {
		if atomic.AddInt32(&o.waiters, -1) == 0 {
			atomic.StoreUint32(&o.done, 0) // reset
		}
	}()

	o.m.Lock()
	defer o.m.Unlock()
	if o.done == 0 {
		defer atomic.StoreUint32(&o.done, 1)
		f()
	}
}
