/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package concurrency

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

var (
	// ErrCallTimedOut is returned when a submitted call does not complete within its deadline.
	// The call itself keeps running on the executor goroutine; there is no way to unblock it.
	ErrCallTimedOut = errors.New("call timed out")

	// ErrExecutorClosed is returned when submitting work to a closed executor.
	ErrExecutorClosed = errors.New("executor is closed")
)

type callOutcome struct {
	err      error
	panicVal any
}

// SerialExecutor runs submitted calls one at a time on a single dedicated goroutine.
// It exists because some foreign interfaces have single-threaded affinity and must
// never be entered concurrently, no matter how many logical callers share them.
type SerialExecutor struct {
	calls     chan func()
	quit      chan struct{}
	closeOnce sync.Once
	log       logr.Logger
}

func NewSerialExecutor(log logr.Logger) *SerialExecutor {
	se := &SerialExecutor{
		calls: make(chan func()),
		quit:  make(chan struct{}),
		log:   log,
	}
	go se.run()
	return se
}

func (se *SerialExecutor) run() {
	for {
		select {
		case <-se.quit:
			return
		case call := <-se.calls:
			call()
		}
	}
}

// Do runs op on the executor goroutine and waits for it to finish, up to the passed timeout.
// A zero timeout means no deadline.
//
// If op panics, the panic value is transported back and re-raised on the calling
// goroutine, so that the caller's recovery boundary can apply its own policy.
// The stack of the original panic is logged at the point of capture.
//
// On timeout, Do returns ErrCallTimedOut but op keeps running; the executor stays
// busy until op returns. Subsequent calls queue up behind it.
func (se *SerialExecutor) Do(ctx context.Context, timeout time.Duration, op func() error) error {
	outcome := make(chan callOutcome, 1)

	call := func() {
		defer func() {
			if r := recover(); r != nil {
				se.log.Error(nil, "Panic during serialized call", "panicValue", r, "stack", string(debug.Stack()))
				outcome <- callOutcome{panicVal: r}
			}
		}()
		outcome <- callOutcome{err: op()}
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case se.calls <- call:
		// Submitted; wait for the outcome below.
	case <-se.quit:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline:
		return ErrCallTimedOut
	}

	select {
	case out := <-outcome:
		if out.panicVal != nil {
			panic(out.panicVal)
		}
		return out.err
	case <-ctx.Done():
		return ctx.Err()
	case <-deadline:
		return ErrCallTimedOut
	}
}

// Close stops the executor. A call that is already running is not interrupted,
// but no further calls will be accepted or started.
func (se *SerialExecutor) Close() {
	se.closeOnce.Do(func() {
		close(se.quit)
	})
}
