/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Twelve Stocks Limited. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package instances tracks non-owning handles to foreign automation roots,
// one per IDE process, and prunes the ones that stop responding.
package instances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
	"github.com/twelvestocks/visual-studio-mcp-server/pkg/concurrency"
)

// Handle is a generation-stamped, non-owning reference to the automation root
// of one IDE process. Handles are never closed by clients; they are discarded
// by the registry the moment verification fails.
type Handle struct {
	PID          int32
	Root         automation.Root
	Generation   uint64
	LastVerified time.Time

	exec *concurrency.SerialExecutor
}

// Exec runs op on this handle's serialized executor. Every foreign call for a
// handle must go through here: the foreign interface has single-threaded
// affinity and tolerates exactly one caller at a time.
func (h *Handle) Exec(ctx context.Context, timeout time.Duration, op func() error) error {
	return h.exec.Do(ctx, timeout, op)
}

// Call is Exec plus error taxonomy mapping: executor-level failures become
// timeout or bridge errors, and a faulting op is wrapped as a bridge error
// carrying the operation name. The bridge error wraps the foreign fault
// exactly once, here at the call site.
func (h *Handle) Call(ctx context.Context, timeout time.Duration, operation string, op func() error) error {
	err := h.Exec(ctx, timeout, op)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, concurrency.ErrCallTimedOut):
		return errdefs.Timeout(operation, timeout)
	case errors.Is(err, concurrency.ErrExecutorClosed):
		// The registry discarded the handle while the caller held it.
		// Resolving again on the next call is the only recovery.
		return errdefs.Bridge(operation, err, true)
	default:
		return errdefs.Bridge(operation, err, false)
	}
}

// HandleInfo is a point-in-time description of a cached handle.
type HandleInfo struct {
	PID          int32
	Generation   uint64
	LastVerified time.Time
}

type Options struct {
	// SweepInterval is the period of the health sweep. Zero disables sweeping
	// (useful in tests that drive the sweep manually).
	SweepInterval time.Duration

	// ProbeTimeout bounds a single liveness probe.
	ProbeTimeout time.Duration
}

// Registry owns the processId -> Handle map. A single goroutine services all
// lookups, registrations and the periodic health sweep, so no caller can ever
// observe a partially mutated map and no locking is needed.
type Registry struct {
	discovery automation.Discovery
	opts      Options
	log       logr.Logger

	lifetimeCtx context.Context
	requests    chan func()

	// Owned exclusively by the actor goroutine.
	entries    map[int32]*Handle
	generation uint64
}

func NewRegistry(lifetimeCtx context.Context, discovery automation.Discovery, opts Options, log logr.Logger) *Registry {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}

	r := &Registry{
		discovery:   discovery,
		opts:        opts,
		log:         log.WithName("instance-registry"),
		lifetimeCtx: lifetimeCtx,
		requests:    make(chan func()),
		entries:     make(map[int32]*Handle),
	}

	go r.run()
	return r
}

func (r *Registry) run() {
	var sweepCh <-chan time.Time
	if r.opts.SweepInterval > 0 {
		ticker := time.NewTicker(r.opts.SweepInterval)
		defer ticker.Stop()
		sweepCh = ticker.C
	}

	for {
		select {
		case <-r.lifetimeCtx.Done():
			r.log.V(1).Info("Registry lifetime context expired, shutting down")
			for _, h := range r.entries {
				h.exec.Close()
			}
			r.entries = nil
			return
		case fn := <-r.requests:
			fn()
		case <-sweepCh:
			r.sweep()
		}
	}
}

// post runs fn on the actor goroutine and waits for it to complete.
func (r *Registry) post(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case r.requests <- wrapped:
	case <-r.lifetimeCtx.Done():
		return r.lifetimeCtx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-r.lifetimeCtx.Done():
		return r.lifetimeCtx.Err()
	}
}

// Resolve returns a live handle for the given process id, or nil if none can
// be had. A cached handle is verified before being returned; if verification
// fails the entry is dropped and one (exactly one) fresh acquisition attempt
// is made through discovery. Absence is not an error.
func (r *Registry) Resolve(ctx context.Context, pid int32) (*Handle, error) {
	var handle *Handle
	err := r.post(ctx, func() {
		handle = r.resolveLocked(ctx, pid)
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (r *Registry) resolveLocked(ctx context.Context, pid int32) *Handle {
	if h, found := r.entries[pid]; found {
		if r.verify(h) {
			return h
		}
		r.removeLocked(h, "verification failed on resolve")
	}

	root, err := r.discovery.Acquire(ctx, pid)
	if err != nil {
		r.log.V(1).Info("Automation root acquisition failed", "PID", pid, "error", err.Error())
		return nil
	}

	return r.registerLocked(pid, root)
}

// Register inserts or replaces the cached entry for the given process id.
// A non-positive pid is a caller bug and panics.
func (r *Registry) Register(ctx context.Context, pid int32, root automation.Root) (*Handle, error) {
	if pid <= 0 {
		panic(fmt.Sprintf("instances: Register called with non-positive pid %d", pid))
	}

	var handle *Handle
	err := r.post(ctx, func() {
		if existing, found := r.entries[pid]; found {
			r.removeLocked(existing, "replaced by explicit registration")
		}
		handle = r.registerLocked(pid, root)
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (r *Registry) registerLocked(pid int32, root automation.Root) *Handle {
	r.generation++
	h := &Handle{
		PID:          pid,
		Root:         root,
		Generation:   r.generation,
		LastVerified: time.Now(),
		exec:         concurrency.NewSerialExecutor(r.log.WithValues("PID", pid)),
	}
	r.entries[pid] = h
	r.log.Info("Cached automation root", "PID", pid, "Generation", h.Generation)
	return h
}

// Remove drops the cached entry for the given process id, if any.
func (r *Registry) Remove(ctx context.Context, pid int32) error {
	return r.post(ctx, func() {
		if h, found := r.entries[pid]; found {
			r.removeLocked(h, "explicit removal")
		}
	})
}

func (r *Registry) removeLocked(h *Handle, reason string) {
	delete(r.entries, h.PID)
	h.exec.Close()
	r.log.Info("Discarded automation root", "PID", h.PID, "Generation", h.Generation, "Reason", reason)
}

// Sweep runs one health sweep immediately. The periodic sweep calls this on
// the actor goroutine; tests can call it directly to avoid waiting.
func (r *Registry) Sweep(ctx context.Context) error {
	return r.post(ctx, func() { r.sweep() })
}

func (r *Registry) sweep() {
	if len(r.entries) == 0 {
		return
	}

	r.log.V(1).Info("Health sweep starting", "Entries", len(r.entries))
	for _, h := range r.entries {
		if !r.verify(h) {
			r.removeLocked(h, "health sweep probe failed")
		}
	}
}

// verify probes the handle for liveness. Probe errors, timeouts (a busy or
// hung instance is unresponsive by definition) and panics all count as
// failure. Updates LastVerified on success.
func (r *Registry) verify(h *Handle) (alive bool) {
	defer func() {
		if rec := recover(); rec != nil {
			if errdefs.IsFatalPanic(rec) {
				panic(rec)
			}
			r.log.V(1).Info("Liveness probe panicked", "PID", h.PID, "panicValue", fmt.Sprintf("%v", rec))
			alive = false
		}
	}()

	err := h.exec.Do(r.lifetimeCtx, r.opts.ProbeTimeout, func() error {
		return h.Root.Ping(r.lifetimeCtx)
	})
	if err != nil {
		r.log.V(1).Info("Liveness probe failed", "PID", h.PID, "error", err.Error())
		return false
	}

	h.LastVerified = time.Now()
	return true
}

// Snapshot returns a point-in-time description of all cached handles.
func (r *Registry) Snapshot(ctx context.Context) ([]HandleInfo, error) {
	var infos []HandleInfo
	err := r.post(ctx, func() {
		infos = make([]HandleInfo, 0, len(r.entries))
		for _, h := range r.entries {
			infos = append(infos, HandleInfo{
				PID:          h.PID,
				Generation:   h.Generation,
				LastVerified: h.LastVerified,
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}
