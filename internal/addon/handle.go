// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"sync/atomic"
	"time"

	"github.com/samber/oops"
)

// State is the lifecycle state of a Handle.
type State int32

// Handle lifecycle states.
const (
	StateActive State = iota
	// StateDraining rejects new calls and registrations while in-flight
	// calls complete.
	StateDraining
	StateUnloaded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// Handle is one loaded module. Handles are created by the Loader and owned by
// the Registry; nothing else keeps a strong reference to them.
type Handle struct {
	path     string
	module   Module
	loadedAt time.Time
	name     atomic.Pointer[string]

	state    atomic.Int32
	refs     atomic.Int64
	inflight atomic.Int64
}

func newHandle(path string, m Module) *Handle {
	return &Handle{
		path:     path,
		module:   m,
		loadedAt: time.Now(),
	}
}

// Path returns the normalized path the handle was loaded from.
func (h *Handle) Path() string { return h.path }

// LoadedAt returns the load timestamp.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Refs returns the number of bound capability sets and live callback
// registrations referencing the handle.
func (h *Handle) Refs() int64 { return h.refs.Load() }

// InFlight returns the number of synchronous calls in progress.
func (h *Handle) InFlight() int64 { return h.inflight.Load() }

// Name returns the addon name from its descriptor, or the path before bind.
func (h *Handle) Name() string {
	if n := h.name.Load(); n != nil {
		return *n
	}
	return h.path
}

func (h *Handle) setName(name string) { h.name.Store(&name) }

func (h *Handle) retain()  { h.refs.Add(1) }
func (h *Handle) release() { h.refs.Add(-1) }

// enter marks the start of a call. It fails once draining has begun.
func (h *Handle) enter() error {
	if s := h.State(); s != StateActive {
		return h.unloadingError(s)
	}
	h.inflight.Add(1)
	// Re-check after publishing the call so a concurrent drain either
	// observes it or we observe the drain.
	if s := h.State(); s != StateActive {
		h.inflight.Add(-1)
		return h.unloadingError(s)
	}
	return nil
}

func (h *Handle) exit() { h.inflight.Add(-1) }

// beginDrain moves an active handle to draining. It returns false when the
// handle is already unloaded.
func (h *Handle) beginDrain() bool {
	if h.state.CompareAndSwap(int32(StateActive), int32(StateDraining)) {
		return true
	}
	return h.State() == StateDraining
}

func (h *Handle) unloadingError(s State) error {
	msg := "addon unloading"
	if s == StateUnloaded {
		msg = "addon unloaded"
	}
	return oops.In("addon").Code(CodeUnloading).
		With("addon", h.Name()).
		With("path", h.path).
		With("state", s.String()).
		Errorf("%s", msg)
}
