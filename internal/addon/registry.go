// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/addonhost/internal/addon/policy"
)

// Default timeouts used by the Registry.
const (
	DefaultUnloadTimeout = 5 * time.Second
	DefaultCallTimeout   = 30 * time.Second
	drainPollInterval    = 5 * time.Millisecond
)

// ErrClosed is returned when loading into a closed registry.
var ErrClosed = errors.New("addon registry is closed")

// Registry is the process-wide table of loaded addons keyed by normalized
// path. It is the only component that mutates the table, and every mutation
// is serialized under one lock.
type Registry struct {
	loader        *Loader
	events        *EventBridge
	policy        *policy.Policy
	logger        *slog.Logger
	unloadTimeout time.Duration
	callTimeout   time.Duration

	addons map[string]*Addon
	closed bool
	mu     sync.Mutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPolicy restricts which paths may be loaded.
func WithPolicy(p *policy.Policy) RegistryOption {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithUnloadTimeout bounds how long unload waits for in-flight calls.
func WithUnloadTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.unloadTimeout = d
		}
	}
}

// WithCallTimeout bounds each capability call.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithEventBridge shares an existing event bridge with the registry.
func WithEventBridge(b *EventBridge) RegistryOption {
	return func(r *Registry) {
		if b != nil {
			r.events = b
		}
	}
}

// NewRegistry creates a registry that loads modules through loader.
// Panics if loader is nil.
func NewRegistry(loader *Loader, opts ...RegistryOption) *Registry {
	if loader == nil {
		panic("addon.NewRegistry: loader cannot be nil")
	}
	r := &Registry{
		loader:        loader,
		logger:        slog.Default(),
		unloadTimeout: DefaultUnloadTimeout,
		callTimeout:   DefaultCallTimeout,
		addons:        make(map[string]*Addon),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.events == nil {
		r.events = NewEventBridge(r.logger)
	}
	return r
}

// Events returns the registry's event bridge.
func (r *Registry) Events() *EventBridge { return r.events }

// Load returns the addon at path, loading and binding it on first use.
// Loading an already-loaded path returns the existing Addon without
// touching the module again. A path whose addon is still draining after a
// timed-out unload fails with Busy until the unload completes.
func (r *Registry) Load(ctx context.Context, path string) (*Addon, error) {
	key, err := NormalizePath(path)
	if err != nil {
		AddonLoads.WithLabelValues(StatusError).Inc()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errorf(CodeLoadFailure).With("path", key).Wrap(ErrClosed)
	}
	if a, ok := r.addons[key]; ok {
		if s := a.State(); s != StateActive {
			AddonLoads.WithLabelValues(StatusError).Inc()
			return nil, errorf(CodeBusy).
				With("addon", a.Name()).
				With("path", key).
				With("state", s.String()).
				Hint("addon is unloading").
				Errorf("addon still draining")
		}
		return a, nil
	}
	if !r.policy.Allowed(key) {
		AddonLoads.WithLabelValues(StatusError).Inc()
		return nil, errorf(CodeLoadFailure).With("path", key).Hint("path not allowed by policy").Errorf("addon path denied")
	}

	h, err := r.loader.Load(ctx, key)
	if err != nil {
		AddonLoads.WithLabelValues(StatusError).Inc()
		return nil, err
	}

	binding, err := Bind(ctx, h)
	if err != nil {
		AddonLoads.WithLabelValues(StatusError).Inc()
		if uerr := r.loader.Unload(ctx, h); uerr != nil {
			r.logger.Warn("failed to unmap addon after bind failure",
				"path", key,
				"error", uerr)
		}
		return nil, err
	}

	h.module.SetEmitter(r.events.Sink(h))

	a := &Addon{
		handle:      h,
		binding:     binding,
		events:      r.events,
		callTimeout: r.callTimeout,
	}
	r.addons[key] = a
	AddonLoads.WithLabelValues(StatusSuccess).Inc()
	AddonsLoaded.Set(float64(len(r.addons)))

	r.logger.Info("loaded addon",
		"addon", binding.Name,
		"version", binding.Version,
		"path", key,
		"capabilities", len(binding.caps))
	return a, nil
}

// Unload tears down the addon at path.
//
// The addon is first marked draining, so new calls and registrations fail
// with AddonUnloading. Unload then waits, bounded by the unload timeout, for
// in-flight calls to finish, discards queued and future events, releases
// the capability namespace, and unmaps the module. Unloading a path that is
// not loaded fails with InvalidHandle and changes nothing; a drain that
// times out fails with Busy and leaves the addon draining.
func (r *Registry) Unload(ctx context.Context, path string) error {
	key, err := NormalizePath(path)
	if err != nil {
		return errorf(CodeInvalidHandle).With("path", path).Wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.addons[key]
	if !ok {
		AddonUnloads.WithLabelValues(StatusError).Inc()
		return errorf(CodeInvalidHandle).With("path", key).Errorf("addon not loaded")
	}

	if err := r.teardown(ctx, a); err != nil {
		AddonUnloads.WithLabelValues(StatusError).Inc()
		return err
	}

	delete(r.addons, key)
	AddonUnloads.WithLabelValues(StatusSuccess).Inc()
	AddonsLoaded.Set(float64(len(r.addons)))
	r.logger.Info("unloaded addon",
		"addon", a.Name(),
		"path", key)
	return nil
}

func (r *Registry) teardown(ctx context.Context, a *Addon) error {
	h := a.handle
	if !h.beginDrain() {
		return errorf(CodeInvalidHandle).With("path", h.path).Errorf("addon already unloaded")
	}

	if err := r.awaitDrained(ctx, h); err != nil {
		return err
	}

	if n := r.events.Discard(h); n > 0 {
		r.logger.Debug("discarded pending addon events",
			"addon", a.Name(),
			"count", n)
	}
	a.binding.Release()

	return r.loader.Unload(ctx, h)
}

// awaitDrained polls until no call is in flight. Calls cannot start once the
// handle is draining, so the wait is bounded by the slowest running call.
func (r *Registry) awaitDrained(ctx context.Context, h *Handle) error {
	errInFlight := errors.New("calls in flight")
	backoff := retry.WithMaxDuration(r.unloadTimeout, retry.NewConstant(drainPollInterval))

	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		if h.InFlight() > 0 {
			return retry.RetryableError(errInFlight)
		}
		return nil
	})
	if err != nil {
		return errorf(CodeBusy).
			With("path", h.path).
			With("inflight", h.InFlight()).
			Hint("in-flight calls did not finish before the unload timeout").
			Wrap(err)
	}
	return nil
}

// Get returns the loaded addon at path.
func (r *Registry) Get(path string) (*Addon, bool) {
	key, err := NormalizePath(path)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.addons[key]
	return a, ok
}

// List returns the normalized paths of all loaded addons, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := lo.Keys(r.addons)
	sort.Strings(paths)
	return paths
}

// Close unloads every addon and rejects further loads. Addons that fail to
// unload are logged; the first error is returned.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	var first error
	for key, a := range r.addons {
		if err := r.teardown(ctx, a); err != nil {
			r.logger.Error("failed to unload addon during close",
				"path", key,
				"error", err)
			if first == nil {
				first = err
			}
			continue
		}
		delete(r.addons, key)
	}
	AddonsLoaded.Set(float64(len(r.addons)))
	return first
}
