// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"context"
	"time"

	"github.com/holomush/addonhost/pkg/addonapi"
)

// Addon is the handle scripts hold for one loaded addon: its capability
// namespace plus the means to register event callbacks.
type Addon struct {
	handle      *Handle
	binding     *Binding
	events      *EventBridge
	callTimeout time.Duration
}

// Path returns the normalized path.
func (a *Addon) Path() string { return a.handle.path }

// Name returns the addon name from its descriptor.
func (a *Addon) Name() string { return a.binding.Name }

// Version returns the addon version from its descriptor.
func (a *Addon) Version() string { return a.binding.Version }

// State returns the lifecycle state of the underlying handle.
func (a *Addon) State() State { return a.handle.State() }

// Binding returns the capability namespace.
func (a *Addon) Binding() *Binding { return a.binding }

// Lookup returns the named capability, failing with UnknownCapability.
func (a *Addon) Lookup(name string) (*Capability, error) {
	return a.binding.Lookup(name)
}

// Call invokes a function capability by name.
func (a *Addon) Call(ctx context.Context, name string, args ...any) (any, error) {
	c, err := a.binding.Lookup(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return Invoke(ctx, c, args)
}

// Get reads a property capability by name.
func (a *Addon) Get(name string) (any, error) {
	c, err := a.binding.Lookup(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != addonapi.KindProperty {
		return nil, errorf(CodeUnknownCapability).
			With("addon", a.Name()).
			With("capability", name).
			Errorf("%s.%s is a %s, not a property", a.Name(), name, c.Kind)
	}
	return Invoke(context.Background(), c, nil)
}

// OnEvent registers cb on the named event stream ("" means the default
// stream). Undeclared streams fail with UnknownCapability.
func (a *Addon) OnEvent(event string, cb Callback) (*Registration, error) {
	if event == "" {
		event = addonapi.DefaultEvent
	}
	if !a.binding.HasEvent(event) {
		return nil, errorf(CodeUnknownCapability).
			With("addon", a.Name()).
			With("event", event).
			Errorf("%s has no event %q", a.Name(), event)
	}
	return a.events.Register(a.handle, event, cb)
}

// Start registers cb on a task's event stream and then starts the task.
// If the task fails to start the registration is removed again.
func (a *Addon) Start(ctx context.Context, task string, cb Callback, args ...any) (*Registration, error) {
	c, err := a.binding.Lookup(task)
	if err != nil {
		return nil, err
	}
	if c.Kind != addonapi.KindTask {
		return nil, errorf(CodeUnknownCapability).
			With("addon", a.Name()).
			With("capability", task).
			Errorf("%s.%s is not a task", a.Name(), task)
	}

	reg, err := a.events.Register(a.handle, c.Event, cb)
	if err != nil {
		return nil, err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if _, err := Invoke(ctx, c, args); err != nil {
		a.events.Deregister(reg)
		return nil, err
	}
	return reg, nil
}

// Off removes a registration made by OnEvent or Start.
func (a *Addon) Off(reg *Registration) {
	a.events.Deregister(reg)
}

func (a *Addon) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.callTimeout)
}
