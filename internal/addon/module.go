// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package addon hosts native addons: it maps modules into the process, binds
// their exported capabilities, bridges calls and asynchronous events, and
// enforces orderly unload.
package addon

import (
	"context"

	"github.com/holomush/addonhost/pkg/addonapi"
)

// Module is one opened addon file, as produced by a backend Opener.
type Module interface {
	// Describe invokes the module's entry point and returns the raw
	// JSON-encoded descriptor.
	Describe(ctx context.Context) ([]byte, error)

	// Call invokes the native function exported under symbol. A failure
	// signalled by the addon itself is reported as *NativeFailure.
	Call(ctx context.Context, symbol string, args []any) (any, error)

	// SetEmitter hands the module the emit-handle it uses to push events.
	// It is called once, after a successful bind.
	SetEmitter(e Emitter)

	// Close runs the module's unload hook and unmaps it.
	Close(ctx context.Context) error
}

// TypeSupporter is implemented by modules whose calling convention restricts
// the parameter and return types they can carry.
type TypeSupporter interface {
	SupportsType(t addonapi.Type) bool
}

// Emitter is the emit-handle given to modules. It may be called from any
// goroutine, at any rate, and never blocks on the scripting thread.
type Emitter interface {
	Emit(event string, payload any)
}

// Opener opens addon files of one kind.
type Opener interface {
	Open(ctx context.Context, path string) (Module, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path string) (Module, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, path string) (Module, error) {
	return f(ctx, path)
}
