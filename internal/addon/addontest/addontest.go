// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package addontest provides in-process addon modules for tests.
package addontest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/pkg/addonapi"
)

// Func is an in-process capability implementation.
type Func func(ctx context.Context, args []any) (any, error)

// Module is a scripted addon.Module.
type Module struct {
	Desc  addonapi.Descriptor
	Funcs map[string]Func
	// Raw, when set, is returned by Describe instead of Desc.
	Raw []byte
	// DescribeErr, when set, is returned by Describe.
	DescribeErr error
	// CloseHook runs on Close.
	CloseHook func()
	// CloseErr, when set, is returned by Close.
	CloseErr error

	calls   atomic.Int64
	closed  atomic.Bool
	emitter atomic.Pointer[addon.Emitter]
	stop    chan struct{}
	once    sync.Once
}

// NewModule creates a module for the descriptor.
func NewModule(desc addonapi.Descriptor) *Module {
	if desc.ABI == "" {
		desc.ABI = addonapi.ABIVersion
	}
	if desc.Capabilities == nil {
		desc.Capabilities = []addonapi.Capability{}
	}
	return &Module{
		Desc:  desc,
		Funcs: make(map[string]Func),
		stop:  make(chan struct{}),
	}
}

// Describe implements addon.Module.
func (m *Module) Describe(_ context.Context) ([]byte, error) {
	if m.DescribeErr != nil {
		return nil, m.DescribeErr
	}
	if m.Raw != nil {
		return m.Raw, nil
	}
	return m.Desc.Encode()
}

// Call implements addon.Module.
func (m *Module) Call(ctx context.Context, symbol string, args []any) (any, error) {
	m.calls.Add(1)
	fn, ok := m.Funcs[symbol]
	if !ok {
		return nil, &addon.NativeFailure{Detail: fmt.Sprintf("symbol %q not exported", symbol)}
	}
	return fn(ctx, args)
}

// SetEmitter implements addon.Module.
func (m *Module) SetEmitter(e addon.Emitter) { m.emitter.Store(&e) }

// Close implements addon.Module.
func (m *Module) Close(_ context.Context) error {
	m.once.Do(func() { close(m.stop) })
	m.closed.Store(true)
	if m.CloseHook != nil {
		m.CloseHook()
	}
	return m.CloseErr
}

// Emit pushes an event through the emitter handed over at bind time. It is
// a no-op before bind.
func (m *Module) Emit(event string, payload any) {
	if e := m.emitter.Load(); e != nil {
		(*e).Emit(event, payload)
	}
}

// Calls returns how many times Call reached the module.
func (m *Module) Calls() int64 { return m.calls.Load() }

// Closed reports whether Close ran.
func (m *Module) Closed() bool { return m.closed.Load() }

// Stopped is closed when the module is closed.
func (m *Module) Stopped() <-chan struct{} { return m.stop }

// Opener opens in-process modules by file base name.
type Opener struct {
	factories map[string]func() *Module
	opened    map[string]*Module
	opens     atomic.Int64
	mu        sync.Mutex
}

// NewOpener creates an opener serving HelloWorld, MathUtils and CPUMonitor
// under the base names "hello_world", "math_utils" and "cpu_monitor".
func NewOpener() *Opener {
	o := &Opener{
		factories: make(map[string]func() *Module),
		opened:    make(map[string]*Module),
	}
	o.Add("hello_world", HelloWorld)
	o.Add("math_utils", MathUtils)
	o.Add("cpu_monitor", func() *Module { return CPUMonitor(10 * time.Millisecond) })
	return o
}

// Add registers a module factory for a base name.
func (o *Opener) Add(base string, factory func() *Module) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.factories[base] = factory
}

// Open implements addon.Opener.
func (o *Opener) Open(_ context.Context, path string) (addon.Module, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	factory, ok := o.factories[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("%s: not a loadable module", path)
	}
	m := factory()
	o.opened[filepath.Base(path)] = m
	o.opens.Add(1)
	return m, nil
}

// Module returns the most recently opened module for a base name.
func (o *Opener) Module(base string) *Module {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[base]
}

// Opens returns the total number of successful opens.
func (o *Opener) Opens() int64 { return o.opens.Load() }

// WriteFile creates a placeholder addon file named base in dir and returns
// its path.
func WriteFile(t testing.TB, dir, base string) string {
	t.Helper()
	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, []byte("addon"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
