// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addontest

import (
	"context"
	"errors"
	"time"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/pkg/addonapi"
)

// Greeting is returned by HelloWorld's hello().
const Greeting = "Hello from the addon SDK!"

// HelloWorld returns a module with a version, a greeting, a notify function
// that emits its argument on the default stream, and a nested utils
// namespace.
func HelloWorld() *Module {
	m := NewModule(addonapi.Descriptor{
		Name:    "hello_world",
		Version: "1.0.0",
		Capabilities: []addonapi.Capability{
			{Name: "version", Kind: addonapi.KindProperty, Value: "1.0.0", Returns: addonapi.TypeString},
			{Name: "hello", Kind: addonapi.KindFunction, Returns: addonapi.TypeString},
			{Name: "notify", Kind: addonapi.KindFunction, Params: []addonapi.Type{addonapi.TypeAny}, Returns: addonapi.TypeVoid},
			{Name: "utils.id", Kind: addonapi.KindProperty, Value: 123},
			{Name: "utils.tags", Kind: addonapi.KindProperty, Value: []any{"go", "native", "addon"}},
			{Name: "utils.ping", Kind: addonapi.KindFunction, Returns: addonapi.TypeString},
		},
	})
	m.Funcs["hello"] = func(context.Context, []any) (any, error) { return Greeting, nil }
	m.Funcs["utils.ping"] = func(context.Context, []any) (any, error) { return "pong", nil }
	m.Funcs["notify"] = func(_ context.Context, args []any) (any, error) {
		go m.Emit(addonapi.DefaultEvent, args[0])
		return nil, nil
	}
	return m
}

// MathUtils returns a module with arithmetic functions. divide by zero is
// reported as a native failure.
func MathUtils() *Module {
	two := []addonapi.Type{addonapi.TypeNumber, addonapi.TypeNumber}
	m := NewModule(addonapi.Descriptor{
		Name:    "math_utils",
		Version: "1.0.0",
		Capabilities: []addonapi.Capability{
			{Name: "sum", Kind: addonapi.KindFunction, Params: two, Returns: addonapi.TypeNumber},
			{Name: "subtract", Kind: addonapi.KindFunction, Params: two, Returns: addonapi.TypeNumber},
			{Name: "multiply", Kind: addonapi.KindFunction, Params: two, Returns: addonapi.TypeNumber},
			{Name: "divide", Kind: addonapi.KindFunction, Params: two, Returns: addonapi.TypeNumber},
		},
	})
	binary := func(op func(a, b float64) (float64, error)) Func {
		return func(_ context.Context, args []any) (any, error) {
			return op(args[0].(float64), args[1].(float64))
		}
	}
	m.Funcs["sum"] = binary(func(a, b float64) (float64, error) { return a + b, nil })
	m.Funcs["subtract"] = binary(func(a, b float64) (float64, error) { return a - b, nil })
	m.Funcs["multiply"] = binary(func(a, b float64) (float64, error) { return a * b, nil })
	m.Funcs["divide"] = binary(func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, &addon.NativeFailure{Detail: "division by zero"}
		}
		return a / b, nil
	})
	return m
}

// CPUMonitor returns a module with a start task that emits a value in
// [0,100] on the "usage" stream every interval until stop() or Close. The
// emitting goroutine keeps running past unload only until Close; emits in
// between are dropped by the host.
func CPUMonitor(interval time.Duration) *Module {
	m := NewModule(addonapi.Descriptor{
		Name:    "cpu_monitor",
		Version: "1.0.0",
		Events:  []string{"usage"},
		Capabilities: []addonapi.Capability{
			{Name: "start", Kind: addonapi.KindTask, Event: "usage"},
			{Name: "stop", Kind: addonapi.KindFunction, Returns: addonapi.TypeVoid},
		},
	})
	stopTask := make(chan struct{}, 1)
	m.Funcs["start"] = func(context.Context, []any) (any, error) {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			sample := 0.0
			for {
				select {
				case <-m.Stopped():
					return
				case <-stopTask:
					return
				case <-ticker.C:
					sample = float64(int(sample+7) % 101)
					m.Emit("usage", sample)
				}
			}
		}()
		return nil, nil
	}
	m.Funcs["stop"] = func(context.Context, []any) (any, error) {
		select {
		case stopTask <- struct{}{}:
		default:
		}
		return nil, nil
	}
	return m
}

// Blocking returns a module whose wait() blocks until release is closed.
// entered receives a value each time wait() starts.
func Blocking(entered chan<- struct{}, release <-chan struct{}) *Module {
	m := NewModule(addonapi.Descriptor{
		Name:    "blocking",
		Version: "0.1.0",
		Capabilities: []addonapi.Capability{
			{Name: "wait", Kind: addonapi.KindFunction, Returns: addonapi.TypeVoid},
		},
	})
	m.Funcs["wait"] = func(ctx context.Context, _ []any) (any, error) {
		entered <- struct{}{}
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, errors.New("call canceled")
		}
	}
	return m
}
