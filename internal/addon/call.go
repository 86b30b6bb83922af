// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/addonhost/pkg/addonapi"
)

var tracer = otel.Tracer("github.com/holomush/addonhost/internal/addon")

// Invoke validates args against the capability's signature, calls into the
// module, and checks the result.
//
// Validation happens before the module is touched: a mismatch fails with
// TypeMismatch and native code never sees the call. Failures reported by the
// module, including panics in in-process modules, surface as NativeError.
// Calls on a draining or unloaded addon fail with AddonUnloading.
func Invoke(ctx context.Context, c *Capability, args []any) (any, error) {
	h := c.owner.Value()
	if h == nil {
		return nil, errorf(CodeUnloading).With("addon", c.addonName).Errorf("addon unloaded")
	}

	if s := h.State(); s != StateActive {
		return nil, h.unloadingError(s)
	}
	if c.Kind == addonapi.KindProperty {
		return c.Value, nil
	}

	if err := checkArgs(c, args); err != nil {
		CapabilityCalls.WithLabelValues(c.addonName, c.Name, StatusError).Inc()
		return nil, err
	}

	if err := h.enter(); err != nil {
		return nil, err
	}
	defer h.exit()

	ctx, span := tracer.Start(ctx, "addon.call", trace.WithAttributes(
		attribute.String("addon.name", c.addonName),
		attribute.String("addon.capability", c.Name),
	))
	defer span.End()

	start := time.Now()
	result, err := callModule(ctx, h.module, c.Symbol, normalizeArgs(args))
	CapabilityCallDuration.WithLabelValues(c.addonName, c.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		CapabilityCalls.WithLabelValues(c.addonName, c.Name, StatusError).Inc()
		err = nativeError(c.addonName, c.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "native call failed")
		return nil, err
	}

	result, err = checkResult(c, result)
	if err != nil {
		CapabilityCalls.WithLabelValues(c.addonName, c.Name, StatusError).Inc()
		return nil, err
	}
	CapabilityCalls.WithLabelValues(c.addonName, c.Name, StatusSuccess).Inc()
	return result, nil
}

func checkArgs(c *Capability, args []any) error {
	for i, want := range c.Params {
		if i >= len(args) {
			return typeMismatch(c, i, want, nil)
		}
		if !want.Accepts(args[i]) {
			return typeMismatch(c, i, want, args[i])
		}
	}
	if len(args) > len(c.Params) {
		return typeMismatch(c, len(c.Params), addonapi.TypeVoid, args[len(c.Params)])
	}
	return nil
}

func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = addonapi.Normalize(a)
	}
	return out
}

func checkResult(c *Capability, result any) (any, error) {
	result = addonapi.Normalize(result)
	switch c.Returns {
	case "":
		return result, nil
	case addonapi.TypeVoid:
		return nil, nil
	default:
		if !c.Returns.Accepts(result) {
			return nil, nativeError(c.addonName, c.Name,
				fmt.Errorf("returned %s, declared %s", addonapi.Describe(result), c.Returns))
		}
		return result, nil
	}
}

// callModule shields the host from panics raised by in-process modules.
func callModule(ctx context.Context, m Module, symbol string, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NativeFailure{Detail: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return m.Call(ctx, symbol, args)
}
