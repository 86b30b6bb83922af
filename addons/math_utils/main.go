// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements the math_utils addon.
package main

import (
	"context"
	"errors"

	"github.com/holomush/addonhost/pkg/addonapi"
	"github.com/holomush/addonhost/pkg/addonsdk"
)

var errDivideByZero = errors.New("division by zero")

func binary(op func(a, b float64) (float64, error)) addonsdk.Func {
	return func(_ context.Context, args addonsdk.Args) (any, error) {
		return op(args.Number(0), args.Number(1))
	}
}

func newAddon() *addonsdk.Addon {
	sig := addonsdk.Sig(addonapi.TypeNumber, addonapi.TypeNumber, addonapi.TypeNumber)
	return addonsdk.New("math_utils", "1.0.0").
		Func("sum", sig, binary(func(a, b float64) (float64, error) { return a + b, nil })).
		Func("subtract", sig, binary(func(a, b float64) (float64, error) { return a - b, nil })).
		Func("multiply", sig, binary(func(a, b float64) (float64, error) { return a * b, nil })).
		Func("divide", sig, binary(func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errDivideByZero
			}
			return a / b, nil
		}))
}

func main() {
	addonsdk.Serve(newAddon())
}
