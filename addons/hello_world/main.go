// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements the hello_world addon: a greeting, a notify
// function that echoes its argument on the default event stream, and a
// nested utils namespace.
//
// Build with:
//
//	go build -o hello_world ./addons/hello_world
package main

import (
	"context"

	"github.com/holomush/addonhost/pkg/addonapi"
	"github.com/holomush/addonhost/pkg/addonsdk"
)

const version = "1.0.0"

func newAddon() *addonsdk.Addon {
	a := addonsdk.New("hello_world", version)
	a.Property("version", version).
		Func("hello", addonsdk.Sig(addonapi.TypeString), func(context.Context, addonsdk.Args) (any, error) {
			return "Hello from the addon SDK!", nil
		}).
		Func("notify", addonsdk.Sig(addonapi.TypeAny, addonapi.TypeVoid), func(_ context.Context, args addonsdk.Args) (any, error) {
			a.Emit(addonapi.DefaultEvent, args.Value(0))
			return nil, nil
		}).
		Property("utils.id", 123).
		Property("utils.tags", []any{"go", "native", "addon"}).
		Property("utils.versions", []any{1.0, 1.1, 2.0}).
		Func("utils.ping", addonsdk.Sig(addonapi.TypeString), func(context.Context, addonsdk.Args) (any, error) {
			return "pong", nil
		})
	return a
}

func main() {
	addonsdk.Serve(newAddon())
}
