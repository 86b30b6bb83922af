// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package addonsdk provides the SDK for building out-of-process addons.
//
// An addon is an executable that describes its capabilities and serves them
// to the host over gRPC using the HashiCorp go-plugin framework.
//
// Example usage:
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/holomush/addonhost/pkg/addonapi"
//		"github.com/holomush/addonhost/pkg/addonsdk"
//	)
//
//	func main() {
//		a := addonsdk.New("math_utils", "1.0.0")
//		a.Func("sum", addonsdk.Sig(addonapi.TypeNumber, addonapi.TypeNumber, addonapi.TypeNumber),
//			func(_ context.Context, args addonsdk.Args) (any, error) {
//				return args.Number(0) + args.Number(1), nil
//			})
//		addonsdk.Serve(a)
//	}
package addonsdk

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/holomush/addonhost/pkg/addonapi"
	"github.com/holomush/addonhost/pkg/addonrpc"
)

// PluginName is the name the addon service is dispensed under.
const PluginName = "addon"

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and addons must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ADDONHOST_ADDON",
	MagicCookieValue: "addonhost-v1",
}

// eventBuffer is how many events Emit queues before it waits for the host.
const eventBuffer = 256

// Func implements a function or task capability.
type Func func(ctx context.Context, args Args) (any, error)

// Signature is a parameter list plus return type.
type Signature struct {
	Params  []addonapi.Type
	Returns addonapi.Type
}

// Sig builds a Signature. The last type is the return type.
func Sig(types ...addonapi.Type) Signature {
	if len(types) == 0 {
		return Signature{Returns: addonapi.TypeVoid}
	}
	return Signature{Params: types[:len(types)-1], Returns: types[len(types)-1]}
}

type emitted struct {
	event   string
	payload any
}

// Addon collects the capabilities an addon exports.
type Addon struct {
	desc     addonapi.Descriptor
	funcs    map[string]Func
	onUnload func()
	logger   hclog.Logger

	events chan emitted
	done   chan struct{}
	once   sync.Once
}

// New creates an addon with the given name and semantic version.
func New(name, version string) *Addon {
	return &Addon{
		desc: addonapi.Descriptor{
			ABI:          addonapi.ABIVersion,
			Name:         name,
			Version:      version,
			Capabilities: []addonapi.Capability{},
		},
		funcs: make(map[string]Func),
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   name,
			Level:  hclog.Warn,
			Output: os.Stderr,
		}),
		events: make(chan emitted, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Func exports a function capability.
func (a *Addon) Func(name string, sig Signature, fn Func) *Addon {
	a.desc.Capabilities = append(a.desc.Capabilities, addonapi.Capability{
		Name:    name,
		Kind:    addonapi.KindFunction,
		Params:  sig.Params,
		Returns: sig.Returns,
	})
	a.funcs[name] = fn
	return a
}

// Property exports a constant value.
func (a *Addon) Property(name string, value any) *Addon {
	a.desc.Capabilities = append(a.desc.Capabilities, addonapi.Capability{
		Name:  name,
		Kind:  addonapi.KindProperty,
		Value: addonapi.Normalize(value),
	})
	return a
}

// Task exports an asynchronous task that reports progress on event. The
// event stream is declared if it has not been already.
func (a *Addon) Task(name, event string, params []addonapi.Type, fn Func) *Addon {
	a.Event(event)
	a.desc.Capabilities = append(a.desc.Capabilities, addonapi.Capability{
		Name:   name,
		Kind:   addonapi.KindTask,
		Params: params,
		Event:  event,
	})
	a.funcs[name] = fn
	return a
}

// Event declares a named event stream.
func (a *Addon) Event(name string) *Addon {
	if name == "" || name == addonapi.DefaultEvent {
		return a
	}
	for _, e := range a.desc.Events {
		if e == name {
			return a
		}
	}
	a.desc.Events = append(a.desc.Events, name)
	return a
}

// OnUnload sets a hook run when the host unloads the addon.
func (a *Addon) OnUnload(fn func()) *Addon {
	a.onUnload = fn
	return a
}

// Descriptor returns the addon's descriptor.
func (a *Addon) Descriptor() addonapi.Descriptor { return a.desc }

// Emit queues payload on the named event stream. It is safe to call from any
// goroutine. When the queue is full Emit waits for the host to catch up.
// Events emitted after the addon has been unloaded are dropped.
func (a *Addon) Emit(event string, payload any) {
	if event == "" {
		event = addonapi.DefaultEvent
	}
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.events <- emitted{event: event, payload: addonapi.Normalize(payload)}:
	case <-a.done:
	}
}

// Done is closed when the host unloads the addon.
func (a *Addon) Done() <-chan struct{} { return a.done }

// Server returns the gRPC service implementation for a.
func (a *Addon) Server() addonrpc.AddonServer {
	return &server{addon: a}
}

func (a *Addon) shutdown() {
	a.once.Do(func() {
		if a.onUnload != nil {
			a.onUnload()
		}
		close(a.done)
	})
}

// Serve starts the addon server. This should be called from main().
// It blocks and never returns under normal operation.
func Serve(a *Addon) {
	if a == nil {
		panic("addonsdk: addon cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &grpcPlugin{impl: a.Server()},
		},
		GRPCServer: hashiplug.DefaultGRPCServer,
		Logger:     a.logger,
	})
}

// grpcPlugin implements go-plugin's Plugin interface for gRPC.
type grpcPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	impl addonrpc.AddonServer
}

// GRPCServer registers the addon server (called by addon process).
func (p *grpcPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.impl == nil {
		return errors.New("addonsdk: addon is nil")
	}
	addonrpc.RegisterAddonServer(s, p.impl)
	return nil
}

// GRPCClient returns an addon client (called by host process).
func (p *grpcPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return addonrpc.NewAddonClient(c), nil
}
