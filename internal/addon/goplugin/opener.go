// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package goplugin opens addons that run as separate executables, speaking
// the addon gRPC service through HashiCorp go-plugin.
package goplugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/hashicorp/go-hclog"
	hashiplug "github.com/hashicorp/go-plugin"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/pkg/addonrpc"
	"github.com/holomush/addonhost/pkg/addonsdk"
)

// DefaultStartTimeout bounds how long an addon process may take to complete
// the handshake.
const DefaultStartTimeout = 10 * time.Second

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the gRPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the addon process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct {
	// Logger receives go-plugin's own diagnostics. Nil discards them.
	Logger hclog.Logger
	// StartTimeout overrides DefaultStartTimeout when positive.
	StartTimeout time.Duration
}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	logger := f.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Name: "addon", Output: io.Discard})
	}
	timeout := f.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath is a normalized path that passed the load policy
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolGRPC},
		Logger:           logger,
		StartTimeout:     timeout,
	})
}

// Opener starts addon executables. It implements addon.Opener.
type Opener struct {
	clientFactory ClientFactory
	logger        *slog.Logger
}

// Option configures an Opener.
type Option func(*Opener)

// WithClientFactory replaces the go-plugin client factory (for testing).
func WithClientFactory(f ClientFactory) Option {
	return func(o *Opener) { o.clientFactory = f }
}

// WithLogger sets the logger for event stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opener) { o.logger = l }
}

// NewOpener creates an opener.
func NewOpener(opts ...Option) *Opener {
	o := &Opener{
		clientFactory: &DefaultClientFactory{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.clientFactory == nil {
		panic("goplugin: factory cannot be nil")
	}
	return o
}

// Open starts the executable at path and connects to its addon service.
func (o *Opener) Open(_ context.Context, path string) (addon.Module, error) {
	client := o.clientFactory.NewClient(path)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to addon %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(addonsdk.PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense addon %s: %w", path, err)
	}

	rpc, ok := raw.(addonrpc.AddonClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("addon %s does not implement AddonClient", path)
	}

	return newModule(path, rpc, client.Kill, o.logger), nil
}
