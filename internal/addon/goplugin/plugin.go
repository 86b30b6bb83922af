// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package goplugin

import (
	"context"
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/holomush/addonhost/pkg/addonrpc"
	"github.com/holomush/addonhost/pkg/addonsdk"
)

// HandshakeConfig is imported from addonsdk to ensure host and addons
// use identical configuration. Do not define locally to prevent drift.
var HandshakeConfig = addonsdk.HandshakeConfig

// PluginMap is the map of plugins we can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	addonsdk.PluginName: &GRPCPlugin{},
}

// GRPCPlugin implements go-plugin's Plugin interface for gRPC.
type GRPCPlugin struct {
	hashiplug.NetRPCUnsupportedPlugin
	// Impl is used by the addon side (not used by host).
	Impl addonrpc.AddonServer
}

// GRPCServer registers the addon server (called by addon process).
func (p *GRPCPlugin) GRPCServer(_ *hashiplug.GRPCBroker, s *grpc.Server) error {
	if p.Impl == nil {
		return errors.New("goplugin: addon implementation is nil")
	}
	addonrpc.RegisterAddonServer(s, p.Impl)
	return nil
}

// GRPCClient returns an addon client (called by host process).
func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *hashiplug.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return addonrpc.NewAddonClient(c), nil
}
