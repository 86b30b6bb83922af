// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/goplugin"
	"github.com/holomush/addonhost/internal/addon/native"
	"github.com/holomush/addonhost/internal/addon/policy"
	"github.com/holomush/addonhost/internal/config"
	"github.com/holomush/addonhost/internal/observability"
	"github.com/holomush/addonhost/internal/xdg"
)

// Deps contains injectable dependencies. Nil fields use their defaults.
type Deps struct {
	// Fallback opens files with no extension-specific backend.
	// Default: goplugin.NewOpener
	Fallback addon.Opener

	// Native opens shared libraries (.so, .dylib, .dll).
	// Default: native.NewOpener
	Native addon.Opener

	// ObservabilityServerFactory creates the metrics server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, extra ...observability.Collectors) ObservabilityServer
}

// ObservabilityServer is the subset of observability.Server used here.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d Deps) withDefaults(cfg config.Config, logger *slog.Logger) Deps {
	if d.Fallback == nil {
		d.Fallback = goplugin.NewOpener(
			goplugin.WithLogger(logger),
			goplugin.WithClientFactory(&goplugin.DefaultClientFactory{
				Logger: hclog.New(&hclog.LoggerOptions{
					Name:       "addon",
					Level:      hclog.Warn,
					JSONFormat: cfg.LogFormat == "json",
				}),
				StartTimeout: cfg.StartTimeout,
			}),
		)
	}
	if d.Native == nil {
		d.Native = native.NewOpener()
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, extra ...observability.Collectors) ObservabilityServer {
			return observability.NewServer(addr, ready, extra...)
		}
	}
	return d
}

// newRegistry wires the loader, policy and registry from configuration.
func newRegistry(cfg config.Config, logger *slog.Logger, deps Deps) (*addon.Registry, *policy.Policy, error) {
	pol, err := policy.New(resolveAllow(cfg.Allow))
	if err != nil {
		return nil, nil, err
	}

	deps = deps.withDefaults(cfg, logger)
	opts := make([]addon.LoaderOption, 0, len(native.Extensions)+1)
	opts = append(opts, addon.WithLoaderLogger(logger))
	for _, ext := range native.Extensions {
		opts = append(opts, addon.WithBackend(ext, deps.Native))
	}

	reg := addon.NewRegistry(addon.NewLoader(deps.Fallback, opts...),
		addon.WithLogger(logger),
		addon.WithPolicy(pol),
		addon.WithUnloadTimeout(cfg.UnloadTimeout),
		addon.WithCallTimeout(cfg.CallTimeout),
	)
	return reg, pol, nil
}

// resolveAllow anchors relative allow patterns at the addons data directory.
func resolveAllow(patterns []string) []string {
	dir, err := xdg.AddonsDir()
	if err != nil {
		return patterns
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		if p != "" && !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		out[i] = p
	}
	return out
}
