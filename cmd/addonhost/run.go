// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/config"
	"github.com/holomush/addonhost/internal/script"
	"github.com/holomush/addonhost/pkg/errutil"
)

// shutdownTimeout bounds registry close and metrics server shutdown after
// the script ends.
const shutdownTimeout = 10 * time.Second

func newRunCmd(g *globals, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.lua>",
		Short: "Run a Lua script against the addon host",
		Long: `Run a Lua script. The script can load addons with system.loadAddon,
call their capabilities, and subscribe to their events. The command
returns once the script has finished and nothing is left to wait for
(no timers, no event subscriptions), or on SIGINT/SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), cmd, g, deps, args[0])
		},
	}
}

func runScript(ctx context.Context, cmd *cobra.Command, g *globals, deps Deps, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := g.logger
	deps = deps.withDefaults(g.cfg, logger)

	reg, pol, err := newRegistry(g.cfg, logger, deps)
	if err != nil {
		return oops.In("run").Hint("invalid allow list").Wrap(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := reg.Close(closeCtx); err != nil {
			errutil.LogError(logger, "failed to unload addons", err)
		}
	}()

	if g.watchFile != "" {
		stop, err := config.WatchAllow(g.watchFile, func(allow []string) {
			if err := pol.SetAllow(resolveAllow(allow)); err != nil {
				logger.Warn("ignoring invalid allow list", "path", g.watchFile, "error", err)
				return
			}
			logger.Info("reloaded allow list", "path", g.watchFile, "patterns", len(allow))
		}, func(err error) {
			errutil.LogError(logger, "config watch failed", err)
		})
		if err != nil {
			logger.Warn("config hot reload disabled", "path", g.watchFile, "error", err)
		} else {
			defer func() { _ = stop() }()
		}
	}

	rt := script.New(reg,
		script.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		script.WithLogger(logger))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group run.Group
	var srv ObservabilityServer
	if g.cfg.MetricsAddr != "" {
		srv = deps.ObservabilityServerFactory(g.cfg.MetricsAddr, func() bool { return ctx.Err() == nil }, addon.RegisterMetrics)
		errCh, err := srv.Start()
		if err != nil {
			return oops.In("run").With("addr", g.cfg.MetricsAddr).Hint("failed to start metrics server").Wrap(err)
		}
		group.Add(func() error {
			select {
			case err, ok := <-errCh:
				if ok && err != nil {
					return oops.In("run").With("addr", g.cfg.MetricsAddr).Wrap(err)
				}
				<-ctx.Done()
				return nil
			case <-ctx.Done():
				return nil
			}
		}, func(error) {
			cancel()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warn("error stopping metrics server", "error", err)
			}
		})
	}

	group.Add(func() error {
		start := time.Now()
		err := rt.RunFile(ctx, path)
		if srv != nil {
			status := "success"
			if err != nil && !errors.Is(err, context.Canceled) {
				status = "error"
			}
			srv.Metrics().ScriptRuns.WithLabelValues(status).Inc()
			srv.Metrics().ScriptDuration.Observe(time.Since(start).Seconds())
		}
		return err
	}, func(error) {
		cancel()
	})

	group.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = group.Run()
	var sigErr run.SignalError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sigErr):
		logger.Info("received shutdown signal", "signal", sigErr.Signal)
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	default:
		errutil.LogError(logger, "script failed", err)
		return err
	}
}
