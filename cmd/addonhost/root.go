// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/addonhost/internal/config"
	"github.com/holomush/addonhost/internal/logging"
	"github.com/holomush/addonhost/internal/xdg"
)

// globals is the state shared by all subcommands, filled in before any
// subcommand runs.
type globals struct {
	configFile string
	// watchFile is the config file that was actually read, if any.
	watchFile string
	cfg       config.Config
	logger    *slog.Logger
}

// NewRootCmd creates the root command with default dependencies.
func NewRootCmd() *cobra.Command {
	return newRootCmd(Deps{})
}

func newRootCmd(deps Deps) *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "addonhost",
		Short: "Load native addons and drive them from Lua scripts",
		Long: `addonhost loads addons (shared libraries or addon executables),
binds their capabilities into a sandboxed Lua environment, and runs
scripts that call them and subscribe to their events.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/addonhost/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd(g, deps))
	cmd.AddCommand(newInspectCmd(g, deps))
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// load reads configuration and sets up logging. An explicit --config must
// exist; the default location is optional.
func (g *globals) load(cmd *cobra.Command) error {
	path, optional := g.configFile, false
	if path == "" {
		optional = true
		if def, err := xdg.ConfigFile(); err == nil {
			path = def
		}
	}

	cfg, err := config.Load(cmd.Flags(), path, optional)
	if err != nil {
		return err
	}
	g.cfg = cfg
	if path != "" && config.Exists(path) {
		g.watchFile = path
	}

	logger, err := logging.SetDefault(logging.Options{
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	g.logger = logger
	return nil
}
