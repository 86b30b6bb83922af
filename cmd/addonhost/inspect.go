// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/script"
	"github.com/holomush/addonhost/pkg/addonapi"
	"github.com/holomush/addonhost/pkg/errutil"
)

// inspection is the YAML document printed by inspect.
type inspection struct {
	Path                string `yaml:"path"`
	addonapi.Descriptor `yaml:",inline"`
}

func newInspectCmd(g *globals, deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <addon>",
		Short: "Load an addon and print its descriptor",
		Long: `Load an addon, print its validated descriptor as YAML, and unload it.
Load and bind failures are reported with their error code.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectAddon(cmd.Context(), cmd, g, deps, args[0])
		},
	}
}

func inspectAddon(ctx context.Context, cmd *cobra.Command, g *globals, deps Deps, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reg, _, err := newRegistry(g.cfg, g.logger, deps)
	if err != nil {
		return oops.In("inspect").Hint("invalid allow list").Wrap(err)
	}
	defer func() {
		if err := reg.Close(context.Background()); err != nil {
			errutil.LogError(g.logger, "failed to unload addon", err)
		}
	}()

	a, err := reg.Load(ctx, path)
	if err != nil {
		return oops.In("inspect").With("path", path).With("code", script.ErrorName(addon.Code(err))).Wrap(err)
	}

	doc := inspection{Path: a.Path()}
	if desc := a.Binding().Descriptor; desc != nil {
		doc.Descriptor = *desc
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return oops.In("inspect").Hint("failed to encode descriptor").Wrap(err)
	}
	return enc.Close()
}
