// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg resolves XDG Base Directory paths for addonhost.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "addonhost"

// base returns $env, or $HOME joined with fallback.
func base(env string, fallback ...string) (string, error) {
	if dir := os.Getenv(env); dir != "" {
		return dir, nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", oops.In("xdg").With("env", env).Hint("set HOME or " + env).Wrap(err)
		}
	}
	return filepath.Join(append([]string{home}, fallback...)...), nil
}

func appDir(env string, fallback ...string) (string, error) {
	dir, err := base(env, fallback...)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ConfigDir returns $XDG_CONFIG_HOME/addonhost, defaulting to ~/.config.
func ConfigDir() (string, error) { return appDir("XDG_CONFIG_HOME", ".config") }

// DataDir returns $XDG_DATA_HOME/addonhost, defaulting to ~/.local/share.
func DataDir() (string, error) { return appDir("XDG_DATA_HOME", ".local", "share") }

// StateDir returns $XDG_STATE_HOME/addonhost, defaulting to ~/.local/state.
func StateDir() (string, error) { return appDir("XDG_STATE_HOME", ".local", "state") }

// ConfigFile is the default configuration file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// AddonsDir is where installed addons live. Relative addon paths in the
// load allow-list are resolved against it.
func AddonsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "addons"), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.In("xdg").With("path", path).Wrap(err)
	}
	return nil
}
