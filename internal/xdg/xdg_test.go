// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  string
		fn   func() (string, error)
		set  string
		want string
		home string
	}{
		{"config from env", "XDG_CONFIG_HOME", ConfigDir, "/custom/config", "/custom/config/addonhost", ""},
		{"config default", "XDG_CONFIG_HOME", ConfigDir, "", "/home/testuser/.config/addonhost", "/home/testuser"},
		{"data from env", "XDG_DATA_HOME", DataDir, "/custom/data", "/custom/data/addonhost", ""},
		{"data default", "XDG_DATA_HOME", DataDir, "", "/home/testuser/.local/share/addonhost", "/home/testuser"},
		{"state from env", "XDG_STATE_HOME", StateDir, "/custom/state", "/custom/state/addonhost", ""},
		{"state default", "XDG_STATE_HOME", StateDir, "", "/home/testuser/.local/state/addonhost", "/home/testuser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.set)
			if tt.home != "" {
				t.Setenv("HOME", tt.home)
			}
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	got, err := ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/addonhost/config.yaml", got)
}

func TestAddonsDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	got, err := AddonsDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/data/addonhost/addons", got)
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	require.NoError(t, EnsureDir(path), "second call should be a no-op")
}

func TestEnsureDir_Fails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	require.Error(t, EnsureDir(filepath.Join(file, "sub")))
}
