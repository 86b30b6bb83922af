// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package native_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/addontest"
	"github.com/holomush/addonhost/internal/addon/native"
	"github.com/holomush/addonhost/pkg/errutil"
)

func TestSymbolName(t *testing.T) {
	assert.Equal(t, "addon_sum", native.SymbolName("sum"))
	assert.Equal(t, "addon_utils_ping", native.SymbolName("utils.ping"))
}

func TestOpener_RejectsNonLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.so")
	require.NoError(t, os.WriteFile(path, []byte("definitely not an ELF file"), 0o600))

	loader := addon.NewLoader(addontest.NewOpener(), addon.WithBackend(".so", native.NewOpener()))
	_, err := loader.Load(context.Background(), path)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, addon.CodeLoadFailure)
	assert.False(t, loader.Loaded(path))
}

func TestOpener_MissingLibrary(t *testing.T) {
	loader := addon.NewLoader(addontest.NewOpener(), addon.WithBackend(".so", native.NewOpener()))
	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "absent.so"))
	errutil.AssertErrorCode(t, err, addon.CodeNotFound)
}
