// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/addontest"
	"github.com/holomush/addonhost/pkg/errutil"
)

func TestLoader_Load_NotFound(t *testing.T) {
	loader := addon.NewLoader(addontest.NewOpener())

	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.so"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, addon.CodeNotFound)
}

func TestLoader_Load_DirectoryIsNotFound(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "hello_world")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	loader := addon.NewLoader(addontest.NewOpener())
	_, err := loader.Load(context.Background(), sub)
	errutil.AssertErrorCode(t, err, addon.CodeNotFound)
}

func TestLoader_Load_BackendRejects(t *testing.T) {
	path := addontest.WriteFile(t, t.TempDir(), "garbage.bin")

	loader := addon.NewLoader(addontest.NewOpener())
	_, err := loader.Load(context.Background(), path)
	errutil.AssertErrorCode(t, err, addon.CodeLoadFailure)
	assert.False(t, loader.Loaded(path))
}

func TestLoader_Load_AlreadyLoaded(t *testing.T) {
	path := addontest.WriteFile(t, t.TempDir(), "hello_world")
	loader := addon.NewLoader(addontest.NewOpener())

	h, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, addon.StateActive, h.State())
	assert.False(t, h.LoadedAt().IsZero())

	_, err = loader.Load(context.Background(), filepath.Join(filepath.Dir(path), ".", "hello_world"))
	errutil.AssertErrorCode(t, err, addon.CodeAlreadyLoaded)
}

func TestLoader_Unload(t *testing.T) {
	path := addontest.WriteFile(t, t.TempDir(), "hello_world")
	opener := addontest.NewOpener()
	loader := addon.NewLoader(opener)
	ctx := context.Background()

	h, err := loader.Load(ctx, path)
	require.NoError(t, err)

	require.NoError(t, loader.Unload(ctx, h))
	assert.Equal(t, addon.StateUnloaded, h.State())
	assert.True(t, opener.Module("hello_world").Closed())
	assert.False(t, loader.Loaded(path))

	err = loader.Unload(ctx, h)
	errutil.AssertErrorCode(t, err, addon.CodeInvalidHandle)

	err = loader.Unload(ctx, nil)
	errutil.AssertErrorCode(t, err, addon.CodeInvalidHandle)
}

func TestLoader_Unload_BusyWhileBound(t *testing.T) {
	path := addontest.WriteFile(t, t.TempDir(), "math_utils")
	loader := addon.NewLoader(addontest.NewOpener())
	ctx := context.Background()

	h, err := loader.Load(ctx, path)
	require.NoError(t, err)
	binding, err := addon.Bind(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Refs())

	err = loader.Unload(ctx, h)
	errutil.AssertErrorCode(t, err, addon.CodeBusy)
	assert.Equal(t, addon.StateActive, h.State())

	binding.Release()
	binding.Release()
	assert.Equal(t, int64(0), h.Refs())
	require.NoError(t, loader.Unload(ctx, h))
}

func TestLoader_BackendByExtension(t *testing.T) {
	dir := t.TempDir()
	native := addontest.NewOpener()
	native.Add("lib.so", addontest.MathUtils)
	fallback := addontest.NewOpener()

	loader := addon.NewLoader(fallback, addon.WithBackend(".SO", native))
	ctx := context.Background()

	_, err := loader.Load(ctx, addontest.WriteFile(t, dir, "lib.so"))
	require.NoError(t, err)
	_, err = loader.Load(ctx, addontest.WriteFile(t, dir, "hello_world"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), native.Opens())
	assert.Equal(t, int64(1), fallback.Opens())
}

func TestLoader_Unload_CloseFailureIsLogged(t *testing.T) {
	dir := t.TempDir()
	opener := addontest.NewOpener()
	opener.Add("flaky", func() *addontest.Module {
		m := addontest.MathUtils()
		m.CloseErr = errors.New("unload hook exploded")
		return m
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	loader := addon.NewLoader(opener, addon.WithLoaderLogger(logger))
	ctx := context.Background()

	path := addontest.WriteFile(t, dir, "flaky")
	h, err := loader.Load(ctx, path)
	require.NoError(t, err)

	require.NoError(t, loader.Unload(ctx, h))
	assert.Equal(t, addon.StateUnloaded, h.State())
	assert.False(t, loader.Loaded(path))
	assert.Contains(t, logs.String(), "addon close failed")
	assert.Contains(t, logs.String(), "unload hook exploded")
}

func TestNewLoader_PanicsOnNilFallback(t *testing.T) {
	assert.Panics(t, func() { addon.NewLoader(nil) })
}
