// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/addontest"
)

type fixture struct {
	reg    *addon.Registry
	opener *addontest.Opener
	dir    string
}

func newFixture(t *testing.T, opts ...addon.RegistryOption) *fixture {
	t.Helper()
	f := &fixture{
		opener: addontest.NewOpener(),
		dir:    t.TempDir(),
	}
	f.reg = addon.NewRegistry(addon.NewLoader(f.opener), opts...)
	t.Cleanup(func() { _ = f.reg.Close(context.Background()) })
	return f
}

// load writes a placeholder for base and loads it.
func (f *fixture) load(t *testing.T, base string) *addon.Addon {
	t.Helper()
	a, err := f.reg.Load(context.Background(), addontest.WriteFile(t, f.dir, base))
	require.NoError(t, err)
	return a
}

// drainUntil drains the registry's event bridge until n callbacks have run in
// total or the attempts run out.
func drainUntil(t *testing.T, b *addon.EventBridge, n int) int {
	t.Helper()
	total := 0
	require.Eventually(t, func() bool {
		total += b.Drain()
		return total >= n
	}, testWait, testTick)
	return total
}
