// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizePath returns the canonical registry key for an addon path.
//
// The result is absolute and clean. When the file exists, symlinks are
// resolved so that every spelling of the same file maps to one key. Paths
// to missing files are still normalized so lookups of never-loaded paths
// behave consistently.
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", errorf(CodeNotFound).Errorf("empty addon path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errorf(CodeNotFound).With("path", path).Wrap(err)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	abs = filepath.Clean(abs)
	if runtime.GOOS == "windows" {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}
