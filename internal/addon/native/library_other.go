// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build !(darwin || freebsd || linux || netbsd)

package native

import "errors"

var errUnsupported = errors.New("native addons are not supported on this platform")

type library struct{}

func openLibrary(string) (library, error) { return library{}, errUnsupported }
func (library) bind(string, any) error    { return errUnsupported }
func (library) close() error              { return nil }
func emitCallback() uintptr               { return 0 }
