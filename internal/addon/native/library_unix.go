// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build darwin || freebsd || linux || netbsd

package native

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// library is a dynamically loaded shared object.
type library struct {
	handle uintptr
}

func openLibrary(path string) (library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return library{}, err
	}
	return library{handle: h}, nil
}

// bind resolves name and registers it into fnPtr, a pointer to a func.
func (l library) bind(name string, fnPtr any) error {
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return err
	}
	purego.RegisterFunc(fnPtr, addr)
	return nil
}

func (l library) close() error {
	return purego.Dlclose(l.handle)
}

var (
	callbackOnce sync.Once
	callback     uintptr
)

// emitCallback returns the C function pointer handed to addon_set_emitter.
// It is created once; purego callbacks are never released.
func emitCallback() uintptr {
	callbackOnce.Do(func() {
		callback = purego.NewCallback(func(token uintptr, event, payload *byte) {
			emitters.emit(token, goString(event), goString(payload))
		})
	})
	return callback
}

// goString copies a NUL-terminated C string.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
