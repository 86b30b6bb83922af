// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package native opens addons built as C-ABI shared libraries.
//
// A library exports:
//
//	const char* addon_describe(void);              // required, JSON descriptor
//	<ret> addon_<capability>(<params>);            // one per function or task
//	const char* addon_last_error(void);            // optional, "" when the last call succeeded
//	void addon_set_emitter(emit_fn emit, uintptr_t token); // optional
//	void addon_unload(void);                       // optional
//
// where emit_fn is void (*)(uintptr_t token, const char* event, const char* json).
// Capability names map to symbols by prefixing "addon_" and replacing dots
// with underscores. Parameters and results are limited to double, const
// char* and bool; returned strings must stay valid until the next call on
// the same thread.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/pkg/addonapi"
)

// Well-known symbols.
const (
	SymbolDescribe   = "addon_describe"
	SymbolLastError  = "addon_last_error"
	SymbolSetEmitter = "addon_set_emitter"
	SymbolUnload     = "addon_unload"
)

// Extensions lists the file extensions served by this backend.
var Extensions = []string{".so", ".dylib", ".dll"}

// SymbolName returns the exported symbol for a capability symbol.
func SymbolName(symbol string) string {
	return "addon_" + strings.ReplaceAll(symbol, ".", "_")
}

// Opener maps shared libraries into the process. It implements addon.Opener.
type Opener struct{}

// NewOpener creates an opener.
func NewOpener() *Opener { return &Opener{} }

// Open maps the library at path. The dynamic loader's error is returned
// unchanged so the Loader can report it as a load failure.
func (o *Opener) Open(_ context.Context, path string) (addon.Module, error) {
	lib, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	return &module{path: path, lib: lib, funcs: make(map[string]reflect.Value)}, nil
}

// module is a mapped shared library.
type module struct {
	path string
	lib  library

	mu        sync.Mutex
	sigs      map[string]signature
	funcs     map[string]reflect.Value
	lastError func() string
	token     uintptr
	closed    bool
}

type signature struct {
	params  []addonapi.Type
	returns addonapi.Type
}

var supportedTypes = map[addonapi.Type]reflect.Type{
	addonapi.TypeNumber: reflect.TypeFor[float64](),
	addonapi.TypeString: reflect.TypeFor[string](),
	addonapi.TypeBool:   reflect.TypeFor[bool](),
}

// SupportsType implements addon.TypeSupporter.
func (m *module) SupportsType(t addonapi.Type) bool {
	_, ok := supportedTypes[t]
	return ok
}

// Describe implements addon.Module.
func (m *module) Describe(_ context.Context) ([]byte, error) {
	var describe func() string
	if err := m.lib.bind(SymbolDescribe, &describe); err != nil {
		return nil, err
	}
	raw := []byte(describe())

	// Signatures are taken from the same description the binder validates.
	// A description that does not decode is rejected there.
	var desc addonapi.Descriptor
	if err := json.Unmarshal(raw, &desc); err == nil {
		sigs := make(map[string]signature, len(desc.Capabilities))
		for _, c := range desc.Capabilities {
			symbol := c.Symbol
			if symbol == "" {
				symbol = c.Name
			}
			sigs[symbol] = signature{params: c.Params, returns: c.Returns}
		}
		m.mu.Lock()
		m.sigs = sigs
		m.mu.Unlock()
	}

	var lastError func() string
	if err := m.lib.bind(SymbolLastError, &lastError); err == nil {
		m.mu.Lock()
		m.lastError = lastError
		m.mu.Unlock()
	}
	return raw, nil
}

// Call implements addon.Module.
func (m *module) Call(_ context.Context, symbol string, args []any) (any, error) {
	fn, sig, lastError, err := m.function(symbol)
	if err != nil {
		return nil, err
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}
	out := fn.Call(in)

	if lastError != nil {
		if detail := lastError(); detail != "" {
			return nil, &addon.NativeFailure{Detail: detail}
		}
	}
	if sig.returns == "" || sig.returns == addonapi.TypeVoid || len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// function resolves and caches the Go trampoline for symbol.
func (m *module) function(symbol string) (reflect.Value, signature, func() string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return reflect.Value{}, signature{}, nil, fmt.Errorf("library %s is closed", m.path)
	}
	sig, ok := m.sigs[symbol]
	if !ok {
		return reflect.Value{}, signature{}, nil, &addon.NativeFailure{Detail: fmt.Sprintf("symbol %q not described", symbol)}
	}
	if fn, ok := m.funcs[symbol]; ok {
		return fn, sig, m.lastError, nil
	}

	ft, err := funcType(sig)
	if err != nil {
		return reflect.Value{}, signature{}, nil, err
	}
	ptr := reflect.New(ft)
	if err := m.lib.bind(SymbolName(symbol), ptr.Interface()); err != nil {
		return reflect.Value{}, signature{}, nil, &addon.NativeFailure{Detail: err.Error()}
	}
	fn := ptr.Elem()
	m.funcs[symbol] = fn
	return fn, sig, m.lastError, nil
}

// funcType builds the Go function type matching a native signature.
func funcType(sig signature) (reflect.Type, error) {
	in := make([]reflect.Type, len(sig.params))
	for i, p := range sig.params {
		t, ok := supportedTypes[p]
		if !ok {
			return nil, fmt.Errorf("parameter %d: type %q has no native representation", i, p)
		}
		in[i] = t
	}
	var out []reflect.Type
	if r := sig.returns; r != "" && r != addonapi.TypeVoid {
		t, ok := supportedTypes[r]
		if !ok {
			return nil, fmt.Errorf("return type %q has no native representation", r)
		}
		out = []reflect.Type{t}
	}
	return reflect.FuncOf(in, out, false), nil
}

// SetEmitter implements addon.Module. Libraries without addon_set_emitter
// never emit.
func (m *module) SetEmitter(e addon.Emitter) {
	var setEmitter func(uintptr, uintptr)
	if err := m.lib.bind(SymbolSetEmitter, &setEmitter); err != nil {
		return
	}
	token := emitters.add(e)
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	setEmitter(emitCallback(), token)
}

// Close implements addon.Module. It runs addon_unload, if exported, and
// unmaps the library.
func (m *module) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.token != 0 {
		emitters.remove(m.token)
	}

	var unload func()
	if err := m.lib.bind(SymbolUnload, &unload); err == nil {
		unload()
	}
	clear(m.funcs)
	return m.lib.close()
}

// decodePayload parses the JSON text of an emitted payload. Text that is
// not JSON is delivered as a string.
func decodePayload(text string) any {
	if text == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}
