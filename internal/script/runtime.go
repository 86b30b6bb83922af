// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package script runs Lua scripts against the addon registry. A script runs
// on one goroutine; addon events and timer callbacks are delivered to it
// between script steps, never concurrently with it.
package script

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/addonhost/internal/addon"
)

// Runtime executes scripts. Globals exposed to scripts:
//
//	system.loadAddon(path)    -> addon object, or nil on failure
//	system.unloadAddon(path)  -> boolean
//	system.listAddons()       -> array of loaded paths
//	console.log/info/warn/error(...)
//	setTimeout(fn, ms)        -> id
//	clearTimeout(id)
//
// Run returns once the script body has finished and no timers, event
// registrations, or queued events remain.
type Runtime struct {
	registry *addon.Registry
	factory  *StateFactory
	logger   *slog.Logger
	out      io.Writer
	errOut   io.Writer
	baseDir  string
	running  atomic.Bool

	// Per-run state, owned by the scripting goroutine.
	ctx           context.Context
	L             *lua.LState
	timers        *timerQueue
	objects       map[string]*lua.LUserData
	registrations map[*addon.Registration]*addon.Addon
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOutput sets the writers for console.log/info and console.warn/error.
func WithOutput(out, errOut io.Writer) Option {
	return func(r *Runtime) {
		if out != nil {
			r.out = out
		}
		if errOut != nil {
			r.errOut = errOut
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBaseDir resolves relative addon paths against dir.
func WithBaseDir(dir string) Option {
	return func(r *Runtime) { r.baseDir = dir }
}

// New creates a runtime bound to reg.
// Panics if reg is nil.
func New(reg *addon.Registry, opts ...Option) *Runtime {
	if reg == nil {
		panic("script.New: registry cannot be nil")
	}
	r := &Runtime{
		registry: reg,
		factory:  NewStateFactory(),
		logger:   slog.Default(),
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunFile runs the script at path. Relative addon paths resolve against
// the script's directory unless a base directory was configured.
func (r *Runtime) RunFile(ctx context.Context, path string) error {
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return oops.In("script").With("script", path).Hint("failed to read script").Wrap(err)
	}
	if r.baseDir == "" {
		r.baseDir = filepath.Dir(path)
	}
	return r.Run(ctx, filepath.Base(path), string(code))
}

// Run executes source and then services events and timers until the
// script has nothing left to wait for or ctx is done. A Runtime runs one
// script at a time.
func (r *Runtime) Run(ctx context.Context, name, source string) error {
	if !r.running.CompareAndSwap(false, true) {
		return oops.In("script").With("script", name).New("runtime is already running a script")
	}
	defer r.running.Store(false)

	L, err := r.factory.NewState(ctx)
	if err != nil {
		return oops.In("script").With("script", name).Hint("failed to create state").Wrap(err)
	}
	defer L.Close()

	r.ctx = ctx
	r.L = L
	r.timers = newTimerQueue()
	r.objects = make(map[string]*lua.LUserData)
	r.registrations = make(map[*addon.Registration]*addon.Addon)
	defer r.reset()

	r.install(L)

	fn, err := L.Load(strings.NewReader(source), name)
	if err != nil {
		return oops.In("script").With("script", name).Hint("syntax error").Wrap(err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return oops.In("script").With("script", name).Wrap(scriptError(err))
	}

	return r.loop(ctx)
}

// reset drops registrations the script left behind so their callbacks
// never run against a closed state.
func (r *Runtime) reset() {
	for reg, a := range r.registrations {
		a.Off(reg)
	}
	r.ctx = nil
	r.L = nil
	r.timers = nil
	r.objects = nil
	r.registrations = nil
}

func (r *Runtime) loop(ctx context.Context) error {
	events := r.registry.Events()
	for {
		if r.timers.Len() == 0 && events.Live() == 0 && events.Pending() == 0 {
			return nil
		}

		var timer *time.Timer
		var wake <-chan time.Time
		if when, ok := r.timers.next(); ok {
			timer = time.NewTimer(time.Until(when))
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()
		case <-events.Ready():
			events.Drain()
		case <-wake:
		}
		stopTimer(timer)

		r.runDueTimers()
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (r *Runtime) runDueTimers() {
	now := time.Now()
	for {
		t, ok := r.timers.popDue(now)
		if !ok {
			return
		}
		if err := r.L.CallByParam(lua.P{Fn: t.fn, NRet: 0, Protect: true}); err != nil {
			r.logger.Error("timer callback failed",
				"timer", t.id,
				"error", scriptError(err))
		}
	}
}

func (r *Runtime) install(L *lua.LState) {
	registerErrorType(L)
	r.registerObjectType(L)

	system := L.NewTable()
	L.SetFuncs(system, map[string]lua.LGFunction{
		"loadAddon":   r.loadAddon,
		"unloadAddon": r.unloadAddon,
		"listAddons":  r.listAddons,
	})
	L.SetGlobal("system", system)

	console := L.NewTable()
	L.SetFuncs(console, map[string]lua.LGFunction{
		"log":   r.console("log", false),
		"info":  r.console("info", false),
		"warn":  r.console("warn", true),
		"error": r.console("error", true),
	})
	L.SetGlobal("console", console)

	L.SetGlobal("setTimeout", L.NewFunction(r.setTimeout))
	L.SetGlobal("clearTimeout", L.NewFunction(r.clearTimeout))
}

func (r *Runtime) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || r.baseDir == "" {
		return path
	}
	return filepath.Join(r.baseDir, path)
}

// loadAddon returns nil on any failure; the reason is logged.
func (r *Runtime) loadAddon(L *lua.LState) int {
	path := r.resolve(L.CheckString(1))
	a, err := r.registry.Load(r.ctx, path)
	if err != nil {
		r.logger.Warn("addon load failed",
			"path", path,
			"code", ErrorName(addon.Code(err)),
			"error", err)
		L.Push(lua.LNil)
		return 1
	}
	L.Push(r.object(L, a))
	return 1
}

func (r *Runtime) unloadAddon(L *lua.LState) int {
	path := r.resolve(L.CheckString(1))
	a, loaded := r.registry.Get(path)
	if err := r.registry.Unload(r.ctx, path); err != nil {
		r.logger.Warn("addon unload failed",
			"path", path,
			"code", ErrorName(addon.Code(err)),
			"error", err)
		L.Push(lua.LFalse)
		return 1
	}
	if loaded {
		delete(r.objects, a.Path())
		for reg, owner := range r.registrations {
			if owner == a {
				delete(r.registrations, reg)
			}
		}
	}
	L.Push(lua.LTrue)
	return 1
}

func (r *Runtime) listAddons(L *lua.LState) int {
	tbl := L.NewTable()
	for _, p := range r.registry.List() {
		tbl.Append(lua.LString(p))
	}
	L.Push(tbl)
	return 1
}

func (r *Runtime) console(level string, toErr bool) lua.LGFunction {
	return func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		msg := strings.Join(parts, " ")

		w := r.out
		if toErr {
			w = r.errOut
		}
		if _, err := io.WriteString(w, msg+"\n"); err != nil {
			r.logger.Debug("console write failed", "error", err)
		}
		r.logger.Debug("console", "level", level, "message", msg)
		return 0
	}
}

func (r *Runtime) setTimeout(L *lua.LState) int {
	fn := L.CheckFunction(1)
	ms := float64(L.OptNumber(2, 0))
	if ms < 0 {
		ms = 0
	}
	id := r.timers.add(fn, time.Duration(ms*float64(time.Millisecond)), time.Now())
	L.Push(lua.LNumber(id))
	return 1
}

func (r *Runtime) clearTimeout(L *lua.LState) int {
	r.timers.cancel(int(L.CheckNumber(1)))
	return 0
}
