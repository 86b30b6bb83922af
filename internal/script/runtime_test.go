// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/addontest"
	"github.com/holomush/addonhost/internal/script"
)

type harness struct {
	reg    *addon.Registry
	dir    string
	out    *bytes.Buffer
	errOut *bytes.Buffer
	rt     *script.Runtime
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dir:    t.TempDir(),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	for _, base := range []string{"hello_world", "math_utils", "cpu_monitor"} {
		addontest.WriteFile(t, h.dir, base)
	}
	h.reg = addon.NewRegistry(addon.NewLoader(addontest.NewOpener()))
	t.Cleanup(func() { _ = h.reg.Close(context.Background()) })
	h.rt = script.New(h.reg, script.WithOutput(h.out, h.errOut), script.WithBaseDir(h.dir))
	return h
}

func (h *harness) run(t *testing.T, source string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.rt.Run(ctx, "test.lua", source))
}

func TestRuntime_ConsoleWritesToOutputs(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		console.log("a", 1, true)
		console.info("info")
		console.warn("careful")
		console.error("bad", nil)
	`)
	assert.Equal(t, "a 1 true\ninfo\n", h.out.String())
	assert.Equal(t, "careful\nbad nil\n", h.errOut.String())
}

func TestRuntime_CallsAddonFunctionsAndProperties(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local m = system.loadAddon("math_utils")
		console.log(m.sum(2, 3), m.subtract(10, 4), m.multiply(3, 4), m.divide(9, 3))
		local hw = system.loadAddon("hello_world")
		console.log(hw.hello())
		console.log(hw:hello())
		console.log(hw.version, hw.utils.id, hw.utils.tags[2], hw.utils.ping())
		console.log(hw.name, tostring(hw))
	`)
	assert.Equal(t, "5 6 12 3\n"+
		addontest.Greeting+"\n"+
		addontest.Greeting+"\n"+
		"1.0.0 123 native pong\n"+
		"hello_world addon<hello_world@1.0.0>\n", h.out.String())
}

func TestRuntime_LoadAddon_NilOnFailure(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		console.log(system.loadAddon("missing") == nil)
		console.log(#system.listAddons())
	`)
	assert.Equal(t, "true\n0\n", h.out.String())
}

func TestRuntime_LoadAddon_SameObject(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local a = system.loadAddon("math_utils")
		local b = system.loadAddon("math_utils")
		console.log(a == b, #system.listAddons())
	`)
	assert.Equal(t, "true 1\n", h.out.String())
}

func TestRuntime_AddonErrorsAreCatchableTables(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local m = system.loadAddon("math_utils")

		local ok, e = pcall(m.sum, 1, "x")
		console.log(ok, e.code, e.capability, e.index, e.expected, e.actual)

		ok, e = pcall(m.sum, 1)
		console.log(e.code)

		ok, e = pcall(m.divide, 1, 0)
		console.log(e.code, e.detail)

		ok, e = pcall(function() return m.nope end)
		console.log(e.code, e.capability)

		ok, e = pcall(m.sum, 1, function() end)
		console.log(e.actual)

		ok, e = pcall(m.sum, "a", "b")
		console.log(string.sub(tostring(e), 1, 13))
	`)
	assert.Equal(t, "false TypeMismatch sum 1 number string\n"+
		"TypeMismatch\n"+
		"NativeError division by zero\n"+
		"UnknownCapability nope\n"+
		"function\n"+
		"TypeMismatch:\n", h.out.String())
}

func TestRuntime_CallsAfterUnloadFail(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local m = system.loadAddon("math_utils")
		console.log(system.unloadAddon("math_utils"))
		local ok, e = pcall(m.sum, 1, 2)
		console.log(ok, e.code)
		console.log(system.unloadAddon("math_utils"))
		local again = system.loadAddon("math_utils")
		console.log(again ~= m, again.sum(1, 1))
	`)
	assert.Equal(t, "true\nfalse AddonUnloading\nfalse\ntrue 2\n", h.out.String())
}

func TestRuntime_EventsRunAfterScriptBody(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local hw = system.loadAddon("hello_world")
		local off
		off = hw.onEvent(function(payload)
			console.log("got", payload)
			off()
		end)
		hw.notify("hi")
		console.log("after")
	`)
	assert.Equal(t, "after\ngot hi\n", h.out.String())
}

func TestRuntime_OnEventWithNamedStream(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local hw = system.loadAddon("hello_world")
		local off
		off = hw:onEvent("default", function(payload)
			console.log(payload.text)
			off()
		end)
		hw.notify({text = "structured"})

		local ok, e = pcall(hw.onEvent, "nope", function() end)
		console.log(e.code, e.event)
	`)
	assert.Equal(t, "UnknownCapability nope\nstructured\n", h.out.String())
}

func TestRuntime_TaskStreamsUntilStopped(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local cpu = system.loadAddon("cpu_monitor")
		local n = 0
		local off
		off = cpu.start(function(usage)
			n = n + 1
			if n == 3 then
				off()
				cpu.stop()
				console.log("samples", n, type(usage))
			end
		end)
		console.log(type(off))
	`)
	assert.Equal(t, "function\nsamples 3 number\n", h.out.String())
}

func TestRuntime_TaskRequiresCallback(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local cpu = system.loadAddon("cpu_monitor")
		local ok, e = pcall(cpu.start)
		console.log(ok, e.code)
	`)
	assert.Equal(t, "false TypeMismatch\n", h.out.String())
}

func TestRuntime_UnloadFromCallbackEndsRun(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		local cpu = system.loadAddon("cpu_monitor")
		cpu.start(function(usage)
			console.log("unloaded", system.unloadAddon("cpu_monitor"))
		end)
	`)
	assert.Equal(t, "unloaded true\n", h.out.String())
	assert.Empty(t, h.reg.List())
}

func TestRuntime_TimersRunInDueOrder(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		setTimeout(function() console.log("late") end, 20)
		setTimeout(function() console.log("soon") end)
		local id = setTimeout(function() console.log("never") end, 5)
		clearTimeout(id)
		console.log("start")
	`)
	assert.Equal(t, "start\nsoon\nlate\n", h.out.String())
}

func TestRuntime_TimerErrorsDoNotStopRun(t *testing.T) {
	h := newHarness(t)
	h.run(t, `
		setTimeout(function() error("boom") end, 0)
		setTimeout(function() console.log("still running") end, 5)
	`)
	assert.Equal(t, "still running\n", h.out.String())
}

func TestRuntime_UncaughtErrorFailsRun(t *testing.T) {
	h := newHarness(t)
	err := h.rt.Run(context.Background(), "fail.lua", `
		local m = system.loadAddon("math_utils")
		m.sum("x", 1)
	`)
	require.Error(t, err)

	var se *script.ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "TypeMismatch", se.Code)

	err = h.rt.Run(context.Background(), "plain.lua", `error("boom")`)
	require.True(t, errors.As(err, &se))
	assert.Empty(t, se.Code)
	assert.Contains(t, se.Message, "boom")
}

func TestRuntime_SyntaxErrorFailsRun(t *testing.T) {
	h := newHarness(t)
	err := h.rt.Run(context.Background(), "bad.lua", `local = 1`)
	require.Error(t, err)
	assert.Empty(t, h.out.String())
}

func TestRuntime_SandboxBlocksFileAccess(t *testing.T) {
	h := newHarness(t)
	h.run(t, `console.log(dofile, loadfile, io, os)`)
	assert.Equal(t, "nil nil nil nil\n", h.out.String())
}

func TestRuntime_RunStopsWhenContextDone(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.rt.Run(ctx, "wait.lua", `setTimeout(function() console.log("late") end, 10000)`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.out.String())
}

func TestRuntime_RunFile_ResolvesAddonsNextToScript(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "main.lua")
	require.NoError(t, os.WriteFile(path, []byte(`console.log(system.loadAddon("math_utils").sum(20, 22))`), 0o600))

	rt := script.New(h.reg, script.WithOutput(h.out, h.errOut))
	require.NoError(t, rt.RunFile(context.Background(), path))
	assert.Equal(t, "42\n", h.out.String())
}

func TestRuntime_RunFile_MissingScript(t *testing.T) {
	h := newHarness(t)
	err := h.rt.RunFile(context.Background(), filepath.Join(h.dir, "nope.lua"))
	require.Error(t, err)
}

func TestNew_PanicsWithoutRegistry(t *testing.T) {
	assert.Panics(t, func() { script.New(nil) })
}
