// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package addon_test

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/addonhost/internal/addon"
	"github.com/holomush/addonhost/internal/addon/goplugin"
	"github.com/holomush/addonhost/internal/script"
)

var _ = Describe("Addon executables", func() {
	var (
		ctx context.Context
		reg *addon.Registry
		out *bytes.Buffer
		rt  *script.Runtime
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = addon.NewRegistry(addon.NewLoader(goplugin.NewOpener()), addon.WithUnloadTimeout(2*time.Second))
		out = &bytes.Buffer{}
		rt = script.New(reg, script.WithOutput(out, out), script.WithBaseDir(binDir))
	})

	AfterEach(func() {
		Expect(reg.Close(ctx)).To(Succeed())
	})

	runScript := func(source string) {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		Expect(rt.Run(runCtx, "integration.lua", source)).To(Succeed(), "script output: %s", out.String())
	}

	Describe("loading", func() {
		It("binds the hello_world capabilities", func() {
			runScript(`
				local hw = system.loadAddon("hello_world")
				console.log(hw.version, hw.hello())
				console.log(hw.utils.id, hw.utils.tags[1], #hw.utils.versions, hw.utils.ping())
			`)
			Expect(out.String()).To(Equal("1.0.0 Hello from the addon SDK!\n123 go 3 pong\n"))
		})

		It("returns the same addon for repeated loads of one path", func() {
			first, err := reg.Load(ctx, addonPath("math_utils"))
			Expect(err).NotTo(HaveOccurred())
			second, err := reg.Load(ctx, addonPath("math_utils"))
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeIdenticalTo(first))
			Expect(reg.List()).To(HaveLen(1))
		})

		It("reports a non-addon executable as a load failure", func() {
			_, err := reg.Load(ctx, "/bin/true")
			Expect(err).To(HaveOccurred())
			Expect(addon.LoadTime(err)).To(BeTrue())
		})
	})

	Describe("calls", func() {
		It("computes and raises structured errors", func() {
			runScript(`
				local m = system.loadAddon("math_utils")
				console.log(m.sum(15, 25), m.subtract(100, 42), m.multiply(12, 12))
				local ok, e = pcall(m.sum, 10, "not a number")
				console.log(ok, e.code, e.index)
				ok, e = pcall(m.divide, 1, 0)
				console.log(ok, e.code, e.detail)
			`)
			Expect(out.String()).To(Equal("40 58 144\nfalse TypeMismatch 1\nfalse NativeError division by zero\n"))
		})

		It("fails calls after the addon is unloaded", func() {
			runScript(`
				local m = system.loadAddon("math_utils")
				console.log(system.unloadAddon("math_utils"))
				local ok, e = pcall(m.sum, 1, 2)
				console.log(ok, e.code)
			`)
			Expect(out.String()).To(Equal("true\nfalse AddonUnloading\n"))
		})
	})

	Describe("events", func() {
		It("delivers emitted events in order after the script body", func() {
			runScript(`
				local hw = system.loadAddon("hello_world")
				local seen = {}
				local off
				off = hw.onEvent(function(msg)
					table.insert(seen, msg)
					if #seen == 3 then
						console.log(table.concat(seen, ","))
						off()
					end
				end)
				hw.notify("a")
				hw.notify("b")
				hw.notify("c")
				console.log("body done")
			`)
			Expect(out.String()).To(Equal("body done\na,b,c\n"))
		})

		It("streams task events until the addon is unloaded", func() {
			runScript(`
				local cpu = system.loadAddon("cpu_monitor")
				cpu.start(function(usage)
					console.log(usage >= 0 and usage <= 100)
					console.log(system.unloadAddon("cpu_monitor"))
				end)
			`)
			Expect(out.String()).To(Equal("true\ntrue\n"))
			Expect(reg.List()).To(BeEmpty())
		})
	})
})

var _ = Describe("addonhost CLI", func() {
	It("runs a script that loads the example addons", func() {
		dir := GinkgoT().TempDir()
		script := filepath.Join(dir, "main.lua")
		body := `
			local m = system.loadAddon("` + addonPath("math_utils") + `")
			console.log("sum", m.sum(20, 22))
		`
		Expect(os.WriteFile(script, []byte(body), 0o600)).To(Succeed())

		cmd := exec.CommandContext(context.Background(), "go", "run", ".", "run", script)
		cmd.Dir = "../../../cmd/addonhost"
		cmd.Env = append(cmd.Environ(), "XDG_CONFIG_HOME="+dir)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		Expect(cmd.Run()).To(Succeed(), "stderr: %s", stderr.String())
		Expect(stdout.String()).To(Equal("sum 42\n"))
	})

	It("inspects an addon descriptor", func() {
		cmd := exec.CommandContext(context.Background(), "go", "run", ".", "inspect", addonPath("hello_world"))
		cmd.Dir = "../../../cmd/addonhost"
		cmd.Env = append(cmd.Environ(), "XDG_CONFIG_HOME="+GinkgoT().TempDir())
		output, err := cmd.Output()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(output)).To(ContainSubstring("name: hello_world"))
		Expect(string(output)).To(ContainSubstring("name: utils.ping"))
	})
})
