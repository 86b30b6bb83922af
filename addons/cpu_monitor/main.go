// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements the cpu_monitor addon. start() samples total CPU
// usage and emits the percentage on the "usage" stream until stop() is
// called or the addon is unloaded.
package main

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/holomush/addonhost/pkg/addonapi"
	"github.com/holomush/addonhost/pkg/addonsdk"
)

const usageEvent = "usage"

// sampler reports CPU usage over one interval, in percent.
type sampler func(ctx context.Context, interval time.Duration) (float64, error)

func gopsutilSampler(ctx context.Context, interval time.Duration) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, nil
	}
	return pct[0], nil
}

type monitor struct {
	addon    *addonsdk.Addon
	sample   sampler
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (m *monitor) start(context.Context, addonsdk.Args) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() {
		for {
			pct, err := m.sample(ctx, m.interval)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				m.addon.Emit(usageEvent, clamp(pct))
			}
			select {
			case <-ctx.Done():
				return
			case <-m.addon.Done():
				return
			default:
			}
		}
	}()
	return nil, nil
}

func (m *monitor) stop(context.Context, addonsdk.Args) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return nil, nil
}

func clamp(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

func newAddon(sample sampler, interval time.Duration) *addonsdk.Addon {
	m := &monitor{sample: sample, interval: interval}
	m.addon = addonsdk.New("cpu_monitor", "1.0.0").
		Task("start", usageEvent, nil, m.start).
		Func("stop", addonsdk.Sig(addonapi.TypeVoid), m.stop).
		OnUnload(func() { _, _ = m.stop(context.Background(), nil) })
	return m.addon
}

func main() {
	addonsdk.Serve(newAddon(gopsutilSampler, time.Second))
}
