// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status labels used by addon metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Reasons an emitted event was not delivered.
const (
	DropUnloaded     = "unloaded"
	DropUnsubscribed = "unsubscribed"
	DropInvalidated  = "invalidated"
)

// AddonLoads counts load attempts by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var AddonLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "addonhost_addon_loads_total",
		Help: "Total number of addon load attempts by status",
	},
	[]string{"status"},
)

// AddonUnloads counts unload attempts by outcome.
var AddonUnloads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "addonhost_addon_unloads_total",
		Help: "Total number of addon unload attempts by status",
	},
	[]string{"status"},
)

// AddonsLoaded tracks the number of addons currently in the registry.
var AddonsLoaded = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "addonhost_addons_loaded",
		Help: "Number of addons currently loaded",
	},
)

// CapabilityCalls counts capability invocations.
var CapabilityCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "addonhost_capability_calls_total",
		Help: "Total number of capability calls by addon, capability and status",
	},
	[]string{"addon", "capability", "status"},
)

// CapabilityCallDuration observes time spent in native calls.
var CapabilityCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "addonhost_capability_call_duration_seconds",
		Help:    "Capability call duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"addon", "capability"},
)

// EventsEmitted counts events accepted into the queue.
var EventsEmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "addonhost_events_emitted_total",
		Help: "Total number of addon events queued for delivery",
	},
	[]string{"addon"},
)

// EventsDropped counts emits that were discarded.
var EventsDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "addonhost_events_dropped_total",
		Help: "Total number of addon events discarded before delivery",
	},
	[]string{"reason"},
)

// EventsDelivered counts callbacks invoked.
var EventsDelivered = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "addonhost_events_delivered_total",
		Help: "Total number of addon events delivered to callbacks",
	},
)

// RegisterMetrics registers addon metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AddonLoads)
	reg.MustRegister(AddonUnloads)
	reg.MustRegister(AddonsLoaded)
	reg.MustRegister(CapabilityCalls)
	reg.MustRegister(CapabilityCallDuration)
	reg.MustRegister(EventsEmitted)
	reg.MustRegister(EventsDropped)
	reg.MustRegister(EventsDelivered)
}
