// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package addon

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/addonhost/pkg/addonapi"
)

// Callback receives one event payload. It always runs on the goroutine that
// calls EventBridge.Drain.
type Callback func(payload any) error

// Registration binds a callback to one event stream of one addon.
type Registration struct {
	id    string
	event string
	addon string
	owner weak.Pointer[Handle]
	cb    Callback
	valid atomic.Bool
}

// ID returns the registration's unique identifier.
func (r *Registration) ID() string { return r.id }

// Event returns the event stream name.
func (r *Registration) Event() string { return r.event }

// Valid reports whether the registration can still receive events.
func (r *Registration) Valid() bool { return r.valid.Load() }

// PendingEvent is a payload waiting for delivery.
type PendingEvent struct {
	Registration *Registration
	Payload      any
}

// EventBridge carries payloads emitted by addons, from any goroutine, to
// callbacks run on a single consumer goroutine in strict arrival order.
type EventBridge struct {
	logger *slog.Logger
	queue  []PendingEvent
	regs   map[*Handle][]*Registration
	ready  chan struct{}
	live   atomic.Int64
	mu     sync.Mutex
}

// NewEventBridge creates an empty bridge. A nil logger uses slog.Default().
func NewEventBridge(logger *slog.Logger) *EventBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBridge{
		logger: logger,
		regs:   make(map[*Handle][]*Registration),
		ready:  make(chan struct{}, 1),
	}
}

// Register binds cb to the named event stream of h. It fails with
// AddonUnloading once h has started draining.
func (b *EventBridge) Register(h *Handle, event string, cb Callback) (*Registration, error) {
	if event == "" {
		event = addonapi.DefaultEvent
	}
	r := &Registration{
		id:    ulid.Make().String(),
		event: event,
		addon: h.Name(),
		owner: weak.Make(h),
		cb:    cb,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s := h.State(); s != StateActive {
		return nil, h.unloadingError(s)
	}
	r.valid.Store(true)
	h.retain()
	b.regs[h] = append(b.regs[h], r)
	b.live.Add(1)
	return r, nil
}

// Deregister invalidates r and drops its queued events.
func (b *EventBridge) Deregister(r *Registration) {
	if r == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.invalidateLocked(r) {
		return
	}
	if h := r.owner.Value(); h != nil {
		regs := b.regs[h]
		for i, cur := range regs {
			if cur == r {
				b.regs[h] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(b.regs[h]) == 0 {
			delete(b.regs, h)
		}
	}
	b.filterLocked(func(e PendingEvent) bool { return e.Registration != r })
}

// Emit queues payload for r. Emits on an invalidated registration are
// silently dropped.
func (b *EventBridge) Emit(r *Registration, payload any) {
	if !r.Valid() {
		EventsDropped.WithLabelValues(DropInvalidated).Inc()
		return
	}
	b.mu.Lock()
	if !r.Valid() {
		b.mu.Unlock()
		EventsDropped.WithLabelValues(DropInvalidated).Inc()
		return
	}
	b.queue = append(b.queue, PendingEvent{Registration: r, Payload: addonapi.Normalize(payload)})
	b.mu.Unlock()

	EventsEmitted.WithLabelValues(r.addon).Inc()
	b.signal()
}

// Sink returns the emit-handle given to h's module. It fans each emit out to
// every live registration for the named event.
func (b *EventBridge) Sink(h *Handle) Emitter {
	return &sink{bridge: b, owner: weak.Make(h), addon: h.Name()}
}

type sink struct {
	bridge *EventBridge
	owner  weak.Pointer[Handle]
	addon  string
}

func (s *sink) Emit(event string, payload any) {
	h := s.owner.Value()
	if h == nil || h.State() != StateActive {
		EventsDropped.WithLabelValues(DropUnloaded).Inc()
		return
	}
	if event == "" {
		event = addonapi.DefaultEvent
	}
	payload = addonapi.Normalize(payload)

	b := s.bridge
	b.mu.Lock()
	queued := 0
	for _, r := range b.regs[h] {
		if r.event == event && r.Valid() {
			b.queue = append(b.queue, PendingEvent{Registration: r, Payload: payload})
			queued++
		}
	}
	b.mu.Unlock()

	if queued == 0 {
		EventsDropped.WithLabelValues(DropUnsubscribed).Inc()
		return
	}
	EventsEmitted.WithLabelValues(s.addon).Add(float64(queued))
	b.signal()
}

// Ready is signalled whenever events are queued.
func (b *EventBridge) Ready() <-chan struct{} { return b.ready }

// Drain delivers the events queued at the time of the call, in order, and
// returns how many callbacks ran. Events queued while draining wait for the
// next call. Drain must only be called from the consumer goroutine.
func (b *EventBridge) Drain() int {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	delivered := 0
	for _, e := range batch {
		// A callback earlier in the batch may have unloaded the addon.
		if !e.Registration.Valid() {
			EventsDropped.WithLabelValues(DropInvalidated).Inc()
			continue
		}
		if err := e.Registration.cb(e.Payload); err != nil {
			b.logger.Error("addon event callback failed",
				"addon", e.Registration.addon,
				"event", e.Registration.event,
				"error", err)
		}
		delivered++
	}
	EventsDelivered.Add(float64(delivered))
	return delivered
}

// Discard invalidates every registration of h and drops its queued events.
// It returns the number of queued events discarded.
func (b *EventBridge) Discard(h *Handle) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.regs[h] {
		b.invalidateLocked(r)
	}
	delete(b.regs, h)

	dropped := b.filterLocked(func(e PendingEvent) bool {
		owner := e.Registration.owner.Value()
		return owner != h && e.Registration.Valid()
	})
	if dropped > 0 {
		EventsDropped.WithLabelValues(DropUnloaded).Add(float64(dropped))
	}
	return dropped
}

// Live returns the number of valid registrations.
func (b *EventBridge) Live() int { return int(b.live.Load()) }

// Pending returns the number of queued events.
func (b *EventBridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *EventBridge) invalidateLocked(r *Registration) bool {
	if !r.valid.CompareAndSwap(true, false) {
		return false
	}
	b.live.Add(-1)
	if h := r.owner.Value(); h != nil {
		h.release()
	}
	return true
}

func (b *EventBridge) filterLocked(keep func(PendingEvent) bool) int {
	kept := b.queue[:0]
	for _, e := range b.queue {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	dropped := len(b.queue) - len(kept)
	clear(b.queue[len(kept):])
	b.queue = kept
	return dropped
}

func (b *EventBridge) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}
