// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package native

import (
	"sync"

	"github.com/holomush/addonhost/internal/addon"
)

// emitterTable maps the opaque tokens handed to libraries to emitters. One
// native callback serves every library; the token selects the addon.
type emitterTable struct {
	mu    sync.RWMutex
	next  uintptr
	table map[uintptr]addon.Emitter
}

var emitters = &emitterTable{table: make(map[uintptr]addon.Emitter)}

func (t *emitterTable) add(e addon.Emitter) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.table[t.next] = e
	return t.next
}

func (t *emitterTable) remove(token uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.table, token)
}

// emit forwards one event. Tokens of closed libraries are ignored.
func (t *emitterTable) emit(token uintptr, event, payload string) {
	t.mu.RLock()
	e, ok := t.table[token]
	t.mu.RUnlock()
	if ok {
		e.Emit(event, decodePayload(payload))
	}
}
