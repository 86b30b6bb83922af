// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"container/heap"
	"time"

	lua "github.com/yuin/gopher-lua"
)

type timer struct {
	id    int
	when  time.Time
	seq   int
	fn    *lua.LFunction
	index int
}

// timerQueue is a min-heap of timers ordered by due time, then creation
// order. It is only touched by the scripting goroutine.
type timerQueue struct {
	items  []*timer
	byID   map[int]*timer
	nextID int
}

func newTimerQueue() *timerQueue {
	return &timerQueue{byID: make(map[int]*timer)}
}

func (q *timerQueue) Len() int { return len(q.items) }

func (q *timerQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.when.Equal(b.when) {
		return a.seq < b.seq
	}
	return a.when.Before(b.when)
}

func (q *timerQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(q.items)
	q.items = append(q.items, t)
}

func (q *timerQueue) Pop() any {
	old := q.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	t.index = -1
	return t
}

// add schedules fn after delay and returns its id.
func (q *timerQueue) add(fn *lua.LFunction, delay time.Duration, now time.Time) int {
	q.nextID++
	t := &timer{id: q.nextID, when: now.Add(delay), seq: q.nextID, fn: fn}
	heap.Push(q, t)
	q.byID[t.id] = t
	return t.id
}

// cancel removes a pending timer. Unknown ids are ignored.
func (q *timerQueue) cancel(id int) bool {
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(q, t.index)
	delete(q.byID, id)
	return true
}

// next returns the due time of the earliest timer.
func (q *timerQueue) next() (time.Time, bool) {
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].when, true
}

// popDue removes and returns the earliest timer if it is due at now.
func (q *timerQueue) popDue(now time.Time) (*timer, bool) {
	if len(q.items) == 0 || q.items[0].when.After(now) {
		return nil, false
	}
	t := heap.Pop(q).(*timer)
	delete(q.byID, t.id)
	return t, true
}
