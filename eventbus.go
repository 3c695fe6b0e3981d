package main

import (
	"errors"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Priority selects the listener table. LOW listeners observe an event before
// MEDIUM and HIGH ones, so membership bookkeeping registers at LOW.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	priorityCount
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

// Callback receives the untyped event payload
type Callback func(payload any) error

// Listener is the handle returned by AddListener. Removal matches the exact
// (owner, listener, priority) triple.
type Listener struct {
	owner   any
	kind    EventKind
	level   Priority
	fn      Callback
	removed bool
}

// EventBus is the synchronous publish/subscribe backbone. It is not safe for
// concurrent use: every call happens on the simulation goroutine.
type EventBus struct {
	tables [priorityCount]map[EventKind][]*Listener
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	b := &EventBus{}
	for i := range b.tables {
		b.tables[i] = make(map[EventKind][]*Listener)
	}
	return b
}

// AddListener appends fn to the table for (kind, level) and returns its handle
func (b *EventBus) AddListener(owner any, kind EventKind, fn Callback, level Priority) *Listener {
	if level < PriorityLow || level >= priorityCount {
		level = PriorityMedium
	}
	l := &Listener{owner: owner, kind: kind, level: level, fn: fn}
	b.tables[level][kind] = append(b.tables[level][kind], l)
	return l
}

// RemoveListener removes the listener registered as (owner, l, level). A
// triple that is not registered is logged and ignored.
func (b *EventBus) RemoveListener(owner any, l *Listener, level Priority) {
	if l == nil || level < PriorityLow || level >= priorityCount {
		log.Warn().Str("priority", level.String()).Msg("remove listener: invalid listener or priority")
		return
	}
	list := b.tables[level][l.kind]
	for i, cur := range list {
		if cur == l && cur.owner == owner {
			cur.removed = true
			b.tables[level][l.kind] = slices.Delete(list, i, i+1)
			return
		}
	}
	log.Warn().
		Str("event", l.kind.String()).
		Str("priority", level.String()).
		Msg("remove listener: no matching listener")
}

// RemoveOwner removes every listener registered by owner
func (b *EventBus) RemoveOwner(owner any) {
	for level := range b.tables {
		for kind, list := range b.tables[level] {
			kept := list[:0]
			for _, l := range list {
				if l.owner == owner {
					l.removed = true
					continue
				}
				kept = append(kept, l)
			}
			clear(list[len(kept):])
			b.tables[level][kind] = kept
		}
	}
}

// ListenerCount returns the number of listeners registered for kind at all levels
func (b *EventBus) ListenerCount(kind EventKind) int {
	n := 0
	for level := range b.tables {
		n += len(b.tables[level][kind])
	}
	return n
}

// CallEvent invokes all LOW, then MEDIUM, then HIGH listeners of kind in
// registration order. A failing listener is logged here and does not stop the
// others; the joined errors are returned.
func (b *EventBus) CallEvent(kind EventKind, payload any) error {
	var errs []error
	for level := PriorityLow; level < priorityCount; level++ {
		list := b.tables[level][kind]
		if len(list) == 0 {
			continue
		}
		// listeners may be added or removed while we dispatch
		snapshot := slices.Clone(list)
		for _, l := range snapshot {
			if l.removed {
				continue
			}
			if err := invoke(l, payload); err != nil {
				log.Error().Err(err).
					Str("event", kind.String()).
					Str("priority", level.String()).
					Msg("event listener failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func invoke(l *Listener, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("listener panic on %s: %v", l.kind, r)
		}
	}()
	return l.fn(payload)
}
