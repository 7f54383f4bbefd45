// Package notify carries user-facing toast events from the data layer to
// whoever displays them. Producers hold an optional Func and never depend on
// a listener being present.
package notify

import (
	"sync"
	"time"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Error   Level = "error"
)

type Event struct {
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	Source  string    `json:"source,omitempty"`
	Time    time.Time `json:"time"`
}

// Func receives events. A nil Func is valid and drops everything.
type Func func(Event)

// Send delivers ev to fn if fn is set. Panics in fn are swallowed so a broken
// listener cannot fail a data operation.
func Send(fn Func, ev Event) {
	if fn == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	defer func() { _ = recover() }()
	fn(ev)
}

// Relay fans events out to any number of subscribers.
type Relay struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Func
}

func NewRelay() *Relay {
	return &Relay{subs: make(map[int]Func)}
}

// Subscribe registers fn and returns a function that removes it.
func (r *Relay) Subscribe(fn Func) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Publish sends ev to every subscriber. Safe on a nil Relay.
func (r *Relay) Publish(ev Event) {
	if r == nil {
		return
	}
	r.mu.RLock()
	subs := make([]Func, 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.RUnlock()
	for _, fn := range subs {
		Send(fn, ev)
	}
}

// Func adapts the relay for injection into producers.
func (r *Relay) Func() Func {
	if r == nil {
		return nil
	}
	return r.Publish
}
