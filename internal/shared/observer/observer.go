// Package observer implements the add/remove notification contract shared by
// every mutable collection (subscriptions, filters, playlists).
//
// Observers are held through weak pointers, so a collection never keeps a
// dismissed consumer alive. Dead handles are pruned lazily while dispatching.
package observer

import (
	"sync"
	"weak"
)

// Action is the kind of structural change carried by an Event.
type Action int

const (
	Add Action = iota
	Remove
)

func (a Action) String() string {
	if a == Remove {
		return "remove"
	}
	return "add"
}

// Event describes one structural change of a collection.
type Event[T any] struct {
	Action Action
	Item   T
}

func AddEvent[T any](item T) Event[T] {
	return Event[T]{Action: Add, Item: item}
}

func RemoveEvent[T any](item T) Event[T] {
	return Event[T]{Action: Remove, Item: item}
}

// Observer receives events from a Subject.
type Observer[T any] interface {
	Notify(Event[T])
}

// handle delivers an event and reports false once its target has been collected.
type handle[T any] struct {
	deliver func(Event[T]) bool
}

// Subject is a registry of observers. The zero value is ready to use.
type Subject[T any] struct {
	mu      sync.Mutex
	handles []*handle[T]
}

// Attach registers o without keeping it alive. Once nothing else references
// *O the observer silently stops receiving events.
func Attach[T any, O any, PO interface {
	*O
	Observer[T]
}](s *Subject[T], o PO) {
	wp := weak.Make((*O)(o))
	s.add(func(ev Event[T]) bool {
		target := wp.Value()
		if target == nil {
			return false
		}
		PO(target).Notify(ev)
		return true
	})
}

// AttachFunc registers a callback that lives as long as the subject.
func (s *Subject[T]) AttachFunc(fn func(Event[T])) {
	s.add(func(ev Event[T]) bool {
		fn(ev)
		return true
	})
}

func (s *Subject[T]) add(deliver func(Event[T]) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, &handle[T]{deliver: deliver})
}

// Notify synchronously delivers ev to every live observer, in registration
// order, and drops the handles whose targets are gone.
func (s *Subject[T]) Notify(ev Event[T]) {
	s.mu.Lock()
	handles := make([]*handle[T], len(s.handles))
	copy(handles, s.handles)
	s.mu.Unlock()

	dead := make(map[*handle[T]]struct{})
	for _, h := range handles {
		if !h.deliver(ev) {
			dead[h] = struct{}{}
		}
	}
	if len(dead) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	live := make([]*handle[T], 0, len(s.handles))
	for _, h := range s.handles {
		if _, ok := dead[h]; !ok {
			live = append(live, h)
		}
	}
	s.handles = live
}

// Len reports the number of registered handles, including ones not yet pruned.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
