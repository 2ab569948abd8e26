// Package interception taps the host SDK's hook points, normalizes and
// filters the resulting events, and collects the survivors in a bounded
// observable store for the toolbar UI.
package interception

import (
	"sync"

	"github.com/launchdarkly/launchdarkly-toolbar/event"
)

// DefaultCapacity bounds the store when no explicit capacity is configured.
const DefaultCapacity = 500

// Store is a bounded, insertion-ordered collection of processed events with
// subscribe/notify semantics. Once the capacity is exceeded the oldest event
// is evicted. Subscribers are invoked with no arguments and re-read state
// through Events (pull model).
type Store struct {
	mu        sync.Mutex
	events    []event.ProcessedEvent
	capacity  int
	subs      map[int]func()
	nextSubID int
	onEvict   func()
}

// NewStore creates a store holding at most capacity events. A non-positive
// capacity falls back to [DefaultCapacity].
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		subs:     make(map[int]func()),
	}
}

// Add appends an event, evicting the oldest if the store is full, and
// notifies subscribers. Notification runs outside the store lock so a
// subscriber may safely call back into Events.
func (s *Store) Add(ev event.ProcessedEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.capacity {
		evicted := len(s.events) - s.capacity
		s.events = append(s.events[:0:0], s.events[evicted:]...)
		if s.onEvict != nil {
			for i := 0; i < evicted; i++ {
				s.onEvict()
			}
		}
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Events returns a point-in-time copy of the stored events, oldest first.
func (s *Store) Events() []event.ProcessedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.ProcessedEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len reports the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(fn func()) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	if s.subs == nil {
		s.subs = make(map[int]func())
	}
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Clear empties the store and notifies subscribers.
func (s *Store) Clear() {
	s.mu.Lock()
	s.events = nil
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Destroy empties the store and drops every subscriber. It is idempotent;
// further Add calls still work but notify nobody until a new subscription.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.subs = make(map[int]func())
}

func (s *Store) snapshotSubs() []func() {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
