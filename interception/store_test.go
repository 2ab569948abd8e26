package interception

import (
	"fmt"
	"testing"

	"github.com/launchdarkly/launchdarkly-toolbar/event"
)

func testEvent(i int) event.ProcessedEvent {
	return event.ProcessedEvent{
		ID:   fmt.Sprintf("custom-0-%06d-aaaaaa", i),
		Kind: event.KindCustom,
		Key:  fmt.Sprintf("event-%d", i),
	}
}

func TestStoreEviction(t *testing.T) {
	s := NewStore(3)

	for i := 0; i < 5; i++ {
		s.Add(testEvent(i))
	}

	got := s.Events()
	if len(got) != 3 {
		t.Fatalf("len(Events()) = %d, want 3", len(got))
	}
	for i, ev := range got {
		want := fmt.Sprintf("event-%d", i+2)
		if ev.Key != want {
			t.Fatalf("Events()[%d].Key = %q, want %q", i, ev.Key, want)
		}
	}
}

func TestStoreEventsReturnsCopy(t *testing.T) {
	s := NewStore(10)
	s.Add(testEvent(0))

	events := s.Events()
	events[0].Key = "mutated"

	if got := s.Events()[0].Key; got != "event-0" {
		t.Fatalf("stored event mutated through snapshot: Key = %q", got)
	}
}

func TestStoreSubscribeNotifyAndUnsubscribe(t *testing.T) {
	s := NewStore(10)

	var calls int
	remove := s.Subscribe(func() { calls++ })

	s.Add(testEvent(0))
	if calls != 1 {
		t.Fatalf("calls after Add = %d, want 1", calls)
	}

	s.Clear()
	if calls != 2 {
		t.Fatalf("calls after Clear = %d, want 2", calls)
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", got)
	}

	remove()
	s.Add(testEvent(1))
	if calls != 2 {
		t.Fatalf("calls after unsubscribe = %d, want 2", calls)
	}
}

func TestStoreSubscriberCanReadDuringNotification(t *testing.T) {
	s := NewStore(10)

	var seen int
	s.Subscribe(func() { seen = s.Len() })

	s.Add(testEvent(0))
	if seen != 1 {
		t.Fatalf("subscriber observed Len() = %d, want 1", seen)
	}
}

func TestStoreDestroyIsIdempotent(t *testing.T) {
	s := NewStore(10)

	var calls int
	s.Subscribe(func() { calls++ })
	s.Add(testEvent(0))

	s.Destroy()
	s.Destroy()

	if got := s.Len(); got != 0 {
		t.Fatalf("Len() after Destroy = %d, want 0", got)
	}
	s.Add(testEvent(1))
	if calls != 1 {
		t.Fatalf("subscriber called after Destroy: calls = %d, want 1", calls)
	}
}
