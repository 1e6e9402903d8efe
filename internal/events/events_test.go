package events

import (
	"sync"
	"testing"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event, 4)
	bus.Subscribe(ch)

	bus.Publish(Event{Type: EventConnecting, Target: "web1:22"})
	bus.Publish(Event{Type: EventDone, Target: "web1:22"})

	if len(ch) != 2 {
		t.Fatalf("delivered = %d, want 2", len(ch))
	}
	first := <-ch
	if first.Type != EventConnecting || first.Target != "web1:22" {
		t.Errorf("first event = %+v", first)
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	full := make(chan Event) // no capacity, nobody reading
	live := make(chan Event, 1)
	bus.Subscribe(full)
	bus.Subscribe(live)

	bus.Publish(Event{Type: EventStaging, Target: "web2:22"})

	select {
	case ev := <-live:
		if ev.Type != EventStaging {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("healthy subscriber missed the event")
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(make(chan Event, 1))
		}()
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: EventExecuting, Target: "web3:22"})
		}()
	}
	wg.Wait()
}
