package services

import (
	"testing"
	"time"
)

func TestHubFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("match:1")
	b := hub.Subscribe("match:1")
	defer hub.Unsubscribe("match:1", a)
	defer hub.Unsubscribe("match:1", b)

	hub.Publish("match:1", "move", map[string]interface{}{"index": 4})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Name != "move" || ev.Channel != "match:1" {
				t.Errorf("got event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestHubIsolatesChannels(t *testing.T) {
	hub := NewHub()
	other := hub.Subscribe("match:2")
	defer hub.Unsubscribe("match:2", other)

	hub.Publish("match:1", "move", nil)

	select {
	case ev := <-other:
		t.Errorf("event %q leaked across channels", ev.Name)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("match:1")
	if got := hub.SubscriberCount("match:1"); got != 1 {
		t.Fatalf("subscriber count = %d, want 1", got)
	}

	hub.Unsubscribe("match:1", ch)
	if got := hub.SubscriberCount("match:1"); got != 0 {
		t.Errorf("subscriber count after unsubscribe = %d, want 0", got)
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}

	// Double unsubscribe must not panic.
	hub.Unsubscribe("match:1", ch)
}

func TestHubDropsEventsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	slow := hub.Subscribe("match:1")
	defer hub.Unsubscribe("match:1", slow)

	// Nobody reads; once the buffer fills, further publishes are dropped
	// instead of blocking.
	for i := 0; i < 300; i++ {
		hub.Publish("match:1", "state", i)
	}
	if got := len(slow); got != cap(slow) {
		t.Errorf("buffered events = %d, want a full buffer of %d", got, cap(slow))
	}
}
