package services

import (
	"log"
	"sync"

	"game-match-system/models"
	"game-match-system/monitor"
)

// Event is one broadcast unit: a named event on a named channel. Delivery to
// clients is at-least-once and unordered across channels; consumers key their
// updates off the turn/round numbers carried in Data and treat the persisted
// match as canonical.
type Event struct {
	Channel string      `json:"channel"`
	Name    string      `json:"event"`
	Data    interface{} `json:"data"`
}

// Publisher is what the game services see. Publication happens strictly after
// a successful commit; a rolled-back transaction emits nothing.
type Publisher interface {
	Publish(channel, event string, data interface{})
}

// QueueChannel is the per-game-type matchmaking channel (`matched` events only).
func QueueChannel(gameType string) string {
	if gameType == models.GameTypeRPS {
		return "rps-matchmaking"
	}
	return "tictactoe-matchmaking"
}

// MatchChannel is the per-match channel carrying all in-game events.
func MatchChannel(matchID string) string {
	return "match:" + matchID
}

// Hub fans events out to in-process subscribers, keyed by channel name.
// SSE and WebSocket handlers subscribe here; the Redis relay forwards
// events published by other nodes into it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]bool

	Metrics *monitor.Monitor
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]bool),
	}
}

// Subscribe returns a buffered event channel for one broadcast channel.
// Callers must Unsubscribe when done.
func (h *Hub) Subscribe(channel string) chan Event {
	ch := make(chan Event, 256)
	h.mu.Lock()
	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[chan Event]bool)
	}
	h.subscribers[channel][ch] = true
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(channel string, ch chan Event) {
	h.mu.Lock()
	if subs, ok := h.subscribers[channel]; ok {
		if subs[ch] {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, channel)
		}
	}
	h.mu.Unlock()
}

// Publish delivers to every subscriber of the channel. Slow consumers with a
// full buffer are skipped rather than blocking the publisher; they recover by
// re-reading the match from the store.
func (h *Hub) Publish(channel, event string, data interface{}) {
	ev := Event{Channel: channel, Name: event, Data: data}

	h.mu.RLock()
	dropped := 0
	for ch := range h.subscribers[channel] {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	h.Metrics.IncEventsPublished()
	if dropped > 0 {
		log.Printf("[Hub] dropped %q for %d slow subscriber(s) on %s", event, dropped, channel)
	}
}

// SubscriberCount reports how many clients are listening on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}
