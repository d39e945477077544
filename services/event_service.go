package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// EventService serves hub channels to clients over SSE and WebSocket.
// Channel names follow the catalog: `tictactoe-matchmaking`, `rps-matchmaking`
// and `match:<matchId>`.
type EventService struct {
	Hub *Hub
}

func NewEventService(hub *Hub) *EventService {
	return &EventService{Hub: hub}
}

// StreamChannelSSE streams a channel's events as server-sent events.
func (s *EventService) StreamChannelSSE(c *fiber.Ctx) error {
	channel := c.Params("channel")
	if channel == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing channel"})
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	sub := s.Hub.Subscribe(channel)

	// Use fasthttp stream writer (THIS replaces Flush)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer s.Hub.Unsubscribe(channel, sub)

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev.Data)
				if err != nil {
					log.Printf("[SSE] marshal error on %s: %v", channel, err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}
			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}

// wsMessage is the frame sent to WebSocket subscribers.
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// StreamChannelWS returns the WebSocket handler for a channel subscription.
// The socket is one-way: clients mutate state through the HTTP API and only
// listen here.
func (s *EventService) StreamChannelWS() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		channel := conn.Params("channel")
		if channel == "" {
			conn.Close()
			return
		}

		sub := s.Hub.Subscribe(channel)
		defer s.Hub.Unsubscribe(channel, sub)

		// Reader goroutine exists only to notice the peer closing.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				frame, err := json.Marshal(wsMessage{Event: ev.Name, Data: ev.Data})
				if err != nil {
					log.Printf("[WS] marshal error on %s: %v", channel, err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}
