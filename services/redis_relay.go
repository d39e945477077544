package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relayStream = "match-events"

// relayEnvelope wraps an Event with the publishing node's id so a node can
// ignore its own publishes when they echo back from Redis.
type relayEnvelope struct {
	NodeID string `json:"nodeId"`
	Event  Event  `json:"event"`
}

// RedisRelay mirrors every local publish onto a Redis pub/sub channel and
// forwards events published by other nodes into the local hub, so clients
// connected to different nodes see the same stream. Delivery stays
// at-least-once; nothing here de-duplicates beyond dropping self-echoes.
type RedisRelay struct {
	hub    *Hub
	rdb    *redis.Client
	nodeID string
}

func NewRedisRelay(hub *Hub, rdb *redis.Client) *RedisRelay {
	return &RedisRelay{
		hub:    hub,
		rdb:    rdb,
		nodeID: uuid.NewString(),
	}
}

// Publish delivers locally first, then mirrors to Redis. A Redis outage
// degrades to single-node broadcasting instead of failing the caller.
func (r *RedisRelay) Publish(channel, event string, data interface{}) {
	r.hub.Publish(channel, event, data)

	payload, err := json.Marshal(relayEnvelope{
		NodeID: r.nodeID,
		Event:  Event{Channel: channel, Name: event, Data: data},
	})
	if err != nil {
		log.Printf("[RedisRelay] marshal failed for %s on %s: %v", event, channel, err)
		return
	}
	if err := r.rdb.Publish(context.Background(), relayStream, payload).Err(); err != nil {
		log.Printf("[RedisRelay] publish failed for %s on %s: %v", event, channel, err)
	}
}

// Run subscribes to the relay stream and forwards remote events into the
// local hub until the context is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.rdb.Subscribe(ctx, relayStream)
	defer sub.Close()

	log.Printf("[RedisRelay] node %s relaying on %q", r.nodeID, relayStream)
	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[RedisRelay] bad payload: %v", err)
				continue
			}
			if env.NodeID == r.nodeID {
				continue
			}
			r.hub.Publish(env.Event.Channel, env.Event.Name, env.Event.Data)
		case <-ctx.Done():
			log.Println("[RedisRelay] stopped")
			return
		}
	}
}
