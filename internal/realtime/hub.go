// Package realtime pushes live availability updates (slot counts, stock
// changes) to clients watching an event page.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are heartbeat seconds.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains event_id -> set of connections and broadcasts messages.
// Redis pub/sub carries broadcasts across instances: local delivery plus a
// publish, with a per-event subscription while anyone is watching. Messages
// are tagged with the publishing instance's id; the subscription drops its
// own echoes so local clients see each message exactly once.
type Hub struct {
	id       string
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes an event-room message for other instances.
type RedisPublisher interface {
	PublishEventUpdate(eventID uuid.UUID, origin, event string, payload []byte) error
}

// RedisSubscriber subscribes to an event's channel and invokes handler for
// incoming messages.
type RedisSubscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a WebSocket hub. redisPub and redisSub may be nil for
// single-instance deployments.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		id:       uuid.NewString(),
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to an event room, opening the Redis subscription
// when it is the room's first watcher.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeEvent(c.EventID, func(origin, event string, payload []byte) {
				if origin == h.id {
					// Our own publish already reached local clients.
					return
				}
				h.Broadcast(c.EventID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.EventID] = cancel
			}
		}
	}
	h.rooms[c.EventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined event room",
		zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Unregister removes a client, closing the Redis subscription when the room
// empties.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.EventID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left event room",
		zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Broadcast delivers a message to every local client in an event room.
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.rooms[eventID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish delivers locally and forwards through Redis for other instances.
// This is the Broadcaster hook the admission and inventory services call.
func (h *Hub) Publish(eventID uuid.UUID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.Broadcast(eventID, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishEventUpdate(eventID, h.id, event, data)
	}
}

// WatcherCount returns the number of connected clients in an event room.
func (h *Hub) WatcherCount(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
