package ws

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/visibility"
)

// Hub is the process-local connection registry. Every authenticated client
// sits in the personal room of its user; thread rooms are joined explicitly.
// It only routes deliveries and can be rebuilt from reconnections.
type Hub struct {
	users map[string]map[*Client]struct{}
	rooms map[string]map[*Client]struct{}
	mu    sync.RWMutex
	log   logrus.FieldLogger
}

// NewHub creates an empty hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		users: make(map[string]map[*Client]struct{}),
		rooms: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

// Register adds a client to its user's personal room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := visibility.NormalizeID(c.info.UserID)
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*Client]struct{})
	}
	h.users[userID][c] = struct{}{}
}

// Unregister removes a client from every room and closes its send queue.
// It is safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	userID := visibility.NormalizeID(c.info.UserID)
	if clients, ok := h.users[userID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.users, userID)
		}
	}
	for room := range c.rooms {
		if clients, ok := h.rooms[room]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = nil
	c.closed = true
	close(c.send)
}

// Join adds a client to a thread room.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	if c.rooms == nil {
		c.rooms = make(map[string]struct{})
	}
	c.rooms[room] = struct{}{}
}

// Leave removes a client from a thread room.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[room]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// SendToClient queues an event for a single connection.
func (h *Hub) SendToClient(c *Client, event models.OutboundEvent) bool {
	payload, ok := h.encode(event)
	if !ok {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enqueue(c, payload)
}

// SendToUser queues an event on every connection of a user and returns the
// number of connections it reached.
func (h *Hub) SendToUser(userID string, event models.OutboundEvent) int {
	return h.SendToUsers([]string{userID}, event)
}

// SendToUsers queues an event on every connection of each listed user.
func (h *Hub) SendToUsers(userIDs []string, event models.OutboundEvent) int {
	payload, ok := h.encode(event)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, userID := range visibility.NormalizeIDs(userIDs) {
		for c := range h.users[userID] {
			if h.enqueue(c, payload) {
				delivered++
			}
		}
	}
	return delivered
}

// BroadcastRoom queues an event on every connection joined to room.
func (h *Hub) BroadcastRoom(room string, event models.OutboundEvent) int {
	payload, ok := h.encode(event)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.rooms[room] {
		if h.enqueue(c, payload) {
			delivered++
		}
	}
	return delivered
}

// OnlineUsers lists the users with at least one open connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.users))
	for userID := range h.users {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// IsOnline reports whether the user has an open connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.Connections(userID) > 0
}

// Connections counts the user's open connections.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[visibility.NormalizeID(userID)])
}

// enqueue must be called with h.mu held. A full queue drops the event rather
// than blocking the sender; the client will resync on its next request.
func (h *Hub) enqueue(c *Client, payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		observability.IncWSDeliveryFailure()
		h.log.WithFields(logrus.Fields{
			"conn_id": c.info.ConnID,
			"user_id": c.info.UserID,
		}).Warn("websocket send queue full, event dropped")
		return false
	}
}

func (h *Hub) encode(event models.OutboundEvent) ([]byte, bool) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).WithField("event", event.Event).Error("encode websocket event")
		return nil, false
	}
	return payload, true
}

func threadRoom(chatID string) string {
	return "chat:" + visibility.NormalizeID(chatID)
}
