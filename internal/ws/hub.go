package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coursehub/payout-api/internal/logger"
	"github.com/google/uuid"
)

// AdminRoom is the room every ADMIN connection joins. Professors join the
// room keyed by their own id.
var AdminRoom = uuid.Nil

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// roomEvent routes one event to a set of rooms
type roomEvent struct {
	Rooms []uuid.UUID
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by room ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	broadcast chan *roomEvent

	// Closed when Run returns
	done chan struct{}

	log *logger.Logger
	mu  sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
		done:       make(chan struct{}),
		log:        log.With("component", "ws_hub"),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled, at which
// point every client is disconnected.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.log.Error("marshal ws event", "type", event.Event.Type, "error", err)
				continue
			}

			h.mu.Lock()
			for _, room := range event.Rooms {
				for client := range h.rooms[room] {
					select {
					case client.send <- message:
					default:
						// Client's send buffer is full
						h.remove(client)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops a client and closes its send channel. Caller holds h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
}

// Notify publishes an event to the admin room and to the professor's room.
// It never blocks: when the hub is backed up the event is dropped.
func (h *Hub) Notify(professorID uuid.UUID, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal ws payload", "type", eventType, "error", err)
		return
	}
	rooms := []uuid.UUID{AdminRoom}
	if professorID != AdminRoom {
		rooms = append(rooms, professorID)
	}
	select {
	case h.broadcast <- &roomEvent{Rooms: rooms, Event: Event{Type: eventType, Payload: raw}}:
	default:
		h.log.Warn("ws broadcast queue full, dropping event", "type", eventType, "professor_id", professorID)
	}
}

// join registers a client unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters a client unless the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
