package ws

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/easeldraw/easel/backend/internal/db"
	"github.com/easeldraw/easel/backend/internal/history"
	"github.com/easeldraw/easel/backend/internal/metrics"
)

// Hub owns the connection registry and all per-room state transitions.
// Every inbound frame funnels through the Run goroutine, so the order in
// which frames are routed is the authoritative total order for each room.
type Hub struct {
	database *db.Database
	logs     *history.Registry
	logger   zerolog.Logger

	// All open connections; a client appears here from socket open,
	// before it has joined a room.
	clients map[*Client]bool

	// Joined clients by room id
	rooms map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	frames     chan *frame

	mu sync.RWMutex
}

// frame is one raw inbound WebSocket message awaiting routing.
type frame struct {
	sender *Client
	data   []byte
}

func NewHub(database *db.Database, logs *history.Registry, logger zerolog.Logger) *Hub {
	return &Hub{
		database:   database,
		logs:       logs,
		logger:     logger,
		clients:    make(map[*Client]bool),
		rooms:      make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		frames:     make(chan *frame),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.ConnectionsActive.Inc()
			h.logger.Debug().Str("client", client.id).Msg("connection opened")

		case client := <-h.unregister:
			h.removeClient(client)

		case f := <-h.frames:
			h.route(f)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	metrics.ConnectionsActive.Dec()

	roomID := client.roomID
	var roomClosed bool
	if roomID != 0 {
		if peers, ok := h.rooms[roomID]; ok {
			delete(peers, client)
			if len(peers) == 0 {
				delete(h.rooms, roomID)
				roomClosed = true
			}
		}
	}
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	if roomClosed {
		// History is scoped to the room's occupancy.
		h.logs.Release(roomID)
		h.logger.Info().Int64("room", roomID).Msg("room closed (empty)")
	}
	h.logger.Debug().Str("client", client.id).Msg("connection closed")
}

// bindRoom moves a client into a room, detaching it from a previous one
// if this is a re-join on the same socket. Leaving a room this way empties
// it the same as a disconnect would, including dropping its history.
func (h *Hub) bindRoom(client *Client, roomID int64) {
	h.mu.Lock()

	var vacated int64
	if client.roomID != 0 && client.roomID != roomID {
		if peers, ok := h.rooms[client.roomID]; ok {
			delete(peers, client)
			if len(peers) == 0 {
				delete(h.rooms, client.roomID)
				vacated = client.roomID
			}
		}
	}

	client.roomID = roomID
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	if vacated != 0 {
		h.logs.Release(vacated)
		h.logger.Info().Int64("room", vacated).Msg("room closed (empty)")
	}
}

// broadcast fans a frame out to a room. The sender is skipped unless
// includeSender is set; undo and redo echo back to their originator so
// every client reverses the batch the same way.
func (h *Hub) broadcast(roomID int64, data []byte, sender *Client, includeSender bool) {
	h.mu.RLock()
	peers, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	var stalled []*Client
	for peer := range peers {
		if peer == sender && !includeSender {
			continue
		}
		select {
		case peer.send <- data:
		default:
			stalled = append(stalled, peer)
		}
	}
	h.mu.RUnlock()

	metrics.BatchesBroadcast.Inc()
	for _, peer := range stalled {
		metrics.ClientsDropped.WithLabelValues("slow_consumer").Inc()
		h.removeClient(peer)
	}
}

// send delivers a frame to a single client, dropping it if its outbound
// buffer is full.
func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		metrics.ClientsDropped.WithLabelValues("slow_consumer").Inc()
		h.removeClient(client)
	}
}

// GetRoomCount returns the number of rooms with live connections.
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetClientCount returns the number of open connections, joined or not.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetActiveRooms returns connection counts keyed by room id.
func (h *Hub) GetActiveRooms() map[int64]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := make(map[int64]int, len(h.rooms))
	for roomID, peers := range h.rooms {
		active[roomID] = len(peers)
	}
	return active
}

// HasClients reports whether a room currently has live connections. The
// cleanup sweep uses this to avoid deleting occupied rooms.
func (h *Hub) HasClients(roomID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peers, ok := h.rooms[roomID]
	return ok && len(peers) > 0
}
