package realtime

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Hub coordinates websocket connections grouped into per-session rooms.
// Each open session has one logical broadcast channel; the hub keeps at most
// one connection per user within a room (a reconnect replaces the previous
// socket). There is no server-resident per-session actor: the hub only fans
// events out, all reconciliation happens in the clients.
type Hub struct {
	log zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]*Connection // sessionID -> userID -> connection
}

// NewHub constructs an initialized Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:   log,
		rooms: make(map[string]map[string]*Connection),
	}
}

// Attach registers a connection in its session room and starts its write
// loop. A previous connection for the same user in the same room is closed
// after the swap so a reconnect never races its predecessor.
func (h *Hub) Attach(conn *Connection) {
	var previous *Connection

	h.mu.Lock()
	room := h.rooms[conn.SessionID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[conn.SessionID] = room
	}
	previous = room[conn.UserID]
	room[conn.UserID] = conn
	h.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(4001, "connection replaced")
	}
}

// Detach removes a connection if it is still the one tracked for its user.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	if room, ok := h.rooms[conn.SessionID]; ok {
		if current, ok := room[conn.UserID]; ok && current.ID == conn.ID {
			delete(room, conn.UserID)
			if len(room) == 0 {
				delete(h.rooms, conn.SessionID)
			}
		}
	}
	h.mu.Unlock()
}

// Broadcast delivers an event to every member of the session room.
// excludeUserID, when non-empty, skips that user (used for ephemeral events
// the emitter already applied locally). Returns the delivered count.
func (h *Hub) Broadcast(sessionID string, ev Event, excludeUserID string) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("marshal realtime event")
		return 0
	}

	h.mu.RLock()
	room := h.rooms[sessionID]
	delivered := 0
	for userID, conn := range room {
		if excludeUserID != "" && userID == excludeUserID {
			continue
		}
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	h.mu.RUnlock()
	return delivered
}

// CloseSession closes every connection in the session room. Called when a
// session ends so sockets do not linger on terminal state.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	room := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.mu.Unlock()

	for _, conn := range room {
		conn.Close(1000, "session ended")
	}
}

// Close terminates all tracked connections and clears hub state.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0)
	for _, room := range h.rooms {
		for _, conn := range room {
			conns = append(conns, conn)
		}
	}
	h.rooms = make(map[string]map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "hub shutdown")
	}
}
