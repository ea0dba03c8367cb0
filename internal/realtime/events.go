// Package realtime carries the per-session broadcast channel that keeps two
// clients' view of a conversation synchronized: message inserts, session
// status updates, reaction deltas, and the two ephemeral event types
// (typing pulses and read acks) that are never persisted.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/quietline/go-support-backend/internal/domain"
)

// Event types carried on a session channel.
const (
	TypeMessage  = "message"
	TypeSession  = "session"
	TypeReaction = "reaction"
	TypeTyping   = "typing"
	TypeRead     = "read"
)

// Event verbs. Persisted rows are inserted/updated/deleted; ephemeral
// events are pulses.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
	EventPulse  = "pulse"
)

// Event is the wire envelope for everything on a session channel. Delivery
// is at-least-once: receivers must merge payloads idempotently.
type Event struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// TypingPayload is the ephemeral typing pulse. Receivers clear the indicator
// themselves after a timeout; there is no "stopped typing" event.
type TypingPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// ReadPayload is the ephemeral read ack, letting the sender's client update
// its check marks without re-fetching rows.
type ReadPayload struct {
	SessionID  string    `json:"session_id"`
	ReaderID   string    `json:"reader_id"`
	MessageIDs []string  `json:"message_ids"`
	ReadAt     time.Time `json:"read_at"`
}

// ReactionPayload wraps a reaction row with the direction of the toggle.
type ReactionPayload struct {
	Reaction domain.Reaction `json:"reaction"`
	Removed  bool            `json:"removed"`
}

// NewEvent marshals payload into an Event envelope. Marshal failures cannot
// happen for the payload types above, so the error is swallowed into an
// empty payload rather than propagated through every broadcast call site.
func NewEvent(typ, verb string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	return Event{Type: typ, Event: verb, Payload: raw}
}
