package realtime

import (
	"sort"
	"time"

	"github.com/quietline/go-support-backend/internal/domain"
)

// How a session reached its ended state, from one client's perspective.
// The channel only reports the resulting row, not the actor, so each client
// flags itself before writing the end and classifies the observed update
// against that flag.
type EndState int

const (
	NotEnded EndState = iota
	EndedBySelf
	EndedByPeer
)

// DefaultTypingTimeout bounds typing-indicator staleness: with no further
// pulse or message inside this window the indicator clears on its own.
const DefaultTypingTimeout = 3 * time.Second

// DefaultTypingThrottle is the minimum gap between typing pulses a composer
// emits while text is non-empty.
const DefaultTypingThrottle = 3 * time.Second

// SessionView is one client's local, reconciled copy of a session. Realtime
// delivery is at-least-once and races the initial fetch, so every merge is
// idempotent: messages insert-if-absent by ID, reactions deduplicate by ID
// and are filtered to locally held messages, and read state only moves from
// unread to read.
//
// SessionView is not safe for concurrent use; each client is a single
// cooperative event loop.
type SessionView struct {
	SessionID string
	SelfID    string

	session  domain.Session
	messages []domain.Message
	byID     map[string]int // message ID -> index in messages

	reactions   map[string]domain.Reaction  // reaction ID -> row
	byMessage   map[string]map[string]bool  // message ID -> reaction IDs
	readMarked  map[string]bool             // message IDs this client attempted to mark read
	endingLocal bool
	endState    EndState

	typingUntil   time.Time
	typingTimeout time.Duration

	now func() time.Time
}

// NewSessionView constructs a view for the given session from this client's
// perspective.
func NewSessionView(session domain.Session, selfID string) *SessionView {
	return &SessionView{
		SessionID:     session.ID,
		SelfID:        selfID,
		session:       session,
		byID:          make(map[string]int),
		reactions:     make(map[string]domain.Reaction),
		byMessage:     make(map[string]map[string]bool),
		readMarked:    make(map[string]bool),
		typingTimeout: DefaultTypingTimeout,
		now:           time.Now,
	}
}

// Messages returns the local message list ordered by store-assigned
// created_at, the only ordering two clients agree on.
func (v *SessionView) Messages() []domain.Message { return v.messages }

// Session returns the local copy of the session row.
func (v *SessionView) Session() domain.Session { return v.session }

// ApplyMessage merges a message insert (from realtime delivery or initial
// load) into the local list. Duplicate IDs are absorbed; a duplicate that
// carries a read_at the local copy lacks still advances read state, since
// the row fetch may be fresher than the cached event.
func (v *SessionView) ApplyMessage(m domain.Message) {
	if idx, ok := v.byID[m.ID]; ok {
		if v.messages[idx].ReadAt == nil && m.ReadAt != nil {
			v.messages[idx].ReadAt = m.ReadAt
		}
		return
	}

	v.messages = append(v.messages, m)
	sort.SliceStable(v.messages, func(i, j int) bool {
		return v.messages[i].CreatedAt.Before(v.messages[j].CreatedAt)
	})
	for i := range v.messages {
		v.byID[v.messages[i].ID] = i
	}

	// A new message from the counterpart supersedes any typing indicator.
	if m.SenderID != v.SelfID {
		v.typingUntil = time.Time{}
	}
}

// MarkEnding flags that this client is about to end the session, so the
// status update it observes for its own write is not misread as the
// counterpart ending it.
func (v *SessionView) MarkEnding() { v.endingLocal = true }

// ApplySession merges a session status update. The first transition to
// ended is classified by the local ending flag; later duplicates of the
// terminal state keep the original classification.
func (v *SessionView) ApplySession(s domain.Session) {
	if s.ID != v.SessionID {
		return
	}
	prevEnded := v.session.Status == domain.SessionEnded
	v.session = s

	if s.Status == domain.SessionEnded && !prevEnded {
		if v.endingLocal {
			v.endState = EndedBySelf
		} else {
			v.endState = EndedByPeer
		}
	}
}

// EndState reports how the session ended from this client's perspective.
func (v *SessionView) EndState() EndState { return v.endState }

// ApplyReaction merges a reaction delta. Events for messages this client
// does not hold are dropped (they will arrive with the row fetch), and
// duplicate deliveries of the same reaction ID are absorbed.
func (v *SessionView) ApplyReaction(p ReactionPayload) {
	r := p.Reaction
	if _, held := v.byID[r.MessageID]; !held {
		return
	}

	if p.Removed {
		delete(v.reactions, r.ID)
		if set := v.byMessage[r.MessageID]; set != nil {
			delete(set, r.ID)
		}
		return
	}

	if _, dup := v.reactions[r.ID]; dup {
		return
	}
	v.reactions[r.ID] = r
	set := v.byMessage[r.MessageID]
	if set == nil {
		set = make(map[string]bool)
		v.byMessage[r.MessageID] = set
	}
	set[r.ID] = true
}

// Reactions returns the reactions held for a message.
func (v *SessionView) Reactions(messageID string) []domain.Reaction {
	set := v.byMessage[messageID]
	out := make([]domain.Reaction, 0, len(set))
	for id := range set {
		out = append(out, v.reactions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyRead merges a read ack: the listed messages move to read if they are
// local sends that were still unread. read_at never regresses and never
// clears.
func (v *SessionView) ApplyRead(p ReadPayload) {
	if p.ReaderID == v.SelfID {
		return
	}
	for _, id := range p.MessageIDs {
		idx, ok := v.byID[id]
		if !ok {
			continue
		}
		if v.messages[idx].SenderID == v.SelfID && v.messages[idx].ReadAt == nil {
			at := p.ReadAt
			v.messages[idx].ReadAt = &at
		}
	}
}

// ApplyTyping registers a counterpart typing pulse; the indicator stays up
// for the typing timeout unless superseded by a message or another pulse.
func (v *SessionView) ApplyTyping(p TypingPayload) {
	if p.UserID == v.SelfID {
		return
	}
	v.typingUntil = v.now().Add(v.typingTimeout)
}

// TypingActive reports whether a typing indicator should currently render.
func (v *SessionView) TypingActive() bool {
	return !v.typingUntil.IsZero() && v.now().Before(v.typingUntil)
}

// BeginMarkRead returns the counterpart's messages that are unread and not
// yet attempted, marking them attempted so a re-render does not issue a
// redundant write. Call FailMarkRead if the batched update then fails.
func (v *SessionView) BeginMarkRead() []string {
	var ids []string
	for _, m := range v.messages {
		if m.SenderID == v.SelfID || m.ReadAt != nil || v.readMarked[m.ID] {
			continue
		}
		v.readMarked[m.ID] = true
		ids = append(ids, m.ID)
	}
	return ids
}

// CompleteMarkRead applies the locally issued read stamps after the store
// confirmed the batched update.
func (v *SessionView) CompleteMarkRead(ids []string, at time.Time) {
	for _, id := range ids {
		if idx, ok := v.byID[id]; ok && v.messages[idx].ReadAt == nil {
			t := at
			v.messages[idx].ReadAt = &t
		}
	}
}

// FailMarkRead un-marks the attempted IDs so a later render retries the
// write.
func (v *SessionView) FailMarkRead(ids []string) {
	for _, id := range ids {
		delete(v.readMarked, id)
	}
}

// LastActivityAt seeds the inactivity clock: the newest message timestamp,
// falling back to session creation. Reopening an idle conversation must not
// restart the clock from load time.
func (v *SessionView) LastActivityAt() time.Time {
	if n := len(v.messages); n > 0 {
		return v.messages[n-1].CreatedAt
	}
	return v.session.CreatedAt
}

// TypingThrottle rate-limits outgoing typing pulses from a composer.
// Zero value is not usable; construct with NewTypingThrottle.
type TypingThrottle struct {
	min  time.Duration
	last time.Time
	now  func() time.Time
}

// NewTypingThrottle returns a throttle emitting at most one pulse per
// interval; interval <= 0 uses DefaultTypingThrottle.
func NewTypingThrottle(interval time.Duration) *TypingThrottle {
	if interval <= 0 {
		interval = DefaultTypingThrottle
	}
	return &TypingThrottle{min: interval, now: time.Now}
}

// ShouldEmit reports whether a pulse may be sent now, and if so records it.
func (t *TypingThrottle) ShouldEmit() bool {
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.min {
		return false
	}
	t.last = now
	return true
}
