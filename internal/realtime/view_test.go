package realtime

import (
	"testing"
	"time"

	"github.com/quietline/go-support-backend/internal/domain"
)

func baseSession() domain.Session {
	return domain.Session{
		ID:         "sess1",
		ListenerID: "lst",
		SeekerID:   "skr",
		Status:     domain.SessionActive,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func msg(id, sender string, at time.Time) domain.Message {
	return domain.Message{ID: id, SessionID: "sess1", SenderID: sender, Content: "m-" + id, CreatedAt: at}
}

func TestApplyMessage_DedupAndOrdering(t *testing.T) {
	v := NewSessionView(baseSession(), "skr")
	t0 := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	// Realtime event arrives before the initial fetch replays the same rows.
	v.ApplyMessage(msg("m2", "lst", t0.Add(time.Minute)))
	v.ApplyMessage(msg("m1", "lst", t0))
	v.ApplyMessage(msg("m2", "lst", t0.Add(time.Minute))) // duplicate delivery

	got := v.Messages()
	if len(got) != 2 {
		t.Fatalf("len = %d; want 2 after dedup", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("order = %s,%s; want m1,m2 (by created_at, not arrival)", got[0].ID, got[1].ID)
	}
}

func TestApplyMessage_DuplicateCarryingReadAtAdvances(t *testing.T) {
	v := NewSessionView(baseSession(), "skr")
	at := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	v.ApplyMessage(msg("m1", "skr", at))
	read := at.Add(time.Minute)
	dup := msg("m1", "skr", at)
	dup.ReadAt = &read
	v.ApplyMessage(dup)

	if v.Messages()[0].ReadAt == nil {
		t.Fatalf("fresher duplicate must advance read state")
	}
}

func TestEndClassification_SelfVsPeer(t *testing.T) {
	ended := baseSession()
	now := time.Now().UTC()
	ended.Status = domain.SessionEnded
	ended.EndedAt = &now

	// Client A flagged itself before writing the end.
	a := NewSessionView(baseSession(), "skr")
	a.MarkEnding()
	a.ApplySession(ended)
	if a.EndState() != EndedBySelf {
		t.Fatalf("initiator must classify EndedBySelf, got %v", a.EndState())
	}

	// Client B observes the same update without the local flag.
	b := NewSessionView(baseSession(), "lst")
	b.ApplySession(ended)
	if b.EndState() != EndedByPeer {
		t.Fatalf("counterpart must classify EndedByPeer, got %v", b.EndState())
	}

	// Redundant delivery of the terminal state keeps the classification.
	b.ApplySession(ended)
	if b.EndState() != EndedByPeer {
		t.Fatalf("duplicate terminal update changed classification")
	}
}

func TestApplyReaction_FilterDedupToggle(t *testing.T) {
	v := NewSessionView(baseSession(), "skr")
	at := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	v.ApplyMessage(msg("m1", "lst", at))

	r := domain.Reaction{ID: "r1", MessageID: "m1", UserID: "skr", ReactionKey: "heart"}

	// Unknown message: dropped.
	v.ApplyReaction(ReactionPayload{Reaction: domain.Reaction{ID: "rX", MessageID: "ghost"}})
	if len(v.Reactions("ghost")) != 0 {
		t.Fatalf("reaction for unheld message must be dropped")
	}

	v.ApplyReaction(ReactionPayload{Reaction: r})
	v.ApplyReaction(ReactionPayload{Reaction: r}) // at-least-once duplicate
	if got := v.Reactions("m1"); len(got) != 1 {
		t.Fatalf("reactions = %d; want 1 after dedup", len(got))
	}

	v.ApplyReaction(ReactionPayload{Reaction: r, Removed: true})
	if got := v.Reactions("m1"); len(got) != 0 {
		t.Fatalf("toggle removal must clear, got %d", len(got))
	}
}

func TestApplyRead_MonotonicOwnMessagesOnly(t *testing.T) {
	v := NewSessionView(baseSession(), "skr")
	at := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	v.ApplyMessage(msg("mine", "skr", at))
	v.ApplyMessage(msg("theirs", "lst", at.Add(time.Second)))

	readAt := at.Add(time.Minute)
	v.ApplyRead(ReadPayload{SessionID: "sess1", ReaderID: "lst", MessageIDs: []string{"mine", "theirs", "ghost"}, ReadAt: readAt})

	msgs := v.Messages()
	if msgs[0].ReadAt == nil {
		t.Fatalf("own message acked by counterpart must show read")
	}
	if msgs[1].ReadAt != nil {
		t.Fatalf("counterpart message untouched by their own ack")
	}

	// A later duplicate ack never moves the stamp.
	v.ApplyRead(ReadPayload{ReaderID: "lst", MessageIDs: []string{"mine"}, ReadAt: readAt.Add(time.Hour)})
	if !msgs[0].ReadAt.Equal(*v.Messages()[0].ReadAt) {
		t.Fatalf("read_at must not regress or re-stamp")
	}
}

func TestBeginMarkRead_TracksAttemptsAndRetriesOnFailure(t *testing.T) {
	v := NewSessionView(baseSession(), "skr")
	at := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	v.ApplyMessage(msg("m1", "lst", at))
	v.ApplyMessage(msg("m2", "lst", at.Add(time.Second)))
	v.ApplyMessage(msg("mine", "skr", at.Add(2*time.Second)))

	ids := v.BeginMarkRead()
	if len(ids) != 2 {
		t.Fatalf("BeginMarkRead = %v; want the 2 counterpart messages", ids)
	}
	// Re-render before the write completes: nothing new to attempt.
	if again := v.BeginMarkRead(); len(again) != 0 {
		t.Fatalf("re-render must not re-attempt, got %v", again)
	}

	// Write failed: un-mark so a later render retries.
	v.FailMarkRead(ids)
	if retry := v.BeginMarkRead(); len(retry) != 2 {
		t.Fatalf("after failure retry = %v; want 2", retry)
	}

	// Success path stamps locally.
	readAt := at.Add(time.Minute)
	v.CompleteMarkRead(ids, readAt)
	for _, m := range v.Messages()[:2] {
		if m.ReadAt == nil {
			t.Fatalf("completed mark-read must stamp local copies")
		}
	}
	if final := v.BeginMarkRead(); len(final) != 0 {
		t.Fatalf("read messages must not be re-attempted, got %v", final)
	}
}

func TestTypingIndicator_ExpiryAndSupersession(t *testing.T) {
	v := NewSessionView(baseSession(), "skr")
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return clock }

	v.ApplyTyping(TypingPayload{SessionID: "sess1", UserID: "lst"})
	if !v.TypingActive() {
		t.Fatalf("indicator should be up right after a pulse")
	}

	clock = clock.Add(2 * time.Second)
	if !v.TypingActive() {
		t.Fatalf("indicator should persist inside the timeout")
	}

	clock = clock.Add(2 * time.Second)
	if v.TypingActive() {
		t.Fatalf("indicator must auto-clear after the timeout")
	}

	// Own pulses never render an indicator.
	v.ApplyTyping(TypingPayload{SessionID: "sess1", UserID: "skr"})
	if v.TypingActive() {
		t.Fatalf("own typing must not raise the indicator")
	}

	// A counterpart message clears an active indicator immediately.
	v.ApplyTyping(TypingPayload{SessionID: "sess1", UserID: "lst"})
	v.ApplyMessage(msg("m9", "lst", clock))
	if v.TypingActive() {
		t.Fatalf("arriving message must clear the indicator")
	}
}

func TestTypingThrottle(t *testing.T) {
	th := NewTypingThrottle(3 * time.Second)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return clock }

	if !th.ShouldEmit() {
		t.Fatalf("first pulse allowed")
	}
	clock = clock.Add(time.Second)
	if th.ShouldEmit() {
		t.Fatalf("pulse inside the window must be suppressed")
	}
	clock = clock.Add(3 * time.Second)
	if !th.ShouldEmit() {
		t.Fatalf("pulse after the window allowed")
	}
}

func TestLastActivityAt_SeedsFromMessagesNotLoadTime(t *testing.T) {
	v := NewSessionView(baseSession(), "skr")
	if got := v.LastActivityAt(); !got.Equal(baseSession().CreatedAt) {
		t.Fatalf("empty session seeds from creation, got %v", got)
	}

	at := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	v.ApplyMessage(msg("m1", "lst", at))
	if got := v.LastActivityAt(); !got.Equal(at) {
		t.Fatalf("seed = %v; want newest message time %v", got, at)
	}
}
