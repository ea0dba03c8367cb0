package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quietline/go-support-backend/internal/domain"
)

func newTestMessageService(t *testing.T) *MessageService {
	t.Helper()
	return NewMessageService(newTestDB(t), nil, 2000, zerolog.Nop())
}

func TestSend_PersistsAndValidates(t *testing.T) {
	svc := newTestMessageService(t)
	seedPair(t, svc.DB)
	sess := seedSession(t, svc.DB, domain.Session{SeekerID: "seeker", ListenerID: "listener"})

	msg, err := svc.Send(context.Background(), sess.ID, "seeker", "  hello there  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Content != "hello there" {
		t.Fatalf("content = %q, want trimmed", msg.Content)
	}
	if msg.ID == "" || msg.SessionID != sess.ID || msg.SenderID != "seeker" {
		t.Fatalf("message row malformed: %+v", msg)
	}

	if _, err := svc.Send(context.Background(), sess.ID, "seeker", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank: err = %v", err)
	}
	if _, err := svc.Send(context.Background(), sess.ID, "seeker", strings.Repeat("x", 2001)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("oversize: err = %v", err)
	}
	if _, err := svc.Send(context.Background(), sess.ID, "stranger", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger: err = %v", err)
	}
}

func TestSend_RejectedOnEndedSession(t *testing.T) {
	svc := newTestMessageService(t)
	seedPair(t, svc.DB)
	now := time.Now().UTC()
	sess := seedSession(t, svc.DB, domain.Session{
		SeekerID: "seeker", ListenerID: "listener",
		Status: domain.SessionEnded, EndedAt: &now,
	})

	if _, err := svc.Send(context.Background(), sess.ID, "seeker", "too late"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("err = %v, want ErrSessionEnded", err)
	}
}

func TestList_PagesInCreatedOrder(t *testing.T) {
	svc := newTestMessageService(t)
	seedPair(t, svc.DB)
	sess := seedSession(t, svc.DB, domain.Session{SeekerID: "seeker", ListenerID: "listener"})

	for i := 0; i < 5; i++ {
		if _, err := svc.Send(context.Background(), sess.ID, "seeker", strings.Repeat("a", i+1)); err != nil {
			t.Fatalf("Send: %v", err)
		}
		time.Sleep(2 * time.Millisecond) // distinct created_at for ordering
	}

	msgs, _, total, err := svc.List(context.Background(), sess.ID, "listener", 1, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(msgs) != 2 || msgs[0].Content != "aa" || msgs[1].Content != "aaa" {
		t.Fatalf("page = %+v", msgs)
	}

	if _, _, _, err := svc.List(context.Background(), sess.ID, "stranger", 0, 10); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger list: err = %v", err)
	}
}

func TestList_EndedSessionStaysReadable(t *testing.T) {
	svc := newTestMessageService(t)
	seedPair(t, svc.DB)
	sess := seedSession(t, svc.DB, domain.Session{SeekerID: "seeker", ListenerID: "listener"})
	if _, err := svc.Send(context.Background(), sess.ID, "seeker", "before the end"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	now := time.Now().UTC()
	if err := svc.DB.Model(&domain.Session{}).Where("id = ?", sess.ID).
		Updates(map[string]any{"status": domain.SessionEnded, "ended_at": now}).Error; err != nil {
		t.Fatalf("end session: %v", err)
	}

	msgs, _, total, err := svc.List(context.Background(), sess.ID, "seeker", 0, 10)
	if err != nil {
		t.Fatalf("List after end: %v", err)
	}
	if total != 1 || len(msgs) != 1 {
		t.Fatalf("total = %d, len = %d", total, len(msgs))
	}
}

func TestMarkRead_ExplicitAndImplicitIDs(t *testing.T) {
	svc := newTestMessageService(t)
	seedPair(t, svc.DB)
	sess := seedSession(t, svc.DB, domain.Session{SeekerID: "seeker", ListenerID: "listener"})

	m1, _ := svc.Send(context.Background(), sess.ID, "seeker", "one")
	m2, _ := svc.Send(context.Background(), sess.ID, "seeker", "two")
	mine, _ := svc.Send(context.Background(), sess.ID, "listener", "own")

	marked, err := svc.MarkRead(context.Background(), sess.ID, "listener", []string{m1.ID})
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if marked != 1 {
		t.Fatalf("marked = %d, want 1", marked)
	}

	// Empty ids marks everything unread from the counterpart, never own sends.
	marked, err = svc.MarkRead(context.Background(), sess.ID, "listener", nil)
	if err != nil {
		t.Fatalf("MarkRead(all): %v", err)
	}
	if marked != 1 {
		t.Fatalf("marked = %d, want 1 (only %s)", marked, m2.ID)
	}

	var own domain.Message
	if err := svc.DB.First(&own, "id = ?", mine.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if own.ReadAt != nil {
		t.Fatalf("own message must not be marked read by sender's receipt")
	}

	// Re-marking is a no-op; read_at never moves.
	marked, err = svc.MarkRead(context.Background(), sess.ID, "listener", []string{m1.ID, m2.ID})
	if err != nil {
		t.Fatalf("repeat MarkRead: %v", err)
	}
	if marked != 0 {
		t.Fatalf("repeat marked = %d, want 0", marked)
	}
}

func TestToggleReaction_RoundTripAndGuards(t *testing.T) {
	svc := newTestMessageService(t)
	seedPair(t, svc.DB)
	sess := seedSession(t, svc.DB, domain.Session{SeekerID: "seeker", ListenerID: "listener"})
	msg, _ := svc.Send(context.Background(), sess.ID, "seeker", "react to me")

	r, added, err := svc.ToggleReaction(context.Background(), msg.ID, "listener", "heart")
	if err != nil {
		t.Fatalf("ToggleReaction: %v", err)
	}
	if !added || r == nil || r.ReactionKey != "heart" {
		t.Fatalf("added = %v, reaction = %+v", added, r)
	}

	_, added, err = svc.ToggleReaction(context.Background(), msg.ID, "listener", "heart")
	if err != nil {
		t.Fatalf("ToggleReaction(second): %v", err)
	}
	if added {
		t.Fatalf("second toggle must remove")
	}

	if _, _, err := svc.ToggleReaction(context.Background(), msg.ID, "stranger", "heart"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger: err = %v", err)
	}
	if _, _, err := svc.ToggleReaction(context.Background(), msg.ID, "listener", "   "); !errors.Is(err, ErrInvalidReactionKey) {
		t.Fatalf("blank key: err = %v", err)
	}
	if _, _, err := svc.ToggleReaction(context.Background(), "nope", "listener", "heart"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("unknown message: err = %v", err)
	}
}
