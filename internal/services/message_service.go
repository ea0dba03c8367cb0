package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/realtime"
	"github.com/quietline/go-support-backend/internal/repo"
)

const maxReactionKeyLen = 64

// MessageService owns chat messaging inside a session: sends, paged reads,
// batched read receipts, and reaction toggles. Every persisted mutation is
// also broadcast on the session's realtime channel.
type MessageService struct {
	DB  *gorm.DB
	Hub *realtime.Hub
	Log zerolog.Logger

	// MaxContentRunes caps message length, counted in runes.
	MaxContentRunes int
}

// NewMessageService wires a MessageService.
func NewMessageService(db *gorm.DB, hub *realtime.Hub, maxRunes int, log zerolog.Logger) *MessageService {
	return &MessageService{DB: db, Hub: hub, Log: log, MaxContentRunes: maxRunes}
}

// activeSessionFor loads the session and checks the user's seat and that the
// session has not ended.
func (s *MessageService) activeSessionFor(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !sess.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if sess.Status != domain.SessionActive {
		return nil, ErrSessionEnded
	}
	return sess, nil
}

// Send persists a message and broadcasts it to the session channel. The
// sender's own connection is excluded from the broadcast; their client
// already holds the message from the response body.
func (s *MessageService) Send(ctx context.Context, sessionID, senderID, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", senderID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrMessageTooLong
	}

	if _, err := s.activeSessionFor(ctx, sessionID, senderID); err != nil {
		return nil, err
	}

	msg, err := repo.CreateMessage(ctx, s.DB, sessionID, senderID, content)
	if err != nil {
		return nil, err
	}
	if s.Hub != nil {
		s.Hub.Broadcast(sessionID, realtime.NewEvent(realtime.TypeMessage, realtime.EventInsert, msg), senderID)
	}
	return msg, nil
}

// List returns a page of the session's messages in created_at order, the
// reactions attached to that page, and the total count for pagination.
// Ended sessions remain readable.
func (s *MessageService) List(ctx context.Context, sessionID, userID string, offset, limit int) ([]domain.Message, []domain.Reaction, int64, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, 0, ErrSessionNotFound
		}
		return nil, nil, 0, err
	}
	if !sess.HasParticipant(userID) {
		return nil, nil, 0, ErrNotParticipant
	}

	msgs, err := repo.ListMessages(ctx, s.DB, sessionID, offset, limit)
	if err != nil {
		return nil, nil, 0, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	reactions, err := repo.ListReactions(ctx, s.DB, ids)
	if err != nil {
		return nil, nil, 0, err
	}
	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, nil, 0, err
	}
	return msgs, reactions, total, nil
}

// MarkRead stamps read_at on the given counterpart messages in one batched
// update. An empty ids slice means "everything unread in this session". The
// resulting receipt is broadcast so the sender's client can update check
// marks without re-fetching.
func (s *MessageService) MarkRead(ctx context.Context, sessionID, readerID string, ids []string) (int64, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, err
	}
	if !sess.HasParticipant(readerID) {
		return 0, ErrNotParticipant
	}

	if len(ids) == 0 {
		ids, err = repo.ListUnreadFrom(ctx, s.DB, sessionID, readerID)
		if err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
	}

	now := time.Now().UTC()
	marked, err := repo.MarkMessagesRead(ctx, s.DB, sessionID, readerID, ids, now)
	if err != nil {
		return 0, err
	}
	if marked > 0 && s.Hub != nil {
		payload := realtime.ReadPayload{
			SessionID:  sessionID,
			ReaderID:   readerID,
			MessageIDs: ids,
			ReadAt:     now,
		}
		s.Hub.Broadcast(sessionID, realtime.NewEvent(realtime.TypeRead, realtime.EventPulse, payload), readerID)
	}
	return marked, nil
}

// ToggleReaction adds or removes the user's reaction on a message and
// broadcasts the delta. Reacting to messages in an ended session is allowed;
// only new messages are barred there.
func (s *MessageService) ToggleReaction(ctx context.Context, messageID, userID, key string) (*domain.Reaction, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxReactionKeyLen {
		return nil, false, ErrInvalidReactionKey
	}

	msg, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrMessageNotFound
		}
		return nil, false, err
	}

	sess, err := repo.GetSession(ctx, s.DB, msg.SessionID)
	if err != nil {
		return nil, false, err
	}
	if !sess.HasParticipant(userID) {
		return nil, false, ErrNotParticipant
	}

	reaction, added, err := repo.ToggleReaction(ctx, s.DB, messageID, userID, key)
	if err != nil {
		return nil, false, err
	}
	if s.Hub != nil {
		verb := realtime.EventInsert
		if !added {
			verb = realtime.EventDelete
		}
		payload := realtime.ReactionPayload{Reaction: *reaction, Removed: !added}
		s.Hub.Broadcast(msg.SessionID, realtime.NewEvent(realtime.TypeReaction, verb, payload), userID)
	}
	return reaction, added, nil
}
