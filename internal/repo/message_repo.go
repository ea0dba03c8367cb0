// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// and Reaction models: append-only inserts, monotonic read marking, and
// toggle semantics for reactions.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
)

// CreateMessage appends a message to a session. Messages are never updated
// except for read_at, and never deleted by this core.
func CreateMessage(ctx context.Context, db *gorm.DB, sessionID, senderID, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID, or ErrNotFound if missing.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a page of a session's messages ordered by created_at
// ascending. Ordering is by store-assigned timestamps, not arrival order,
// because realtime delivery and the initial fetch may race.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountMessages returns the total number of messages in a session.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}

// MarkMessagesRead stamps read_at on the given messages in one batched
// UPDATE, restricted to unread messages the reader did not send. The
// read_at IS NULL guard makes the field monotonic: a second receipt can
// never move or clear an existing timestamp.
func MarkMessagesRead(ctx context.Context, db *gorm.DB, sessionID, readerID string, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ? AND sender_id <> ? AND read_at IS NULL AND id IN ?", sessionID, readerID, ids).
		Update("read_at", now)
	return res.RowsAffected, res.Error
}

// ListUnreadFrom returns IDs of the counterpart's unread messages in a
// session, for clients that mark everything read on open.
func ListUnreadFrom(ctx context.Context, db *gorm.DB, sessionID, readerID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ? AND sender_id <> ? AND read_at IS NULL", sessionID, readerID).
		Pluck("id", &ids).Error
	return ids, err
}

// ToggleReaction inserts a reaction if absent or deletes it if present, per
// (message_id, user_id, reaction_key). The returned reaction is non-nil when
// the toggle resulted in an insert; added reports which way it went.
//
// The operation runs in a transaction so the probe and the write are atomic;
// under a concurrent duplicate insert the unique index settles the race.
func ToggleReaction(ctx context.Context, db *gorm.DB, messageID, userID, key string) (reaction *domain.Reaction, added bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Reaction
		probe := tx.Where("message_id = ? AND user_id = ? AND reaction_key = ?", messageID, userID, key).
			First(&existing)
		if probe.Error == nil {
			reaction = &existing
			added = false
			return tx.Delete(&existing).Error
		}
		if probe.Error != gorm.ErrRecordNotFound {
			return probe.Error
		}

		r := &domain.Reaction{
			ID:          uuid.NewString(),
			MessageID:   messageID,
			UserID:      userID,
			ReactionKey: key,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		reaction = r
		added = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return reaction, added, nil
}

// ListReactions returns all reactions on the given message IDs.
func ListReactions(ctx context.Context, db *gorm.DB, messageIDs []string) ([]domain.Reaction, error) {
	if len(messageIDs) == 0 {
		return []domain.Reaction{}, nil
	}
	var out []domain.Reaction
	err := db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Find(&out).Error
	return out, err
}
