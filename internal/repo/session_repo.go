// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model: creation, idempotent ending, and the batched queries the reaper
// relies on.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
)

// CreateSession inserts a new active session pairing listenerID and
// seekerID. The session ID is a randomly generated UUID and CreatedAt is UTC.
func CreateSession(ctx context.Context, db *gorm.DB, listenerID, seekerID string) (*domain.Session, error) {
	s := &domain.Session{
		ID:         uuid.NewString(),
		ListenerID: listenerID,
		SeekerID:   seekerID,
		Status:     domain.SessionActive,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by ID, or ErrNotFound if missing.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ActiveSessionBetween returns the active session pairing the two users in
// either role orientation, or ErrNotFound. Used as the duplicate pre-check
// before insert so a double-click does not create two parallel sessions.
func ActiveSessionBetween(ctx context.Context, db *gorm.DB, userA, userB string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("status = ?", domain.SessionActive).
		Where("(listener_id = ? AND seeker_id = ?) OR (listener_id = ? AND seeker_id = ?)",
			userA, userB, userB, userA).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EndSession transitions a session to ended and stamps ended_at, but only
// when it is still active. Re-ending an already ended session affects zero
// rows and reports false with no error: concurrent "end" from both parties
// settles on whichever write lands first.
func EndSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Updates(map[string]any{"status": domain.SessionEnded, "ended_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListActiveSessions returns every active session. The reaper iterates this
// set; it is expected to stay small because sessions are ephemeral.
func ListActiveSessions(ctx context.Context, db *gorm.DB) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("status = ?", domain.SessionActive).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListActiveSessionsForUser returns the user's active sessions in either role.
func ListActiveSessionsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("status = ?", domain.SessionActive).
		Where("listener_id = ? OR seeker_id = ?", userID, userID).
		Find(&out).Error
	return out, err
}

// LatestMessageAt returns, for the given session IDs, the created_at of each
// session's most recent message in a single query. Sessions with no messages
// are absent from the map. This is the batched lookup that keeps the reaper
// from issuing one query per session.
//
// A bare MAX(created_at) comes back as TEXT in SQLite and does not scan
// into time.Time, so the query selects the raw column and restricts to the
// per-session maximum with a correlated subquery instead.
func LatestMessageAt(ctx context.Context, db *gorm.DB, sessionIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}

	type row struct {
		SessionID string
		CreatedAt time.Time
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("session_id, created_at").
		Where("session_id IN ?", sessionIDs).
		Where("created_at = (SELECT MAX(m2.created_at) FROM messages m2 WHERE m2.session_id = messages.session_id)").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.SessionID] = r.CreatedAt
	}
	return out, nil
}
