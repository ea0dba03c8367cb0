// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Profile
// model's presence fields: role state, heartbeats, and candidate queries.
//
// Error semantics:
//   - When a profile is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetProfile fetches a profile by ID, or ErrNotFound if missing.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateRoleState writes role_state and, for available/requesting, stamps
// last_heartbeat_at = now. The offline transition deliberately leaves the
// old heartbeat in place; it is no longer consulted.
func UpdateRoleState(ctx context.Context, db *gorm.DB, id, state string, now time.Time) error {
	updates := map[string]any{"role_state": state, "updated_at": now}
	if state == domain.RoleStateAvailable || state == domain.RoleStateRequesting {
		updates["last_heartbeat_at"] = now
	}
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchHeartbeat refreshes last_heartbeat_at only while the profile is still
// available or requesting. A beat that raced a transition to offline affects
// zero rows and reports false.
func TouchHeartbeat(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND role_state IN ?", id, []string{domain.RoleStateAvailable, domain.RoleStateRequesting}).
		Update("last_heartbeat_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListCandidateListeners returns profiles that could receive a support
// request: available, or flagged always_available, excluding excludeID.
// Heartbeat staleness and quiet hours are filtered by the dispatcher, which
// owns those policies.
func ListCandidateListeners(ctx context.Context, db *gorm.DB, excludeID string) ([]domain.Profile, error) {
	var out []domain.Profile
	err := db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where("role_state = ? OR always_available = ?", domain.RoleStateAvailable, true).
		Find(&out).Error
	return out, err
}

// ResetStaleRequesting flips profiles stuck in "requesting" with a heartbeat
// older than cutoff back to offline. A NULL heartbeat counts as stale:
// entering "requesting" always stamps one, so its absence marks an orphaned
// state. Returns the number of profiles reset. Safe to run concurrently: the
// transition is idempotent.
func ResetStaleRequesting(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("role_state = ?", domain.RoleStateRequesting).
		Where("last_heartbeat_at IS NULL OR last_heartbeat_at < ?", cutoff).
		Update("role_state", domain.RoleStateOffline)
	return res.RowsAffected, res.Error
}
