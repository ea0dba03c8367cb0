// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers the social edges the matcher consults:
// favorites (priority tier), blocks (session gate), and push endpoints
// (delivery targets).
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
)

// ListFavoriteListenerIDs returns the listener IDs the user has favorited.
func ListFavoriteListenerIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Favorite{}).
		Where("user_id = ?", userID).
		Pluck("listener_id", &ids).Error
	return ids, err
}

// ToggleFavorite adds the listener to the user's favorites if absent, or
// removes it if present. Reports whether the edge exists afterwards.
func ToggleFavorite(ctx context.Context, db *gorm.DB, userID, listenerID string) (favorited bool, err error) {
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Favorite
		probe := tx.Where("user_id = ? AND listener_id = ?", userID, listenerID).First(&existing)
		if probe.Error == nil {
			favorited = false
			return tx.Delete(&existing).Error
		}
		if probe.Error != gorm.ErrRecordNotFound {
			return probe.Error
		}
		favorited = true
		return tx.Create(&domain.Favorite{
			ID:         uuid.NewString(),
			UserID:     userID,
			ListenerID: listenerID,
			CreatedAt:  time.Now().UTC(),
		}).Error
	})
	return favorited, err
}

// BlockExistsBetween reports whether either user has blocked the other.
// Session creation is refused in both directions.
func BlockExistsBetween(ctx context.Context, db *gorm.DB, userA, userB string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			userA, userB, userB, userA).
		Count(&n).Error
	return n > 0, err
}

// ListPushEndpoints returns the user's registered push endpoints.
func ListPushEndpoints(ctx context.Context, db *gorm.DB, userID string) ([]domain.PushEndpoint, error) {
	var out []domain.PushEndpoint
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&out).Error
	return out, err
}

// CreatePushEndpoint registers a delivery target for the user. Re-registering
// an already known endpoint returns the existing row unchanged.
func CreatePushEndpoint(ctx context.Context, db *gorm.DB, userID, endpoint string) (*domain.PushEndpoint, error) {
	var existing domain.PushEndpoint
	err := db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	e := &domain.PushEndpoint{
		ID:        uuid.NewString(),
		UserID:    userID,
		Endpoint:  endpoint,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// DeletePushEndpoint removes a delivery target. Called by the dispatcher when
// a push attempt fails with a client error: that endpoint will never succeed
// again.
func DeletePushEndpoint(ctx context.Context, db *gorm.DB, endpoint string) error {
	return db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&domain.PushEndpoint{}).Error
}

// DeletePushEndpointsForUser removes all of the user's delivery targets.
func DeletePushEndpointsForUser(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.PushEndpoint{}).Error
}
