package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/repo"
)

// ErrInvalidEndpoint is returned for a blank push endpoint URL.
var ErrInvalidEndpoint = errors.New("invalid push endpoint")

// SocialService covers the social edges around matching: the favorites tier
// and per-user push delivery targets.
type SocialService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// NewSocialService wires a SocialService.
func NewSocialService(db *gorm.DB, log zerolog.Logger) *SocialService {
	return &SocialService{DB: db, Log: log}
}

// ToggleFavorite flips the favorite edge from the user to the listener and
// reports whether the edge exists afterwards.
func (s *SocialService) ToggleFavorite(ctx context.Context, userID, listenerID string) (bool, error) {
	if userID == listenerID {
		return false, ErrSelfSession
	}
	if _, err := repo.GetProfile(ctx, s.DB, listenerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrProfileNotFound
		}
		return false, err
	}
	return repo.ToggleFavorite(ctx, s.DB, userID, listenerID)
}

// Favorites returns the listener IDs the user has favorited.
func (s *SocialService) Favorites(ctx context.Context, userID string) ([]string, error) {
	return repo.ListFavoriteListenerIDs(ctx, s.DB, userID)
}

// RegisterPushEndpoint records a delivery target for the user.
// Re-registering an existing endpoint is a no-op.
func (s *SocialService) RegisterPushEndpoint(ctx context.Context, userID, endpoint string) (*domain.PushEndpoint, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrInvalidEndpoint
	}
	return repo.CreatePushEndpoint(ctx, s.DB, userID, endpoint)
}

// UnregisterPushEndpoints removes all of the user's delivery targets.
func (s *SocialService) UnregisterPushEndpoints(ctx context.Context, userID string) error {
	return repo.DeletePushEndpointsForUser(ctx, s.DB, userID)
}
