package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/repo"
)

// SeekerNotifier is the slice of the notification dispatcher the presence
// service needs: clearing per-seeker re-notification bookkeeping when the
// seeker leaves the requesting state.
type SeekerNotifier interface {
	ClearSeeker(seekerID string)
}

// PresenceService owns the soft presence state machine: explicit role-state
// transitions plus the heartbeat that keeps a live state fresh.
type PresenceService struct {
	DB       *gorm.DB
	Sessions *SessionService
	Notifier SeekerNotifier
	Log      zerolog.Logger
}

// NewPresenceService wires a PresenceService. Sessions and Notifier may be
// nil in tests that only exercise the state transitions.
func NewPresenceService(db *gorm.DB, sessions *SessionService, notifier SeekerNotifier, log zerolog.Logger) *PresenceService {
	return &PresenceService{DB: db, Sessions: sessions, Notifier: notifier, Log: log}
}

// SetRoleState transitions the user's role state. Entering a live state
// (available or requesting) stamps the heartbeat so the user is immediately
// reachable. Going offline additionally ends every active session the user
// participates in and clears any in-progress re-notification bookkeeping.
func (s *PresenceService) SetRoleState(ctx context.Context, userID, state string) error {
	switch state {
	case domain.RoleStateOffline, domain.RoleStateAvailable, domain.RoleStateRequesting:
	default:
		return ErrInvalidRoleState
	}

	if err := repo.UpdateRoleState(ctx, s.DB, userID, state, time.Now().UTC()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProfileNotFound
		}
		return err
	}

	// Leaving requesting (for any destination) resets the reminder chain so a
	// future request starts from a clean slate.
	if state != domain.RoleStateRequesting && s.Notifier != nil {
		s.Notifier.ClearSeeker(userID)
	}

	if state == domain.RoleStateOffline && s.Sessions != nil {
		ended, err := s.Sessions.EndAllFor(ctx, userID)
		if err != nil {
			return err
		}
		if ended > 0 {
			s.Log.Info().Str("user_id", userID).Int("ended", ended).Msg("ended active sessions on offline transition")
		}
	}

	return nil
}

// Heartbeat refreshes the user's presence timestamp. It only takes effect
// while the user is in a live state; a beat that races an offline transition
// is a harmless no-op and the returned bool reports whether the stamp landed.
func (s *PresenceService) Heartbeat(ctx context.Context, userID string) (bool, error) {
	touched, err := repo.TouchHeartbeat(ctx, s.DB, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	return touched, nil
}

// Profile returns the user's profile, mapping the repo's not-found to the
// service sentinel.
func (s *PresenceService) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := repo.GetProfile(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}
