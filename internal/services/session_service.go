package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/realtime"
	"github.com/quietline/go-support-backend/internal/repo"
)

// SessionService owns the session lifecycle: creation guards, the terminal
// active→ended transition, and the staleness sweep.
type SessionService struct {
	DB  *gorm.DB
	Hub *realtime.Hub
	Log zerolog.Logger

	// NoMessageThreshold ends active sessions that never saw a message.
	NoMessageThreshold time.Duration
	// InactiveThreshold ends active sessions whose last message is old.
	InactiveThreshold time.Duration

	Notifier SeekerNotifier
}

// NewSessionService wires a SessionService from config-derived thresholds.
func NewSessionService(db *gorm.DB, hub *realtime.Hub, notifier SeekerNotifier, noMessage, inactive time.Duration, log zerolog.Logger) *SessionService {
	return &SessionService{
		DB:                 db,
		Hub:                hub,
		Log:                log,
		NoMessageThreshold: noMessage,
		InactiveThreshold:  inactive,
		Notifier:           notifier,
	}
}

// Create opens a session between the initiator and the counterpart. The
// initiator takes the seeker seat unless asListener is set. A block in either
// direction rejects the request with an explicit error, and an existing
// active session between the pair is returned alongside ErrDuplicateSession
// so double-clicks converge on the same conversation.
func (s *SessionService) Create(ctx context.Context, initiatorID, counterpartID string, asListener bool) (*domain.Session, error) {
	if initiatorID == counterpartID {
		return nil, ErrSelfSession
	}
	if _, err := repo.GetProfile(ctx, s.DB, counterpartID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	blocked, err := repo.BlockExistsBetween(ctx, s.DB, initiatorID, counterpartID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}

	seekerID, listenerID := initiatorID, counterpartID
	if asListener {
		seekerID, listenerID = counterpartID, initiatorID
	}

	existing, err := repo.ActiveSessionBetween(ctx, s.DB, seekerID, listenerID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, ErrDuplicateSession
	}

	sess, err := repo.CreateSession(ctx, s.DB, listenerID, seekerID)
	if err != nil {
		return nil, err
	}

	// A freshly connected seeker no longer needs reminder waves.
	if s.Notifier != nil {
		s.Notifier.ClearSeeker(seekerID)
	}

	s.Log.Info().
		Str("session_id", sess.ID).
		Str("seeker_id", seekerID).
		Str("listener_id", listenerID).
		Msg("session created")
	return sess, nil
}

// Get returns a session the user participates in.
func (s *SessionService) Get(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
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
	return sess, nil
}

// ListForUser returns the user's active sessions, newest first.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	return repo.ListActiveSessionsForUser(ctx, s.DB, userID)
}

// End moves a session to its terminal ended state. Ending is idempotent:
// repeating the call on an already-ended session succeeds without changing
// ended_at. The transition is broadcast to the session channel so the peer's
// client can classify who ended.
func (s *SessionService) End(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	sess, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	changed, err := repo.EndSession(ctx, s.DB, sessionID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		// Already terminal; re-read for the caller's benefit.
		return repo.GetSession(ctx, s.DB, sessionID)
	}

	sess, err = repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	s.broadcastEnded(*sess)
	s.Log.Info().Str("session_id", sessionID).Str("ended_by", userID).Msg("session ended")
	return sess, nil
}

// EndAllFor ends every active session the user participates in, broadcasting
// each terminal transition. Used by the offline presence transition.
func (s *SessionService) EndAllFor(ctx context.Context, userID string) (int, error) {
	sessions, err := repo.ListActiveSessionsForUser(ctx, s.DB, userID)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	ended := 0
	for i := range sessions {
		changed, err := repo.EndSession(ctx, s.DB, sessions[i].ID, now)
		if err != nil {
			return ended, err
		}
		if !changed {
			continue
		}
		if sess, err := repo.GetSession(ctx, s.DB, sessions[i].ID); err == nil {
			s.broadcastEnded(*sess)
		}
		ended++
	}
	return ended, nil
}

// Sweep ends stale active sessions: ones with no messages older than
// NoMessageThreshold, and ones whose newest message is older than
// InactiveThreshold. Latest-message timestamps are fetched in a single
// grouped query rather than per session.
func (s *SessionService) Sweep(ctx context.Context) (int, error) {
	sessions, err := repo.ListActiveSessions(ctx, s.DB)
	if err != nil {
		return 0, err
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	latest, err := repo.LatestMessageAt(ctx, s.DB, ids)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	cleaned := 0
	for i := range sessions {
		sess := sessions[i]
		last, hasMessages := latest[sess.ID]

		var stale bool
		if !hasMessages {
			stale = now.Sub(sess.CreatedAt) > s.NoMessageThreshold
		} else {
			stale = now.Sub(last) > s.InactiveThreshold
		}
		if !stale {
			continue
		}

		changed, err := repo.EndSession(ctx, s.DB, sess.ID, now)
		if err != nil {
			return cleaned, err
		}
		if !changed {
			continue
		}
		if ended, err := repo.GetSession(ctx, s.DB, sess.ID); err == nil {
			s.broadcastEnded(*ended)
		}
		cleaned++
	}
	if cleaned > 0 {
		s.Log.Info().Int("cleaned", cleaned).Msg("swept stale sessions")
	}
	return cleaned, nil
}

func (s *SessionService) broadcastEnded(sess domain.Session) {
	if s.Hub == nil {
		return
	}
	s.Hub.Broadcast(sess.ID, realtime.NewEvent(realtime.TypeSession, realtime.EventUpdate, sess), "")
}
