// Handler wiring.
//
// Handlers are transport-thin: they validate and normalize input, delegate
// to application services through narrow interfaces, and translate sentinel
// errors into HTTP responses. Business rules live in internal/services and
// internal/notify.
package handlers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/notify"
	"github.com/quietline/go-support-backend/internal/realtime"
	"github.com/quietline/go-support-backend/internal/services"
)

// PresenceService defines the presence operations consumed by HTTP handlers.
type PresenceService interface {
	SetRoleState(ctx context.Context, userID, state string) error
	Heartbeat(ctx context.Context, userID string) (bool, error)
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
}

// SessionService defines session lifecycle operations.
type SessionService interface {
	Create(ctx context.Context, initiatorID, counterpartID string, asListener bool) (*domain.Session, error)
	Get(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Session, error)
	End(ctx context.Context, sessionID, userID string) (*domain.Session, error)
}

// MessageService defines chat messaging operations.
type MessageService interface {
	Send(ctx context.Context, sessionID, senderID, content string) (*domain.Message, error)
	List(ctx context.Context, sessionID, userID string, offset, limit int) ([]domain.Message, []domain.Reaction, int64, error)
	MarkRead(ctx context.Context, sessionID, readerID string, ids []string) (int64, error)
	ToggleReaction(ctx context.Context, messageID, userID, key string) (*domain.Reaction, bool, error)
}

// SocialService defines favorites and push-endpoint operations.
type SocialService interface {
	ToggleFavorite(ctx context.Context, userID, listenerID string) (bool, error)
	Favorites(ctx context.Context, userID string) ([]string, error)
	RegisterPushEndpoint(ctx context.Context, userID, endpoint string) (*domain.PushEndpoint, error)
	UnregisterPushEndpoints(ctx context.Context, userID string) error
}

// Dispatcher triggers notification fan-out for a requesting seeker.
type Dispatcher interface {
	Dispatch(ctx context.Context, seekerID string, isRenotification bool, claimedFavoriteIDs []string) (notify.DispatchResult, error)
}

// Cleaner runs one opportunistic cleanup pass.
type Cleaner interface {
	RunOnce(ctx context.Context) (services.CleanupStats, error)
}

// Handlers groups the HTTP endpoints and their dependencies. DB is needed
// directly only for idempotency record bookkeeping; everything else goes
// through the service interfaces.
type Handlers struct {
	presence PresenceService
	sessions SessionService
	messages MessageService
	social   SocialService
	dispatch Dispatcher
	cleaner  Cleaner
	hub      *realtime.Hub
	db       *gorm.DB

	cleanupSecret string
	idemTTL       time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(
	presence PresenceService,
	sessions SessionService,
	messages MessageService,
	social SocialService,
	dispatch Dispatcher,
	cleaner Cleaner,
	hub *realtime.Hub,
	db *gorm.DB,
	cleanupSecret string,
	idemTTL time.Duration,
) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{
		presence:      presence,
		sessions:      sessions,
		messages:      messages,
		social:        social,
		dispatch:      dispatch,
		cleaner:       cleaner,
		hub:           hub,
		db:            db,
		cleanupSecret: cleanupSecret,
		idemTTL:       idemTTL,
	}
}
