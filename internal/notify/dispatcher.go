package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/repo"
)

// DispatchResult aggregates delivery counts for one dispatch call. Failures
// are per-recipient and logged, never propagated: partial delivery does not
// fail the dispatch.
type DispatchResult struct {
	Candidates int `json:"candidates"`
	Favorites  int `json:"favorites"`
	Push       int `json:"push"`
	Email      int `json:"email"`
	Total      int `json:"total"`
	Suppressed bool `json:"suppressed,omitempty"` // renotify no-op (session already exists)
}

// Dispatcher fans out a seeker's support request to reachable listeners in
// two priority waves, each walking an ordered channel chain per recipient.
type Dispatcher struct {
	DB  *gorm.DB
	Log zerolog.Logger

	Push  PushSender
	Email EmailSender

	// StaleThreshold bounds how old a listener heartbeat may be.
	StaleThreshold time.Duration
	// WaveDelay separates the favorites wave from the general wave.
	WaveDelay time.Duration
	// DeliverTimeout caps each per-recipient delivery attempt.
	DeliverTimeout time.Duration

	Tracker *Tracker

	// Seams for tests; default to the real clock.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewDispatcher wires a dispatcher with real clock behavior.
func NewDispatcher(db *gorm.DB, log zerolog.Logger, push PushSender, email EmailSender, staleThreshold, waveDelay, deliverTimeout time.Duration, tracker *Tracker) *Dispatcher {
	return &Dispatcher{
		DB:             db,
		Log:            log,
		Push:           push,
		Email:          email,
		StaleThreshold: staleThreshold,
		WaveDelay:      waveDelay,
		DeliverTimeout: deliverTimeout,
		Tracker:        tracker,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// titleCaser normalizes seeker display names for notification copy.
var titleCaser = cases.Title(language.Und)

// Dispatch runs one notification fan-out for seekerID.
//
// The seeker's identity and display name are re-derived server-side, and the
// client-claimed favorite list is re-verified against stored favorites;
// neither is trusted from the request. The call blocks only for the
// intentional inter-wave delay, never on any individual delivery (recipients
// within a wave are fanned out concurrently with a bounded per-attempt
// timeout).
func (d *Dispatcher) Dispatch(ctx context.Context, seekerID string, isRenotification bool, claimedFavoriteIDs []string) (DispatchResult, error) {
	tr := otel.Tracer("notify/Dispatcher")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("seeker.id", seekerID),
			attribute.Bool("renotify", isRenotification),
		),
	)
	defer span.End()

	var res DispatchResult

	// Fail fast with no side effects when the trigger budget is spent.
	if err := d.Tracker.AllowTrigger(seekerID); err != nil {
		return res, err
	}

	seeker, err := repo.GetProfile(ctx, d.DB, seekerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return res, ErrSeekerNotFound
		}
		return res, err
	}

	if isRenotification {
		// The match may already have happened; a reminder then is a no-op.
		if _, err := firstActiveSession(ctx, d.DB, seekerID); err == nil {
			res.Suppressed = true
			return res, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return res, err
		}
		if err := d.Tracker.AllowRenotify(seekerID); err != nil {
			return res, err
		}
	}

	now := d.now()
	candidates, err := repo.ListCandidateListeners(ctx, d.DB, seekerID)
	if err != nil {
		return res, err
	}

	// Verified favorites only: intersect the client's claim with stored rows.
	stored, err := repo.ListFavoriteListenerIDs(ctx, d.DB, seekerID)
	if err != nil {
		return res, err
	}
	verified := intersect(claimedFavoriteIDs, stored)

	var favorites, general []recipient
	for _, p := range candidates {
		if !domain.Reachable(p, now, d.StaleThreshold) {
			continue
		}
		if InQuietHours(p, now) {
			continue
		}
		r, err := d.resolveRecipient(ctx, p)
		if err != nil {
			d.Log.Warn().Err(err).Str("listener_id", p.ID).Msg("resolve recipient")
			continue
		}
		if verified[p.ID] {
			r.familiar = true
			favorites = append(favorites, r)
		} else {
			general = append(general, r)
		}
	}
	res.Candidates = len(favorites) + len(general)
	res.Favorites = len(favorites)

	seekerName := titleCaser.String(seeker.DisplayName)

	// Favorites strictly first; the general pool follows after a short,
	// intentional delay so a known listener can respond before the crowd.
	push, email := d.deliverWave(ctx, favorites, seekerName)
	res.Push += push
	res.Email += email

	if len(general) > 0 {
		if len(favorites) > 0 {
			d.sleep(d.WaveDelay)
		}
		push, email = d.deliverWave(ctx, general, seekerName)
		res.Push += push
		res.Email += email
	}

	res.Total = res.Push + res.Email
	d.Tracker.RecordWave(seekerID, isRenotification)

	d.Log.Info().
		Str("seeker_id", seekerID).
		Bool("renotify", isRenotification).
		Int("candidates", res.Candidates).
		Int("favorites", res.Favorites).
		Int("push", res.Push).
		Int("email", res.Email).
		Msg("dispatch complete")
	return res, nil
}

// ClearSeeker drops re-notification bookkeeping for a seeker. Called when
// the seeker leaves "requesting" or a session is created for them.
func (d *Dispatcher) ClearSeeker(seekerID string) {
	d.Tracker.Clear(seekerID)
}

// resolveRecipient loads the delivery targets for one listener.
func (d *Dispatcher) resolveRecipient(ctx context.Context, p domain.Profile) (recipient, error) {
	eps, err := repo.ListPushEndpoints(ctx, d.DB, p.ID)
	if err != nil {
		return recipient{}, err
	}
	urls := make([]string, 0, len(eps))
	for _, e := range eps {
		urls = append(urls, e.Endpoint)
	}
	return recipient{
		userID:    p.ID,
		email:     p.Email,
		emailOpt:  p.EmailNotifications,
		endpoints: urls,
	}, nil
}

// deliverWave fans one wave out concurrently. Each recipient walks the
// channel chain: push first, then email for anyone push did not reach.
// No ordering is guaranteed across recipients or across channel types.
func (d *Dispatcher) deliverWave(ctx context.Context, wave []recipient, seekerName string) (pushed, emailed int) {
	if len(wave) == 0 {
		return 0, 0
	}

	chain := []channel{
		&pushChannel{
			sender:  d.Push,
			timeout: d.DeliverTimeout,
			payload: func(r recipient) PushPayload {
				body := fmt.Sprintf("%s is asking for support right now.", seekerName)
				if r.familiar {
					body = fmt.Sprintf("%s, someone you have listened to before, is asking for support.", seekerName)
				}
				return PushPayload{Title: "Support request", Body: body, Tag: "support-request"}
			},
			prune: func(ctx context.Context, endpoint string) {
				// A client-rejected endpoint will never succeed again.
				if err := repo.DeletePushEndpoint(ctx, d.DB, endpoint); err != nil {
					d.Log.Warn().Err(err).Msg("prune push endpoint")
				}
			},
		},
		&emailChannel{sender: d.Email, timeout: d.DeliverTimeout},
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, r := range wave {
		wg.Add(1)
		go func(r recipient) {
			defer wg.Done()
			data := EmailData{SeekerName: seekerName, Familiar: r.familiar}
			for _, ch := range chain {
				if !ch.deliver(ctx, r, data) {
					continue
				}
				mu.Lock()
				switch ch.name() {
				case "push":
					pushed++
				case "email":
					emailed++
				}
				mu.Unlock()
				return
			}
			d.Log.Debug().Str("listener_id", r.userID).Msg("listener unreachable on all channels")
		}(r)
	}
	wg.Wait()
	return pushed, emailed
}

// firstActiveSession returns any active session involving the user, or
// repo.ErrNotFound.
func firstActiveSession(ctx context.Context, db *gorm.DB, userID string) (*domain.Session, error) {
	sessions, err := repo.ListActiveSessionsForUser(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, repo.ErrNotFound
	}
	return &sessions[0], nil
}

// intersect returns the set of IDs present in both slices.
func intersect(claimed, stored []string) map[string]bool {
	out := make(map[string]bool)
	if len(claimed) == 0 || len(stored) == 0 {
		return out
	}
	storedSet := make(map[string]bool, len(stored))
	for _, id := range stored {
		storedSet[id] = true
	}
	for _, id := range claimed {
		if storedSet[id] {
			out[id] = true
		}
	}
	return out
}
