package notify

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Dispatch-level sentinel errors, mapped to HTTP results by the handler.
var (
	// ErrRateLimited means the seeker exceeded its dispatch-trigger budget;
	// the request fails fast with no side effects.
	ErrRateLimited = errors.New("dispatch rate limit exceeded")

	// ErrRenotifyTooSoon means the minimum delay since the last notify wave
	// has not elapsed.
	ErrRenotifyTooSoon = errors.New("renotification requested too soon")

	// ErrRenotifyExhausted means the bounded reminder count is spent.
	ErrRenotifyExhausted = errors.New("renotification limit reached")

	// ErrSeekerNotFound means the dispatch target has no profile row.
	ErrSeekerNotFound = errors.New("seeker profile not found")
)

// renotifyState is the per-seeker notification bookkeeping: last notify
// time and reminder count. It is ephemeral soft state, reset whenever the
// seeker leaves "requesting" or a session is created for them, not a
// durable cross-device source of truth.
type renotifyState struct {
	lastNotifyAt time.Time
	reminders    int
}

// Tracker holds per-seeker re-notification bookkeeping and the per-seeker
// dispatch-trigger limiter. Safe for concurrent use.
type Tracker struct {
	minDelay     time.Duration
	maxReminders int
	perMinute    int
	burst        int

	mu       sync.Mutex
	states   map[string]*renotifyState
	limiters map[string]*limiterEntry

	now func() time.Time
}

// limiterEntry pairs a token bucket with a last-seen stamp for eviction.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterTTL bounds memory: idle seeker buckets are evicted opportunistically.
const limiterTTL = 10 * time.Minute

// NewTracker constructs re-notification bookkeeping with the given pacing.
func NewTracker(minDelay time.Duration, maxReminders, perMinute, burst int) *Tracker {
	if burst <= 0 {
		burst = 1
	}
	return &Tracker{
		minDelay:     minDelay,
		maxReminders: maxReminders,
		perMinute:    perMinute,
		burst:        burst,
		states:       make(map[string]*renotifyState),
		limiters:     make(map[string]*limiterEntry),
		now:          time.Now,
	}
}

// AllowTrigger consumes one dispatch-trigger token for the seeker, failing
// with ErrRateLimited when the rolling budget is spent.
func (t *Tracker) AllowTrigger(seekerID string) error {
	t.mu.Lock()
	now := t.now()
	entry, ok := t.limiters[seekerID]
	if !ok {
		// Tokens replenish at perMinute per rolling 60s.
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(t.perMinute)/60.0), t.burst)}
		t.limiters[seekerID] = entry
	}
	entry.lastSeen = now
	if len(t.limiters) > 1024 {
		for id, e := range t.limiters {
			if now.Sub(e.lastSeen) >= limiterTTL {
				delete(t.limiters, id)
			}
		}
	}
	lim := entry.limiter
	t.mu.Unlock()

	if !lim.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// AllowRenotify checks the reminder pacing for the seeker: a reminder is
// allowed only after minDelay since the last wave and while the bounded
// reminder count is not exhausted.
func (t *Tracker) AllowRenotify(seekerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.states[seekerID]
	if st == nil {
		return nil // nothing sent yet; treat as a first wave
	}
	if st.reminders >= t.maxReminders {
		return ErrRenotifyExhausted
	}
	if t.now().Sub(st.lastNotifyAt) < t.minDelay {
		return ErrRenotifyTooSoon
	}
	return nil
}

// RecordWave stamps the seeker's last-notify time and, for reminder waves,
// increments the reminder counter.
func (t *Tracker) RecordWave(seekerID string, isRenotification bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.states[seekerID]
	if st == nil {
		st = &renotifyState{}
		t.states[seekerID] = st
	}
	st.lastNotifyAt = t.now()
	if isRenotification {
		st.reminders++
	}
}

// Reminders returns the seeker's current reminder count.
func (t *Tracker) Reminders(seekerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st := t.states[seekerID]; st != nil {
		return st.reminders
	}
	return 0
}

// Clear drops the seeker's bookkeeping. Called when the seeker leaves
// "requesting" or a session is created for them.
func (t *Tracker) Clear(seekerID string) {
	t.mu.Lock()
	delete(t.states, seekerID)
	t.mu.Unlock()
}
