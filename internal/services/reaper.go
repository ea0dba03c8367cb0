package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/quietline/go-support-backend/internal/repo"
)

// CleanupStats summarizes one reaper pass.
type CleanupStats struct {
	Cleaned           int `json:"cleaned"`
	StaleSeekerReset  int `json:"stale_seeker_reset"`
	IdempotencyPurged int `json:"idempotency_purged"`
}

// Reaper runs the periodic staleness sweep: ending abandoned sessions and
// resetting seekers whose requesting state outlived their heartbeats. The
// same pass also backs the opportunistic cleanup endpoint, so a pass must be
// safe to run concurrently with itself; every mutation it performs is a
// conditional update.
type Reaper struct {
	DB       *gorm.DB
	Sessions *SessionService
	Log      zerolog.Logger

	// RequestingReapAfter bounds how long a heartbeat-less requesting state
	// survives before being forced back to offline.
	RequestingReapAfter time.Duration
	Interval            time.Duration
}

// NewReaper wires a Reaper from config-derived intervals.
func NewReaper(db *gorm.DB, sessions *SessionService, reapAfter, interval time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{
		DB:                  db,
		Sessions:            sessions,
		Log:                 log,
		RequestingReapAfter: reapAfter,
		Interval:            interval,
	}
}

// RunOnce performs a single cleanup pass and returns what it did.
func (r *Reaper) RunOnce(ctx context.Context) (CleanupStats, error) {
	var stats CleanupStats

	cleaned, err := r.Sessions.Sweep(ctx)
	if err != nil {
		return stats, err
	}
	stats.Cleaned = cleaned

	cutoff := time.Now().UTC().Add(-r.RequestingReapAfter)
	reset, err := repo.ResetStaleRequesting(ctx, r.DB, cutoff)
	if err != nil {
		return stats, err
	}
	stats.StaleSeekerReset = int(reset)

	purged, err := repo.PurgeExpiredIdempotency(ctx, r.DB, time.Now().UTC())
	if err != nil {
		return stats, err
	}
	stats.IdempotencyPurged = int(purged)

	if stats.Cleaned > 0 || stats.StaleSeekerReset > 0 || stats.IdempotencyPurged > 0 {
		r.Log.Info().
			Int("cleaned", stats.Cleaned).
			Int("stale_seeker_reset", stats.StaleSeekerReset).
			Int("idempotency_purged", stats.IdempotencyPurged).
			Msg("cleanup pass")
	}
	return stats, nil
}

// Run executes cleanup passes on a ticker until ctx is canceled. Errors are
// logged and the loop keeps going; a transient store error must not kill the
// background sweep.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.Log.Error().Err(err).Msg("cleanup pass failed")
			}
		}
	}
}
