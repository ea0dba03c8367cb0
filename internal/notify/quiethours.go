// Package notify implements the notification dispatcher: it computes the
// reachable listener set for a seeker, partitions it into priority waves
// (verified favorites first, then the general pool), and delivers through
// ordered channel tiers (realtime push first, email fallback) with
// per-seeker rate limiting and bounded re-notification.
package notify

import (
	"strconv"
	"strings"
	"time"

	"github.com/quietline/go-support-backend/internal/domain"
)

// InQuietHours reports whether now falls inside the profile's configured
// quiet-hours window, evaluated on the wall clock of the profile's timezone.
// The window is [start, end) and may cross midnight, in which case it is
// [start, end-of-day) ∪ [start-of-day, end).
//
// Malformed configuration (bad times, unknown zone) fails open: the listener
// stays notifiable rather than silently unreachable.
func InQuietHours(p domain.Profile, now time.Time) bool {
	if !p.QuietHoursEnabled {
		return false
	}
	start, ok := parseClock(p.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := parseClock(p.QuietHoursEnd)
	if !ok {
		return false
	}
	if start == end {
		return false // zero-width window
	}

	loc, err := time.LoadLocation(p.QuietHoursTimezone)
	if err != nil {
		return false
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	// Wraps midnight.
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes past midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
