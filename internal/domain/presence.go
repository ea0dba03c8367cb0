package domain

import "time"

// Reachable reports whether a listener profile can currently receive a
// support request. AlwaysAvailable bypasses the heartbeat check entirely;
// otherwise the profile must be "available" with a heartbeat younger than
// staleThreshold.
//
// staleThreshold should be several heartbeat intervals wide so one or two
// missed beats do not flap the listener's visible availability.
func Reachable(p Profile, now time.Time, staleThreshold time.Duration) bool {
	if p.AlwaysAvailable {
		return true
	}
	if p.RoleState != RoleStateAvailable {
		return false
	}
	if p.LastHeartbeatAt == nil {
		return false
	}
	return now.Sub(*p.LastHeartbeatAt) < staleThreshold
}

// HeartbeatStale reports whether a profile's heartbeat is older than window.
// Profiles with no recorded heartbeat count as stale.
func HeartbeatStale(p Profile, now time.Time, window time.Duration) bool {
	if p.LastHeartbeatAt == nil {
		return true
	}
	return now.Sub(*p.LastHeartbeatAt) >= window
}
