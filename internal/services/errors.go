// Package services defines the business logic for presence, session
// lifecycle, and chat messaging. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrProfileNotFound indicates the referenced user has no profile row.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidRoleState is returned for a role state outside
	// offline/available/requesting.
	ErrInvalidRoleState = errors.New("invalid role state")

	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotParticipant is returned when a user acts on a session they are
	// not a party to.
	ErrNotParticipant = errors.New("not a session participant")

	// ErrSessionEnded is returned when a mutation targets a session that has
	// already reached its terminal state.
	ErrSessionEnded = errors.New("session already ended")

	// ErrBlocked is returned when a block between the two users prevents
	// session creation. Surfaced to the initiator with the reason, never a
	// silent failure.
	ErrBlocked = errors.New("session creation blocked")

	// ErrDuplicateSession is returned when an active session between the two
	// users already exists (double-click guard).
	ErrDuplicateSession = errors.New("active session already exists")

	// ErrSelfSession is returned when a user tries to open a session with
	// themselves.
	ErrSelfSession = errors.New("cannot open a session with yourself")

	// ErrEmptyMessage is returned for a blank message body.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a message exceeds the configured
	// rune limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrMessageNotFound indicates the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidReactionKey is returned for a blank or oversized reaction key.
	ErrInvalidReactionKey = errors.New("invalid reaction key")
)
