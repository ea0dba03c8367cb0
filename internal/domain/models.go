// Package domain defines the persistence models for user presence, support
// sessions, messages, and reactions. These types are mapped with GORM and
// form the core data layer of the support-matching backend.
package domain

import (
	"time"
)

// Role states a profile can be in. A seeker asking for support is
// "requesting"; a listener offering support is "available".
const (
	RoleStateOffline    = "offline"
	RoleStateAvailable  = "available"
	RoleStateRequesting = "requesting"
)

// Session statuses.
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// Profile holds the presence and notification-preference subset of a user
// profile. It is mutated by the owning user's client (role toggles,
// heartbeats) and by the reaper (stale "requesting" reset).
//
// Reachability is soft state: a listener is reachable when AlwaysAvailable
// is set, or when it is "available" and its last heartbeat is fresh. There
// is no connection registry behind this; liveness is inferred from the
// heartbeat timestamp alone.
type Profile struct {
	ID          string `json:"id"           gorm:"type:char(36);primaryKey"`
	DisplayName string `json:"display_name" gorm:"type:varchar(64);not null"`
	Email       string `json:"-"            gorm:"type:varchar(190)"`

	RoleState       string     `json:"role_state"        gorm:"type:varchar(16);not null;default:'offline';index;check:role_state IN ('offline','available','requesting')"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at" gorm:"index"`
	AlwaysAvailable bool       `json:"always_available"  gorm:"not null;default:false;index"`

	// Quiet hours suppress notification delivery during a wall-clock window
	// in the user's zone. The window may cross midnight.
	QuietHoursEnabled  bool   `json:"quiet_hours_enabled"  gorm:"not null;default:false"`
	QuietHoursStart    string `json:"quiet_hours_start"    gorm:"type:varchar(5)"` // "23:00"
	QuietHoursEnd      string `json:"quiet_hours_end"      gorm:"type:varchar(5)"` // "07:00"
	QuietHoursTimezone string `json:"quiet_hours_timezone" gorm:"type:varchar(64)"`

	EmailNotifications bool `json:"email_notifications" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Session is one listener/seeker pairing. Participants are immutable after
// creation; the only transition is active → ended, which is terminal and
// stamps EndedAt exactly once. A new request always creates a new row.
type Session struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	ListenerID string     `json:"listener_id" gorm:"type:char(36);not null;index:idx_session_listener"`
	SeekerID   string     `json:"seeker_id"   gorm:"type:char(36);not null;index:idx_session_seeker"`
	Status     string     `json:"status"      gorm:"type:varchar(16);not null;default:'active';index;check:status IN ('active','ended')"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// HasParticipant reports whether userID is one of the two parties.
func (s Session) HasParticipant(userID string) bool {
	return s.ListenerID == userID || s.SeekerID == userID
}

// Counterpart returns the other participant's ID, or "" when userID is not
// a participant.
func (s Session) Counterpart(userID string) string {
	switch userID {
	case s.ListenerID:
		return s.SeekerID
	case s.SeekerID:
		return s.ListenerID
	}
	return ""
}

// Message is a single chat message inside a session. Rows are append-only;
// ReadAt is the only mutable field and is monotonic: once set it is never
// cleared.
type Message struct {
	ID        string     `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string     `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	SenderID  string     `json:"sender_id"  gorm:"type:char(36);not null;index"`
	Content   string     `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time  `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`
	ReadAt    *time.Time `json:"read_at,omitempty"`

	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Reaction is a per-user emoji reaction on a message. Rows are toggled:
// inserted if absent, deleted if present, never updated in place, with
// uniqueness per (message_id, user_id, reaction_key).
type Reaction struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	MessageID   string    `json:"message_id"   gorm:"type:char(36);not null;index;uniqueIndex:ux_reaction_msg_user_key,priority:1"`
	UserID      string    `json:"user_id"      gorm:"type:char(36);not null;uniqueIndex:ux_reaction_msg_user_key,priority:2"`
	ReactionKey string    `json:"reaction_key" gorm:"type:varchar(32);not null;uniqueIndex:ux_reaction_msg_user_key,priority:3"`
	CreatedAt   time.Time `json:"created_at"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Reaction.
func (Reaction) TableName() string { return "reactions" }

// Favorite marks a listener the user wants notified ahead of the general
// pool. Client-claimed favorite lists are always re-verified against these
// rows before a priority wave is sent.
type Favorite struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"     gorm:"type:char(36);not null;index;uniqueIndex:ux_favorite_pair,priority:1"`
	ListenerID string    `json:"listener_id" gorm:"type:char(36);not null;uniqueIndex:ux_favorite_pair,priority:2"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Favorite.
func (Favorite) TableName() string { return "favorites" }

// Block prevents session initiation between two users in either direction.
type Block struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	BlockerID string    `json:"blocker_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_block_pair,priority:1"`
	BlockedID string    `json:"blocked_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_block_pair,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Block.
func (Block) TableName() string { return "blocks" }

// PushEndpoint is a registered realtime-push delivery target for a user.
// Endpoints that fail with a client error are deleted: a 4xx endpoint will
// never succeed again, so keeping it only wastes delivery attempts.
type PushEndpoint struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:char(36);not null;index"`
	Endpoint  string    `json:"endpoint" gorm:"type:varchar(512);not null;uniqueIndex:ux_push_endpoint"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PushEndpoint.
func (PushEndpoint) TableName() string { return "push_endpoints" }

// Idempotency records the result of a previously processed mutating request,
// keyed by (user_id, scope, key). It lets the HTTP layer absorb double-click
// replays of session creation and message sends without re-executing side
// effects.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:1"`
	Scope     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_scope_key,priority:3"`
	ResultID  string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
