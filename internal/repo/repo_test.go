package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quietline/go-support-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedProfile(t *testing.T, db *gorm.DB, p domain.Profile) domain.Profile {
	t.Helper()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p
}

// ---------- presence ----------

func TestUpdateRoleState_StampsHeartbeatForLiveStates(t *testing.T) {
	db := newTestDB(t)
	seedProfile(t, db, domain.Profile{ID: "u1", DisplayName: "Ada", RoleState: domain.RoleStateOffline})

	now := time.Now().UTC()
	if err := UpdateRoleState(context.Background(), db, "u1", domain.RoleStateAvailable, now); err != nil {
		t.Fatalf("UpdateRoleState: %v", err)
	}

	p, err := GetProfile(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.RoleState != domain.RoleStateAvailable {
		t.Fatalf("RoleState = %q", p.RoleState)
	}
	if p.LastHeartbeatAt == nil {
		t.Fatalf("LastHeartbeatAt not stamped for available")
	}
}

func TestUpdateRoleState_OfflineKeepsOldHeartbeat(t *testing.T) {
	db := newTestDB(t)
	old := time.Now().UTC().Add(-time.Hour)
	seedProfile(t, db, domain.Profile{ID: "u1", DisplayName: "Ada", RoleState: domain.RoleStateAvailable, LastHeartbeatAt: &old})

	if err := UpdateRoleState(context.Background(), db, "u1", domain.RoleStateOffline, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateRoleState: %v", err)
	}
	p, _ := GetProfile(context.Background(), db, "u1")
	if p.LastHeartbeatAt == nil || p.LastHeartbeatAt.Unix() != old.Unix() {
		t.Fatalf("offline transition must not touch the heartbeat")
	}
}

func TestUpdateRoleState_UnknownProfile(t *testing.T) {
	db := newTestDB(t)
	if err := UpdateRoleState(context.Background(), db, "ghost", domain.RoleStateAvailable, time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestTouchHeartbeat_OnlyWhileLive(t *testing.T) {
	db := newTestDB(t)
	seedProfile(t, db, domain.Profile{ID: "live", DisplayName: "L", RoleState: domain.RoleStateRequesting})
	seedProfile(t, db, domain.Profile{ID: "off", DisplayName: "O", RoleState: domain.RoleStateOffline})

	touched, err := TouchHeartbeat(context.Background(), db, "live", time.Now().UTC())
	if err != nil || !touched {
		t.Fatalf("TouchHeartbeat(live) = %v, %v; want true, nil", touched, err)
	}
	touched, err = TouchHeartbeat(context.Background(), db, "off", time.Now().UTC())
	if err != nil || touched {
		t.Fatalf("TouchHeartbeat(off) = %v, %v; want false, nil", touched, err)
	}
}

func TestListCandidateListeners_ExcludesSeekerIncludesAlwaysAvailable(t *testing.T) {
	db := newTestDB(t)
	seedProfile(t, db, domain.Profile{ID: "seeker", DisplayName: "S", RoleState: domain.RoleStateRequesting})
	seedProfile(t, db, domain.Profile{ID: "avail", DisplayName: "A", RoleState: domain.RoleStateAvailable})
	seedProfile(t, db, domain.Profile{ID: "always", DisplayName: "B", RoleState: domain.RoleStateOffline, AlwaysAvailable: true})
	seedProfile(t, db, domain.Profile{ID: "off", DisplayName: "C", RoleState: domain.RoleStateOffline})

	got, err := ListCandidateListeners(context.Background(), db, "seeker")
	if err != nil {
		t.Fatalf("ListCandidateListeners: %v", err)
	}
	ids := map[string]bool{}
	for _, p := range got {
		ids[p.ID] = true
	}
	if !ids["avail"] || !ids["always"] {
		t.Fatalf("missing candidates, got %v", ids)
	}
	if ids["seeker"] || ids["off"] {
		t.Fatalf("unexpected candidates, got %v", ids)
	}
}

func TestResetStaleRequesting(t *testing.T) {
	db := newTestDB(t)
	stale := time.Now().UTC().Add(-time.Hour)
	fresh := time.Now().UTC()
	seedProfile(t, db, domain.Profile{ID: "stale", DisplayName: "S", RoleState: domain.RoleStateRequesting, LastHeartbeatAt: &stale})
	seedProfile(t, db, domain.Profile{ID: "fresh", DisplayName: "F", RoleState: domain.RoleStateRequesting, LastHeartbeatAt: &fresh})
	seedProfile(t, db, domain.Profile{ID: "nobeat", DisplayName: "N", RoleState: domain.RoleStateRequesting})

	n, err := ResetStaleRequesting(context.Background(), db, time.Now().UTC().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ResetStaleRequesting: %v", err)
	}
	if n != 2 {
		t.Fatalf("reset %d profiles; want 2 (stale + never-beat)", n)
	}
	p, _ := GetProfile(context.Background(), db, "fresh")
	if p.RoleState != domain.RoleStateRequesting {
		t.Fatalf("fresh requester must be left alone")
	}
}

// ---------- sessions ----------

func TestEndSession_IdempotentAndStampsOnce(t *testing.T) {
	db := newTestDB(t)
	s, err := CreateSession(context.Background(), db, "l1", "s1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first := time.Now().UTC()
	ended, err := EndSession(context.Background(), db, s.ID, first)
	if err != nil || !ended {
		t.Fatalf("EndSession #1 = %v, %v", ended, err)
	}

	ended, err = EndSession(context.Background(), db, s.ID, first.Add(time.Minute))
	if err != nil {
		t.Fatalf("EndSession #2: %v", err)
	}
	if ended {
		t.Fatalf("re-end must be a no-op")
	}

	got, _ := GetSession(context.Background(), db, s.ID)
	if got.Status != domain.SessionEnded || got.EndedAt == nil {
		t.Fatalf("ended session must carry ended_at: %+v", got)
	}
	if got.EndedAt.Unix() != first.Unix() {
		t.Fatalf("ended_at moved on re-end: %v != %v", got.EndedAt, first)
	}
}

func TestActiveSessionBetween_EitherOrientation(t *testing.T) {
	db := newTestDB(t)
	s, _ := CreateSession(context.Background(), db, "l1", "s1")

	got, err := ActiveSessionBetween(context.Background(), db, "s1", "l1")
	if err != nil || got.ID != s.ID {
		t.Fatalf("ActiveSessionBetween reversed = %v, %v", got, err)
	}

	_, _ = EndSession(context.Background(), db, s.ID, time.Now().UTC())
	if _, err := ActiveSessionBetween(context.Background(), db, "l1", "s1"); err != ErrNotFound {
		t.Fatalf("ended session must not match, err = %v", err)
	}
}

func TestLatestMessageAt_BatchesAndSkipsEmpty(t *testing.T) {
	db := newTestDB(t)
	withMsgs, _ := CreateSession(context.Background(), db, "l1", "s1")
	empty, _ := CreateSession(context.Background(), db, "l2", "s2")

	_, _ = CreateMessage(context.Background(), db, withMsgs.ID, "s1", "hi")
	last, _ := CreateMessage(context.Background(), db, withMsgs.ID, "l1", "hello")

	m, err := LatestMessageAt(context.Background(), db, []string{withMsgs.ID, empty.ID})
	if err != nil {
		t.Fatalf("LatestMessageAt: %v", err)
	}
	if _, ok := m[empty.ID]; ok {
		t.Fatalf("session without messages must be absent")
	}
	got, ok := m[withMsgs.ID]
	if !ok {
		t.Fatalf("missing entry for session with messages")
	}
	if got.Unix() != last.CreatedAt.Unix() {
		t.Fatalf("latest = %v; want %v", got, last.CreatedAt)
	}
}

// ---------- messages / reactions ----------

func TestMarkMessagesRead_MonotonicAndScoped(t *testing.T) {
	db := newTestDB(t)
	s, _ := CreateSession(context.Background(), db, "l1", "s1")
	theirs, _ := CreateMessage(context.Background(), db, s.ID, "l1", "from listener")
	mine, _ := CreateMessage(context.Background(), db, s.ID, "s1", "from seeker")

	now := time.Now().UTC()
	n, err := MarkMessagesRead(context.Background(), db, s.ID, "s1", []string{theirs.ID, mine.ID}, now)
	if err != nil {
		t.Fatalf("MarkMessagesRead: %v", err)
	}
	if n != 1 {
		t.Fatalf("marked %d; want 1 (own message excluded)", n)
	}

	// A second receipt must not move the timestamp.
	later := now.Add(time.Hour)
	n, err = MarkMessagesRead(context.Background(), db, s.ID, "s1", []string{theirs.ID}, later)
	if err != nil || n != 0 {
		t.Fatalf("re-mark = %d, %v; want 0, nil", n, err)
	}

	got, _ := GetMessage(context.Background(), db, theirs.ID)
	if got.ReadAt == nil || got.ReadAt.Unix() != now.Unix() {
		t.Fatalf("read_at = %v; want %v", got.ReadAt, now)
	}
	got, _ = GetMessage(context.Background(), db, mine.ID)
	if got.ReadAt != nil {
		t.Fatalf("own message must stay unread")
	}
}

func TestListUnreadFrom(t *testing.T) {
	db := newTestDB(t)
	s, _ := CreateSession(context.Background(), db, "l1", "s1")
	m1, _ := CreateMessage(context.Background(), db, s.ID, "l1", "a")
	_, _ = CreateMessage(context.Background(), db, s.ID, "s1", "b")

	ids, err := ListUnreadFrom(context.Background(), db, s.ID, "s1")
	if err != nil {
		t.Fatalf("ListUnreadFrom: %v", err)
	}
	if len(ids) != 1 || ids[0] != m1.ID {
		t.Fatalf("ids = %v; want [%s]", ids, m1.ID)
	}
}

func TestToggleReaction_Involution(t *testing.T) {
	db := newTestDB(t)
	s, _ := CreateSession(context.Background(), db, "l1", "s1")
	m, _ := CreateMessage(context.Background(), db, s.ID, "l1", "hi")

	r1, added, err := ToggleReaction(context.Background(), db, m.ID, "s1", "heart")
	if err != nil || !added || r1 == nil {
		t.Fatalf("first toggle = %v, %v, %v", r1, added, err)
	}

	r2, added, err := ToggleReaction(context.Background(), db, m.ID, "s1", "heart")
	if err != nil || added {
		t.Fatalf("second toggle = %v, %v; want removal", added, err)
	}
	if r2 == nil || r2.ID != r1.ID {
		t.Fatalf("removal must report the deleted reaction")
	}

	left, _ := ListReactions(context.Background(), db, []string{m.ID})
	if len(left) != 0 {
		t.Fatalf("double toggle must return to absence, got %v", left)
	}
}

func TestToggleReaction_DistinctKeysCoexist(t *testing.T) {
	db := newTestDB(t)
	s, _ := CreateSession(context.Background(), db, "l1", "s1")
	m, _ := CreateMessage(context.Background(), db, s.ID, "l1", "hi")

	_, _, _ = ToggleReaction(context.Background(), db, m.ID, "s1", "heart")
	_, _, _ = ToggleReaction(context.Background(), db, m.ID, "s1", "wave")
	_, _, _ = ToggleReaction(context.Background(), db, m.ID, "l1", "heart")

	all, _ := ListReactions(context.Background(), db, []string{m.ID})
	if len(all) != 3 {
		t.Fatalf("want 3 coexisting reactions, got %d", len(all))
	}
}

// ---------- social ----------

func TestToggleFavorite(t *testing.T) {
	db := newTestDB(t)

	on, err := ToggleFavorite(context.Background(), db, "u1", "l1")
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v", on, err)
	}
	ids, _ := ListFavoriteListenerIDs(context.Background(), db, "u1")
	if len(ids) != 1 || ids[0] != "l1" {
		t.Fatalf("ids = %v", ids)
	}

	on, err = ToggleFavorite(context.Background(), db, "u1", "l1")
	if err != nil || on {
		t.Fatalf("second toggle = %v, %v; want removal", on, err)
	}
	ids, _ = ListFavoriteListenerIDs(context.Background(), db, "u1")
	if len(ids) != 0 {
		t.Fatalf("ids = %v; want empty", ids)
	}
}

func TestBlockExistsBetween_BothDirections(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&domain.Block{ID: "b1", BlockerID: "u1", BlockedID: "u2", CreatedAt: time.Now().UTC()}).Error; err != nil {
		t.Fatalf("seed block: %v", err)
	}

	for _, pair := range [][2]string{{"u1", "u2"}, {"u2", "u1"}} {
		blocked, err := BlockExistsBetween(context.Background(), db, pair[0], pair[1])
		if err != nil || !blocked {
			t.Fatalf("BlockExistsBetween(%v) = %v, %v", pair, blocked, err)
		}
	}
	blocked, _ := BlockExistsBetween(context.Background(), db, "u1", "u3")
	if blocked {
		t.Fatalf("unrelated pair must not be blocked")
	}
}

func TestPushEndpoints_RegisterDedupDelete(t *testing.T) {
	db := newTestDB(t)

	_, err := CreatePushEndpoint(context.Background(), db, "u1", "https://push.example/a")
	if err != nil {
		t.Fatalf("CreatePushEndpoint: %v", err)
	}
	// Re-registering the same endpoint is absorbed.
	_, err = CreatePushEndpoint(context.Background(), db, "u1", "https://push.example/a")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	eps, _ := ListPushEndpoints(context.Background(), db, "u1")
	if len(eps) != 1 {
		t.Fatalf("endpoints = %d; want 1", len(eps))
	}

	if err := DeletePushEndpoint(context.Background(), db, "https://push.example/a"); err != nil {
		t.Fatalf("DeletePushEndpoint: %v", err)
	}
	eps, _ = ListPushEndpoints(context.Background(), db, "u1")
	if len(eps) != 0 {
		t.Fatalf("endpoints = %d; want 0", len(eps))
	}
}

// ---------- idempotency ----------

func TestIdempotency_CreateGetDuplicateExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "session:create", "k1", "res1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ResultID != "res1" || rec.Status != 201 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := CreateIdempotency(ctx, db, "u1", "session:create", "k1", "res2", 201, time.Hour); err != ErrDuplicate {
		t.Fatalf("duplicate err = %v; want ErrDuplicate", err)
	}

	got, err := GetIdempotency(ctx, db, "u1", "session:create", "k1", time.Now().UTC())
	if err != nil || got.ResultID != "res1" {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}

	// Expired records are invisible and purgeable.
	if _, err := GetIdempotency(ctx, db, "u1", "session:create", "k1", time.Now().UTC().Add(2*time.Hour)); err != ErrNotFound {
		t.Fatalf("expired lookup err = %v; want ErrNotFound", err)
	}
	n, err := PurgeExpiredIdempotency(ctx, db, time.Now().UTC().Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("purge = %d, %v; want 1, nil", n, err)
	}
}
