package services

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quietline/go-support-backend/internal/domain"
	"github.com/quietline/go-support-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedProfile(t *testing.T, db *gorm.DB, p domain.Profile) domain.Profile {
	t.Helper()
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p
}

// fakeNotifier records which seekers had their reminder bookkeeping cleared.
type fakeNotifier struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeNotifier) ClearSeeker(seekerID string) {
	f.mu.Lock()
	f.cleared = append(f.cleared, seekerID)
	f.mu.Unlock()
}

func (f *fakeNotifier) clearedFor(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cleared {
		if c == id {
			return true
		}
	}
	return false
}

func newTestSessionService(db *gorm.DB, notifier SeekerNotifier) *SessionService {
	return NewSessionService(db, nil, notifier, 30*time.Minute, 24*time.Hour, zerolog.Nop())
}
