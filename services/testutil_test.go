package services

import (
	"fmt"
	"sync"
	"testing"

	"game-match-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a uniquely named in-memory database and migrates the full
// schema. cache=shared keeps the database alive across the pool's connections.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// sqlite allows a single writer; one connection keeps concurrent
	// transactions queued instead of erroring on table locks.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&models.Match{}, &models.MatchPlayer{}, &models.Move{}, &models.UserProgress{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(channel, event string, data interface{}) {
	p.mu.Lock()
	p.events = append(p.events, Event{Channel: channel, Name: event, Data: data})
	p.mu.Unlock()
}

func (p *recordingPublisher) named(name string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Event
	for _, ev := range p.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// pairPlayers queues both users and returns the resulting match id.
func pairPlayers(t *testing.T, svc *MatchmakingService, gameType, first, second string) string {
	t.Helper()
	if _, err := svc.JoinQueue(gameType, first); err != nil {
		t.Fatalf("first join: %v", err)
	}
	res, err := svc.JoinQueue(gameType, second)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if res.Status != JoinStatusMatched {
		t.Fatalf("second join status = %q, want %q", res.Status, JoinStatusMatched)
	}
	return res.MatchID
}
