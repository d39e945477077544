package workers

import (
	"fmt"
	"testing"
	"time"

	"game-match-system/models"
	"game-match-system/services"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type nopPublisher struct{}

func (nopPublisher) Publish(channel, event string, data interface{}) {}

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
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&models.Match{}, &models.MatchPlayer{}, &models.Move{}, &models.UserProgress{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// newOverdueMatch pairs two players into an RPS match whose first round
// deadline is already in the past.
func newOverdueMatch(t *testing.T, db *gorm.DB) (*services.MatchmakingService, *services.RPSService, *services.MoveLedger, string) {
	t.Helper()
	mm := services.NewMatchmakingService(db, nopPublisher{})
	mm.RoundTimeout = time.Nanosecond
	ledger := services.NewMoveLedger(db)
	rps := services.NewRPSService(db, ledger, nopPublisher{}, nil)
	rps.RoundTimeout = time.Nanosecond

	if _, err := mm.JoinQueue(models.GameTypeRPS, "alice"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	res, err := mm.JoinQueue(models.GameTypeRPS, "bob")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if res.Status != services.JoinStatusMatched {
		t.Fatalf("join status = %q, want matched", res.Status)
	}
	return mm, rps, ledger, res.MatchID
}

func TestSweepSubmitsNoPickForMissingSeat(t *testing.T) {
	db := newTestDB(t)
	mm, rps, ledger, matchID := newOverdueMatch(t, db)

	if _, err := rps.SubmitMove(matchID, "alice", "rock"); err != nil {
		t.Fatalf("alice submit: %v", err)
	}

	w := NewRoundDeadlineWorker(db, rps, ledger)
	submitted, err := w.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if submitted != 1 {
		t.Fatalf("submitted = %d, want 1 NO_PICK for bob", submitted)
	}

	match, err := mm.GetMatch(matchID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	state, err := models.DecodeRPSState(match)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.CurrentRound != 2 {
		t.Errorf("current round = %d, want 2 after forced resolution", state.CurrentRound)
	}
	if len(state.RoundResults) != 1 {
		t.Fatalf("round results = %d, want 1", len(state.RoundResults))
	}
	rr := state.RoundResults[0]
	if rr.WinnerID == nil || *rr.WinnerID != "alice" {
		t.Errorf("round winner = %v, want alice beating NO_PICK", rr.WinnerID)
	}
	if state.Scores["alice"] != 1 {
		t.Errorf("scores = %v, want alice 1", state.Scores)
	}
}

func TestSweepResolvesFullyAbsentRoundAsDraw(t *testing.T) {
	db := newTestDB(t)
	mm, rps, ledger, matchID := newOverdueMatch(t, db)

	w := NewRoundDeadlineWorker(db, rps, ledger)
	submitted, err := w.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if submitted != 2 {
		t.Fatalf("submitted = %d, want NO_PICK for both seats", submitted)
	}

	match, err := mm.GetMatch(matchID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	state, err := models.DecodeRPSState(match)
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.RoundResults) != 1 {
		t.Fatalf("round results = %d, want 1", len(state.RoundResults))
	}
	if state.RoundResults[0].WinnerID != nil {
		t.Errorf("double NO_PICK round should draw, got winner %v", *state.RoundResults[0].WinnerID)
	}
	if state.Scores["alice"] != 0 || state.Scores["bob"] != 0 {
		t.Errorf("scores = %v, want both 0", state.Scores)
	}
}

func TestSweepIgnoresFutureDeadlines(t *testing.T) {
	db := newTestDB(t)
	mm := services.NewMatchmakingService(db, nopPublisher{})
	mm.RoundTimeout = time.Hour
	ledger := services.NewMoveLedger(db)
	rps := services.NewRPSService(db, ledger, nopPublisher{}, nil)

	if _, err := mm.JoinQueue(models.GameTypeRPS, "alice"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := mm.JoinQueue(models.GameTypeRPS, "bob"); err != nil {
		t.Fatalf("second join: %v", err)
	}

	w := NewRoundDeadlineWorker(db, rps, ledger)
	submitted, err := w.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if submitted != 0 {
		t.Errorf("submitted = %d, want 0 while the deadline is ahead", submitted)
	}
}
