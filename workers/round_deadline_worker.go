// workers/round_deadline_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"game-match-system/models"
	"game-match-system/services"

	"gorm.io/gorm"
)

// RoundDeadlineWorker closes the client-timeout gap in RPS: a round's
// deadline lives in the persisted game state, and once it passes the server
// submits NO_PICK for every seat that has not moved. The submissions go
// through the normal idempotent move path, so a player racing the sweep with
// a real choice always wins.
type RoundDeadlineWorker struct {
	db       *gorm.DB
	rps      *services.RPSService
	ledger   *services.MoveLedger
	interval time.Duration
}

func NewRoundDeadlineWorker(db *gorm.DB, rps *services.RPSService, ledger *services.MoveLedger) *RoundDeadlineWorker {
	return &RoundDeadlineWorker{
		db:       db,
		rps:      rps,
		ledger:   ledger,
		interval: 2 * time.Second,
	}
}

func (w *RoundDeadlineWorker) Start(ctx context.Context) {
	log.Println("Starting RPS round deadline worker…")
	go w.run(ctx)
}

func (w *RoundDeadlineWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Sweep(); err != nil {
				log.Printf("[Deadline] sweep failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("RPS round deadline worker stopped")
			return
		}
	}
}

// Sweep auto-submits NO_PICK for every overdue seat. Returns how many
// submissions it made.
func (w *RoundDeadlineWorker) Sweep() (int, error) {
	var matches []models.Match
	err := w.db.Preload("Players").
		Where("game_type = ? AND status = ?", models.GameTypeRPS, models.MatchStatusOngoing).
		Find(&matches).Error
	if err != nil {
		return 0, err
	}

	now := time.Now()
	submitted := 0
	for i := range matches {
		match := &matches[i]
		state, err := models.DecodeRPSState(match)
		if err != nil {
			log.Printf("[Deadline] skipping match %s: %v", match.ID, err)
			continue
		}
		if state.RoundDeadline == nil || now.Before(*state.RoundDeadline) {
			continue
		}

		moves, err := w.ledger.MovesForRound(nil, match.ID, state.CurrentRound)
		if err != nil {
			log.Printf("[Deadline] ledger read failed for match %s: %v", match.ID, err)
			continue
		}
		moved := make(map[string]bool, len(moves))
		for _, mv := range moves {
			moved[mv.PlayerID] = true
		}

		for _, p := range match.Players {
			if moved[p.UserID] {
				continue
			}
			if _, err := w.rps.SubmitMove(match.ID, p.UserID, models.ChoiceNoPick); err != nil {
				log.Printf("[Deadline] NO_PICK for %s in match %s failed: %v", p.UserID, match.ID, err)
				continue
			}
			submitted++
		}
	}
	return submitted, nil
}
