package services

import (
	"encoding/json"
	"fmt"

	"game-match-system/models"

	"gorm.io/gorm"
)

// MoveLedger reads the append-only move rows. The ledger is the source of
// truth: the cached gameState on a match is a projection that can always be
// rebuilt from here.
type MoveLedger struct {
	DB *gorm.DB
}

func NewMoveLedger(db *gorm.DB) *MoveLedger {
	return &MoveLedger{DB: db}
}

// AllMoves returns every move of a match in turn order. Pass the enclosing
// transaction when reading inside one; nil falls back to the base handle.
func (l *MoveLedger) AllMoves(tx *gorm.DB, matchID string) ([]models.Move, error) {
	if tx == nil {
		tx = l.DB
	}
	var moves []models.Move
	err := tx.Where("match_id = ?", matchID).
		Order("turn ASC, created_at ASC").
		Find(&moves).Error
	return moves, err
}

// MovesForRound returns the moves recorded for one ply/round.
func (l *MoveLedger) MovesForRound(tx *gorm.DB, matchID string, turn int) ([]models.Move, error) {
	if tx == nil {
		tx = l.DB
	}
	var moves []models.Move
	err := tx.Where("match_id = ? AND turn = ?", matchID, turn).
		Order("created_at ASC").
		Find(&moves).Error
	return moves, err
}

// RebuildBoard replays tic-tac-toe ledger rows into a fresh board. Used when
// the cached projection is missing or fails validation.
func RebuildBoard(moves []models.Move) (*models.TicTacToeState, error) {
	state := models.NewTicTacToeState()
	for _, mv := range moves {
		var payload models.TicTacToeMovePayload
		if err := json.Unmarshal([]byte(mv.Payload), &payload); err != nil {
			return nil, fmt.Errorf("corrupt move payload (match %s turn %d): %w", mv.MatchID, mv.Turn, err)
		}
		if payload.Index < 0 || payload.Index > 8 {
			return nil, fmt.Errorf("move out of range (match %s turn %d): %d", mv.MatchID, mv.Turn, payload.Index)
		}
		state.Board[payload.Index] = payload.Symbol
	}
	return state, nil
}
