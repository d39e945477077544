package models

import "time"

// Game types supported by the matchmaker.
const (
	GameTypeTicTacToe = "TICTACTOE"
	GameTypeRPS       = "RPS"
)

// Match lifecycle. Transitions are monotonic: WAITING → ONGOING → FINISHED.
// CANCELLED is reachable only from WAITING, via the stale-match reaper.
const (
	MatchStatusWaiting   = "WAITING"
	MatchStatusOngoing   = "ONGOING"
	MatchStatusFinished  = "FINISHED"
	MatchStatusCancelled = "CANCELLED"
)

// Per-player outcomes, written once when the match finishes.
const (
	ResultWin  = "WIN"
	ResultLose = "LOSE"
	ResultDraw = "DRAW"
)

// Match records one game session between two players.
type Match struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	GameType string `gorm:"index:idx_match_queue;type:varchar(16);not null;check:game_type IN ('TICTACTOE','RPS')" json:"game_type"`
	Status   string `gorm:"index:idx_match_queue;type:varchar(16);not null;default:'WAITING';check:status IN ('WAITING','ONGOING','FINISHED','CANCELLED')" json:"status"`

	// GameState is a materialized projection of the move ledger, stored as a
	// tagged JSON payload whose shape is fixed by GameType (see game_state.go).
	// The ledger stays authoritative; this column is rebuildable.
	GameState string `gorm:"type:jsonb" json:"game_state"`

	WinnerID  *string    `gorm:"index" json:"winner_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Players []MatchPlayer `gorm:"foreignKey:MatchID" json:"players,omitempty"`

	Timestamps
}

// MatchPlayer seats one user in a match. Seat 0 is the host (first joiner).
type MatchPlayer struct {
	ID      string  `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID string  `gorm:"uniqueIndex:idx_match_seat;uniqueIndex:idx_match_user;not null" json:"match_id"`
	UserID  string  `gorm:"uniqueIndex:idx_match_user;index;not null" json:"user_id"`
	Seat    int     `gorm:"uniqueIndex:idx_match_seat;not null" json:"seat"`
	IsHost  bool    `json:"is_host"`
	Ready   bool    `json:"ready"`
	Result  *string `gorm:"type:varchar(8);check:result IN ('WIN','LOSE','DRAW')" json:"result,omitempty"`

	Timestamps
}

// Move is one row of the append-only move ledger. Rows are never updated or
// deleted. The unique (match_id, player_id, turn) index is what makes a
// duplicate submission for the same ply/round a no-op instead of a double move.
type Move struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID  string `gorm:"uniqueIndex:idx_move_once;index;not null" json:"match_id"`
	PlayerID string `gorm:"uniqueIndex:idx_move_once;not null" json:"player_id"`
	Turn     int    `gorm:"uniqueIndex:idx_move_once;not null" json:"turn"`
	Payload  string `gorm:"type:jsonb;not null" json:"payload"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
