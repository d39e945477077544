package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Board symbols.
const (
	SymbolX    = "X"
	SymbolO    = "O"
	SymbolDraw = "DRAW"
)

// RPS choices. NO_PICK stands in for a missed submission: it loses to any
// real choice and draws against another NO_PICK.
const (
	ChoiceRock     = "rock"
	ChoicePaper    = "paper"
	ChoiceScissors = "scissors"
	ChoiceNoPick   = "NO_PICK"
)

// TicTacToeState is the cached board projection for TICTACTOE matches.
// Cells hold "", "X" or "O"; index 0 is the top-left corner.
type TicTacToeState struct {
	Board []string `json:"board"`
}

// RPSRoundMove is one player's choice inside a resolved round.
type RPSRoundMove struct {
	PlayerID string `json:"playerId"`
	Choice   string `json:"choice"`
}

// RPSRoundResult records one resolved round. WinnerID is nil for a drawn round.
type RPSRoundResult struct {
	Round    int            `json:"round"`
	Moves    []RPSRoundMove `json:"moves"`
	WinnerID *string        `json:"winnerId"`
}

// RPSState is the cached projection for RPS matches. RoundDeadline is the
// instant after which the server auto-submits NO_PICK for missing players.
type RPSState struct {
	CurrentRound  int              `json:"currentRound"`
	TotalRounds   int              `json:"totalRounds"`
	Scores        map[string]int   `json:"scores"`
	RoundResults  []RPSRoundResult `json:"roundResults"`
	RoundDeadline *time.Time       `json:"roundDeadline,omitempty"`
}

// TicTacToeMovePayload is the ledger payload for one tic-tac-toe ply.
type TicTacToeMovePayload struct {
	Index  int    `json:"index"`
	Symbol string `json:"symbol"`
}

// RPSMovePayload is the ledger payload for one RPS round submission.
type RPSMovePayload struct {
	Choice string `json:"choice"`
}

func NewTicTacToeState() *TicTacToeState {
	return &TicTacToeState{Board: make([]string, 9)}
}

func NewRPSState(totalRounds int) *RPSState {
	if totalRounds < 1 {
		totalRounds = 3
	}
	return &RPSState{
		CurrentRound: 1,
		TotalRounds:  totalRounds,
		Scores:       map[string]int{},
		RoundResults: []RPSRoundResult{},
	}
}

// EncodeGameState serializes a game-state payload, enforcing that its shape
// matches the match's game type. Services never write raw JSON into a Match.
func EncodeGameState(gameType string, state any) (string, error) {
	switch gameType {
	case GameTypeTicTacToe:
		s, ok := state.(*TicTacToeState)
		if !ok {
			return "", fmt.Errorf("game state %T does not match game type %s", state, gameType)
		}
		if len(s.Board) != 9 {
			return "", fmt.Errorf("tictactoe board must have 9 cells, got %d", len(s.Board))
		}
	case GameTypeRPS:
		s, ok := state.(*RPSState)
		if !ok {
			return "", fmt.Errorf("game state %T does not match game type %s", state, gameType)
		}
		if s.CurrentRound < 1 || s.TotalRounds < 1 {
			return "", fmt.Errorf("invalid rps state: round %d of %d", s.CurrentRound, s.TotalRounds)
		}
	default:
		return "", fmt.Errorf("unknown game type %q", gameType)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeTicTacToeState parses a match's cached board. An empty column yields
// a fresh board so callers can fall back to rebuilding from the ledger.
func DecodeTicTacToeState(m *Match) (*TicTacToeState, error) {
	if m.GameType != GameTypeTicTacToe {
		return nil, fmt.Errorf("match %s is %s, not %s", m.ID, m.GameType, GameTypeTicTacToe)
	}
	if m.GameState == "" {
		return NewTicTacToeState(), nil
	}
	var s TicTacToeState
	if err := json.Unmarshal([]byte(m.GameState), &s); err != nil {
		return nil, fmt.Errorf("corrupt game state for match %s: %w", m.ID, err)
	}
	if len(s.Board) != 9 {
		return nil, fmt.Errorf("match %s board has %d cells", m.ID, len(s.Board))
	}
	return &s, nil
}

// DecodeRPSState parses a match's cached RPS projection.
func DecodeRPSState(m *Match) (*RPSState, error) {
	if m.GameType != GameTypeRPS {
		return nil, fmt.Errorf("match %s is %s, not %s", m.ID, m.GameType, GameTypeRPS)
	}
	if m.GameState == "" {
		return NewRPSState(3), nil
	}
	var s RPSState
	if err := json.Unmarshal([]byte(m.GameState), &s); err != nil {
		return nil, fmt.Errorf("corrupt game state for match %s: %w", m.ID, err)
	}
	if s.CurrentRound < 1 || s.TotalRounds < 1 {
		return nil, fmt.Errorf("invalid rps state for match %s: round %d of %d", m.ID, s.CurrentRound, s.TotalRounds)
	}
	if s.Scores == nil {
		s.Scores = map[string]int{}
	}
	return &s, nil
}
