package services

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"game-match-system/models"
	"game-match-system/monitor"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// winningLines are the 8 fixed three-in-a-row combos: rows, columns, diagonals.
var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// CheckTicTacToeWinner returns "X" or "O" when a line is complete, "DRAW" for
// a full board without one, or "" while the game is still open.
func CheckTicTacToeWinner(board []string) string {
	for _, line := range winningLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != "" && a == b && a == c {
			return a
		}
	}
	for _, cell := range board {
		if cell == "" {
			return ""
		}
	}
	return models.SymbolDraw
}

// TicTacToeService validates and applies tic-tac-toe plies. Whose turn it is
// gets derived from the persisted move count inside the transaction, never
// from anything the client claims.
type TicTacToeService struct {
	DB          *gorm.DB
	Ledger      *MoveLedger
	Publisher   Publisher
	Progression *ProgressionService
	Metrics     *monitor.Monitor
}

func NewTicTacToeService(db *gorm.DB, ledger *MoveLedger, pub Publisher, progression *ProgressionService) *TicTacToeService {
	return &TicTacToeService{
		DB:          db,
		Ledger:      ledger,
		Publisher:   pub,
		Progression: progression,
	}
}

type tictactoeOutcome struct {
	symbol  string
	index   int
	state   *models.TicTacToeState
	winner  string // "X", "O", "DRAW" or "" while ongoing
	players []models.MatchPlayer
}

// SubmitMove appends one ply for userID. It returns the terminal symbol
// ("X", "O" or "DRAW") once the move ends the match, or "" otherwise.
func (s *TicTacToeService) SubmitMove(matchID, userID string, index int) (string, error) {
	if matchID == "" || userID == "" {
		return "", ErrMissingFields
	}
	if index < 0 || index > 8 {
		return "", ErrIndexOutOfRange
	}
	// Non-uuid ids would fail the uuid column cast on postgres with a driver
	// error instead of a clean not-found.
	if _, err := uuid.Parse(matchID); err != nil {
		return "", ErrMatchNotFound
	}

	var out tictactoeOutcome
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var match models.Match
		err := lockForUpdate(tx).First(&match, "id = ?", matchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		if match.GameType != models.GameTypeTicTacToe {
			return ErrInvalidGameType
		}
		if match.Status != models.MatchStatusOngoing {
			return ErrMatchNotOngoing
		}

		var players []models.MatchPlayer
		if err := tx.Where("match_id = ?", matchID).Order("seat ASC").Find(&players).Error; err != nil {
			return err
		}
		seat := -1
		for _, p := range players {
			if p.UserID == userID {
				seat = p.Seat
			}
		}
		if seat == -1 {
			return ErrPlayerNotInMatch
		}

		moves, err := s.Ledger.AllMoves(tx, matchID)
		if err != nil {
			return err
		}

		// Ply parity: even count → X (seat 0), odd → O (seat 1).
		turnSymbol := models.SymbolX
		if len(moves)%2 == 1 {
			turnSymbol = models.SymbolO
		}
		mySymbol := models.SymbolX
		if seat == 1 {
			mySymbol = models.SymbolO
		}
		if turnSymbol != mySymbol {
			return ErrNotYourTurn
		}

		state, err := models.DecodeTicTacToeState(&match)
		if err != nil {
			// Cached projection diverged; the ledger is the source of truth.
			log.Printf("[TicTacToe] rebuilding board for match %s: %v", matchID, err)
			state, err = RebuildBoard(moves)
			if err != nil {
				return err
			}
		}
		if state.Board[index] != "" {
			return ErrCellOccupied
		}

		payload, err := json.Marshal(models.TicTacToeMovePayload{Index: index, Symbol: mySymbol})
		if err != nil {
			return err
		}
		move := models.Move{
			ID:       uuid.NewString(),
			MatchID:  matchID,
			PlayerID: userID,
			Turn:     len(moves) + 1,
			Payload:  string(payload),
		}
		if err := tx.Create(&move).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrNotYourTurn
			}
			return err
		}

		state.Board[index] = mySymbol
		encoded, err := models.EncodeGameState(models.GameTypeTicTacToe, state)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"game_state": encoded}

		winner := CheckTicTacToeWinner(state.Board)
		if winner != "" {
			now := time.Now()
			updates["status"] = models.MatchStatusFinished
			updates["ended_at"] = &now
			if winner != models.SymbolDraw {
				winnerSeat := 0
				if winner == models.SymbolO {
					winnerSeat = 1
				}
				updates["winner_id"] = players[winnerSeat].UserID
			}
			if err := s.writeResults(tx, matchID, players, winner); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Match{}).Where("id = ?", matchID).Updates(updates).Error; err != nil {
			return err
		}

		out = tictactoeOutcome{symbol: mySymbol, index: index, state: state, winner: winner, players: players}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.Metrics.IncMovesSubmitted()
	channel := MatchChannel(matchID)
	s.Publisher.Publish(channel, "move", map[string]interface{}{
		"index":  out.index,
		"symbol": out.symbol,
	})
	s.Publisher.Publish(channel, "state", map[string]interface{}{
		"gameState": out.state,
	})
	if out.winner != "" {
		s.Metrics.IncMatchesFinished()
		refreshMatchGauges(s.DB, s.Metrics)
		s.Publisher.Publish(channel, "winner", map[string]interface{}{
			"winner": out.winner,
		})
		s.awardXP(out.players, out.winner)
	}
	return out.winner, nil
}

// writeResults stamps each seat's final result inside the finishing transaction.
func (s *TicTacToeService) writeResults(tx *gorm.DB, matchID string, players []models.MatchPlayer, winner string) error {
	for i := range players {
		result := models.ResultDraw
		if winner != models.SymbolDraw {
			winnerSeat := 0
			if winner == models.SymbolO {
				winnerSeat = 1
			}
			if players[i].Seat == winnerSeat {
				result = models.ResultWin
			} else {
				result = models.ResultLose
			}
		}
		players[i].Result = &result
		if err := tx.Model(&models.MatchPlayer{}).
			Where("match_id = ? AND user_id = ?", matchID, players[i].UserID).
			Update("result", result).Error; err != nil {
			return err
		}
	}
	return nil
}

// awardXP hands each player's outcome to the progression service, once, after
// the terminal commit. XP is a side collaborator; its failure never unwinds
// the finished match.
func (s *TicTacToeService) awardXP(players []models.MatchPlayer, winner string) {
	if s.Progression == nil {
		return
	}
	for _, p := range players {
		if p.Result == nil {
			continue
		}
		if _, err := s.Progression.ApplyMatchResult(p.UserID, *p.Result); err != nil {
			log.Printf("[TicTacToe] XP award failed for %s: %v", p.UserID, err)
		}
	}
}
