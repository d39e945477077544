package services

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"game-match-system/models"
	"game-match-system/monitor"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// rpsBeats maps each real choice to the choice it defeats.
var rpsBeats = map[string]string{
	models.ChoiceRock:     models.ChoiceScissors,
	models.ChoicePaper:    models.ChoiceRock,
	models.ChoiceScissors: models.ChoicePaper,
}

// NormalizeChoice lower-cases and validates a submitted choice.
func NormalizeChoice(raw string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(raw))
	switch c {
	case models.ChoiceRock, models.ChoicePaper, models.ChoiceScissors:
		return c, nil
	case strings.ToLower(models.ChoiceNoPick):
		return models.ChoiceNoPick, nil
	}
	return "", ErrInvalidChoice
}

// DecideRoundWinner returns the winning player's id, or nil for a drawn
// round. NO_PICK loses to any real choice and draws against another NO_PICK.
func DecideRoundWinner(choiceA, choiceB, playerA, playerB string) *string {
	if choiceA == choiceB {
		return nil
	}
	if choiceA == models.ChoiceNoPick {
		return &playerB
	}
	if choiceB == models.ChoiceNoPick {
		return &playerA
	}
	if rpsBeats[choiceA] == choiceB {
		return &playerA
	}
	if rpsBeats[choiceB] == choiceA {
		return &playerB
	}
	return nil
}

// FinalWinner picks the player with the strictly higher cumulative score;
// equal scores mean a drawn match (nil).
func FinalWinner(scores map[string]int) *string {
	var topID string
	topScore, runnerUp := -1, -1
	for id, score := range scores {
		if score > topScore {
			topID, runnerUp, topScore = id, topScore, score
		} else if score > runnerUp {
			runnerUp = score
		}
	}
	if topScore < 0 || topScore == runnerUp {
		return nil
	}
	return &topID
}

// RPSService validates and applies rock-paper-scissors submissions and
// resolves rounds once both seats are in. A round resolves exactly when the
// ledger holds two moves for it; re-deriving that inside the locked
// transaction is what makes resolution idempotent.
type RPSService struct {
	DB          *gorm.DB
	Ledger      *MoveLedger
	Publisher   Publisher
	Progression *ProgressionService
	Metrics     *monitor.Monitor

	RoundTimeout time.Duration
}

func NewRPSService(db *gorm.DB, ledger *MoveLedger, pub Publisher, progression *ProgressionService) *RPSService {
	return &RPSService{
		DB:           db,
		Ledger:       ledger,
		Publisher:    pub,
		Progression:  progression,
		RoundTimeout: 30 * time.Second,
	}
}

type rpsOutcome struct {
	alreadySubmitted bool
	resolvedRound    *models.RPSRoundResult
	scores           map[string]int
	nextRound        int
	gameOver         bool
	finalWinner      *string
	players          []models.MatchPlayer
}

// SubmitMove records a choice for the match's current round. A duplicate
// submission for the same round is an idempotent no-op. Returns true when the
// submission was a duplicate.
func (s *RPSService) SubmitMove(matchID, userID, choice string) (bool, error) {
	if matchID == "" || userID == "" {
		return false, ErrMissingFields
	}
	normalized, err := NormalizeChoice(choice)
	if err != nil {
		return false, err
	}
	if _, err := uuid.Parse(matchID); err != nil {
		return false, ErrMatchNotFound
	}

	var out rpsOutcome
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var match models.Match
		err := lockForUpdate(tx).First(&match, "id = ?", matchID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		if match.GameType != models.GameTypeRPS {
			return ErrInvalidGameType
		}
		if match.Status != models.MatchStatusOngoing && match.Status != models.MatchStatusWaiting {
			return ErrMatchNotAcceptingMoves
		}

		var players []models.MatchPlayer
		if err := tx.Where("match_id = ?", matchID).Order("seat ASC").Find(&players).Error; err != nil {
			return err
		}
		seated := false
		for _, p := range players {
			if p.UserID == userID {
				seated = true
			}
		}
		if !seated {
			return ErrPlayerNotInMatch
		}

		state, err := models.DecodeRPSState(&match)
		if err != nil {
			return err
		}
		round := state.CurrentRound

		// Duplicate for this round → benign no-op, no second resolution.
		var existing int64
		if err := tx.Model(&models.Move{}).
			Where("match_id = ? AND player_id = ? AND turn = ?", matchID, userID, round).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			out.alreadySubmitted = true
			return nil
		}

		payload, err := json.Marshal(models.RPSMovePayload{Choice: normalized})
		if err != nil {
			return err
		}
		move := models.Move{
			ID:       uuid.NewString(),
			MatchID:  matchID,
			PlayerID: userID,
			Turn:     round,
			Payload:  string(payload),
		}
		if err := tx.Create(&move).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				out.alreadySubmitted = true
				return nil
			}
			return err
		}

		roundMoves, err := s.Ledger.MovesForRound(tx, matchID, round)
		if err != nil {
			return err
		}
		if len(roundMoves) < 2 {
			return nil
		}
		out.players = players
		return s.resolveRound(tx, &match, state, roundMoves, &out)
	})
	if err != nil {
		return false, err
	}
	if out.alreadySubmitted {
		return true, nil
	}

	s.Metrics.IncMovesSubmitted()
	channel := MatchChannel(matchID)
	s.Publisher.Publish(channel, "player-move-submitted", map[string]interface{}{
		"userId": userID,
	})

	if out.resolvedRound != nil {
		s.Metrics.IncRoundsResolved()
		s.Publisher.Publish(channel, "round_result", map[string]interface{}{
			"round":      out.resolvedRound.Round,
			"moves":      out.resolvedRound.Moves,
			"winnerId":   out.resolvedRound.WinnerID,
			"scores":     out.scores,
			"nextRound":  out.nextRound,
			"isGameOver": out.gameOver,
		})
		if out.gameOver {
			s.Metrics.IncMatchesFinished()
			refreshMatchGauges(s.DB, s.Metrics)
			s.Publisher.Publish(channel, "game_over", map[string]interface{}{
				"winnerId": out.finalWinner,
				"scores":   out.scores,
			})
			s.awardXP(out.players)
		}
	}
	return false, nil
}

// resolveRound applies the cyclic rule, advances the round, and finishes the
// match when the last round just resolved. Runs inside the caller's
// transaction with the match row locked.
func (s *RPSService) resolveRound(tx *gorm.DB, match *models.Match, state *models.RPSState, roundMoves []models.Move, out *rpsOutcome) error {
	var p1, p2, c1, c2 string
	for i, mv := range roundMoves[:2] {
		var payload models.RPSMovePayload
		if err := json.Unmarshal([]byte(mv.Payload), &payload); err != nil {
			return err
		}
		if i == 0 {
			p1, c1 = mv.PlayerID, payload.Choice
		} else {
			p2, c2 = mv.PlayerID, payload.Choice
		}
	}

	winnerID := DecideRoundWinner(c1, c2, p1, p2)
	if _, ok := state.Scores[p1]; !ok {
		state.Scores[p1] = 0
	}
	if _, ok := state.Scores[p2]; !ok {
		state.Scores[p2] = 0
	}
	if winnerID != nil {
		state.Scores[*winnerID]++
	}

	roundResult := models.RPSRoundResult{
		Round: state.CurrentRound,
		Moves: []models.RPSRoundMove{
			{PlayerID: p1, Choice: c1},
			{PlayerID: p2, Choice: c2},
		},
		WinnerID: winnerID,
	}
	state.RoundResults = append(state.RoundResults, roundResult)

	nextRound := state.CurrentRound + 1
	gameOver := nextRound > state.TotalRounds
	state.CurrentRound = nextRound
	state.RoundDeadline = nil
	if !gameOver && s.RoundTimeout > 0 {
		deadline := time.Now().Add(s.RoundTimeout)
		state.RoundDeadline = &deadline
	}

	encoded, err := models.EncodeGameState(models.GameTypeRPS, state)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{"game_state": encoded}

	var finalWinner *string
	if gameOver {
		now := time.Now()
		finalWinner = FinalWinner(state.Scores)
		updates["status"] = models.MatchStatusFinished
		updates["ended_at"] = &now
		if finalWinner != nil {
			updates["winner_id"] = *finalWinner
		}
		if err := s.writeResults(tx, match.ID, out.players, finalWinner); err != nil {
			return err
		}
	}

	if err := tx.Model(&models.Match{}).Where("id = ?", match.ID).Updates(updates).Error; err != nil {
		return err
	}

	out.resolvedRound = &roundResult
	out.scores = state.Scores
	out.nextRound = nextRound
	out.gameOver = gameOver
	out.finalWinner = finalWinner
	return nil
}

func (s *RPSService) writeResults(tx *gorm.DB, matchID string, players []models.MatchPlayer, winnerID *string) error {
	for i := range players {
		result := models.ResultDraw
		if winnerID != nil {
			if players[i].UserID == *winnerID {
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

func (s *RPSService) awardXP(players []models.MatchPlayer) {
	if s.Progression == nil {
		return
	}
	for _, p := range players {
		if p.Result == nil {
			continue
		}
		if _, err := s.Progression.ApplyMatchResult(p.UserID, *p.Result); err != nil {
			log.Printf("[RPS] XP award failed for %s: %v", p.UserID, err)
		}
	}
}
