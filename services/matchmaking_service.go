package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"game-match-system/models"
	"game-match-system/monitor"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Join outcomes.
const (
	JoinStatusWaiting = "waiting"
	JoinStatusMatched = "matched"
)

const joinRetries = 3

// SeatedPlayer is the public view of a match seat.
type SeatedPlayer struct {
	UserID string `json:"userId"`
	Seat   int    `json:"seat"`
}

// JoinResult is what a queue join returns: either the caller is parked in a
// fresh WAITING match, or they completed a pairing.
type JoinResult struct {
	Status    string
	MatchID   string
	Players   []SeatedPlayer
	gameState interface{} // typed state for the post-commit start event
}

// MatchmakingService pairs players into matches. Pairing runs inside a single
// transaction with the candidate WAITING match row-locked, so two concurrent
// joins can neither double-seat one match nor strand two half-filled ones.
type MatchmakingService struct {
	DB        *gorm.DB
	Publisher Publisher
	Metrics   *monitor.Monitor

	TotalRounds  int           // rounds per RPS match
	RoundTimeout time.Duration // server-side deadline per RPS round
}

func NewMatchmakingService(db *gorm.DB, pub Publisher) *MatchmakingService {
	return &MatchmakingService{
		DB:           db,
		Publisher:    pub,
		TotalRounds:  3,
		RoundTimeout: 30 * time.Second,
	}
}

// lockForUpdate row-locks the selected match so concurrent joins and moves
// serialize per match. sqlite (tests) has no FOR UPDATE; its single-writer
// model gives the same guarantee.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// errWaitingMatchFull means the locked candidate already had two seats, so we
// lost a race. The caller falls back to creating a fresh WAITING match
// instead of failing the join.
var errWaitingMatchFull = errors.New("waiting match already full")

// JoinQueue seats userID in the oldest WAITING match of the game type, or
// creates one. On pairing it emits `matched` on the queue channel and `start`
// on the new per-match channel, both strictly after commit.
func (s *MatchmakingService) JoinQueue(gameType, userID string) (*JoinResult, error) {
	if gameType != models.GameTypeTicTacToe && gameType != models.GameTypeRPS {
		return nil, ErrInvalidGameType
	}
	if userID == "" {
		return nil, ErrMissingFields
	}

	var result *JoinResult
	for attempt := 0; attempt < joinRetries; attempt++ {
		res, err := s.tryJoin(gameType, userID)
		if err == nil {
			result = res
			break
		}
		if errors.Is(err, errWaitingMatchFull) || errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the pairing race; next attempt either sees the match as
			// ONGOING and creates a new one, or seats us cleanly.
			log.Printf("[Matchmaking] join race on %s queue (attempt %d): %v", gameType, attempt+1, err)
			continue
		}
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("queue contention on %s: gave up after %d attempts", gameType, joinRetries)
	}

	refreshMatchGauges(s.DB, s.Metrics)

	if result.Status == JoinStatusMatched {
		s.Metrics.IncMatchesStarted()
		s.Publisher.Publish(QueueChannel(gameType), "matched", map[string]interface{}{
			"matchId": result.MatchID,
			"players": result.Players,
		})
		s.Publisher.Publish(MatchChannel(result.MatchID), "start", map[string]interface{}{
			"matchId":   result.MatchID,
			"players":   result.Players,
			"gameState": result.gameState,
		})
	}
	return result, nil
}

func (s *MatchmakingService) tryJoin(gameType, userID string) (*JoinResult, error) {
	var result *JoinResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var waiting models.Match
		err := lockForUpdate(tx).
			Where("game_type = ? AND status = ?", gameType, models.MatchStatusWaiting).
			Order("created_at ASC").
			First(&waiting).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created, createErr := s.createWaitingMatch(tx, gameType, userID)
			if createErr != nil {
				return createErr
			}
			result = created
			return nil
		}
		if err != nil {
			return err
		}

		var seated []models.MatchPlayer
		if err := tx.Where("match_id = ?", waiting.ID).Order("seat ASC").Find(&seated).Error; err != nil {
			return err
		}
		if len(seated) >= 2 {
			return errWaitingMatchFull
		}

		// Re-joining your own waiting match is a benign no-op, not a pairing.
		for _, p := range seated {
			if p.UserID == userID {
				result = &JoinResult{Status: JoinStatusWaiting, MatchID: waiting.ID}
				return nil
			}
		}

		paired, err := s.seatSecondPlayer(tx, &waiting, seated, userID)
		if err != nil {
			return err
		}
		result = paired
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *MatchmakingService) createWaitingMatch(tx *gorm.DB, gameType, userID string) (*JoinResult, error) {
	state, err := s.initialState(gameType, nil)
	if err != nil {
		return nil, err
	}
	encoded, err := models.EncodeGameState(gameType, state)
	if err != nil {
		return nil, err
	}

	match := models.Match{
		ID:        uuid.NewString(),
		GameType:  gameType,
		Status:    models.MatchStatusWaiting,
		GameState: encoded,
	}
	if err := tx.Create(&match).Error; err != nil {
		return nil, err
	}

	host := models.MatchPlayer{
		ID:      uuid.NewString(),
		MatchID: match.ID,
		UserID:  userID,
		Seat:    0,
		IsHost:  true,
		Ready:   true,
	}
	if err := tx.Create(&host).Error; err != nil {
		return nil, err
	}

	return &JoinResult{Status: JoinStatusWaiting, MatchID: match.ID}, nil
}

func (s *MatchmakingService) seatSecondPlayer(tx *gorm.DB, match *models.Match, seated []models.MatchPlayer, userID string) (*JoinResult, error) {
	guest := models.MatchPlayer{
		ID:      uuid.NewString(),
		MatchID: match.ID,
		UserID:  userID,
		Seat:    1,
		IsHost:  false,
		Ready:   true,
	}
	if err := tx.Create(&guest).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":     models.MatchStatusOngoing,
		"started_at": &now,
	}

	// Pairing starts the clock: the first RPS round's deadline is set here so
	// the deadline worker can fill in NO_PICK for absent players.
	state, err := s.initialState(match.GameType, &now)
	if err != nil {
		return nil, err
	}
	encoded, err := models.EncodeGameState(match.GameType, state)
	if err != nil {
		return nil, err
	}
	updates["game_state"] = encoded

	if err := tx.Model(&models.Match{}).Where("id = ?", match.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	players := []SeatedPlayer{{UserID: seated[0].UserID, Seat: seated[0].Seat}, {UserID: userID, Seat: 1}}
	return &JoinResult{
		Status:    JoinStatusMatched,
		MatchID:   match.ID,
		Players:   players,
		gameState: state,
	}, nil
}

// initialState builds the fresh projection for a game type. pairedAt is set
// once both seats are filled; it anchors the first RPS round deadline.
func (s *MatchmakingService) initialState(gameType string, pairedAt *time.Time) (interface{}, error) {
	switch gameType {
	case models.GameTypeTicTacToe:
		return models.NewTicTacToeState(), nil
	case models.GameTypeRPS:
		state := models.NewRPSState(s.TotalRounds)
		if pairedAt != nil && s.RoundTimeout > 0 {
			deadline := pairedAt.Add(s.RoundTimeout)
			state.RoundDeadline = &deadline
		}
		return state, nil
	}
	return nil, ErrInvalidGameType
}

// GetMatch returns a match with its seated players for reconnect/resync.
func (s *MatchmakingService) GetMatch(matchID string) (*models.Match, error) {
	// Reject non-uuid ids before they reach the driver: postgres raises a
	// cast error on the uuid column, which would surface as a 500.
	if _, err := uuid.Parse(matchID); err != nil {
		return nil, ErrMatchNotFound
	}

	var match models.Match
	err := s.DB.Preload("Players", func(db *gorm.DB) *gorm.DB {
		return db.Order("seat ASC")
	}).First(&match, "id = ?", matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}
