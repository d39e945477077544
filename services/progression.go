package services

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"game-match-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	baseXPLevelOne = 2000  // XP pool for level 1 → 2
	xpGrowthRate   = 1.007 // +0.7% per level
	maxLevel       = 999
)

// XPForNextLevel returns the XP needed to go from level to level+1.
func XPForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(baseXPLevelOne * math.Pow(xpGrowthRate, float64(level-1))))
}

// rankThresholds: minimum level per rank, highest first.
var rankThresholds = []struct {
	level int
	rank  string
}{
	{320, "LEGEND"},
	{280, "GRANDMASTER"},
	{220, "MASTER"},
	{150, "DIAMOND"},
	{90, "PLATINUM"},
	{50, "GOLD"},
	{20, "SILVER"},
	{1, "BRONZE"},
}

func RankForLevel(level int) string {
	for _, t := range rankThresholds {
		if level >= t.level {
			return t.rank
		}
	}
	return "BRONZE"
}

// MatchXPDelta computes the XP swing for one finished match: wins pay 25% of
// the next-level pool, draws 12%, losses cost 7%, all scaled slightly with
// level and jittered ±10%. The jitter comes from the injected source so
// outcomes stay reproducible under test.
func MatchXPDelta(level int, result string, rng *rand.Rand) int64 {
	next := float64(XPForNextLevel(level))
	levelScale := 1 + float64(level)/2000
	variation := 0.9 + rng.Float64()*0.2

	var delta float64
	switch result {
	case models.ResultWin:
		delta = next * 0.25 * levelScale
	case models.ResultDraw:
		delta = next * 0.12 * levelScale
	case models.ResultLose:
		delta = -next * 0.07 * (1 + float64(level)/3000)
	}
	return int64(math.Round(delta * variation))
}

// ProgressionService owns the XP/level/rank ledger. It is a collaborator of
// the match engine, invoked once per player after a match reaches a terminal
// state, in its own transaction.
type ProgressionService struct {
	DB *gorm.DB

	mu  sync.Mutex // guards rng; rand.Rand is not goroutine-safe
	rng *rand.Rand
}

// NewProgressionService builds the service. Pass a seeded source in tests;
// nil gets a time-seeded one.
func NewProgressionService(db *gorm.DB, rng *rand.Rand) *ProgressionService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ProgressionService{DB: db, rng: rng}
}

// EnsureProgressRecord ensures a UserProgress row exists (idempotent).
func (s *ProgressionService) EnsureProgressRecord(userID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := s.DB.Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prog = models.UserProgress{
			ID:     uuid.NewString(),
			UserID: userID,
			Level:  1,
			Rank:   "BRONZE",
		}
		if err := s.DB.Create(&prog).Error; err != nil {
			return nil, err
		}
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}

// ApplyMatchResult awards (or deducts) XP for one finished match and rolls
// levels and rank forward. Returns the updated progress.
func (s *ProgressionService) ApplyMatchResult(userID, result string) (*models.UserProgress, error) {
	var updated *models.UserProgress
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var prog models.UserProgress
		err := tx.Where("user_id = ?", userID).First(&prog).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			prog = models.UserProgress{
				ID:     uuid.NewString(),
				UserID: userID,
				Level:  1,
				Rank:   "BRONZE",
			}
			if err := tx.Create(&prog).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		s.mu.Lock()
		delta := MatchXPDelta(prog.Level, result, s.rng)
		s.mu.Unlock()

		prog.XP += delta

		// Level-up loop: spend the pool until it no longer covers a level.
		for prog.XP >= XPForNextLevel(prog.Level) && prog.Level < maxLevel {
			prog.XP -= XPForNextLevel(prog.Level)
			prog.Level++
			now := time.Now()
			prog.LastLevelUpAt = &now
		}
		// Level-down loop: losses can demote, but never below level 1.
		for prog.XP < 0 && prog.Level > 1 {
			prog.Level--
			prog.XP += XPForNextLevel(prog.Level)
		}
		if prog.Level <= 1 && prog.XP < 0 {
			prog.XP = 0
		}
		if prog.Level >= maxLevel {
			prog.Level = maxLevel
			if pool := XPForNextLevel(maxLevel); prog.XP > pool {
				prog.XP = pool
			}
		}

		if newRank := RankForLevel(prog.Level); newRank != prog.Rank {
			prog.Rank = newRank
			now := time.Now()
			prog.LastRankUpAt = &now
		}

		prog.TotalMatches++
		switch result {
		case models.ResultWin:
			prog.MatchesWon++
		case models.ResultLose:
			prog.MatchesLost++
		case models.ResultDraw:
			prog.MatchesDrawn++
		}

		if err := tx.Save(&prog).Error; err != nil {
			return err
		}
		updated = &models.UserProgress{}
		*updated = prog
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
