// services/scheduler.go
package services

import (
	"errors"
	"log"
	"time"

	"game-match-system/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StartReaper launches the background sweep that cancels WAITING matches
// nobody ever joined. A client that navigates away leaves its match behind;
// without this sweep those rows pile up forever.
func (s *MatchmakingService) StartReaper(ttl time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			reaped, err := s.ReapStaleMatches(ttl)
			if err != nil {
				log.Printf("[Reaper] sweep failed: %v", err)
				return
			}
			if reaped > 0 {
				log.Printf("[Reaper] cancelled %d stale waiting match(es)", reaped)
			}
		}),
	)
}

// ReapStaleMatches cancels WAITING matches older than ttl and emits an
// `expired` event on each match channel so a still-connected host learns the
// queue gave up on them. Returns how many matches were cancelled.
func (s *MatchmakingService) ReapStaleMatches(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	var stale []models.Match
	if err := s.DB.
		Where("status = ? AND created_at < ?", models.MatchStatusWaiting, cutoff).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	reaped := 0
	for _, match := range stale {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			var current models.Match
			if err := lockForUpdate(tx).First(&current, "id = ?", match.ID).Error; err != nil {
				return err
			}
			// A join may have landed since the sweep query; never regress an
			// ONGOING match.
			if current.Status != models.MatchStatusWaiting {
				return errSkipReap
			}
			return tx.Model(&models.Match{}).
				Where("id = ?", match.ID).
				Update("status", models.MatchStatusCancelled).Error
		})
		if errors.Is(err, errSkipReap) {
			continue
		}
		if err != nil {
			log.Printf("[Reaper] failed to cancel match %s: %v", match.ID, err)
			continue
		}
		reaped++
		s.Publisher.Publish(MatchChannel(match.ID), "expired", map[string]interface{}{
			"matchId": match.ID,
		})
	}

	s.Metrics.AddMatchesReaped(reaped)
	refreshMatchGauges(s.DB, s.Metrics)
	return reaped, nil
}

var errSkipReap = errors.New("match no longer waiting")
