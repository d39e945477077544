package services

import (
	"game-match-system/models"
	"game-match-system/monitor"

	"gorm.io/gorm"
)

// refreshMatchGauges recounts live matches and pushes the totals to the
// metrics gauges. Runs after joins, terminal moves and reaper sweeps so the
// gauges track the queue instead of lagging behind the next sweep.
func refreshMatchGauges(db *gorm.DB, m *monitor.Monitor) (waiting, ongoing int64) {
	if err := db.Model(&models.Match{}).
		Where("status = ?", models.MatchStatusWaiting).
		Count(&waiting).Error; err != nil {
		return
	}
	if err := db.Model(&models.Match{}).
		Where("status = ?", models.MatchStatusOngoing).
		Count(&ongoing).Error; err != nil {
		return
	}
	m.SetWaitingMatches(int(waiting))
	m.SetOngoingMatches(int(ongoing))
	return
}
