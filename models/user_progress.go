package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress tracks gamified progression per user (denormalized for performance).
// XP is the pool accumulated within the current level, not a lifetime total.
type UserProgress struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"` // links to the external identity service

	XP    int64  `json:"xp" gorm:"default:0"`
	Level int    `json:"level" gorm:"default:1"`
	Rank  string `json:"rank" gorm:"type:varchar(16);default:'BRONZE'"` // BRONZE→…→LEGEND, see progression service

	// Activity counters
	TotalMatches int64 `json:"total_matches" gorm:"default:0"`
	MatchesWon   int64 `json:"matches_won" gorm:"default:0"`
	MatchesLost  int64 `json:"matches_lost" gorm:"default:0"`
	MatchesDrawn int64 `json:"matches_drawn" gorm:"default:0"`

	// Milestones
	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`
	LastRankUpAt  *time.Time `json:"last_rank_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
