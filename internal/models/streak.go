package models

import (
	"time"

	"github.com/google/uuid"
)

// PatternStreak is 1:1 with Pattern. Initialised once at discovery, mutated
// only by the runtime matcher (spec.md §3, §4.5).
type PatternStreak struct {
	PatternID           uuid.UUID  `json:"pattern_id" gorm:"type:uuid;primaryKey"`
	CurrentStreak       int        `json:"current_streak" gorm:"not null;default:0"`
	LongestStreak       int        `json:"longest_streak" gorm:"not null;default:0"`
	MissedCount         int        `json:"missed_count" gorm:"not null;default:0"`
	LastActualDate      *time.Time `json:"last_actual_date,omitempty"`
	LastExpectedDate    *time.Time `json:"last_expected_date,omitempty"`
	ConfidenceMultiplier float64   `json:"confidence_multiplier" gorm:"not null;default:1.0"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (PatternStreak) TableName() string { return "pattern_streaks" }
