package models

import (
	"time"

	leaguemodels "github.com/codeowl/platform/internal/league/models"
)

// MaxHearts is the heart cap of every profile.
const MaxHearts = 5

// UserProfile is the learner's economy and league state. UserID is the
// auth provider's subject.
type UserProfile struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	UserID         string            `gorm:"uniqueIndex;size:64;not null" json:"user_id"`
	Username       string            `gorm:"size:100" json:"username"`
	Hearts         int               `gorm:"not null;default:5" json:"hearts"`
	XP             int               `gorm:"not null;default:0" json:"xp"`
	WeeklyXP       int               `gorm:"not null;default:0;index" json:"weekly_xp"`
	StreakCount    int               `gorm:"not null;default:0" json:"streak_count"`
	LongestStreak  int               `gorm:"not null;default:0" json:"longest_streak"`
	LastActiveDate *time.Time        `json:"last_active_date,omitempty"`
	StreakFreezes  int               `gorm:"not null;default:0" json:"streak_freezes"`
	League         leaguemodels.Tier `gorm:"size:16;not null;default:bronze;index" json:"league"`
	Gems           int               `gorm:"not null;default:0" json:"gems"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }

// Streak is the part of a profile the daily streak rule reads and writes.
type Streak struct {
	Count          int
	Longest        int
	Freezes        int
	LastActiveDate *time.Time
}

func (p *UserProfile) Streak() Streak {
	return Streak{
		Count:          p.StreakCount,
		Longest:        p.LongestStreak,
		Freezes:        p.StreakFreezes,
		LastActiveDate: p.LastActiveDate,
	}
}

// All lists the profile tables for migration.
func All() []interface{} {
	return []interface{}{&UserProfile{}}
}
