package models

import (
	"time"
)

// Tier is a league level, ordered from Bronze (bottom) to Diamond (top).
type Tier string

const (
	Bronze  Tier = "bronze"
	Silver  Tier = "silver"
	Gold    Tier = "gold"
	Diamond Tier = "diamond"
)

// Tiers lists every tier from bottom to top.
var Tiers = []Tier{Bronze, Silver, Gold, Diamond}

func (t Tier) rank() int {
	for i, x := range Tiers {
		if x == t {
			return i
		}
	}
	return -1
}

func (t Tier) Valid() bool { return t.rank() >= 0 }

// Next returns the tier above t. The top tier has none.
func (t Tier) Next() (Tier, bool) {
	i := t.rank()
	if i < 0 || i == len(Tiers)-1 {
		return "", false
	}
	return Tiers[i+1], true
}

// Prev returns the tier below t. The bottom tier has none.
func (t Tier) Prev() (Tier, bool) {
	i := t.rank()
	if i <= 0 {
		return "", false
	}
	return Tiers[i-1], true
}

type Action string

const (
	ActionPromoted Action = "promoted"
	ActionDemoted  Action = "demoted"
)

// WeekEndingLayout is the date format of week_ending values.
const WeekEndingLayout = "2006-01-02"

// Threshold holds the weekly XP limits of one tier. A nil limit disables
// that direction.
type Threshold struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	League               Tier      `gorm:"uniqueIndex;size:16;not null" json:"league"`
	PromotionXPThreshold *int      `json:"promotion_xp_threshold"`
	DemotionXPThreshold  *int      `json:"demotion_xp_threshold"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (Threshold) TableName() string { return "league_thresholds" }

// HistoryEntry is an append-only record of one promotion or demotion.
type HistoryEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"index;size:64;not null" json:"user_id" db:"user_id"`
	FromLeague Tier      `gorm:"size:16;not null" json:"from_league" db:"from_league"`
	ToLeague   Tier      `gorm:"size:16;not null" json:"to_league" db:"to_league"`
	WeekEnding string    `gorm:"index;size:10;not null" json:"week_ending" db:"week_ending"`
	WeeklyXP   int       `gorm:"not null" json:"weekly_xp" db:"weekly_xp"`
	Rank       int       `gorm:"not null" json:"rank" db:"rank"`
	Action     Action    `gorm:"size:16;not null" json:"action" db:"action"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (HistoryEntry) TableName() string { return "league_history" }

// Run marks a processed week. Its unique week_ending makes a repeat
// run for the same week a no-op.
type Run struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WeekEnding  string    `gorm:"uniqueIndex;size:10;not null" json:"week_ending"`
	RunID       string    `gorm:"size:36;not null" json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Promoted    int       `json:"promoted"`
	Demoted     int       `json:"demoted"`
	Reset       int       `json:"reset"`
}

func (Run) TableName() string { return "league_runs" }

// Lock is a lease that keeps overlapping trigger firings apart.
type Lock struct {
	LockKey      string    `gorm:"primaryKey;size:64" json:"lock_key"`
	Owner        string    `gorm:"size:64;not null" json:"owner"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `gorm:"index" json:"expires_at"`
	RenewedCount int       `gorm:"default:0" json:"renewed_count"`
}

func (Lock) TableName() string { return "league_locks" }

func intPtr(v int) *int { return &v }

// DefaultThresholds is the threshold table used when none was imported.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{League: Bronze, PromotionXPThreshold: intPtr(300)},
		{League: Silver, PromotionXPThreshold: intPtr(500), DemotionXPThreshold: intPtr(50)},
		{League: Gold, PromotionXPThreshold: intPtr(800), DemotionXPThreshold: intPtr(100)},
		{League: Diamond, DemotionXPThreshold: intPtr(150)},
	}
}

// MergeThresholds overlays stored rows on the defaults, one tier at a
// time, and returns the result in tier order.
func MergeThresholds(stored []Threshold) []Threshold {
	byTier := make(map[Tier]Threshold, len(stored))
	for _, th := range stored {
		byTier[th.League] = th
	}
	out := make([]Threshold, 0, len(Tiers))
	for _, def := range DefaultThresholds() {
		if th, ok := byTier[def.League]; ok {
			out = append(out, th)
			continue
		}
		out = append(out, def)
	}
	return out
}

// All lists the league tables for migration.
func All() []interface{} {
	return []interface{}{
		&Threshold{},
		&HistoryEntry{},
		&Run{},
		&Lock{},
	}
}
