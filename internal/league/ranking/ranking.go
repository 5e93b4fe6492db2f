// Package ranking computes weekly league standings and transitions.
// It is pure: the procedure that applies the result lives in the
// league repository.
package ranking

import (
	"sort"
	"time"

	"github.com/codeowl/platform/internal/league/models"
)

// Member is one learner as seen by the weekly ranking.
type Member struct {
	UserID   string      `db:"user_id" json:"user_id"`
	Username string      `db:"username" json:"username"`
	League   models.Tier `db:"league" json:"league"`
	WeeklyXP int         `db:"weekly_xp" json:"weekly_xp"`
}

// Standing is a member with its 1-based rank inside its tier.
type Standing struct {
	Member
	Rank int `json:"rank"`
}

// Transition is one promotion or demotion.
type Transition struct {
	UserID   string
	From     models.Tier
	To       models.Tier
	WeeklyXP int
	Rank     int
	Action   models.Action
}

// Rank orders members of one tier by weekly XP descending, ties by user
// id ascending, and numbers them from 1.
func Rank(members []Member) []Standing {
	sorted := append([]Member(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].WeeklyXP != sorted[j].WeeklyXP {
			return sorted[i].WeeklyXP > sorted[j].WeeklyXP
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	out := make([]Standing, len(sorted))
	for i, m := range sorted {
		out[i] = Standing{Member: m, Rank: i + 1}
	}
	return out
}

// Plan computes every transition of a weekly run from the pre-run
// snapshot. Members of unknown tiers are ignored. Promotion wins when a
// member meets both thresholds.
func Plan(members []Member, thresholds map[models.Tier]models.Threshold) []Transition {
	byTier := make(map[models.Tier][]Member)
	for _, m := range members {
		byTier[m.League] = append(byTier[m.League], m)
	}

	var out []Transition
	for _, tier := range models.Tiers {
		th := thresholds[tier]
		for _, s := range Rank(byTier[tier]) {
			if up, ok := tier.Next(); ok && th.PromotionXPThreshold != nil && s.WeeklyXP >= *th.PromotionXPThreshold {
				out = append(out, newTransition(s, up, models.ActionPromoted))
				continue
			}
			if down, ok := tier.Prev(); ok && th.DemotionXPThreshold != nil && s.WeeklyXP <= *th.DemotionXPThreshold {
				out = append(out, newTransition(s, down, models.ActionDemoted))
			}
		}
	}
	return out
}

func newTransition(s Standing, to models.Tier, action models.Action) Transition {
	return Transition{
		UserID:   s.UserID,
		From:     s.League,
		To:       to,
		WeeklyXP: s.WeeklyXP,
		Rank:     s.Rank,
		Action:   action,
	}
}

// TriggerGrace lets a trigger that fires slightly early count toward the
// week that is about to end.
const TriggerGrace = 5 * time.Minute

// WeekEnding returns the most recent Sunday 00:00 UTC at or before
// now+TriggerGrace, formatted as YYYY-MM-DD.
func WeekEnding(now time.Time) string {
	day := now.UTC().Add(TriggerGrace).Truncate(24 * time.Hour)
	back := int(day.Weekday())
	return day.AddDate(0, 0, -back).Format(models.WeekEndingLayout)
}
