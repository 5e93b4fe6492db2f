package services

import (
	"time"

	"github.com/codeowl/platform/internal/profile/models"
)

func utcDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// NextStreak advances s for activity at now. Activity on the same UTC day
// changes nothing, the next day extends the streak, and a gap is bridged
// by freezes when enough are held. Anything else restarts at 1.
func NextStreak(s models.Streak, now time.Time) models.Streak {
	today := utcDay(now)
	out := s
	out.LastActiveDate = &today

	if s.LastActiveDate == nil || s.Count == 0 {
		out.Count = 1
	} else {
		last := utcDay(*s.LastActiveDate)
		days := int(today.Sub(last).Hours() / 24)

		switch {
		case days <= 0:
			out.LastActiveDate = s.LastActiveDate
			return out
		case days == 1:
			out.Count = s.Count + 1
		case s.Freezes >= days-1:
			out.Freezes = s.Freezes - (days - 1)
			out.Count = s.Count + 1
		default:
			out.Count = 1
		}
	}

	if out.Count > out.Longest {
		out.Longest = out.Count
	}
	return out
}
