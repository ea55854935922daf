package gamification

import (
	"time"

	"github.com/metal-master/backend/internal/models"
)

// ComputeStreak derives the daily streak after practicing at now. Days are
// compared as UTC calendar dates.
func ComputeStreak(lastActiveAt *time.Time, currentStreak, longestStreak int, now time.Time) models.StreakUpdate {
	update := models.StreakUpdate{PreviousStreakDays: currentStreak}

	today := now.UTC().Truncate(24 * time.Hour)

	switch {
	case lastActiveAt == nil:
		// First ever activity
		update.NewStreakDays = 1
		update.IsFirstPracticeToday = true
	default:
		lastActive := lastActiveAt.UTC().Truncate(24 * time.Hour)
		daysSinceLast := int(today.Sub(lastActive).Hours() / 24)

		switch daysSinceLast {
		case 0:
			update.NewStreakDays = max(currentStreak, 1)
		case 1:
			update.NewStreakDays = currentStreak + 1
			update.IsFirstPracticeToday = true
		default:
			// Streak broken (or last activity dated after now)
			update.NewStreakDays = 1
			update.IsFirstPracticeToday = true
		}
	}

	update.NewLongestStreakDays = max(longestStreak, update.NewStreakDays)
	return update
}
