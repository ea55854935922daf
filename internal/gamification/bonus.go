package gamification

import (
	"github.com/metal-master/backend/internal/models"
	"github.com/metal-master/backend/internal/rules"
)

// TempoResult reports eligibility and what was granted by this call.
type TempoResult struct {
	CleanEligible bool
	AggroEligible bool
	CleanAwarded  bool
	AggroAwarded  bool
	Bonus         int
}

// TempoBonus awards the clean and aggro tempo bonuses. Aggro pays once per
// lesson: a previous completion record that already reached aggro tempo
// suppresses it.
func TempoBonus(xr rules.XPRules, lesson rules.Lesson, maxTempo float64, prev *models.LessonCompletion, prior models.SessionAwards, final bool) TempoResult {
	res := TempoResult{
		CleanEligible: maxTempo >= float64(lesson.CleanTempo),
		AggroEligible: maxTempo >= float64(lesson.AggroTempo),
	}

	previousAggro := prev != nil && prev.BestAggroTempo >= float64(lesson.AggroTempo)

	res.CleanAwarded = final && res.CleanEligible && !prior.TempoCleanAwarded
	res.AggroAwarded = final && res.AggroEligible && !previousAggro && !prior.TempoAggroAwarded

	if res.CleanAwarded {
		res.Bonus += xr.TempoBonusClean
	}
	if res.AggroAwarded {
		res.Bonus += xr.TempoBonusAggro
	}
	return res
}

// ConsistencyBonus pays the single highest consistency tier reached by the
// session's best perfect-loop streak.
func ConsistencyBonus(tiers []rules.ConsistencyBonus, perfectLoopStreakMax int, prior models.SessionAwards, final bool) int {
	if !final || prior.ConsistencyAwarded {
		return 0
	}
	best := 0
	bonus := 0
	for _, t := range tiers {
		if perfectLoopStreakMax >= t.Streak && t.Streak > best {
			best = t.Streak
			bonus = t.Bonus
		}
	}
	return bonus
}

// CompletionUnlocked reports whether the session meets the lesson's
// completion requirements.
func CompletionUnlocked(lesson rules.Lesson, m models.PracticeMetrics) bool {
	return m.ActiveSeconds >= lesson.MinActiveSeconds && m.LoopsCompleted >= lesson.MinLoops
}

// ChallengeBonus pays the lesson's completion XP the first time it is
// completed.
func ChallengeBonus(lesson rules.Lesson, unlocked bool, prev *models.LessonCompletion, prior models.SessionAwards, final bool) (int, bool) {
	alreadyCompleted := prev != nil && prev.CompletedAt != nil
	awarded := final && unlocked && !alreadyCompleted && !prior.CompletionAwarded
	if !awarded {
		return 0, false
	}
	return lesson.CompletionXP, true
}

// StreakBonus pays the daily bonus on the first practice of a day plus every
// threshold crossed between the previous and new streak.
func StreakBonus(sb rules.StreakBonuses, update models.StreakUpdate, prior models.SessionAwards, final bool) int {
	if !final || prior.StreakAwarded {
		return 0
	}
	bonus := 0
	if update.IsFirstPracticeToday {
		bonus += sb.Daily
	}
	for _, th := range sb.Thresholds {
		if update.PreviousStreakDays < th.Days && update.NewStreakDays >= th.Days {
			bonus += th.Bonus
		}
	}
	return bonus
}
