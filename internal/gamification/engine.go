package gamification

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/metal-master/backend/internal/models"
	"github.com/metal-master/backend/internal/rules"
)

// AwardMode selects between cheap interim evaluation and the one-time
// end-of-session evaluation.
type AwardMode string

const (
	// AwardModeTick awards base XP only; bonuses and badges are suppressed.
	AwardModeTick AwardMode = "tick"
	// AwardModeFinal also evaluates bonuses and badges.
	AwardModeFinal AwardMode = "final"
)

// ParseAwardMode accepts "tick" or "final"; empty means final.
func ParseAwardMode(s string) (AwardMode, error) {
	switch AwardMode(s) {
	case "", AwardModeFinal:
		return AwardModeFinal, nil
	case AwardModeTick:
		return AwardModeTick, nil
	default:
		return "", &InvalidAwardModeError{Mode: s}
	}
}

// ── Errors ──────────────────────────────────────────────

// UnknownLessonError means the caller sent a lesson id the ruleset does
// not define, usually stale client data.
type UnknownLessonError struct {
	LessonID string
}

func (e *UnknownLessonError) Error() string {
	return fmt.Sprintf("unknown lesson id %q", e.LessonID)
}

// InvalidInputError lists every malformed input value. Values are never
// clamped.
type InvalidInputError struct {
	Violations []string
}

func (e *InvalidInputError) Error() string {
	return "invalid practice input: " + strings.Join(e.Violations, "; ")
}

type InvalidAwardModeError struct {
	Mode string
}

func (e *InvalidAwardModeError) Error() string {
	return fmt.Sprintf("invalid award mode %q (want %q or %q)", e.Mode, AwardModeTick, AwardModeFinal)
}

// ── Input / Output ──────────────────────────────────────

type Timestamps struct {
	Now          time.Time  `json:"now"`
	SessionStart *time.Time `json:"session_start,omitempty"`
	SessionEnd   *time.Time `json:"session_end,omitempty"`
}

// Input is everything one evaluation needs. The engine reads it and never
// writes back to it.
type Input struct {
	UserID                   int64                    `json:"user_id"`
	LessonID                 string                   `json:"lesson_id"`
	Metrics                  models.PracticeMetrics   `json:"metrics"`
	UserStats                models.UserStats         `json:"user_stats"`
	Timestamps               Timestamps               `json:"timestamps"`
	PreviousLessonCompletion *models.LessonCompletion `json:"previous_lesson_completion,omitempty"`
	CompletedLessonIDs       []string                 `json:"completed_lesson_ids,omitempty"`
	EarnedBadgeIDs           []string                 `json:"earned_badge_ids,omitempty"`
	PriorSessionAwards       models.SessionAwards     `json:"prior_session_awards"`
	AwardMode                AwardMode                `json:"award_mode"`
}

type Result struct {
	XPAwarded          int                  `json:"xp_awarded"`
	XPBreakdown        models.XPBreakdown   `json:"xp_breakdown"`
	NewlyEarnedBadges  []string             `json:"newly_earned_badges"`
	CompletionUnlocked bool                 `json:"completion_unlocked"`
	StreakUpdate       models.StreakUpdate  `json:"streak_update"`
	AwardFlags         models.SessionAwards `json:"award_flags"`
}

// ── Engine ──────────────────────────────────────────────

// Engine evaluates practice rewards against one validated ruleset. It holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	rules *rules.Ruleset
}

func NewEngine(rs *rules.Ruleset) *Engine {
	return &Engine{rules: rs}
}

func (e *Engine) Rules() *rules.Ruleset {
	return e.rules
}

// Evaluate computes one session's award. Identical input yields identical
// output; the only clock is in.Timestamps.Now.
func (e *Engine) Evaluate(in Input) (*Result, error) {
	if err := e.Validate(in); err != nil {
		return nil, err
	}
	mode, _ := ParseAwardMode(string(in.AwardMode))
	lesson, _ := e.rules.Lesson(in.LessonID)

	final := mode == AwardModeFinal
	m := in.Metrics
	xr := e.rules.XPRules
	prior := in.PriorSessionAwards

	streak := ComputeStreak(in.UserStats.LastActiveAt, in.UserStats.CurrentStreakDays, in.UserStats.LongestStreakDays, in.Timestamps.Now)
	base := CalculateBaseXP(xr, m)

	tempo := TempoBonus(xr, lesson, m.MaxTempoBpm, in.PreviousLessonCompletion, prior, final)
	consistency := ConsistencyBonus(xr.ConsistencyBonuses, m.PerfectLoopStreakMax, prior, final)
	unlocked := CompletionUnlocked(lesson, m)
	challenge, completionAwarded := ChallengeBonus(lesson, unlocked, in.PreviousLessonCompletion, prior, final)
	streakBonus := StreakBonus(xr.StreakBonuses, streak, prior, final)

	xpAwarded := max(0, base.Awarded+tempo.Bonus+consistency+streakBonus+challenge)

	badges := []string{}
	if final {
		completed := stringSet(in.CompletedLessonIDs)
		if unlocked {
			completed[in.LessonID] = struct{}{}
		}
		badges = CheckBadges(e.rules.Badges, stringSet(in.EarnedBadgeIDs), rules.Facts{
			LessonID:             in.LessonID,
			CompletionUnlocked:   unlocked,
			TempoCleanEligible:   tempo.CleanEligible,
			TempoAggroEligible:   tempo.AggroEligible,
			PerfectLoopStreakMax: m.PerfectLoopStreakMax,
			Pauses:               m.Pauses,
			Seeks:                m.Seeks,
			CompletedLessons:     completed,
		})
	}

	return &Result{
		XPAwarded: xpAwarded,
		XPBreakdown: models.XPBreakdown{
			Base:                  base.BeforeAntiCheese,
			TempoBonus:            tempo.Bonus,
			ConsistencyBonus:      consistency,
			StreakBonus:           streakBonus,
			ChallengeBonus:        challenge,
			AntiCheesePenalty:     base.AntiCheesePenalty,
			DiminishingMultiplier: base.DiminishingMultiplier,
		},
		NewlyEarnedBadges:  badges,
		CompletionUnlocked: unlocked,
		StreakUpdate:       streak,
		AwardFlags: models.SessionAwards{
			TempoCleanAwarded:  tempo.CleanAwarded,
			TempoAggroAwarded:  tempo.AggroAwarded,
			ConsistencyAwarded: consistency > 0,
			StreakAwarded:      streakBonus > 0,
			CompletionAwarded:  completionAwarded,
		},
	}, nil
}

// Validate runs the checks Evaluate performs before computing anything:
// award mode, lesson id, then the numeric inputs.
func (e *Engine) Validate(in Input) error {
	if _, err := ParseAwardMode(string(in.AwardMode)); err != nil {
		return err
	}
	if _, ok := e.rules.Lesson(in.LessonID); !ok {
		return &UnknownLessonError{LessonID: in.LessonID}
	}
	return validateInput(in)
}

func validateInput(in Input) error {
	var violations []string
	number := func(field string, v float64) {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			violations = append(violations, field+" must be a finite number")
		case v < 0:
			violations = append(violations, fmt.Sprintf("%s must be non-negative, got %v", field, v))
		}
	}
	count := func(field string, v int) {
		if v < 0 {
			violations = append(violations, fmt.Sprintf("%s must be non-negative, got %d", field, v))
		}
	}

	m := in.Metrics
	number("metrics.active_seconds", m.ActiveSeconds)
	number("metrics.total_seconds", m.TotalSeconds)
	count("metrics.loops_completed", m.LoopsCompleted)
	count("metrics.perfect_loops", m.PerfectLoops)
	count("metrics.perfect_loop_streak_max", m.PerfectLoopStreakMax)
	number("metrics.avg_tempo_bpm", m.AvgTempoBpm)
	number("metrics.max_tempo_bpm", m.MaxTempoBpm)
	count("metrics.pauses", m.Pauses)
	count("metrics.seeks", m.Seeks)
	number("metrics.loop_seconds", m.LoopSeconds)
	number("metrics.lesson_minutes_today", m.LessonMinutesToday)
	if m.ActiveSeconds > m.TotalSeconds {
		violations = append(violations, fmt.Sprintf("metrics.active_seconds (%v) exceeds metrics.total_seconds (%v)", m.ActiveSeconds, m.TotalSeconds))
	}

	count("user_stats.current_streak_days", in.UserStats.CurrentStreakDays)
	count("user_stats.longest_streak_days", in.UserStats.LongestStreakDays)
	if in.Timestamps.Now.IsZero() {
		violations = append(violations, "timestamps.now is required")
	}

	if len(violations) > 0 {
		return &InvalidInputError{Violations: violations}
	}
	return nil
}
