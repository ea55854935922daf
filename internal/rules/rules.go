// Package rules loads and validates the XP and badge ruleset.
//
// A Ruleset is built once at process start by Load or Parse and is treated
// as read-only afterwards. Nothing in this package mutates a Ruleset after
// it has been returned.
package rules

// Ruleset is the validated, versioned reward configuration.
type Ruleset struct {
	Version string   `json:"version"`
	XPRules XPRules  `json:"xp_rules"`
	Lessons []Lesson `json:"lessons"`
	Badges  []Badge  `json:"badges"`
	Levels  []Level  `json:"levels"`

	lessonIndex map[string]int
}

type XPRules struct {
	BaseXPPer10s       int                `json:"base_xp_per_10s"`
	SessionBaseCap     int                `json:"session_base_cap"`
	TempoBonusClean    int                `json:"tempo_bonus_clean"`
	TempoBonusAggro    int                `json:"tempo_bonus_aggro"`
	ConsistencyBonuses []ConsistencyBonus `json:"consistency_bonuses"`
	StreakBonuses      StreakBonuses      `json:"streak_bonuses"`
	AntiCheese         AntiCheese         `json:"anti_cheese"`
	DiminishingReturns []DiminishingStep  `json:"diminishing_returns"`
}

// ConsistencyBonus pays Bonus once a session reaches a perfect-loop streak
// of at least Streak.
type ConsistencyBonus struct {
	Streak int `json:"streak"`
	Bonus  int `json:"bonus"`
}

type StreakBonuses struct {
	Daily      int               `json:"daily"`
	Thresholds []StreakThreshold `json:"thresholds"`
}

type StreakThreshold struct {
	Days  int `json:"days"`
	Bonus int `json:"bonus"`
}

type AntiCheese struct {
	DisableBaseXPIfInactive bool        `json:"disable_base_xp_if_inactive"`
	MinActiveRatio          float64     `json:"min_active_ratio"`
	GapSeconds              int         `json:"gap_seconds"`
	MicroLoop               MicroLoop   `json:"micro_loop"`
	SeekPenalty             SeekPenalty `json:"seek_penalty"`
}

type MicroLoop struct {
	MaxLoopSeconds float64 `json:"max_loop_seconds"`
	MinLoops       int     `json:"min_loops"`
	Multiplier     float64 `json:"multiplier"`
}

type SeekPenalty struct {
	MinSeeks            int     `json:"min_seeks"`
	ShortSessionSeconds float64 `json:"short_session_seconds"`
	Multiplier          float64 `json:"multiplier"`
}

// DiminishingStep applies Multiplier to base XP once the user has spent at
// least Minutes on the same lesson today.
type DiminishingStep struct {
	Minutes    int     `json:"minutes"`
	Multiplier float64 `json:"multiplier"`
}

// Lesson holds the per-lesson completion and tempo requirements.
type Lesson struct {
	LessonID         string  `json:"lesson_id"`
	Title            string  `json:"title"`
	MinActiveSeconds float64 `json:"min_active_seconds"`
	MinLoops         int     `json:"min_loops"`
	CleanTempo       int     `json:"clean_tempo"`
	AggroTempo       int     `json:"aggro_tempo"`
	CompletionXP     int     `json:"completion_xp"`
}

type Badge struct {
	BadgeID      string          `json:"badge_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	IconURL      string          `json:"icon_url"`
	Requirements RequirementSpec `json:"requirements"`

	requirement Requirement
}

// Requirement returns the typed predicate built from the badge's
// requirement descriptor during validation.
func (b Badge) Requirement() Requirement {
	return b.requirement
}

type Level struct {
	Level           int    `json:"level"`
	TotalXPRequired int64  `json:"total_xp_required"`
	Title           string `json:"title"`
}

// Lesson looks up a lesson requirement by id.
func (r *Ruleset) Lesson(lessonID string) (Lesson, bool) {
	i, ok := r.lessonIndex[lessonID]
	if !ok {
		return Lesson{}, false
	}
	return r.Lessons[i], true
}

// LevelForTotalXP returns the highest level whose threshold is reached by
// totalXP. Levels are validated to be sorted and to start at 0 XP.
func (r *Ruleset) LevelForTotalXP(totalXP int64) Level {
	current := r.Levels[0]
	for _, l := range r.Levels {
		if totalXP < l.TotalXPRequired {
			break
		}
		current = l
	}
	return current
}

func (r *Ruleset) buildIndex() {
	r.lessonIndex = make(map[string]int, len(r.Lessons))
	for i, l := range r.Lessons {
		r.lessonIndex[l.LessonID] = i
	}
}
