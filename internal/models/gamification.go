package models

import (
	"encoding/json"
	"time"
)

// ── Practice Telemetry ────────────────────────────────────

// PracticeMetrics is one session (or tick) snapshot assembled by the
// client from live practice events.
type PracticeMetrics struct {
	ActiveSeconds         float64 `json:"active_seconds"`
	TotalSeconds          float64 `json:"total_seconds"`
	LoopsCompleted        int     `json:"loops_completed"`
	PerfectLoops          int     `json:"perfect_loops"`
	PerfectLoopStreakMax  int     `json:"perfect_loop_streak_max"`
	AvgTempoBpm           float64 `json:"avg_tempo_bpm"`
	MaxTempoBpm           float64 `json:"max_tempo_bpm"`
	Pauses                int     `json:"pauses"`
	Seeks                 int     `json:"seeks"`
	LoopSeconds           float64 `json:"loop_seconds"`
	LessonMinutesToday    float64 `json:"lesson_minutes_today"`
	HadActivityGapOver20s bool    `json:"had_activity_gap_over_20s"`
}

// ── Core Records ──────────────────────────────────────────

type UserStats struct {
	UserID                int64      `json:"user_id"`
	TotalXP               int64      `json:"total_xp"`
	WeeklyXP              int64      `json:"weekly_xp"`
	Level                 int        `json:"level"`
	LevelTitle            string     `json:"level_title"`
	CurrentStreakDays     int        `json:"current_streak_days"`
	LongestStreakDays     int        `json:"longest_streak_days"`
	LastActiveAt          *time.Time `json:"last_active_at"`
	TotalPracticeMinutes  int        `json:"total_practice_minutes"`
	TotalLessonsCompleted int        `json:"total_lessons_completed"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// LessonCompletion is the per-user, per-lesson progress record. A row may
// exist before the lesson is completed (tempo bests are tracked first).
type LessonCompletion struct {
	UserID         int64      `json:"user_id"`
	LessonID       string     `json:"lesson_id"`
	CompletedAt    *time.Time `json:"completed_at"`
	BestCleanTempo float64    `json:"best_clean_tempo"`
	BestAggroTempo float64    `json:"best_aggro_tempo"`
}

type PracticeSession struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	SessionKey string    `json:"session_key"`
	LessonID   string    `json:"lesson_id"`
	TrackIndex int       `json:"track_index"`
	XPEarned   int       `json:"xp_earned"`
	CreatedAt  time.Time `json:"created_at"`
}

// XPEvent is one row of the append-only XP log. Metadata is the JSONB
// payload describing how the amount was computed.
type XPEvent struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	EventType  string          `json:"event_type"`
	XPAmount   int             `json:"xp_amount"`
	SessionKey string          `json:"session_key,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ── Request Types ─────────────────────────────────────────

type AwardRequest struct {
	LessonID   string          `json:"lesson_id"`
	SessionKey string          `json:"session_key,omitempty"`
	TrackIndex int             `json:"track_index"`
	Metrics    PracticeMetrics `json:"metrics"`
}

type StartSessionRequest struct {
	LessonID   string `json:"lesson_id"`
	TrackIndex int    `json:"track_index"`
}

// ── Response Types ────────────────────────────────────────

type AwardedBadge struct {
	BadgeID string `json:"badge_id"`
	Name    string `json:"name"`
}

type AwardResponse struct {
	XPAwarded          int            `json:"xp_awarded"`
	XPBreakdown        XPBreakdown    `json:"xp_breakdown"`
	TotalXP            int64          `json:"total_xp"`
	Level              int            `json:"level"`
	LevelTitle         string         `json:"level_title"`
	CurrentStreakDays  int            `json:"current_streak_days"`
	LongestStreakDays  int            `json:"longest_streak_days"`
	BadgesAwarded      []AwardedBadge `json:"badges_awarded"`
	CompletionUnlocked bool           `json:"completion_unlocked"`
	AwardFlags         SessionAwards  `json:"award_flags"`
}

type XPBreakdown struct {
	Base                  int     `json:"base"`
	TempoBonus            int     `json:"tempo_bonus"`
	ConsistencyBonus      int     `json:"consistency_bonus"`
	StreakBonus           int     `json:"streak_bonus"`
	ChallengeBonus        int     `json:"challenge_bonus"`
	AntiCheesePenalty     int     `json:"anti_cheese_penalty"`
	DiminishingMultiplier float64 `json:"diminishing_multiplier"`
}

// SessionAwards records which one-time bonuses were granted within one
// practice session. The engine returns it as award flags and accepts it
// back as prior session awards.
type SessionAwards struct {
	TempoCleanAwarded  bool `json:"tempo_clean_awarded"`
	TempoAggroAwarded  bool `json:"tempo_aggro_awarded"`
	ConsistencyAwarded bool `json:"consistency_awarded"`
	StreakAwarded      bool `json:"streak_awarded"`
	CompletionAwarded  bool `json:"completion_awarded"`
}

// Merge returns the union of two award sets.
func (a SessionAwards) Merge(b SessionAwards) SessionAwards {
	return SessionAwards{
		TempoCleanAwarded:  a.TempoCleanAwarded || b.TempoCleanAwarded,
		TempoAggroAwarded:  a.TempoAggroAwarded || b.TempoAggroAwarded,
		ConsistencyAwarded: a.ConsistencyAwarded || b.ConsistencyAwarded,
		StreakAwarded:      a.StreakAwarded || b.StreakAwarded,
		CompletionAwarded:  a.CompletionAwarded || b.CompletionAwarded,
	}
}

type StreakUpdate struct {
	NewStreakDays        int  `json:"new_streak_days"`
	NewLongestStreakDays int  `json:"new_longest_streak_days"`
	IsFirstPracticeToday bool `json:"is_first_practice_today"`
	PreviousStreakDays   int  `json:"previous_streak_days"`
}

type StartSessionResponse struct {
	SessionKey string `json:"session_key"`
	LessonID   string `json:"lesson_id"`
	TrackIndex int    `json:"track_index"`
}

type GamificationResponse struct {
	TotalXP               int64    `json:"total_xp"`
	WeeklyXP              int64    `json:"weekly_xp"`
	Level                 int      `json:"level"`
	LevelTitle            string   `json:"level_title"`
	CurrentStreakDays     int      `json:"current_streak_days"`
	LongestStreakDays     int      `json:"longest_streak_days"`
	TotalPracticeMinutes  int      `json:"total_practice_minutes"`
	TotalLessonsCompleted int      `json:"total_lessons_completed"`
	CompletedLessons      []string `json:"completed_lessons"`
	Badges                []string `json:"badges"`
}

type BadgeInfo struct {
	BadgeID     string `json:"badge_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"icon_url"`
	Kind        string `json:"kind"`
}

type LeaderboardResponse struct {
	Period      string             `json:"period"`
	Entries     []LeaderboardEntry `json:"entries"`
	GeneratedAt time.Time          `json:"generated_at"`
}

type LeaderboardEntry struct {
	Rank            int    `json:"rank"`
	UserID          int64  `json:"user_id"`
	DisplayName     string `json:"display_name"`
	Username        string `json:"username"`
	XP              int64  `json:"xp"`
	PracticeMinutes int    `json:"practice_minutes"`
	StreakDays      int    `json:"streak_days"`
	IsCurrentUser   bool   `json:"is_current_user"`
}

// ── Leaderboard Periods ───────────────────────────────────

const (
	PeriodWeekly  = "weekly"
	PeriodAllTime = "all_time"
)
