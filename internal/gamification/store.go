package gamification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/metal-master/backend/internal/models"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  dbtx
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Bind returns a Store whose queries run inside a transaction owned by
// the caller.
func (s *Store) Bind(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx}
}

// WithTx runs fn against a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ── User Stats ──────────────────────────────────────────

const userStatsColumns = `user_id, total_xp, weekly_xp, level, level_title,
	current_streak_days, longest_streak_days, last_active_at,
	total_practice_minutes, total_lessons_completed, created_at, updated_at`

func scanUserStats(row *sql.Row) (*models.UserStats, error) {
	var st models.UserStats
	err := row.Scan(&st.UserID, &st.TotalXP, &st.WeeklyXP, &st.Level, &st.LevelTitle,
		&st.CurrentStreakDays, &st.LongestStreakDays, &st.LastActiveAt,
		&st.TotalPracticeMinutes, &st.TotalLessonsCompleted, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) EnsureUserStats(ctx context.Context, userID int64, levelTitle string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO user_stats (user_id, level, level_title) VALUES ($1, 1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, levelTitle,
	)
	if err != nil {
		return fmt.Errorf("ensure user stats: %w", err)
	}
	return nil
}

// LockUserStats reads the stats row with FOR UPDATE. Only meaningful inside
// WithTx; concurrent awards for the same user queue here.
func (s *Store) LockUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	st, err := scanUserStats(s.q.QueryRowContext(ctx,
		`SELECT `+userStatsColumns+` FROM user_stats WHERE user_id = $1 FOR UPDATE`,
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("lock user stats: %w", err)
	}
	return st, nil
}

func (s *Store) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	st, err := scanUserStats(s.q.QueryRowContext(ctx,
		`SELECT `+userStatsColumns+` FROM user_stats WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) UpdateUserStats(ctx context.Context, st *models.UserStats) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE user_stats SET
		    total_xp = $2, weekly_xp = $3, level = $4, level_title = $5,
		    current_streak_days = $6, longest_streak_days = $7, last_active_at = $8,
		    total_practice_minutes = $9, total_lessons_completed = $10,
		    updated_at = NOW()
		 WHERE user_id = $1`,
		st.UserID, st.TotalXP, st.WeeklyXP, st.Level, st.LevelTitle,
		st.CurrentStreakDays, st.LongestStreakDays, st.LastActiveAt,
		st.TotalPracticeMinutes, st.TotalLessonsCompleted,
	)
	if err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}
	return nil
}

func (s *Store) ResetWeeklyXP(ctx context.Context) (int64, error) {
	result, err := s.q.ExecContext(ctx,
		`UPDATE user_stats SET weekly_xp = 0, weekly_xp_reset_at = NOW() WHERE weekly_xp <> 0`,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ── Lesson Completions ──────────────────────────────────

func (s *Store) GetLessonCompletion(ctx context.Context, userID int64, lessonID string) (*models.LessonCompletion, error) {
	var lc models.LessonCompletion
	err := s.q.QueryRowContext(ctx,
		`SELECT user_id, lesson_id, completed_at, best_clean_tempo, best_aggro_tempo
		 FROM lesson_completions WHERE user_id = $1 AND lesson_id = $2`,
		userID, lessonID,
	).Scan(&lc.UserID, &lc.LessonID, &lc.CompletedAt, &lc.BestCleanTempo, &lc.BestAggroTempo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson completion: %w", err)
	}
	return &lc, nil
}

// UpsertLessonCompletion records progress on a lesson. completed_at is set
// once and never cleared; tempo bests only ever rise.
func (s *Store) UpsertLessonCompletion(ctx context.Context, lc models.LessonCompletion) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO lesson_completions (user_id, lesson_id, completed_at, best_clean_tempo, best_aggro_tempo)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, lesson_id) DO UPDATE SET
		    completed_at = COALESCE(lesson_completions.completed_at, EXCLUDED.completed_at),
		    best_clean_tempo = GREATEST(lesson_completions.best_clean_tempo, EXCLUDED.best_clean_tempo),
		    best_aggro_tempo = GREATEST(lesson_completions.best_aggro_tempo, EXCLUDED.best_aggro_tempo),
		    updated_at = NOW()`,
		lc.UserID, lc.LessonID, lc.CompletedAt, lc.BestCleanTempo, lc.BestAggroTempo,
	)
	if err != nil {
		return fmt.Errorf("upsert lesson completion: %w", err)
	}
	return nil
}

func (s *Store) GetCompletedLessonIDs(ctx context.Context, userID int64) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT lesson_id FROM lesson_completions
		 WHERE user_id = $1 AND completed_at IS NOT NULL
		 ORDER BY lesson_id`,
		userID,
	)
}

// ── Badges ──────────────────────────────────────────────

func (s *Store) GetEarnedBadgeIDs(ctx context.Context, userID int64) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT badge_id FROM user_badges WHERE user_id = $1 ORDER BY earned_at, badge_id`,
		userID,
	)
}

// AwardBadges inserts each badge at most once per user.
func (s *Store) AwardBadges(ctx context.Context, userID int64, badgeIDs []string, earnedAt time.Time) error {
	for _, id := range badgeIDs {
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, badge_id) DO NOTHING`,
			userID, id, earnedAt,
		)
		if err != nil {
			return fmt.Errorf("award badge %s: %w", id, err)
		}
	}
	return nil
}

// ── Practice Sessions ───────────────────────────────────

func (s *Store) CreatePracticeSession(ctx context.Context, ps *models.PracticeSession) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO practice_sessions (user_id, session_key, lesson_id, track_index)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		ps.UserID, ps.SessionKey, ps.LessonID, ps.TrackIndex,
	).Scan(&ps.ID, &ps.CreatedAt)
	if err != nil {
		return fmt.Errorf("create practice session: %w", err)
	}
	return nil
}

// AddSessionXP adds to the session's running total. A missing session row
// is not an error: clients may award against a key they generated.
func (s *Store) AddSessionXP(ctx context.Context, userID int64, sessionKey string, trackIndex, xp int) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE practice_sessions SET xp_earned = xp_earned + $4, updated_at = NOW()
		 WHERE user_id = $1 AND session_key = $2 AND track_index = $3`,
		userID, sessionKey, trackIndex, xp,
	)
	if err != nil {
		return fmt.Errorf("add session xp: %w", err)
	}
	return nil
}

// ── Heatmap ─────────────────────────────────────────────

func (s *Store) AddHeatmapDay(ctx context.Context, userID int64, day time.Time, xp, practiceMinutes, lessonsCompleted int) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO user_practice_heatmap (user_id, date, xp_earned, practice_minutes, lessons_completed)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, date) DO UPDATE SET
		    xp_earned = user_practice_heatmap.xp_earned + EXCLUDED.xp_earned,
		    practice_minutes = user_practice_heatmap.practice_minutes + EXCLUDED.practice_minutes,
		    lessons_completed = user_practice_heatmap.lessons_completed + EXCLUDED.lessons_completed`,
		userID, day.UTC().Format("2006-01-02"), xp, practiceMinutes, lessonsCompleted,
	)
	if err != nil {
		return fmt.Errorf("upsert heatmap: %w", err)
	}
	return nil
}

// ── XP Events ───────────────────────────────────────────

const (
	EventPracticeTick  = "lesson_practice_tick"
	EventPracticeAward = "lesson_practice_award"
)

// awardMetadata is the JSON stored on every practice xp_events row. The
// bonuses map is what later calls in the same session read back to
// rebuild their prior session awards.
type awardMetadata struct {
	LessonID           string                 `json:"lesson_id"`
	SessionKey         string                 `json:"session_key,omitempty"`
	TrackIndex         int                    `json:"track_index"`
	AwardMode          AwardMode              `json:"award_mode"`
	CompletionUnlocked bool                   `json:"completion_unlocked"`
	Metrics            models.PracticeMetrics `json:"metrics"`
	Breakdown          models.XPBreakdown     `json:"breakdown"`
	Bonuses            awardBonuses           `json:"bonuses"`
}

type awardBonuses struct {
	TempoClean  int `json:"tempo_clean"`
	TempoAggro  int `json:"tempo_aggro"`
	Consistency int `json:"consistency"`
	Streak      int `json:"streak"`
	Completion  int `json:"completion"`
}

// newAwardEvent builds the xp_events row for one award call.
func newAwardEvent(userID int64, eventType string, xp int, meta awardMetadata) (*models.XPEvent, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode xp event metadata: %w", err)
	}
	return &models.XPEvent{
		UserID:     userID,
		EventType:  eventType,
		XPAmount:   xp,
		SessionKey: meta.SessionKey,
		Metadata:   raw,
	}, nil
}

// LogXPEvent appends ev to the XP log and fills in its ID and CreatedAt.
func (s *Store) LogXPEvent(ctx context.Context, ev *models.XPEvent) error {
	var key, meta *string
	if ev.SessionKey != "" {
		key = &ev.SessionKey
	}
	if len(ev.Metadata) > 0 {
		str := string(ev.Metadata)
		meta = &str
	}
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO xp_events (user_id, event_type, xp_amount, session_key, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		ev.UserID, ev.EventType, ev.XPAmount, key, meta,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("log xp event: %w", err)
	}
	return nil
}

// PriorSessionAwards rebuilds the one-time bonuses already paid within a
// session from that session's xp_events rows for the same lesson and track.
func (s *Store) PriorSessionAwards(ctx context.Context, userID int64, sessionKey, lessonID string, trackIndex int) (models.SessionAwards, error) {
	var awards models.SessionAwards
	rows, err := s.q.QueryContext(ctx,
		`SELECT metadata FROM xp_events
		 WHERE user_id = $1 AND session_key = $2
		   AND metadata->>'lesson_id' = $3
		   AND (metadata->>'track_index')::int = $4
		 ORDER BY created_at`,
		userID, sessionKey, lessonID, trackIndex,
	)
	if err != nil {
		return awards, fmt.Errorf("get session xp events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return awards, fmt.Errorf("scan xp event: %w", err)
		}
		awards = awards.Merge(awardsFromMetadata(raw))
	}
	return awards, rows.Err()
}

// awardsFromMetadata flags a bonus kind when the event paid more than zero
// for it. Unreadable metadata flags nothing.
func awardsFromMetadata(raw []byte) models.SessionAwards {
	var meta awardMetadata
	if len(raw) == 0 || json.Unmarshal(raw, &meta) != nil {
		return models.SessionAwards{}
	}
	b := meta.Bonuses
	return models.SessionAwards{
		TempoCleanAwarded:  b.TempoClean > 0,
		TempoAggroAwarded:  b.TempoAggro > 0,
		ConsistencyAwarded: b.Consistency > 0,
		StreakAwarded:      b.Streak > 0,
		CompletionAwarded:  b.Completion > 0,
	}
}

// ── Leaderboard ─────────────────────────────────────────

func (s *Store) GetWeeklyLeaderboard(ctx context.Context, since time.Time, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT u.id, u.name, COALESCE(u.username, ''), w.xp, w.minutes,
		        COALESCE(st.current_streak_days, 0),
		        ROW_NUMBER() OVER (ORDER BY w.xp DESC, COALESCE(st.current_streak_days, 0) DESC, u.id) AS rank
		 FROM (
		     SELECT user_id, SUM(xp_earned) AS xp, SUM(practice_minutes) AS minutes
		     FROM user_practice_heatmap
		     WHERE date >= $1
		     GROUP BY user_id
		 ) w
		 JOIN users u ON u.id = w.user_id
		 LEFT JOIN user_stats st ON st.user_id = w.user_id
		 WHERE w.xp > 0
		 ORDER BY rank
		 LIMIT $2`,
		since.UTC().Format("2006-01-02"), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get weekly leaderboard: %w", err)
	}
	defer rows.Close()

	return scanLeaderboard(rows)
}

func (s *Store) GetAllTimeLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT u.id, u.name, COALESCE(u.username, ''), st.total_xp, st.total_practice_minutes,
		        st.current_streak_days,
		        ROW_NUMBER() OVER (ORDER BY st.total_xp DESC, st.current_streak_days DESC, u.id) AS rank
		 FROM user_stats st
		 JOIN users u ON u.id = st.user_id
		 ORDER BY rank
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get all-time leaderboard: %w", err)
	}
	defer rows.Close()

	return scanLeaderboard(rows)
}

func scanLeaderboard(rows *sql.Rows) ([]models.LeaderboardEntry, error) {
	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		var fullName string
		if err := rows.Scan(&e.UserID, &fullName, &e.Username, &e.XP, &e.PracticeMinutes, &e.StreakDays, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		e.DisplayName = models.User{Name: fullName, Username: e.Username}.DisplayName()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
