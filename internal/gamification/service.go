package gamification

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/metal-master/backend/internal/models"
	"github.com/metal-master/backend/internal/rules"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 200

	// One award call covers at most a day of practice.
	maxSessionSeconds = 24 * 60 * 60
)

// InvalidRequestError covers request fields the engine never sees
// (session key, track index, leaderboard query).
type InvalidRequestError struct {
	Field   string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type Service struct {
	store  *Store
	engine *Engine
	now    func() time.Time
}

func NewService(store *Store, engine *Engine) *Service {
	return &Service{store: store, engine: engine, now: time.Now}
}

func (s *Service) Rules() *rules.Ruleset {
	return s.engine.Rules()
}

// ── Practice Awards ─────────────────────────────────────

// AwardPractice evaluates one tick or final award for a practice session
// and persists every resulting change in a single transaction. The user's
// stats row is locked for the duration, so concurrent awards for the same
// user are applied one after another.
func (s *Service) AwardPractice(ctx context.Context, userID int64, req models.AwardRequest, mode AwardMode) (*models.AwardResponse, error) {
	sessionKey, err := normalizeSessionKey(req.SessionKey)
	if err != nil {
		return nil, err
	}
	if req.TrackIndex < 0 {
		return nil, &InvalidRequestError{Field: "track_index", Message: "must be non-negative"}
	}

	now := s.now().UTC()
	in := Input{
		UserID:     userID,
		LessonID:   req.LessonID,
		Metrics:    req.Metrics,
		Timestamps: Timestamps{Now: now},
		AwardMode:  mode,
	}
	// Reject bad input before opening a transaction.
	if err := s.engine.Validate(in); err != nil {
		return nil, err
	}
	if req.Metrics.TotalSeconds > maxSessionSeconds {
		return nil, &InvalidRequestError{Field: "metrics.total_seconds", Message: fmt.Sprintf("must be at most %d", maxSessionSeconds)}
	}

	rs := s.engine.Rules()
	lesson, _ := rs.Lesson(req.LessonID)
	final := mode != AwardModeTick
	m := req.Metrics

	var resp *models.AwardResponse
	err = s.store.WithTx(ctx, func(tx *Store) error {
		if err := tx.EnsureUserStats(ctx, userID, rs.LevelForTotalXP(0).Title); err != nil {
			return err
		}
		stats, err := tx.LockUserStats(ctx, userID)
		if err != nil {
			return err
		}

		prev, err := tx.GetLessonCompletion(ctx, userID, req.LessonID)
		if err != nil {
			return err
		}
		completed, err := tx.GetCompletedLessonIDs(ctx, userID)
		if err != nil {
			return fmt.Errorf("get completed lessons: %w", err)
		}
		earned, err := tx.GetEarnedBadgeIDs(ctx, userID)
		if err != nil {
			return fmt.Errorf("get earned badges: %w", err)
		}
		var prior models.SessionAwards
		if sessionKey != "" {
			prior, err = tx.PriorSessionAwards(ctx, userID, sessionKey, req.LessonID, req.TrackIndex)
			if err != nil {
				return err
			}
		}

		in.UserStats = *stats
		in.PreviousLessonCompletion = prev
		in.CompletedLessonIDs = completed
		in.EarnedBadgeIDs = earned
		in.PriorSessionAwards = prior

		res, err := s.engine.Evaluate(in)
		if err != nil {
			return err
		}

		// Lesson progress
		completionAwarded := res.AwardFlags.CompletionAwarded
		cleanEligible := m.MaxTempoBpm >= float64(lesson.CleanTempo)
		// Aggro bests are only recorded on final awards; a tick recording one
		// would suppress the aggro bonus the same session is about to earn.
		aggroRecorded := final && m.MaxTempoBpm >= float64(lesson.AggroTempo)
		if completionAwarded || cleanEligible || aggroRecorded {
			lc := models.LessonCompletion{UserID: userID, LessonID: req.LessonID}
			if completionAwarded {
				lc.CompletedAt = &now
			}
			if cleanEligible {
				lc.BestCleanTempo = m.MaxTempoBpm
			}
			if aggroRecorded {
				lc.BestAggroTempo = m.MaxTempoBpm
			}
			if err := tx.UpsertLessonCompletion(ctx, lc); err != nil {
				return err
			}
		}

		// User stats
		practiceMinutes := int(math.Round(m.ActiveSeconds / 60))
		lessonsDelta := 0
		if completionAwarded {
			lessonsDelta = 1
		}
		stats.TotalXP += int64(res.XPAwarded)
		stats.WeeklyXP += int64(res.XPAwarded)
		level := rs.LevelForTotalXP(stats.TotalXP)
		stats.Level = level.Level
		stats.LevelTitle = level.Title
		stats.TotalPracticeMinutes += practiceMinutes
		stats.TotalLessonsCompleted += lessonsDelta
		if final {
			// Ticks leave the streak alone so the final award still sees the
			// first practice of the day.
			stats.CurrentStreakDays = res.StreakUpdate.NewStreakDays
			stats.LongestStreakDays = res.StreakUpdate.NewLongestStreakDays
			stats.LastActiveAt = &now
		}
		if err := tx.UpdateUserStats(ctx, stats); err != nil {
			return err
		}

		if err := tx.AddHeatmapDay(ctx, userID, now, res.XPAwarded, practiceMinutes, lessonsDelta); err != nil {
			return err
		}
		if sessionKey != "" {
			if err := tx.AddSessionXP(ctx, userID, sessionKey, req.TrackIndex, res.XPAwarded); err != nil {
				return err
			}
		}

		eventType := EventPracticeAward
		if !final {
			eventType = EventPracticeTick
		}
		meta := awardMetadata{
			LessonID:           req.LessonID,
			SessionKey:         sessionKey,
			TrackIndex:         req.TrackIndex,
			AwardMode:          mode,
			CompletionUnlocked: res.CompletionUnlocked,
			Metrics:            m,
			Breakdown:          res.XPBreakdown,
			Bonuses:            bonusesFor(rs.XPRules, res),
		}
		ev, err := newAwardEvent(userID, eventType, res.XPAwarded, meta)
		if err != nil {
			return err
		}
		if err := tx.LogXPEvent(ctx, ev); err != nil {
			return err
		}

		if err := tx.AwardBadges(ctx, userID, res.NewlyEarnedBadges, now); err != nil {
			return err
		}

		resp = &models.AwardResponse{
			XPAwarded:          res.XPAwarded,
			XPBreakdown:        res.XPBreakdown,
			TotalXP:            stats.TotalXP,
			Level:              stats.Level,
			LevelTitle:         stats.LevelTitle,
			CurrentStreakDays:  stats.CurrentStreakDays,
			LongestStreakDays:  stats.LongestStreakDays,
			BadgesAwarded:      awardedBadges(rs, res.NewlyEarnedBadges),
			CompletionUnlocked: res.CompletionUnlocked,
			AwardFlags:         res.AwardFlags,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.BadgesAwarded) > 0 {
		log.Printf("[gamification] user %d earned %d badge(s) on %s", userID, len(resp.BadgesAwarded), req.LessonID)
	}
	return resp, nil
}

func normalizeSessionKey(key string) (string, error) {
	if key == "" {
		return "", nil
	}
	id, err := uuid.Parse(key)
	if err != nil {
		return "", &InvalidRequestError{Field: "session_key", Message: "must be a UUID"}
	}
	return id.String(), nil
}

// bonusesFor splits the award into per-kind amounts for the event log.
// The tempo bonus is reported per tier since the breakdown sums them.
func bonusesFor(xr rules.XPRules, res *Result) awardBonuses {
	b := awardBonuses{
		Consistency: res.XPBreakdown.ConsistencyBonus,
		Streak:      res.XPBreakdown.StreakBonus,
		Completion:  res.XPBreakdown.ChallengeBonus,
	}
	if res.AwardFlags.TempoCleanAwarded {
		b.TempoClean = xr.TempoBonusClean
	}
	if res.AwardFlags.TempoAggroAwarded {
		b.TempoAggro = xr.TempoBonusAggro
	}
	return b
}

func awardedBadges(rs *rules.Ruleset, ids []string) []models.AwardedBadge {
	names := make(map[string]string, len(rs.Badges))
	for _, b := range rs.Badges {
		names[b.BadgeID] = b.Name
	}
	out := make([]models.AwardedBadge, 0, len(ids))
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		out = append(out, models.AwardedBadge{BadgeID: id, Name: name})
	}
	return out
}

// ── Practice Sessions ───────────────────────────────────

func (s *Service) StartSession(ctx context.Context, userID int64, req models.StartSessionRequest) (*models.StartSessionResponse, error) {
	if _, ok := s.engine.Rules().Lesson(req.LessonID); !ok {
		return nil, &UnknownLessonError{LessonID: req.LessonID}
	}
	if req.TrackIndex < 0 {
		return nil, &InvalidRequestError{Field: "track_index", Message: "must be non-negative"}
	}

	ps := &models.PracticeSession{
		UserID:     userID,
		SessionKey: uuid.NewString(),
		LessonID:   req.LessonID,
		TrackIndex: req.TrackIndex,
	}
	if err := s.store.CreatePracticeSession(ctx, ps); err != nil {
		return nil, err
	}

	return &models.StartSessionResponse{
		SessionKey: ps.SessionKey,
		LessonID:   ps.LessonID,
		TrackIndex: ps.TrackIndex,
	}, nil
}

// ── Read Side ───────────────────────────────────────────

func (s *Service) GetGamification(ctx context.Context, userID int64) (*models.GamificationResponse, error) {
	if err := s.store.EnsureUserStats(ctx, userID, s.engine.Rules().LevelForTotalXP(0).Title); err != nil {
		return nil, err
	}
	stats, err := s.store.GetUserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user stats: %w", err)
	}
	completed, err := s.store.GetCompletedLessonIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get completed lessons: %w", err)
	}
	badges, err := s.store.GetEarnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get earned badges: %w", err)
	}

	return &models.GamificationResponse{
		TotalXP:               stats.TotalXP,
		WeeklyXP:              stats.WeeklyXP,
		Level:                 stats.Level,
		LevelTitle:            stats.LevelTitle,
		CurrentStreakDays:     stats.CurrentStreakDays,
		LongestStreakDays:     stats.LongestStreakDays,
		TotalPracticeMinutes:  stats.TotalPracticeMinutes,
		TotalLessonsCompleted: stats.TotalLessonsCompleted,
		CompletedLessons:      completed,
		Badges:                badges,
	}, nil
}

// LeaderboardQuery validates the period and limit of a leaderboard request.
// Empty period means weekly; zero limit means the default.
func LeaderboardQuery(period string, limit int) (string, int, error) {
	switch period {
	case "":
		period = models.PeriodWeekly
	case models.PeriodWeekly, models.PeriodAllTime:
	default:
		return "", 0, &InvalidRequestError{Field: "period", Message: fmt.Sprintf("must be %q or %q", models.PeriodWeekly, models.PeriodAllTime)}
	}
	if limit == 0 {
		limit = defaultLeaderboardLimit
	}
	if limit < 1 || limit > maxLeaderboardLimit {
		return "", 0, &InvalidRequestError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxLeaderboardLimit)}
	}
	return period, limit, nil
}

func (s *Service) GetLeaderboard(ctx context.Context, userID int64, period string, limit int) (*models.LeaderboardResponse, error) {
	period, limit, err := LeaderboardQuery(period, limit)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var entries []models.LeaderboardEntry
	if period == models.PeriodWeekly {
		entries, err = s.store.GetWeeklyLeaderboard(ctx, weeklyWindowStart(now), limit)
	} else {
		entries, err = s.store.GetAllTimeLeaderboard(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	// Mark current user
	for i := range entries {
		if entries[i].UserID == userID {
			entries[i].IsCurrentUser = true
		}
	}

	return &models.LeaderboardResponse{
		Period:      period,
		Entries:     entries,
		GeneratedAt: now,
	}, nil
}

// weeklyWindowStart is the first UTC day of the seven calendar days
// ending today.
func weeklyWindowStart(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d-6, 0, 0, 0, 0, time.UTC)
}

func (s *Service) BadgeCatalogue() []models.BadgeInfo {
	badges := s.engine.Rules().Badges
	out := make([]models.BadgeInfo, 0, len(badges))
	for _, b := range badges {
		out = append(out, models.BadgeInfo{
			BadgeID:     b.BadgeID,
			Name:        b.Name,
			Description: b.Description,
			IconURL:     b.IconURL,
			Kind:        string(b.Requirement().Kind()),
		})
	}
	return out
}

// ── Background Workers ──────────────────────────────────

func (s *Service) StartWeeklyResetWorker(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	log.Println("[gamification] Weekly reset worker started")

	for {
		select {
		case <-ctx.Done():
			log.Println("[gamification] Weekly reset worker shutting down")
			return
		case t := <-ticker.C:
			if isWeeklyResetHour(t) {
				log.Println("[gamification] Running weekly XP reset")
				s.runWeeklyReset(ctx)
			}
		}
	}
}

// isWeeklyResetHour reports whether t falls in Monday 00:xx UTC.
func isWeeklyResetHour(t time.Time) bool {
	utc := t.UTC()
	return utc.Weekday() == time.Monday && utc.Hour() == 0
}

func (s *Service) runWeeklyReset(ctx context.Context) {
	n, err := s.store.ResetWeeklyXP(ctx)
	if err != nil {
		log.Printf("[gamification] weekly reset: failed to reset XP: %v", err)
		return
	}
	log.Printf("[gamification] weekly reset: cleared weekly XP for %d user(s)", n)
}
