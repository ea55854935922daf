package gamification

import (
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/metal-master/backend/internal/models"
	"github.com/metal-master/backend/internal/rules"
)

var testNow = time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	rs, err := rules.Load(filepath.Join("testdata", "ruleset.json"))
	if err != nil {
		t.Fatalf("load test ruleset: %v", err)
	}
	return NewEngine(rs)
}

// baseInput completes L01 exactly at its minimums, with no tempo, no
// perfect loops and no prior activity.
func baseInput() Input {
	return Input{
		UserID:   7,
		LessonID: "L01",
		Metrics: models.PracticeMetrics{
			ActiveSeconds:  120,
			TotalSeconds:   120,
			LoopsCompleted: 4,
			LoopSeconds:    8,
		},
		Timestamps: Timestamps{Now: testNow},
		AwardMode:  AwardModeFinal,
	}
}

func evaluate(t *testing.T, e *Engine, in Input) *Result {
	t.Helper()
	res, err := e.Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	return res
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestEvaluate_BaseOnly(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.AwardMode = AwardModeTick

	res := evaluate(t, e, in)
	if res.XPBreakdown.Base != 60 {
		t.Errorf("base = %d, want 60", res.XPBreakdown.Base)
	}
	if res.XPBreakdown.AntiCheesePenalty != 0 {
		t.Errorf("anti-cheese penalty = %d, want 0", res.XPBreakdown.AntiCheesePenalty)
	}
	if res.XPAwarded != 60 {
		t.Errorf("xp awarded = %d, want 60", res.XPAwarded)
	}
}

func TestEvaluate_ActivityGapVetoesBase(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.AwardMode = AwardModeTick
	in.Metrics.HadActivityGapOver20s = true

	res := evaluate(t, e, in)
	if res.XPBreakdown.Base != 60 || res.XPBreakdown.AntiCheesePenalty != -60 {
		t.Errorf("breakdown = %+v, want base 60 and penalty -60", res.XPBreakdown)
	}
	if res.XPAwarded != 0 {
		t.Errorf("xp awarded = %d, want 0", res.XPAwarded)
	}
}

func TestEvaluate_VetoIsTotal(t *testing.T) {
	e := testEngine(t)
	for _, active := range []float64{0, 10, 120, 599, 3000, 100000} {
		in := baseInput()
		in.AwardMode = AwardModeTick
		in.Metrics.ActiveSeconds = active
		in.Metrics.TotalSeconds = active
		in.Metrics.HadActivityGapOver20s = true

		res := evaluate(t, e, in)
		if got := res.XPBreakdown.Base + res.XPBreakdown.AntiCheesePenalty; got != 0 {
			t.Errorf("active=%v: base awarded = %d, want 0", active, got)
		}
	}
}

func TestEvaluate_LowActiveRatioVetoesBase(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.AwardMode = AwardModeTick
	in.Metrics.ActiveSeconds = 120
	in.Metrics.TotalSeconds = 240

	res := evaluate(t, e, in)
	if res.XPAwarded != 0 || res.XPBreakdown.AntiCheesePenalty != -60 {
		t.Errorf("result = %+v, want zero award with penalty -60", res.XPBreakdown)
	}
}

func TestEvaluate_FinalBaseline(t *testing.T) {
	e := testEngine(t)
	res := evaluate(t, e, baseInput())

	want := models.XPBreakdown{
		Base:                  60,
		StreakBonus:           10,
		ChallengeBonus:        100,
		DiminishingMultiplier: 1,
	}
	if res.XPBreakdown != want {
		t.Errorf("breakdown = %+v, want %+v", res.XPBreakdown, want)
	}
	if res.XPAwarded != 170 {
		t.Errorf("xp awarded = %d, want 170", res.XPAwarded)
	}
	if !res.CompletionUnlocked || !res.AwardFlags.CompletionAwarded || !res.AwardFlags.StreakAwarded {
		t.Errorf("flags = %+v, completion unlocked = %v", res.AwardFlags, res.CompletionUnlocked)
	}
	if !reflect.DeepEqual(res.NewlyEarnedBadges, []string{"B03"}) {
		t.Errorf("badges = %v, want [B03]", res.NewlyEarnedBadges)
	}
}

func TestEvaluate_TempoCleanOnly(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.Metrics.MaxTempoBpm = 185

	res := evaluate(t, e, in)
	if res.XPBreakdown.TempoBonus != 25 {
		t.Errorf("tempo bonus = %d, want 25", res.XPBreakdown.TempoBonus)
	}
	if !res.AwardFlags.TempoCleanAwarded || res.AwardFlags.TempoAggroAwarded {
		t.Errorf("flags = %+v, want clean only", res.AwardFlags)
	}
	if !reflect.DeepEqual(res.NewlyEarnedBadges, []string{"B01", "B03"}) {
		t.Errorf("badges = %v, want [B01 B03]", res.NewlyEarnedBadges)
	}
}

func TestEvaluate_TempoAggro(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.Metrics.MaxTempoBpm = 210

	res := evaluate(t, e, in)
	if res.XPBreakdown.TempoBonus != 75 {
		t.Errorf("tempo bonus = %d, want 75", res.XPBreakdown.TempoBonus)
	}

	// Aggro pays once per lesson.
	in.PreviousLessonCompletion = &models.LessonCompletion{LessonID: "L01", BestAggroTempo: 205}
	res = evaluate(t, e, in)
	if res.XPBreakdown.TempoBonus != 25 {
		t.Errorf("tempo bonus with previous aggro = %d, want 25", res.XPBreakdown.TempoBonus)
	}
	if res.AwardFlags.TempoAggroAwarded {
		t.Error("aggro should not be awarded twice for a lesson")
	}
	found := false
	for _, b := range res.NewlyEarnedBadges {
		if b == "B04" {
			found = true
		}
	}
	if !found {
		t.Errorf("badges = %v, want B04 (eligibility, not award)", res.NewlyEarnedBadges)
	}
}

func TestEvaluate_ConsistencyPicksHighestTier(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.Metrics.PerfectLoopStreakMax = 8

	res := evaluate(t, e, in)
	if res.XPBreakdown.ConsistencyBonus != 50 {
		t.Errorf("consistency bonus = %d, want 50", res.XPBreakdown.ConsistencyBonus)
	}

	in.Metrics.PerfectLoopStreakMax = 7
	res = evaluate(t, e, in)
	if res.XPBreakdown.ConsistencyBonus != 20 {
		t.Errorf("consistency bonus at 7 = %d, want 20", res.XPBreakdown.ConsistencyBonus)
	}

	in.Metrics.PerfectLoopStreakMax = 2
	res = evaluate(t, e, in)
	if res.XPBreakdown.ConsistencyBonus != 0 || res.AwardFlags.ConsistencyAwarded {
		t.Errorf("consistency at 2 = %d (flag %v), want 0", res.XPBreakdown.ConsistencyBonus, res.AwardFlags.ConsistencyAwarded)
	}
}

func TestEvaluate_StreakFromYesterday(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.UserStats = models.UserStats{
		CurrentStreakDays: 4,
		LongestStreakDays: 4,
		LastActiveAt:      ptrTime(testNow.Add(-24 * time.Hour)),
	}

	res := evaluate(t, e, in)
	want := models.StreakUpdate{NewStreakDays: 5, NewLongestStreakDays: 5, IsFirstPracticeToday: true, PreviousStreakDays: 4}
	if res.StreakUpdate != want {
		t.Errorf("streak = %+v, want %+v", res.StreakUpdate, want)
	}
	if res.XPBreakdown.StreakBonus != 10 {
		t.Errorf("streak bonus = %d, want 10 (daily)", res.XPBreakdown.StreakBonus)
	}

	in.UserStats.CurrentStreakDays = 2
	res = evaluate(t, e, in)
	if res.XPBreakdown.StreakBonus != 25 {
		t.Errorf("streak bonus crossing 3 days = %d, want 25", res.XPBreakdown.StreakBonus)
	}
}

func TestEvaluate_SecondFinalIsIdempotent(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.Metrics.MaxTempoBpm = 210
	in.Metrics.PerfectLoopStreakMax = 8

	first := evaluate(t, e, in)
	if first.XPBreakdown.TempoBonus == 0 || first.XPBreakdown.ConsistencyBonus == 0 ||
		first.XPBreakdown.StreakBonus == 0 || first.XPBreakdown.ChallengeBonus == 0 {
		t.Fatalf("first call should grant every bonus, got %+v", first.XPBreakdown)
	}

	in.PriorSessionAwards = first.AwardFlags
	in.EarnedBadgeIDs = first.NewlyEarnedBadges
	second := evaluate(t, e, in)

	b := second.XPBreakdown
	if b.TempoBonus != 0 || b.ConsistencyBonus != 0 || b.StreakBonus != 0 || b.ChallengeBonus != 0 {
		t.Errorf("second call bonuses = %+v, want all zero", b)
	}
	if len(second.NewlyEarnedBadges) != 0 {
		t.Errorf("second call badges = %v, want none", second.NewlyEarnedBadges)
	}
	if second.XPAwarded != first.XPBreakdown.Base {
		t.Errorf("second call xp = %d, want base %d only", second.XPAwarded, first.XPBreakdown.Base)
	}
	if second.AwardFlags != (models.SessionAwards{}) {
		t.Errorf("second call flags = %+v, want none", second.AwardFlags)
	}
}

func TestEvaluate_TickSuppressesBonusesAndBadges(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.AwardMode = AwardModeTick
	in.Metrics.MaxTempoBpm = 210
	in.Metrics.PerfectLoopStreakMax = 8

	res := evaluate(t, e, in)
	b := res.XPBreakdown
	if b.TempoBonus != 0 || b.ConsistencyBonus != 0 || b.StreakBonus != 0 || b.ChallengeBonus != 0 {
		t.Errorf("tick bonuses = %+v, want all zero", b)
	}
	if res.NewlyEarnedBadges == nil || len(res.NewlyEarnedBadges) != 0 {
		t.Errorf("tick badges = %#v, want empty non-nil slice", res.NewlyEarnedBadges)
	}
	if res.AwardFlags != (models.SessionAwards{}) {
		t.Errorf("tick flags = %+v, want none", res.AwardFlags)
	}
	if !res.CompletionUnlocked {
		t.Error("completion unlocked should still be reported in tick mode")
	}
}

func TestEvaluate_CompletionOnlyOncePerLesson(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.PreviousLessonCompletion = &models.LessonCompletion{LessonID: "L01", CompletedAt: ptrTime(testNow.Add(-48 * time.Hour))}

	res := evaluate(t, e, in)
	if res.XPBreakdown.ChallengeBonus != 0 || res.AwardFlags.CompletionAwarded {
		t.Errorf("challenge bonus = %d (flag %v), want 0", res.XPBreakdown.ChallengeBonus, res.AwardFlags.CompletionAwarded)
	}
	if !res.CompletionUnlocked {
		t.Error("completion should still be unlocked")
	}
}

func TestEvaluate_AllLessonsBadgeCountsCurrentLesson(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.CompletedLessonIDs = []string{"L02"}

	res := evaluate(t, e, in)
	if !reflect.DeepEqual(res.NewlyEarnedBadges, []string{"B03", "B05"}) {
		t.Errorf("badges = %v, want [B03 B05]", res.NewlyEarnedBadges)
	}

	in.EarnedBadgeIDs = []string{"B05"}
	res = evaluate(t, e, in)
	if !reflect.DeepEqual(res.NewlyEarnedBadges, []string{"B03"}) {
		t.Errorf("badges with B05 earned = %v, want [B03]", res.NewlyEarnedBadges)
	}

	in = baseInput()
	in.CompletedLessonIDs = []string{"L02"}
	in.Metrics.LoopsCompleted = 3
	res = evaluate(t, e, in)
	if len(res.NewlyEarnedBadges) != 0 {
		t.Errorf("badges without completion = %v, want none", res.NewlyEarnedBadges)
	}
}

func TestEvaluate_NonNegativeAward(t *testing.T) {
	e := testEngine(t)
	for _, mode := range []AwardMode{AwardModeTick, AwardModeFinal} {
		for _, active := range []float64{0, 5, 120, 1000} {
			in := baseInput()
			in.AwardMode = mode
			in.Metrics.ActiveSeconds = active
			in.Metrics.TotalSeconds = active * 3
			in.Metrics.HadActivityGapOver20s = true
			in.Metrics.Seeks = 50
			in.Metrics.LoopSeconds = 0.5
			in.Metrics.LoopsCompleted = 40
			in.Metrics.LessonMinutesToday = 500

			res := evaluate(t, e, in)
			if res.XPAwarded < 0 {
				t.Errorf("mode=%s active=%v: xp awarded = %d, want >= 0", mode, active, res.XPAwarded)
			}
		}
	}
}

func TestEvaluate_HugeActiveTimeKeepsBonuses(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.Metrics.ActiveSeconds = 1e20
	in.Metrics.TotalSeconds = 1e20

	res := evaluate(t, e, in)
	if res.XPBreakdown.Base != 300 {
		t.Errorf("base = %d, want the 300 session cap", res.XPBreakdown.Base)
	}
	if res.XPAwarded != 410 {
		t.Errorf("xp awarded = %d, want 410 (cap + streak + completion)", res.XPAwarded)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := testEngine(t)
	in := baseInput()
	in.Metrics.MaxTempoBpm = 205
	in.Metrics.PerfectLoopStreakMax = 6
	in.Metrics.LessonMinutesToday = 45
	in.CompletedLessonIDs = []string{"L02"}
	in.UserStats = models.UserStats{CurrentStreakDays: 6, LongestStreakDays: 10, LastActiveAt: ptrTime(testNow.Add(-20 * time.Hour))}

	first := evaluate(t, e, in)
	second := evaluate(t, e, in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	e := testEngine(t)

	in := baseInput()
	in.LessonID = "L99"
	_, err := e.Evaluate(in)
	var unknown *UnknownLessonError
	if !errors.As(err, &unknown) || unknown.LessonID != "L99" {
		t.Errorf("unknown lesson error = %v, want UnknownLessonError{L99}", err)
	}

	in = baseInput()
	in.AwardMode = "bonus"
	_, err = e.Evaluate(in)
	var badMode *InvalidAwardModeError
	if !errors.As(err, &badMode) {
		t.Errorf("award mode error = %v, want InvalidAwardModeError", err)
	}

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"active exceeds total", func(in *Input) { in.Metrics.ActiveSeconds = 200 }},
		{"negative seeks", func(in *Input) { in.Metrics.Seeks = -1 }},
		{"negative tempo", func(in *Input) { in.Metrics.MaxTempoBpm = -5 }},
		{"nan loop seconds", func(in *Input) { in.Metrics.LoopSeconds = math.NaN() }},
		{"negative streak", func(in *Input) { in.UserStats.CurrentStreakDays = -2 }},
		{"missing now", func(in *Input) { in.Timestamps.Now = time.Time{} }},
	}
	for _, tt := range tests {
		in := baseInput()
		tt.mutate(&in)
		res, err := e.Evaluate(in)
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Errorf("%s: error = %v, want InvalidInputError", tt.name, err)
		}
		if res != nil {
			t.Errorf("%s: expected no result", tt.name)
		}
	}
}

func TestParseAwardMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AwardMode
		wantErr bool
	}{
		{"", AwardModeFinal, false},
		{"final", AwardModeFinal, false},
		{"tick", AwardModeTick, false},
		{"FINAL", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAwardMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAwardMode(%q) = %q, %v; want %q, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
