package gamification

import (
	"math"

	"github.com/metal-master/backend/internal/models"
	"github.com/metal-master/backend/internal/rules"
)

// BaseResult is the outcome of the base XP calculation, including every
// intermediate value so callers can explain the award.
type BaseResult struct {
	Raw                   float64
	Capped                int
	MicroLoopMultiplier   float64
	SeekMultiplier        float64
	DiminishingMultiplier float64
	BeforeAntiCheese      int
	AntiCheesePenalty     int
	Awarded               int
}

// CalculateBaseXP converts active practice time into base XP.
//
// The order is fixed: cap, then the micro-loop and seek multipliers, then
// diminishing returns, floor once, and finally the all-or-nothing
// inactivity veto.
func CalculateBaseXP(xr rules.XPRules, m models.PracticeMetrics) BaseResult {
	res := BaseResult{MicroLoopMultiplier: 1, SeekMultiplier: 1}

	// Capped in float64 so huge active times cannot overflow int.
	res.Raw = math.Floor(m.ActiveSeconds/10) * float64(xr.BaseXPPer10s)
	res.Capped = int(math.Min(res.Raw, float64(xr.SessionBaseCap)))

	ac := xr.AntiCheese
	if m.LoopSeconds < ac.MicroLoop.MaxLoopSeconds && m.LoopsCompleted > ac.MicroLoop.MinLoops {
		res.MicroLoopMultiplier = ac.MicroLoop.Multiplier
	}
	if m.Seeks >= ac.SeekPenalty.MinSeeks && m.TotalSeconds <= ac.SeekPenalty.ShortSessionSeconds {
		res.SeekMultiplier = ac.SeekPenalty.Multiplier
	}

	// TODO(product): confirm that the anti-cheat multipliers should stack
	// with diminishing returns instead of taking the strongest penalty.
	baseMultiplier := 1.0
	baseMultiplier *= res.MicroLoopMultiplier
	baseMultiplier *= res.SeekMultiplier

	res.DiminishingMultiplier = DiminishingMultiplier(xr.DiminishingReturns, m.LessonMinutesToday)
	res.BeforeAntiCheese = int(math.Floor(float64(res.Capped) * baseMultiplier * res.DiminishingMultiplier))

	if AntiCheeseTriggered(ac, m) {
		res.AntiCheesePenalty = -res.BeforeAntiCheese
	}
	res.Awarded = res.BeforeAntiCheese + res.AntiCheesePenalty
	return res
}

// DiminishingMultiplier returns the multiplier of the highest threshold
// reached by minutesToday, or 1 when none is reached.
func DiminishingMultiplier(steps []rules.DiminishingStep, minutesToday float64) float64 {
	best := -1
	multiplier := 1.0
	for _, s := range steps {
		if minutesToday >= float64(s.Minutes) && s.Minutes > best {
			best = s.Minutes
			multiplier = s.Multiplier
		}
	}
	return multiplier
}

// AntiCheeseTriggered reports whether the inactivity veto zeroes base XP.
func AntiCheeseTriggered(ac rules.AntiCheese, m models.PracticeMetrics) bool {
	if !ac.DisableBaseXPIfInactive {
		return false
	}
	return m.HadActivityGapOver20s || ActiveRatio(m) < ac.MinActiveRatio
}

// ActiveRatio is activeSeconds/totalSeconds, or 0 for an empty session.
func ActiveRatio(m models.PracticeMetrics) float64 {
	if m.TotalSeconds == 0 {
		return 0
	}
	return m.ActiveSeconds / m.TotalSeconds
}
