package rules

import (
	"fmt"
	"strings"
)

// Violation names one invalid field of a ruleset document.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ValidationError lists every violation found in a ruleset document, not
// only the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid ruleset (%d violations): %s", len(e.Violations), strings.Join(parts, "; "))
}

// checker accumulates cross-field violations. Fields already reported by
// the schema pass (or nested under one) are skipped so a missing value is
// not reported twice.
type checker struct {
	reported   map[string]bool
	violations []Violation
}

func (c *checker) add(field, format string, args ...any) {
	for f := field; f != ""; f = parentField(f) {
		if c.reported[f] {
			return
		}
	}
	c.violations = append(c.violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

func parentField(field string) string {
	i := strings.LastIndexAny(field, ".[")
	if i <= 0 {
		return ""
	}
	return field[:i]
}

// validate runs the typed cross-field pass and builds badge predicates.
func (r *Ruleset) validate(reported map[string]bool) []Violation {
	c := &checker{reported: reported}
	xr := r.XPRules

	seenStreak := map[int]bool{}
	for i, cb := range xr.ConsistencyBonuses {
		if seenStreak[cb.Streak] {
			c.add(fmt.Sprintf("xp_rules.consistency_bonuses[%d].streak", i), "duplicate streak %d", cb.Streak)
		}
		seenStreak[cb.Streak] = true
	}

	seenDays := map[int]bool{}
	for i, th := range xr.StreakBonuses.Thresholds {
		if seenDays[th.Days] {
			c.add(fmt.Sprintf("xp_rules.streak_bonuses.thresholds[%d].days", i), "duplicate days %d", th.Days)
		}
		seenDays[th.Days] = true
	}

	seenMinutes := map[int]bool{}
	for i, d := range xr.DiminishingReturns {
		field := fmt.Sprintf("xp_rules.diminishing_returns[%d]", i)
		if seenMinutes[d.Minutes] {
			c.add(field+".minutes", "duplicate minutes %d", d.Minutes)
		}
		seenMinutes[d.Minutes] = true
		for _, other := range xr.DiminishingReturns {
			if other.Minutes < d.Minutes && other.Multiplier < d.Multiplier {
				c.add(field+".multiplier", "multiplier %.2f at %d minutes exceeds %.2f at %d minutes",
					d.Multiplier, d.Minutes, other.Multiplier, other.Minutes)
				break
			}
		}
	}

	lessonIDs := map[string]bool{}
	for i, l := range r.Lessons {
		field := fmt.Sprintf("lessons[%d]", i)
		if lessonIDs[l.LessonID] {
			c.add(field+".lesson_id", "duplicate lesson id %q", l.LessonID)
		}
		lessonIDs[l.LessonID] = true
		if l.CleanTempo < 1 {
			c.add(field+".clean_tempo", "must be at least 1")
		}
		if l.AggroTempo <= l.CleanTempo {
			c.add(field+".aggro_tempo", "must exceed clean_tempo (%d), got %d", l.CleanTempo, l.AggroTempo)
		}
	}

	badgeIDs := map[string]bool{}
	for i := range r.Badges {
		b := &r.Badges[i]
		field := fmt.Sprintf("badges[%d]", i)
		if badgeIDs[b.BadgeID] {
			c.add(field+".badge_id", "duplicate badge id %q", b.BadgeID)
		}
		badgeIDs[b.BadgeID] = true

		req, err := b.Requirements.build()
		if err != nil {
			c.add(field+".requirements.type", "%v", err)
			continue
		}
		checkRequirementShape(c, field+".requirements", b.Requirements)
		for _, ref := range req.lessonRefs() {
			if ref != "" && !lessonIDs[ref] {
				c.add(field+".requirements", "references unknown lesson %q", ref)
			}
		}
		b.requirement = req
	}

	for i, l := range r.Levels {
		field := fmt.Sprintf("levels[%d]", i)
		if i == 0 {
			if l.TotalXPRequired != 0 {
				c.add(field+".total_xp_required", "first level must require 0 XP, got %d", l.TotalXPRequired)
			}
			continue
		}
		prev := r.Levels[i-1]
		if l.Level <= prev.Level {
			c.add(field+".level", "levels must be strictly increasing (%d after %d)", l.Level, prev.Level)
		}
		if l.TotalXPRequired <= prev.TotalXPRequired {
			c.add(field+".total_xp_required", "thresholds must be strictly increasing (%d after %d)",
				l.TotalXPRequired, prev.TotalXPRequired)
		}
	}

	return c.violations
}

func checkRequirementShape(c *checker, field string, s RequirementSpec) {
	switch s.Type {
	case KindAllLessons:
		if len(s.Lessons) == 0 {
			c.add(field+".lessons", "required for %s", s.Type)
		}
		seen := map[string]bool{}
		for j, id := range s.Lessons {
			if seen[id] {
				c.add(fmt.Sprintf("%s.lessons[%d]", field, j), "duplicate lesson id %q", id)
			}
			seen[id] = true
		}
	case KindPerfectStreak, KindPerfectStreakClean:
		if s.LessonID == "" {
			c.add(field+".lesson_id", "required for %s", s.Type)
		}
		if s.Streak < 1 {
			c.add(field+".streak", "required for %s", s.Type)
		}
	default:
		if s.LessonID == "" {
			c.add(field+".lesson_id", "required for %s", s.Type)
		}
	}
}
