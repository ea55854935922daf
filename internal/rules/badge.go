package rules

import "fmt"

// RequirementKind tags a badge requirement descriptor.
type RequirementKind string

const (
	KindCompletionClean         RequirementKind = "completion_clean"
	KindPerfectStreak           RequirementKind = "perfect_streak"
	KindPerfectStreakClean      RequirementKind = "perfect_streak_clean"
	KindCompletionNoPausesSeeks RequirementKind = "completion_no_pauses_seeks"
	KindAggroTempo              RequirementKind = "aggro_tempo"
	KindAllLessons              RequirementKind = "all_lessons"
)

// RequirementSpec is the raw requirement descriptor as it appears in the
// ruleset document. Which fields apply depends on Type.
type RequirementSpec struct {
	Type     RequirementKind `json:"type"`
	LessonID string          `json:"lesson_id,omitempty"`
	Streak   int             `json:"streak,omitempty"`
	Lessons  []string        `json:"lessons,omitempty"`
}

// Facts are the already-computed values a badge predicate may look at.
type Facts struct {
	LessonID             string
	CompletionUnlocked   bool
	TempoCleanEligible   bool
	TempoAggroEligible   bool
	PerfectLoopStreakMax int
	Pauses               int
	Seeks                int
	// CompletedLessons includes the current lesson when its completion
	// was unlocked by this call.
	CompletedLessons map[string]struct{}
}

// Requirement is a badge predicate. The set of implementations is closed
// to this package; adding a kind means adding a type here and a case in
// build.
type Requirement interface {
	Kind() RequirementKind
	Satisfied(f Facts) bool
	lessonRefs() []string
}

// CompletionClean: lesson completed with tempo at or above clean tempo.
type CompletionClean struct{ LessonID string }

func (CompletionClean) Kind() RequirementKind { return KindCompletionClean }

func (r CompletionClean) Satisfied(f Facts) bool {
	return f.LessonID == r.LessonID && f.CompletionUnlocked && f.TempoCleanEligible
}

func (r CompletionClean) lessonRefs() []string { return []string{r.LessonID} }

// PerfectStreak: a perfect-loop streak of at least Streak on the lesson,
// optionally also at clean tempo.
type PerfectStreak struct {
	LessonID string
	Streak   int
	Clean    bool
}

func (r PerfectStreak) Kind() RequirementKind {
	if r.Clean {
		return KindPerfectStreakClean
	}
	return KindPerfectStreak
}

func (r PerfectStreak) Satisfied(f Facts) bool {
	if f.LessonID != r.LessonID || f.PerfectLoopStreakMax < r.Streak {
		return false
	}
	return !r.Clean || f.TempoCleanEligible
}

func (r PerfectStreak) lessonRefs() []string { return []string{r.LessonID} }

// CompletionNoPausesSeeks: lesson completed without a single pause or seek.
type CompletionNoPausesSeeks struct{ LessonID string }

func (CompletionNoPausesSeeks) Kind() RequirementKind { return KindCompletionNoPausesSeeks }

func (r CompletionNoPausesSeeks) Satisfied(f Facts) bool {
	return f.LessonID == r.LessonID && f.CompletionUnlocked && f.Pauses == 0 && f.Seeks == 0
}

func (r CompletionNoPausesSeeks) lessonRefs() []string { return []string{r.LessonID} }

// AggroTempo: aggro tempo reached on the lesson.
type AggroTempo struct{ LessonID string }

func (AggroTempo) Kind() RequirementKind { return KindAggroTempo }

func (r AggroTempo) Satisfied(f Facts) bool {
	return f.LessonID == r.LessonID && f.TempoAggroEligible
}

func (r AggroTempo) lessonRefs() []string { return []string{r.LessonID} }

// AllLessons: every listed lesson is in the completed set.
type AllLessons struct{ Lessons []string }

func (AllLessons) Kind() RequirementKind { return KindAllLessons }

func (r AllLessons) Satisfied(f Facts) bool {
	if len(r.Lessons) == 0 {
		return false
	}
	for _, id := range r.Lessons {
		if _, ok := f.CompletedLessons[id]; !ok {
			return false
		}
	}
	return true
}

func (r AllLessons) lessonRefs() []string { return r.Lessons }

func (s RequirementSpec) build() (Requirement, error) {
	switch s.Type {
	case KindCompletionClean:
		return CompletionClean{LessonID: s.LessonID}, nil
	case KindPerfectStreak:
		return PerfectStreak{LessonID: s.LessonID, Streak: s.Streak}, nil
	case KindPerfectStreakClean:
		return PerfectStreak{LessonID: s.LessonID, Streak: s.Streak, Clean: true}, nil
	case KindCompletionNoPausesSeeks:
		return CompletionNoPausesSeeks{LessonID: s.LessonID}, nil
	case KindAggroTempo:
		return AggroTempo{LessonID: s.LessonID}, nil
	case KindAllLessons:
		lessons := make([]string, len(s.Lessons))
		copy(lessons, s.Lessons)
		return AllLessons{Lessons: lessons}, nil
	default:
		return nil, fmt.Errorf("unknown requirement type %q", s.Type)
	}
}
