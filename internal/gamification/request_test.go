package gamification

import (
	"errors"
	"strings"
	"testing"

	"github.com/metal-master/backend/internal/models"
)

func TestDecodeAwardRequest(t *testing.T) {
	body := awardBody(t, map[string]any{
		"session_key": "3f0c2a7e-9b1d-4c55-8e2f-1a2b3c4d5e6f",
		"track_index": 2,
	}, func(m map[string]any) { m["had_activity_gap_over_20s"] = true })

	req, err := DecodeAwardRequest([]byte(body))
	if err != nil {
		t.Fatalf("DecodeAwardRequest() error: %v", err)
	}
	want := models.AwardRequest{
		LessonID:   "L01",
		SessionKey: "3f0c2a7e-9b1d-4c55-8e2f-1a2b3c4d5e6f",
		TrackIndex: 2,
		Metrics: models.PracticeMetrics{
			ActiveSeconds:         120,
			TotalSeconds:          120,
			LoopsCompleted:        4,
			AvgTempoBpm:           100,
			MaxTempoBpm:           100,
			LoopSeconds:           8,
			HadActivityGapOver20s: true,
		},
	}
	if req != want {
		t.Errorf("decoded = %+v, want %+v", req, want)
	}
}

func TestDecodeAwardRequestRequiresEveryMetric(t *testing.T) {
	_, err := DecodeAwardRequest([]byte(`{"lesson_id":"L01","metrics":{"active_seconds":120,"total_seconds":120}}`))

	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want *InvalidInputError", err)
	}
	msg := invalid.Error()
	for _, field := range []string{"loops_completed", "perfect_loops", "perfect_loop_streak_max", "avg_tempo_bpm",
		"max_tempo_bpm", "pauses", "seeks", "loop_seconds", "lesson_minutes_today", "had_activity_gap_over_20s"} {
		if !strings.Contains(msg, "'"+field+"'") {
			t.Errorf("error %q does not name missing field %s", msg, field)
		}
	}
}

func TestDecodeAwardRequestMalformed(t *testing.T) {
	if _, err := DecodeAwardRequest([]byte(`not json`)); !errors.Is(err, ErrMalformedBody) {
		t.Errorf("error = %v, want ErrMalformedBody", err)
	}
}
