package progress_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/p-n-ai/pai-engine/internal/progress"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func outcome(student, topic string, attempted, correct int, at time.Time) progress.SessionOutcome {
	return progress.SessionOutcome{
		StudentID:         student,
		SubjectID:         "algebra",
		TopicID:           topic,
		ProblemsAttempted: attempted,
		ProblemsCorrect:   correct,
		DurationMinutes:   15,
		PointsEarned:      30,
		Timestamp:         at,
	}
}

func TestApply_FirstSession(t *testing.T) {
	tracker := progress.NewTracker(progress.TrackerConfig{})
	ctx := t.Context()

	row, err := tracker.Apply(ctx, outcome("s1", "alg-01", 10, 8, base))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if row.MasteryLevel != progress.DefaultInitialMastery {
		t.Errorf("MasteryLevel = %v, want %v", row.MasteryLevel, progress.DefaultInitialMastery)
	}
	if row.SessionsCount != 1 {
		t.Errorf("SessionsCount = %d, want 1", row.SessionsCount)
	}
	if row.TotalTimeMinutes != 15 {
		t.Errorf("TotalTimeMinutes = %d, want 15", row.TotalTimeMinutes)
	}
	if !row.LastPracticedAt.Equal(base) {
		t.Errorf("LastPracticedAt = %v, want %v", row.LastPracticedAt, base)
	}
}

func TestApply_AccuracyWeightedStep(t *testing.T) {
	tests := []struct {
		name      string
		attempted int
		correct   int
		wantStep  float64
	}{
		{"perfect", 10, 10, 0.05},
		{"eighty-percent", 10, 8, 0.04},
		{"below-floor", 10, 2, 0.025},
		{"zero-correct", 10, 0, 0.025},
		{"no-problems", 0, 0, 0.025},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := progress.NewTracker(progress.TrackerConfig{})
			ctx := t.Context()

			if _, err := tracker.Apply(ctx, outcome("s1", "alg-01", 10, 10, base)); err != nil {
				t.Fatalf("Apply() first session error = %v", err)
			}
			row, err := tracker.Apply(ctx, outcome("s1", "alg-01", tt.attempted, tt.correct, base.Add(time.Hour)))
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}

			want := progress.DefaultInitialMastery + tt.wantStep
			if diff := row.MasteryLevel - want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("MasteryLevel = %v, want %v", row.MasteryLevel, want)
			}
		})
	}
}

func TestApply_MasteryBounds(t *testing.T) {
	tracker := progress.NewTracker(progress.TrackerConfig{})
	ctx := t.Context()
	rng := rand.New(rand.NewSource(1))

	at := base
	for i := 0; i < 200; i++ {
		at = at.Add(time.Hour)
		attempted := rng.Intn(20)
		correct := 0
		if attempted > 0 {
			correct = rng.Intn(attempted + 1)
		}

		row, err := tracker.Apply(ctx, outcome("s1", "alg-01", attempted, correct, at))
		if err != nil {
			t.Fatalf("Apply() #%d error = %v", i, err)
		}
		if row.MasteryLevel < 0 || row.MasteryLevel > 1 {
			t.Fatalf("MasteryLevel = %v out of [0,1] after %d sessions", row.MasteryLevel, i+1)
		}
	}

	row, err := tracker.Get(ctx, "s1", "alg-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.MasteryLevel != 1.0 {
		t.Errorf("MasteryLevel = %v, want clamped at 1.0 after 200 sessions", row.MasteryLevel)
	}
	if row.SessionsCount != 200 {
		t.Errorf("SessionsCount = %d, want 200", row.SessionsCount)
	}
}

func TestApply_OutOfOrderIgnored(t *testing.T) {
	tracker := progress.NewTracker(progress.TrackerConfig{})
	ctx := t.Context()

	if _, err := tracker.Apply(ctx, outcome("s1", "alg-01", 10, 10, base)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	_, err := tracker.Apply(ctx, outcome("s1", "alg-01", 10, 10, base.Add(-time.Hour)))
	if !errors.Is(err, progress.ErrOutOfOrder) {
		t.Fatalf("Apply() error = %v, want ErrOutOfOrder", err)
	}

	// Replay of the same event is rejected the same way.
	_, err = tracker.Apply(ctx, outcome("s1", "alg-01", 10, 10, base))
	if !errors.Is(err, progress.ErrOutOfOrder) {
		t.Fatalf("Apply() replay error = %v, want ErrOutOfOrder", err)
	}

	if n := tracker.OutOfOrderCount(); n != 2 {
		t.Errorf("OutOfOrderCount() = %d, want 2", n)
	}

	row, err := tracker.Get(ctx, "s1", "alg-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if row.SessionsCount != 1 {
		t.Errorf("SessionsCount = %d, want 1 (out-of-order must not mutate)", row.SessionsCount)
	}
}

func TestApply_Validation(t *testing.T) {
	tracker := progress.NewTracker(progress.TrackerConfig{})
	ctx := t.Context()

	tests := []struct {
		name    string
		outcome progress.SessionOutcome
	}{
		{"missing-student", outcome("", "alg-01", 1, 1, base)},
		{"missing-topic", outcome("s1", "", 1, 1, base)},
		{"zero-timestamp", outcome("s1", "alg-01", 1, 1, time.Time{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tracker.Apply(ctx, tt.outcome); err == nil {
				t.Error("Apply() should reject invalid outcome")
			}
		})
	}
}

func TestMastery_Map(t *testing.T) {
	tracker := progress.NewTracker(progress.TrackerConfig{})
	ctx := t.Context()

	tracker.Apply(ctx, outcome("s1", "alg-01", 10, 10, base))
	tracker.Apply(ctx, outcome("s1", "alg-02", 10, 10, base.Add(time.Minute)))

	mastery, err := tracker.Mastery(ctx, "s1")
	if err != nil {
		t.Fatalf("Mastery() error = %v", err)
	}
	if len(mastery) != 2 {
		t.Fatalf("Mastery() has %d topics, want 2", len(mastery))
	}
	if mastery["alg-01"] != progress.DefaultInitialMastery {
		t.Errorf("mastery[alg-01] = %v, want %v", mastery["alg-01"], progress.DefaultInitialMastery)
	}
}

func TestSubjectMastery(t *testing.T) {
	store := progress.NewMemoryStore()
	tracker := progress.NewTracker(progress.TrackerConfig{Store: store})
	ctx := t.Context()

	o1 := outcome("s1", "alg-01", 10, 10, base)
	o2 := outcome("s1", "num-01", 10, 10, base)
	o2.SubjectID = "numbers"
	tracker.Apply(ctx, o1)
	tracker.Apply(ctx, o2)
	tracker.Apply(ctx, outcome("s1", "alg-01", 10, 10, base.Add(time.Hour)))

	mean, ok, err := tracker.SubjectMastery(ctx, "s1", "algebra")
	if err != nil {
		t.Fatalf("SubjectMastery() error = %v", err)
	}
	if !ok {
		t.Fatal("SubjectMastery() ok = false, want true")
	}
	want := 0.15 // one topic at 0.1+0.05
	if diff := mean - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("SubjectMastery() = %v, want %v", mean, want)
	}
}

func TestSubjectMastery_NoRecords(t *testing.T) {
	tracker := progress.NewTracker(progress.TrackerConfig{})

	_, ok, err := tracker.SubjectMastery(t.Context(), "s1", "algebra")
	if err != nil {
		t.Fatalf("SubjectMastery() error = %v", err)
	}
	if ok {
		t.Error("SubjectMastery() ok = true, want false for a subject with no records")
	}
}
