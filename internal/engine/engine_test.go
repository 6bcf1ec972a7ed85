package engine_test

import (
	"testing"
	"time"

	"github.com/p-n-ai/pai-engine/internal/achievement"
	"github.com/p-n-ai/pai-engine/internal/catalog"
	"github.com/p-n-ai/pai-engine/internal/engine"
	"github.com/p-n-ai/pai-engine/internal/graph"
	"github.com/p-n-ai/pai-engine/internal/progress"
	"github.com/p-n-ai/pai-engine/internal/recommend"
	"github.com/p-n-ai/pai-engine/internal/streak"
)

var now = time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)

func testTopics() []catalog.Topic {
	return []catalog.Topic{
		{ID: "alg-01", Name: "Linear Equations", SubjectID: "algebra", OrderIndex: 1},
		{ID: "alg-02", Name: "Quadratics", SubjectID: "algebra", OrderIndex: 2,
			Prerequisites: catalog.Prerequisites{Required: []string{"alg-01"}}},
		{ID: "num-01", Name: "Fractions", SubjectID: "numbers", OrderIndex: 1},
	}
}

func testAchievements() []catalog.AchievementDefinition {
	return []catalog.AchievementDefinition{
		{Code: "first-steps", Name: "First Steps", Points: 10, Rarity: catalog.RarityCommon, Active: true,
			Condition: catalog.ConditionSpec{Kind: catalog.KindFirstSession}},
		{Code: "flawless", Name: "Flawless", Points: 25, Rarity: catalog.RarityUncommon, Active: true,
			Condition: catalog.ConditionSpec{Kind: catalog.KindPerfectSession}},
		{Code: "three-day-streak", Name: "On a Roll", Points: 30, Rarity: catalog.RarityUncommon, Active: true,
			Condition: catalog.ConditionSpec{Kind: catalog.KindStreak, Days: 3}},
	}
}

type fixture struct {
	engine *engine.Engine
	events *engine.MemoryEventLogger
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	loader := catalog.NewStaticLoader(testTopics())
	g, err := graph.New(loader.AllTopics(), graph.DefaultMasteryThreshold)
	if err != nil {
		t.Fatalf("graph.New() error = %v", err)
	}
	tracker := progress.NewTracker(progress.TrackerConfig{})
	streaks := streak.NewCalculator(streak.CalculatorConfig{})
	evaluator, err := achievement.NewEvaluator(testAchievements(), nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	recommender, err := recommend.NewEngine(recommend.EngineConfig{
		Graph:    g,
		Progress: tracker,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("recommend.NewEngine() error = %v", err)
	}
	events := engine.NewMemoryEventLogger()

	e, err := engine.New(engine.Config{
		Catalog:      loader,
		Graph:        g,
		Tracker:      tracker,
		Streaks:      streaks,
		Achievements: evaluator,
		Recommender:  recommender,
		Events:       events,
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	return fixture{engine: e, events: events}
}

func outcome(topicID string, attempted, correct int, at time.Time) progress.SessionOutcome {
	return progress.SessionOutcome{
		StudentID:         "s1",
		TopicID:           topicID,
		ProblemsAttempted: attempted,
		ProblemsCorrect:   correct,
		DurationMinutes:   20,
		PointsEarned:      40,
		Timestamp:         at,
	}
}

func TestRecordOutcome_FirstSession(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.engine.RecordOutcome(t.Context(), outcome("alg-01", 10, 10, now))
	if err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	if res.Progress.MasteryLevel != progress.DefaultInitialMastery {
		t.Errorf("MasteryLevel = %v, want %v", res.Progress.MasteryLevel, progress.DefaultInitialMastery)
	}
	if res.Progress.SubjectID != "algebra" {
		t.Errorf("SubjectID = %q, want catalog-derived %q", res.Progress.SubjectID, "algebra")
	}
	if res.Streak.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", res.Streak.CurrentStreak)
	}

	// A perfect first session earns both first-steps and flawless.
	codes := make(map[string]bool)
	for _, u := range res.Unlocks {
		codes[u.Code] = true
	}
	if !codes["first-steps"] || !codes["flawless"] {
		t.Errorf("Unlocks = %+v, want first-steps and flawless", res.Unlocks)
	}

	var applied, unlockEvents int
	for _, ev := range fx.events.Events() {
		switch ev.EventType {
		case engine.EventOutcomeApplied:
			applied++
		case engine.EventAchievementUnlocked:
			unlockEvents++
		}
	}
	if applied != 1 {
		t.Errorf("outcome_applied events = %d, want 1", applied)
	}
	if unlockEvents != 2 {
		t.Errorf("achievement_unlocked events = %d, want 2", unlockEvents)
	}
}

func TestRecordOutcome_UnknownTopic(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.RecordOutcome(t.Context(), outcome("missing", 5, 5, now))
	if err == nil {
		t.Fatal("RecordOutcome() accepted unknown topic")
	}
}

func TestRecordOutcome_OutOfOrderSkipped(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	if _, err := fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 8, now)); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	res, err := fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 8, now.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("RecordOutcome() stale outcome error = %v", err)
	}
	if !res.Skipped {
		t.Error("stale outcome not marked Skipped")
	}

	var skipped int
	for _, ev := range fx.events.Events() {
		if ev.EventType == engine.EventOutcomeSkipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("outcome_skipped events = %d, want 1", skipped)
	}
}

func TestRecordOutcome_StreakMilestone(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		res, err := fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 5, now.AddDate(0, 0, i)))
		if err != nil {
			t.Fatalf("RecordOutcome() day %d error = %v", i, err)
		}
		if i < 2 && res.Streak.MilestoneReached {
			t.Errorf("day %d reached milestone early", i)
		}
		if i == 2 {
			if !res.Streak.MilestoneReached || res.Streak.Milestone != 3 {
				t.Errorf("day 3: MilestoneReached = %v Milestone = %d, want true 3", res.Streak.MilestoneReached, res.Streak.Milestone)
			}
			codes := make(map[string]bool)
			for _, u := range res.Unlocks {
				codes[u.Code] = true
			}
			if !codes["three-day-streak"] {
				t.Errorf("Unlocks = %+v, want three-day-streak", res.Unlocks)
			}
		}
	}

	var milestones int
	for _, ev := range fx.events.Events() {
		if ev.EventType == engine.EventStreakMilestone {
			milestones++
		}
	}
	if milestones != 1 {
		t.Errorf("streak_milestone events = %d, want 1", milestones)
	}
}

func TestStreakFor_RecentDays(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		if _, err := fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 8, now.AddDate(0, 0, i-2))); err != nil {
			t.Fatalf("RecordOutcome() day %d error = %v", i, err)
		}
	}

	summary, err := fx.engine.StreakFor(ctx, "s1")
	if err != nil {
		t.Fatalf("StreakFor() error = %v", err)
	}
	if summary.CurrentStreak != 3 {
		t.Errorf("CurrentStreak = %d, want 3", summary.CurrentStreak)
	}
	if len(summary.RecentDays) != 3 {
		t.Fatalf("RecentDays has %d entries, want 3", len(summary.RecentDays))
	}
	if summary.RecentDays[0].StreakDay != 3 {
		t.Errorf("newest recent day StreakDay = %d, want 3", summary.RecentDays[0].StreakDay)
	}
	if !summary.RecentDays[0].Day.After(summary.RecentDays[1].Day) {
		t.Error("RecentDays not ordered newest first")
	}
}

func TestStats_Cumulative(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 8, now.Add(-2*time.Hour)))
	fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 9, now.Add(-time.Hour)))
	fx.engine.RecordOutcome(ctx, outcome("num-01", 5, 5, now))

	stats, err := fx.engine.Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.SessionsCount != 3 {
		t.Errorf("SessionsCount = %d, want 3", stats.SessionsCount)
	}
	if stats.ProblemsSolved != 22 {
		t.Errorf("ProblemsSolved = %d, want 22", stats.ProblemsSolved)
	}
	if stats.TotalTimeMinutes != 60 {
		t.Errorf("TotalTimeMinutes = %d, want 60", stats.TotalTimeMinutes)
	}
	if stats.PointsEarned != 120 {
		t.Errorf("PointsEarned = %d, want 120", stats.PointsEarned)
	}
	if stats.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", stats.CurrentStreak)
	}
	if _, ok := stats.SubjectMastery["algebra"]; !ok {
		t.Error("SubjectMastery missing algebra")
	}
}

func TestProgress_UnlockState(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 10, now))
	fx.engine.RecordOutcome(ctx, outcome("alg-02", 10, 10, now.Add(time.Minute)))

	rows, err := fx.engine.Progress(ctx, "s1")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	byTopic := make(map[string]engine.TopicProgress)
	for _, row := range rows {
		byTopic[row.TopicID] = row
	}
	if !byTopic["alg-01"].Unlocked {
		t.Error("alg-01 should be unlocked (no prerequisites)")
	}
	if byTopic["alg-02"].Unlocked {
		t.Error("alg-02 should be locked while alg-01 mastery is 0.1")
	}
	if byTopic["alg-01"].TopicName != "Linear Equations" {
		t.Errorf("TopicName = %q, want catalog name", byTopic["alg-01"].TopicName)
	}
}

func TestRecommendations_EndToEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()

	fx.engine.RecordOutcome(ctx, outcome("alg-01", 10, 10, now))

	res, err := fx.engine.Recommendations(ctx, "s1", recommend.Options{Limit: 5})
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(res.Recommendations) == 0 {
		t.Fatal("no recommendations returned")
	}
	for _, rec := range res.Recommendations {
		if rec.TopicID == "alg-02" {
			t.Error("locked alg-02 recommended without IncludePrerequisites")
		}
		if rec.Reason == "" {
			t.Errorf("recommendation %s has no reason", rec.TopicID)
		}
	}
}
