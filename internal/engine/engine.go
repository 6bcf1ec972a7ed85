// Package engine orchestrates the session-outcome pipeline: mastery
// update, daily ledger, achievement evaluation, cache invalidation and
// event logging.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-engine/internal/achievement"
	"github.com/p-n-ai/pai-engine/internal/catalog"
	"github.com/p-n-ai/pai-engine/internal/graph"
	"github.com/p-n-ai/pai-engine/internal/progress"
	"github.com/p-n-ai/pai-engine/internal/recommend"
	"github.com/p-n-ai/pai-engine/internal/streak"
)

const dbTimeout = 5 * time.Second

// ErrUnknownTopic rejects outcomes referencing topics absent from the
// catalog. Only the offending event is refused.
var ErrUnknownTopic = errors.New("unknown topic")

// Config holds dependencies for the engine. Catalog, Graph, Tracker,
// Streaks and Achievements are required; Recommender and Events are
// optional.
type Config struct {
	Catalog      *catalog.Loader
	Graph        *graph.Graph
	Tracker      *progress.Tracker
	Streaks      *streak.Calculator
	Achievements *achievement.Evaluator
	Recommender  *recommend.Engine
	Events       EventLogger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is the core outcome processor.
type Engine struct {
	catalog      *catalog.Loader
	graph        *graph.Graph
	tracker      *progress.Tracker
	streaks      *streak.Calculator
	achievements *achievement.Evaluator
	recommender  *recommend.Engine
	events       EventLogger
	now          func() time.Time
}

func New(cfg Config) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Graph == nil {
		return nil, fmt.Errorf("prerequisite graph is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("mastery tracker is required")
	}
	if cfg.Streaks == nil {
		return nil, fmt.Errorf("streak calculator is required")
	}
	if cfg.Achievements == nil {
		return nil, fmt.Errorf("achievement evaluator is required")
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		catalog:      cfg.Catalog,
		graph:        cfg.Graph,
		tracker:      cfg.Tracker,
		streaks:      cfg.Streaks,
		achievements: cfg.Achievements,
		recommender:  cfg.Recommender,
		events:       events,
		now:          now,
	}, nil
}

// OutcomeResult is everything one applied outcome changed.
type OutcomeResult struct {
	Progress progress.StudentTopicProgress `json:"progress"`
	Streak   streak.Result                 `json:"streak"`
	Unlocks  []achievement.Unlock          `json:"unlocks,omitempty"`

	// Skipped marks an out-of-order outcome that was counted but ignored.
	Skipped bool `json:"skipped,omitempty"`
	// Partial marks a result whose achievement check failed; the mastery
	// and streak updates still stand.
	Partial bool `json:"partial,omitempty"`
}

// RecordOutcome runs the full pipeline for one ended session. The mastery
// and streak writes are the transactionally meaningful part; a failed
// achievement check, cache invalidation or event append degrades the
// result instead of failing it.
func (e *Engine) RecordOutcome(ctx context.Context, outcome progress.SessionOutcome) (OutcomeResult, error) {
	topic, ok := e.catalog.GetTopic(outcome.TopicID)
	if !ok {
		return OutcomeResult{}, fmt.Errorf("%w: %s", ErrUnknownTopic, outcome.TopicID)
	}
	// The catalog, not the caller, owns the topic-subject mapping.
	outcome.SubjectID = topic.SubjectID

	slog.Info("processing session outcome",
		"student_id", outcome.StudentID,
		"topic_id", outcome.TopicID,
		"problems", outcome.ProblemsAttempted,
	)

	row, err := e.tracker.Apply(ctx, outcome)
	if err != nil {
		if errors.Is(err, progress.ErrOutOfOrder) {
			e.logEvent(outcome.StudentID, EventOutcomeSkipped, map[string]any{
				"topic_id":  outcome.TopicID,
				"timestamp": outcome.Timestamp,
			})
			return OutcomeResult{Skipped: true}, nil
		}
		return OutcomeResult{}, fmt.Errorf("applying outcome: %w", err)
	}

	streakRes, err := e.streaks.RecordActivity(ctx, outcome.StudentID, outcome.Timestamp, outcome.DurationMinutes, outcome.PointsEarned)
	if err != nil {
		return OutcomeResult{}, fmt.Errorf("recording activity: %w", err)
	}

	result := OutcomeResult{Progress: row, Streak: streakRes}

	rows, err := e.tracker.List(ctx, outcome.StudentID)
	if err != nil {
		slog.Error("stats assembly failed, skipping achievement check",
			"student_id", outcome.StudentID, "error", err)
		result.Partial = true
	} else {
		stats := buildStats(rows, streakRes.CurrentStreak)
		unlocks, err := e.achievements.Check(ctx, outcome.StudentID, achievementStats(stats, outcome))
		if err != nil {
			slog.Error("achievement check failed",
				"student_id", outcome.StudentID, "error", err)
			result.Partial = true
		}
		result.Unlocks = unlocks
	}

	if e.recommender != nil {
		if err := e.recommender.Invalidate(ctx, outcome.StudentID); err != nil {
			slog.Warn("recommendation cache invalidation failed",
				"student_id", outcome.StudentID, "error", err)
		}
	}

	e.logEvent(outcome.StudentID, EventOutcomeApplied, map[string]any{
		"topic_id":      outcome.TopicID,
		"subject_id":    outcome.SubjectID,
		"mastery_level": row.MasteryLevel,
	})
	if streakRes.MilestoneReached {
		e.logEvent(outcome.StudentID, EventStreakMilestone, map[string]any{
			"milestone": streakRes.Milestone,
		})
	}
	for _, u := range result.Unlocks {
		e.logEvent(outcome.StudentID, EventAchievementUnlocked, map[string]any{
			"code":   u.Code,
			"points": u.Points,
			"rarity": u.Rarity,
		})
	}

	return result, nil
}

// Progress returns the student's per-topic rows together with their
// unlock state.
func (e *Engine) Progress(ctx context.Context, studentID string) ([]TopicProgress, error) {
	rows, err := e.tracker.List(ctx, studentID)
	if err != nil {
		return nil, err
	}
	mastery := make(map[string]float64, len(rows))
	for _, row := range rows {
		mastery[row.TopicID] = row.MasteryLevel
	}

	out := make([]TopicProgress, len(rows))
	for i, row := range rows {
		out[i] = TopicProgress{
			StudentTopicProgress: row,
			Mastered:             row.MasteryLevel >= MasteredAt,
		}
		if topic, ok := e.catalog.GetTopic(row.TopicID); ok {
			out[i].TopicName = topic.Name
		}
		out[i].Unlocked = e.graph.IsUnlocked(mastery, row.TopicID)
	}
	return out, nil
}

// TopicProgress is a progress row enriched with catalog and graph state.
type TopicProgress struct {
	progress.StudentTopicProgress
	TopicName string `json:"topic_name,omitempty"`
	Mastered  bool   `json:"mastered"`
	Unlocked  bool   `json:"unlocked"`
}

// StreakSummary is the streak endpoint's payload.
type StreakSummary struct {
	CurrentStreak int                    `json:"current_streak"`
	LongestStreak int                    `json:"longest_streak"`
	Milestones    []int                  `json:"milestones"`
	RecentDays    []streak.DailyActivity `json:"recent_days,omitempty"`
}

// StreakFor summarizes the student's streak state as of now.
func (e *Engine) StreakFor(ctx context.Context, studentID string) (StreakSummary, error) {
	current, err := e.streaks.CurrentStreak(ctx, studentID, e.now())
	if err != nil {
		return StreakSummary{}, err
	}
	longest, err := e.streaks.LongestStreak(ctx, studentID)
	if err != nil {
		return StreakSummary{}, err
	}
	recent, err := e.streaks.Recent(ctx, studentID, streak.DefaultRecentDays)
	if err != nil {
		return StreakSummary{}, err
	}
	return StreakSummary{
		CurrentStreak: current,
		LongestStreak: longest,
		Milestones:    e.streaks.Milestones(),
		RecentDays:    recent,
	}, nil
}

// Achievements returns the student's earned achievements.
func (e *Engine) Achievements(ctx context.Context, studentID string) ([]achievement.Unlock, error) {
	return e.achievements.Earned(ctx, studentID)
}

// Recommendations returns ranked next topics for the student.
func (e *Engine) Recommendations(ctx context.Context, studentID string, opts recommend.Options) (recommend.Result, error) {
	if e.recommender == nil {
		return recommend.Result{}, fmt.Errorf("recommendation engine not configured")
	}
	return e.recommender.Recommend(ctx, studentID, opts)
}

// logEvent appends to the event log, best effort.
func (e *Engine) logEvent(studentID, eventType string, data map[string]any) {
	err := e.events.LogEvent(Event{
		StudentID: studentID,
		EventType: eventType,
		Data:      data,
		CreatedAt: e.now(),
	})
	if err != nil {
		slog.Warn("event log append failed", "event_type", eventType, "error", err)
	}
}
