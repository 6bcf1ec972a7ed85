package engine

import (
	"context"
	"fmt"

	"github.com/p-n-ai/pai-engine/internal/achievement"
	"github.com/p-n-ai/pai-engine/internal/progress"
)

// MasteredAt is the mastery level at which a topic counts as mastered for
// the topics_mastered achievement condition and the progress summary.
const MasteredAt = 0.8

// StudentStats is the aggregate view of a student's history, served by the
// progress endpoint and fed to the achievement evaluator.
type StudentStats struct {
	SessionsCount    int                `json:"sessions_count"`
	ProblemsSolved   int                `json:"problems_solved"`
	TotalTimeMinutes int                `json:"total_time_minutes"`
	PointsEarned     int                `json:"points_earned"`
	CurrentStreak    int                `json:"current_streak"`
	TopicsMastered   int                `json:"topics_mastered"`
	SubjectMastery   map[string]float64 `json:"subject_mastery"`
}

// buildStats folds the student's progress rows into cumulative totals.
// The rows already include the triggering outcome by the time this runs.
func buildStats(rows []progress.StudentTopicProgress, currentStreak int) StudentStats {
	stats := StudentStats{
		CurrentStreak:  currentStreak,
		SubjectMastery: make(map[string]float64),
	}

	subjectSum := make(map[string]float64)
	subjectN := make(map[string]int)
	for _, row := range rows {
		stats.SessionsCount += row.SessionsCount
		stats.ProblemsSolved += row.ProblemsCorrect
		stats.TotalTimeMinutes += row.TotalTimeMinutes
		stats.PointsEarned += row.PointsEarned
		if row.MasteryLevel >= MasteredAt {
			stats.TopicsMastered++
		}
		subjectSum[row.SubjectID] += row.MasteryLevel
		subjectN[row.SubjectID]++
	}
	for subject, sum := range subjectSum {
		stats.SubjectMastery[subject] = sum / float64(subjectN[subject])
	}
	return stats
}

// Stats returns the student's aggregate statistics as of now.
func (e *Engine) Stats(ctx context.Context, studentID string) (StudentStats, error) {
	rows, err := e.tracker.List(ctx, studentID)
	if err != nil {
		return StudentStats{}, fmt.Errorf("loading progress: %w", err)
	}
	current, err := e.streaks.CurrentStreak(ctx, studentID, e.now())
	if err != nil {
		return StudentStats{}, fmt.Errorf("loading streak: %w", err)
	}
	return buildStats(rows, current), nil
}

// achievementStats converts aggregate stats plus the triggering outcome
// into the shape the evaluator consumes.
func achievementStats(stats StudentStats, outcome progress.SessionOutcome) achievement.Stats {
	return achievement.Stats{
		SessionsCount:    stats.SessionsCount,
		CurrentStreak:    stats.CurrentStreak,
		ProblemsSolved:   stats.ProblemsSolved,
		TotalTimeMinutes: stats.TotalTimeMinutes,
		PointsEarned:     stats.PointsEarned,
		TopicsMastered:   stats.TopicsMastered,
		SubjectMastery:   stats.SubjectMastery,
		Session: achievement.SessionStats{
			ProblemsAttempted: outcome.ProblemsAttempted,
			ProblemsCorrect:   outcome.ProblemsCorrect,
		},
	}
}
