// Package progress tracks per-student, per-topic mastery from session
// outcomes.
package progress

import (
	"errors"
	"time"
)

// Policy defaults. MasteryCeiling caps mastery growth; InitialMastery is the
// level a topic starts at on the first session.
const (
	DefaultInitialMastery = 0.1
	DefaultStep           = 0.05
	MasteryCeiling        = 1.0
)

// ErrNotFound is returned when no progress record exists.
var ErrNotFound = errors.New("progress record not found")

// ErrOutOfOrder is returned when an outcome's timestamp is not newer than
// the stored LastPracticedAt. Duplicate delivery of an already-applied
// outcome lands here too, which keeps replays from double-counting.
var ErrOutOfOrder = errors.New("session outcome out of order")

// SessionOutcome is the engine's single input event, produced when a
// learning session ends.
type SessionOutcome struct {
	StudentID         string    `json:"student_id"`
	SubjectID         string    `json:"subject_id"`
	TopicID           string    `json:"topic_id"`
	ProblemsAttempted int       `json:"problems_attempted"`
	ProblemsCorrect   int       `json:"problems_correct"`
	DurationMinutes   int       `json:"duration_minutes"`
	PointsEarned      int       `json:"points_earned"`
	Timestamp         time.Time `json:"timestamp"`
}

// Accuracy returns problemsCorrect/problemsAttempted, or 0 for sessions
// without attempted problems.
func (o SessionOutcome) Accuracy() float64 {
	if o.ProblemsAttempted <= 0 {
		return 0
	}
	return float64(o.ProblemsCorrect) / float64(o.ProblemsAttempted)
}

// Perfect reports whether every attempted problem was answered correctly.
func (o SessionOutcome) Perfect() bool {
	return o.ProblemsAttempted > 0 && o.ProblemsCorrect == o.ProblemsAttempted
}

// StudentTopicProgress is the persisted mastery state for one (student,
// topic) pair. MasteryLevel stays in [0,1]; all counters only grow.
type StudentTopicProgress struct {
	StudentID         string    `json:"student_id"`
	TopicID           string    `json:"topic_id"`
	SubjectID         string    `json:"subject_id"`
	MasteryLevel      float64   `json:"mastery_level"`
	SessionsCount     int       `json:"sessions_count"`
	ProblemsAttempted int       `json:"problems_attempted"`
	ProblemsCorrect   int       `json:"problems_correct"`
	TotalTimeMinutes  int       `json:"total_time_minutes"`
	PointsEarned      int       `json:"points_earned"`
	LastPracticedAt   time.Time `json:"last_practiced_at"`
}
