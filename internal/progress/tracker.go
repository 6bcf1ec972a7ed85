package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// TrackerConfig holds dependencies and policy for the mastery tracker.
// Zero policy values fall back to the package defaults.
type TrackerConfig struct {
	Store          Store
	InitialMastery float64
	Step           float64
}

// Tracker applies session outcomes to mastery state. The step per session is
// accuracy-weighted: a fully correct session earns the full step, a session
// with no correct answers still earns half of it, so mastery keeps modelling
// practice volume as well as accuracy. The result is always clamped to [0,1].
type Tracker struct {
	store          Store
	initialMastery float64
	step           float64
	outOfOrder     atomic.Int64
}

// NewTracker creates a mastery tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	initial := cfg.InitialMastery
	if initial == 0 {
		initial = DefaultInitialMastery
	}
	step := cfg.Step
	if step == 0 {
		step = DefaultStep
	}
	return &Tracker{
		store:          store,
		initialMastery: initial,
		step:           step,
	}
}

// Apply updates the progress record for the outcome's (student, topic) pair
// and returns the new state. Out-of-order outcomes are counted and logged,
// and returned as ErrOutOfOrder without mutating state.
func (t *Tracker) Apply(ctx context.Context, outcome SessionOutcome) (StudentTopicProgress, error) {
	if outcome.StudentID == "" || outcome.TopicID == "" {
		return StudentTopicProgress{}, fmt.Errorf("student_id and topic_id are required")
	}
	if outcome.Timestamp.IsZero() {
		return StudentTopicProgress{}, fmt.Errorf("outcome timestamp is required")
	}

	row, err := t.store.Apply(ctx, outcome, t.initialMastery, t.stepFor(outcome))
	if err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			t.outOfOrder.Add(1)
			slog.Warn("out-of-order session outcome ignored",
				"student_id", outcome.StudentID,
				"topic_id", outcome.TopicID,
				"timestamp", outcome.Timestamp,
			)
		}
		return StudentTopicProgress{}, err
	}

	return row, nil
}

// stepFor weights the base step by session accuracy, with a floor of half
// the base step for completed sessions.
func (t *Tracker) stepFor(outcome SessionOutcome) float64 {
	step := t.step * outcome.Accuracy()
	if floor := t.step / 2; step < floor {
		step = floor
	}
	return step
}

// Get returns the progress record for one (student, topic) pair.
func (t *Tracker) Get(ctx context.Context, studentID, topicID string) (StudentTopicProgress, error) {
	return t.store.Get(ctx, studentID, topicID)
}

// List returns all progress records for a student, ordered by topic ID.
func (t *Tracker) List(ctx context.Context, studentID string) ([]StudentTopicProgress, error) {
	return t.store.ListByStudent(ctx, studentID)
}

// Mastery returns the student's per-topic mastery levels as a map, the shape
// the prerequisite graph consumes. Topics without a record are simply absent.
func (t *Tracker) Mastery(ctx context.Context, studentID string) (map[string]float64, error) {
	rows, err := t.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	mastery := make(map[string]float64, len(rows))
	for _, row := range rows {
		mastery[row.TopicID] = row.MasteryLevel
	}
	return mastery, nil
}

// SubjectMastery returns the arithmetic mean mastery across the student's
// recorded topics in a subject. ok is false when the student has no records
// in the subject; the mean is undefined then, never a division by zero.
func (t *Tracker) SubjectMastery(ctx context.Context, studentID, subjectID string) (mean float64, ok bool, err error) {
	rows, err := t.store.ListBySubject(ctx, studentID, subjectID)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}

	var sum float64
	for _, row := range rows {
		sum += row.MasteryLevel
	}
	return sum / float64(len(rows)), true, nil
}

// OutOfOrderCount reports how many outcomes were rejected as out of order
// since the tracker was created.
func (t *Tracker) OutOfOrderCount() int64 {
	return t.outOfOrder.Load()
}
