package progress

import (
	"context"
	"sort"
	"sync"
)

// Store persists student topic progress. Apply must be atomic per (student,
// topic): two concurrent outcomes for the same pair must not lose an update,
// and an outcome whose timestamp is not newer than the stored
// LastPracticedAt must return ErrOutOfOrder without mutating the row.
type Store interface {
	// Apply upserts the progress row for the outcome's (student, topic)
	// pair. A new row starts at initial mastery; an existing row gains
	// step, clamped to the ceiling. Counters and LastPracticedAt update in
	// the same statement.
	Apply(ctx context.Context, outcome SessionOutcome, initial, step float64) (StudentTopicProgress, error)
	Get(ctx context.Context, studentID, topicID string) (StudentTopicProgress, error)
	ListByStudent(ctx context.Context, studentID string) ([]StudentTopicProgress, error)
	ListBySubject(ctx context.Context, studentID, subjectID string) ([]StudentTopicProgress, error)
}

// MemoryStore is an in-memory Store implementation for tests and local runs.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]map[string]*StudentTopicProgress // studentID -> topicID -> row
}

// NewMemoryStore creates an empty in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string]map[string]*StudentTopicProgress),
	}
}

func (s *MemoryStore) Apply(ctx context.Context, outcome SessionOutcome, initial, step float64) (StudentTopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTopic, ok := s.rows[outcome.StudentID]
	if !ok {
		byTopic = make(map[string]*StudentTopicProgress)
		s.rows[outcome.StudentID] = byTopic
	}

	row, ok := byTopic[outcome.TopicID]
	if !ok {
		row = &StudentTopicProgress{
			StudentID:         outcome.StudentID,
			TopicID:           outcome.TopicID,
			SubjectID:         outcome.SubjectID,
			MasteryLevel:      clamp(initial),
			SessionsCount:     1,
			ProblemsAttempted: outcome.ProblemsAttempted,
			ProblemsCorrect:   outcome.ProblemsCorrect,
			TotalTimeMinutes:  outcome.DurationMinutes,
			PointsEarned:      outcome.PointsEarned,
			LastPracticedAt:   outcome.Timestamp,
		}
		byTopic[outcome.TopicID] = row
		return *row, nil
	}

	if !outcome.Timestamp.After(row.LastPracticedAt) {
		return StudentTopicProgress{}, ErrOutOfOrder
	}

	row.MasteryLevel = clamp(row.MasteryLevel + step)
	row.SessionsCount++
	row.ProblemsAttempted += outcome.ProblemsAttempted
	row.ProblemsCorrect += outcome.ProblemsCorrect
	row.TotalTimeMinutes += outcome.DurationMinutes
	row.PointsEarned += outcome.PointsEarned
	row.LastPracticedAt = outcome.Timestamp
	return *row, nil
}

func (s *MemoryStore) Get(ctx context.Context, studentID, topicID string) (StudentTopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[studentID][topicID]
	if !ok {
		return StudentTopicProgress{}, ErrNotFound
	}
	return *row, nil
}

func (s *MemoryStore) ListByStudent(ctx context.Context, studentID string) ([]StudentTopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]StudentTopicProgress, 0, len(s.rows[studentID]))
	for _, row := range s.rows[studentID] {
		rows = append(rows, *row)
	}
	sortRows(rows)
	return rows, nil
}

func (s *MemoryStore) ListBySubject(ctx context.Context, studentID, subjectID string) ([]StudentTopicProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []StudentTopicProgress
	for _, row := range s.rows[studentID] {
		if row.SubjectID == subjectID {
			rows = append(rows, *row)
		}
	}
	sortRows(rows)
	return rows, nil
}

func sortRows(rows []StudentTopicProgress) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].TopicID < rows[j].TopicID })
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MasteryCeiling {
		return MasteryCeiling
	}
	return v
}
