package streak

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrNoActivity is returned by Get when the student has no activity row
// for the requested day.
var ErrNoActivity = errors.New("no activity recorded for day")

// Store persists the daily activity ledger. Upsert must be atomic: the
// first call for a (student, day) pair creates the row with the given
// streak day, every later call only adds to the counters.
type Store interface {
	Upsert(ctx context.Context, studentID string, day time.Time, minutes, points, streakDay int) (row DailyActivity, created bool, err error)
	Get(ctx context.Context, studentID string, day time.Time) (DailyActivity, error)
	LongestStreak(ctx context.Context, studentID string) (int, error)
	Recent(ctx context.Context, studentID string, limit int) ([]DailyActivity, error)
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	days map[string]map[string]*DailyActivity // studentID -> day key -> row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string]map[string]*DailyActivity)}
}

func dayKey(day time.Time) string {
	return day.Format(time.DateOnly)
}

func (s *MemoryStore) Upsert(ctx context.Context, studentID string, day time.Time, minutes, points, streakDay int) (DailyActivity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDay, ok := s.days[studentID]
	if !ok {
		byDay = make(map[string]*DailyActivity)
		s.days[studentID] = byDay
	}

	key := dayKey(day)
	if row, ok := byDay[key]; ok {
		row.MinutesLearned += minutes
		row.SessionsCount++
		row.PointsEarned += points
		return *row, false, nil
	}

	row := &DailyActivity{
		StudentID:      studentID,
		Day:            day,
		MinutesLearned: minutes,
		SessionsCount:  1,
		PointsEarned:   points,
		StreakDay:      streakDay,
	}
	byDay[key] = row
	return *row, true, nil
}

func (s *MemoryStore) Get(ctx context.Context, studentID string, day time.Time) (DailyActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.days[studentID][dayKey(day)]
	if !ok {
		return DailyActivity{}, ErrNoActivity
	}
	return *row, nil
}

func (s *MemoryStore) LongestStreak(ctx context.Context, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	longest := 0
	for _, row := range s.days[studentID] {
		if row.StreakDay > longest {
			longest = row.StreakDay
		}
	}
	return longest, nil
}

func (s *MemoryStore) Recent(ctx context.Context, studentID string, limit int) ([]DailyActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]DailyActivity, 0, len(s.days[studentID]))
	for _, row := range s.days[studentID] {
		rows = append(rows, *row)
	}
	// Newest first.
	slices.SortFunc(rows, func(a, b DailyActivity) int {
		return b.Day.Compare(a.Day)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
