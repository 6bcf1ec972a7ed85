package achievement

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// UnlockStore persists achievement unlocks. Insert is atomic
// insert-if-absent: it reports false, without error, when the (student,
// code) pair already exists.
type UnlockStore interface {
	Insert(ctx context.Context, studentID, code string, at time.Time) (bool, error)
	List(ctx context.Context, studentID string) ([]Unlock, error)
}

// MemoryStore is an in-memory UnlockStore for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	unlocks map[string]map[string]time.Time // studentID -> code -> unlockedAt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{unlocks: make(map[string]map[string]time.Time)}
}

func (s *MemoryStore) Insert(ctx context.Context, studentID, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCode, ok := s.unlocks[studentID]
	if !ok {
		byCode = make(map[string]time.Time)
		s.unlocks[studentID] = byCode
	}
	if _, exists := byCode[code]; exists {
		return false, nil
	}
	byCode[code] = at
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, studentID string) ([]Unlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Unlock, 0, len(s.unlocks[studentID]))
	for code, at := range s.unlocks[studentID] {
		out = append(out, Unlock{StudentID: studentID, Code: code, UnlockedAt: at})
	}
	// Newest first, code as tie-break for stable output.
	slices.SortFunc(out, func(a, b Unlock) int {
		if c := b.UnlockedAt.Compare(a.UnlockedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out, nil
}
