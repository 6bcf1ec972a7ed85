// Package achievement evaluates declarative achievement rules against
// aggregate student statistics and records unlocks, each at most once per
// (student, achievement).
package achievement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-engine/internal/catalog"
)

// Unlock is one earned achievement.
type Unlock struct {
	StudentID  string    `json:"student_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Points     int       `json:"points"`
	Rarity     string    `json:"rarity"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

type compiledDef struct {
	def  catalog.AchievementDefinition
	cond Condition
}

// Evaluator checks a compiled achievement catalog against student stats.
// It is immutable after construction and safe for concurrent use.
type Evaluator struct {
	defs  []compiledDef
	store UnlockStore
	now   func() time.Time
}

// NewEvaluator compiles the active definitions. Inactive definitions are
// skipped; an unknown condition kind fails construction.
func NewEvaluator(defs []catalog.AchievementDefinition, store UnlockStore) (*Evaluator, error) {
	if store == nil {
		store = NewMemoryStore()
	}

	compiled := make([]compiledDef, 0, len(defs))
	for _, def := range defs {
		if !def.Active {
			continue
		}
		cond, err := Compile(def.Condition)
		if err != nil {
			return nil, fmt.Errorf("achievement %q: %w", def.Code, err)
		}
		compiled = append(compiled, compiledDef{def: def, cond: cond})
	}

	return &Evaluator{defs: compiled, store: store, now: time.Now}, nil
}

// Check evaluates every active achievement the student has not yet earned
// and returns the newly recorded unlocks. The store insert is the sole
// unlock decision: a concurrent check that loses the insert race reports
// nothing, so an unlock is never announced twice.
func (e *Evaluator) Check(ctx context.Context, studentID string, stats Stats) ([]Unlock, error) {
	if studentID == "" {
		return nil, fmt.Errorf("student_id is required")
	}

	earned, err := e.store.List(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("listing unlocks: %w", err)
	}
	have := make(map[string]bool, len(earned))
	for _, u := range earned {
		have[u.Code] = true
	}

	var unlocked []Unlock
	for _, cd := range e.defs {
		if have[cd.def.Code] || !cd.cond.Satisfied(stats) {
			continue
		}

		at := e.now().UTC()
		inserted, err := e.store.Insert(ctx, studentID, cd.def.Code, at)
		if err != nil {
			return unlocked, fmt.Errorf("recording unlock %q: %w", cd.def.Code, err)
		}
		if !inserted {
			// Lost a race with a concurrent check; already unlocked.
			continue
		}

		slog.Info("achievement unlocked",
			"student_id", studentID,
			"code", cd.def.Code,
			"points", cd.def.Points,
		)
		unlocked = append(unlocked, Unlock{
			StudentID:  studentID,
			Code:       cd.def.Code,
			Name:       cd.def.Name,
			Points:     cd.def.Points,
			Rarity:     cd.def.Rarity,
			UnlockedAt: at,
		})
	}
	return unlocked, nil
}

// Earned returns the student's unlocks enriched with catalog metadata,
// newest first as reported by the store.
func (e *Evaluator) Earned(ctx context.Context, studentID string) ([]Unlock, error) {
	unlocks, err := e.store.List(ctx, studentID)
	if err != nil {
		return nil, err
	}
	for i := range unlocks {
		for _, cd := range e.defs {
			if cd.def.Code == unlocks[i].Code {
				unlocks[i].Name = cd.def.Name
				unlocks[i].Points = cd.def.Points
				unlocks[i].Rarity = cd.def.Rarity
				break
			}
		}
	}
	return unlocks, nil
}

// Definitions returns the compiled active definitions.
func (e *Evaluator) Definitions() []catalog.AchievementDefinition {
	out := make([]catalog.AchievementDefinition, len(e.defs))
	for i, cd := range e.defs {
		out[i] = cd.def
	}
	return out
}
