// Package recommend ranks what a student should study next. It composes
// the prerequisite graph with the student's mastery state into a scored,
// explained topic list.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/p-n-ai/pai-engine/internal/graph"
	"github.com/p-n-ai/pai-engine/internal/platform/cache"
	"github.com/p-n-ai/pai-engine/internal/progress"
)

// Weights are the scoring policy. Every signal's contribution is
// weight * signal; the final priority is their sum.
type Weights struct {
	// Readiness is added whole to every unlocked candidate, so ready
	// topics outrank locked prerequisites.
	Readiness float64
	// Gap multiplies (1 - mastery) for attempted topics.
	Gap float64
	// Exploration replaces the mastery gap for unlocked topics the
	// student has never attempted, encouraging breadth.
	Exploration float64
	// RecencyPerDay grows the recency boost per day since last practice.
	RecencyPerDay float64
	// RecencyCap bounds the recency boost so it cannot dominate the gap.
	RecencyCap float64
	// Weakness is added when the topic's subject mean mastery is below
	// WeakSubjectBelow.
	Weakness float64
	// WeakSubjectBelow is the subject mean mastery under which a subject
	// counts as a weak area.
	WeakSubjectBelow float64
	// BlockedPerDependent grows the gateway boost per locked dependent,
	// so topics that hold back more of the graph rank higher.
	BlockedPerDependent float64
	// BlockedCap bounds the gateway boost.
	BlockedCap float64
}

// DefaultWeights returns the default scoring policy.
func DefaultWeights() Weights {
	return Weights{
		Readiness:        2.0,
		Gap:              3.0,
		Exploration:      0.9,
		RecencyPerDay:    0.05,
		RecencyCap:       1.0,
		Weakness:         1.5,
		WeakSubjectBelow: 0.4,

		BlockedPerDependent: 0.5,
		BlockedCap:          1.5,
	}
}

// Reason strings surfaced with each recommendation.
const (
	ReasonLearningPath = "next in your learning path"
	ReasonWeakArea     = "strengthen a weak area"
	ReasonPrerequisite = "prerequisite for advanced topic"
	ReasonExplore      = "explore something new"
)

// Options scopes one recommendation request.
type Options struct {
	SubjectID            string `json:"subject_id,omitempty"`
	Limit                int    `json:"limit,omitempty"`
	IncludePrerequisites bool   `json:"include_prerequisites,omitempty"`
}

// Recommendation is one ranked topic.
type Recommendation struct {
	TopicID    string   `json:"topic_id"`
	TopicName  string   `json:"topic_name"`
	SubjectID  string   `json:"subject_id"`
	Score      float64  `json:"score"`
	Reason     string   `json:"reason"`
	Unlocked   bool     `json:"unlocked"`
	UnlockPath []string `json:"unlock_path,omitempty"`
}

// Result is a full recommendation response.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	Total           int              `json:"total"`
}

// ProgressSource provides the student's progress rows.
type ProgressSource interface {
	List(ctx context.Context, studentID string) ([]progress.StudentTopicProgress, error)
}

// EngineConfig configures a recommendation Engine. Graph and Progress are
// required; Cache is optional (nil disables caching).
type EngineConfig struct {
	Graph    *graph.Graph
	Progress ProgressSource
	Cache    *cache.Cache
	Weights  Weights
	CacheTTL time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine produces recommendations. Safe for concurrent use.
type Engine struct {
	graph    *graph.Graph
	progress ProgressSource
	cache    *cache.Cache
	weights  Weights
	ttl      time.Duration
	now      func() time.Time
}

const defaultLimit = 5

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Graph == nil {
		return nil, fmt.Errorf("prerequisite graph is required")
	}
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress source is required")
	}
	weights := cfg.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		graph:    cfg.Graph,
		progress: cfg.Progress,
		cache:    cfg.Cache,
		weights:  weights,
		ttl:      ttl,
		now:      now,
	}, nil
}

// Recommend returns the student's ranked next topics. Results are cached
// per (student, options); a cache failure falls through to a fresh
// computation, never to an error.
func (e *Engine) Recommend(ctx context.Context, studentID string, opts Options) (Result, error) {
	if studentID == "" {
		return Result{}, fmt.Errorf("student_id is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	key := cacheKey(studentID, opts)
	if e.cache != nil {
		var cached Result
		err := e.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("recommendation cache read failed", "key", key, "error", err)
		}
	}

	res, err := e.compute(ctx, studentID, opts)
	if err != nil {
		return Result{}, err
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, res, e.ttl); err != nil {
			slog.Warn("recommendation cache write failed", "key", key, "error", err)
		}
	}
	return res, nil
}

// Invalidate drops all cached recommendations for a student. Called when
// a new outcome changes their mastery state.
func (e *Engine) Invalidate(ctx context.Context, studentID string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.DeleteByPrefix(ctx, "rec:"+studentID+":")
}

func cacheKey(studentID string, opts Options) string {
	return fmt.Sprintf("rec:%s:%s:%d:%t", studentID, opts.SubjectID, opts.Limit, opts.IncludePrerequisites)
}

// scored pairs a recommendation with the per-signal contributions used
// for ranking and reason selection.
type scored struct {
	rec        Recommendation
	orderIndex int
	gap        float64
	recency    float64
	weakness   float64
	blocked    float64
	attempted  bool
}

func (e *Engine) compute(ctx context.Context, studentID string, opts Options) (Result, error) {
	rows, err := e.progress.List(ctx, studentID)
	if err != nil {
		return Result{}, fmt.Errorf("loading progress: %w", err)
	}

	mastery := make(map[string]float64, len(rows))
	lastPracticed := make(map[string]time.Time, len(rows))
	subjectSum := make(map[string]float64)
	subjectN := make(map[string]int)
	for _, row := range rows {
		mastery[row.TopicID] = row.MasteryLevel
		lastPracticed[row.TopicID] = row.LastPracticedAt
		subjectSum[row.SubjectID] += row.MasteryLevel
		subjectN[row.SubjectID]++
	}

	threshold := e.graph.Threshold()
	now := e.now()

	var candidates []scored
	for _, id := range e.graph.TopologicalOrder() {
		topic, ok := e.graph.Topic(id)
		if !ok {
			continue
		}
		if opts.SubjectID != "" && topic.SubjectID != opts.SubjectID {
			continue
		}

		m, attempted := mastery[id]
		if attempted && m >= threshold {
			continue // already mastered
		}

		unlocked := e.graph.IsUnlocked(mastery, id)
		if !unlocked && !opts.IncludePrerequisites {
			continue
		}

		w := e.weights
		s := scored{orderIndex: topic.OrderIndex, attempted: attempted}
		s.rec = Recommendation{
			TopicID:   id,
			TopicName: topic.Name,
			SubjectID: topic.SubjectID,
			Unlocked:  unlocked,
		}

		switch {
		case attempted:
			s.gap = w.Gap * (1 - m)
		case unlocked:
			s.gap = w.Gap * w.Exploration
		default:
			s.gap = w.Gap
		}

		if attempted {
			days := now.Sub(lastPracticed[id]).Hours() / 24
			if days > 0 {
				s.recency = min(days*w.RecencyPerDay, w.RecencyCap)
			}
		}

		if n := subjectN[topic.SubjectID]; n > 0 && subjectSum[topic.SubjectID]/float64(n) < w.WeakSubjectBelow {
			s.weakness = w.Weakness
		}

		// A below-threshold topic keeps every dependent requiring it locked;
		// count the dependents still locked and boost the gateway.
		var lockedDeps int
		for _, dep := range e.graph.Dependents(id) {
			if !e.graph.IsUnlocked(mastery, dep) {
				lockedDeps++
			}
		}
		if lockedDeps > 0 {
			s.blocked = min(float64(lockedDeps)*w.BlockedPerDependent, w.BlockedCap)
		}

		s.rec.Score = s.gap + s.recency + s.weakness + s.blocked
		if unlocked {
			s.rec.Score += w.Readiness
		}
		s.rec.Reason = e.reasonFor(s)

		if !unlocked {
			s.rec.UnlockPath = e.graph.UnlockPath(mastery, id)
		}
		candidates = append(candidates, s)
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		switch {
		case a.rec.Score > b.rec.Score:
			return -1
		case a.rec.Score < b.rec.Score:
			return 1
		case a.orderIndex != b.orderIndex:
			return a.orderIndex - b.orderIndex
		default:
			return strings.Compare(a.rec.TopicID, b.rec.TopicID)
		}
	})

	total := len(candidates)
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	recs := make([]Recommendation, len(candidates))
	for i, s := range candidates {
		recs[i] = s.rec
	}
	return Result{Recommendations: recs, Total: total}, nil
}

// reasonFor names the dominant signal behind a candidate's score.
func (e *Engine) reasonFor(s scored) string {
	switch {
	case !s.rec.Unlocked:
		return ReasonPrerequisite
	case s.blocked > 0 && s.blocked >= s.gap && s.blocked >= s.weakness && s.blocked >= s.recency:
		return ReasonPrerequisite
	case !s.attempted:
		return ReasonExplore
	case s.weakness > 0 && s.weakness >= s.gap && s.weakness >= s.recency:
		return ReasonWeakArea
	default:
		return ReasonLearningPath
	}
}
