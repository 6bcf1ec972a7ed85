// Package graph holds the topic prerequisite DAG. A Graph is built once from
// the catalog, validated (unknown references and cycles abort construction),
// and is then read-only, so a single instance is shared across all
// concurrent callers. Catalog changes mean a wholesale rebuild.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/p-n-ai/pai-engine/internal/catalog"
)

// DefaultMasteryThreshold is the mastery level a prerequisite must reach
// before its dependents unlock.
const DefaultMasteryThreshold = 0.6

// Graph is the prerequisite DAG over catalog topics.
type Graph struct {
	topics     map[string]catalog.Topic
	dependents map[string][]string
	topoOrder  []string
	topoIndex  map[string]int
	threshold  float64
}

// dfs colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS stack
	black        // fully explored
)

// New builds the graph from catalog topics. threshold <= 0 selects
// DefaultMasteryThreshold. Construction fails on prerequisite references to
// unknown topics and on cycles; both are configuration errors.
func New(topics []catalog.Topic, threshold float64) (*Graph, error) {
	if threshold <= 0 {
		threshold = DefaultMasteryThreshold
	}

	g := &Graph{
		topics:     make(map[string]catalog.Topic, len(topics)),
		dependents: make(map[string][]string),
		topoIndex:  make(map[string]int, len(topics)),
		threshold:  threshold,
	}

	for _, t := range topics {
		if _, dup := g.topics[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic %q", t.ID)
		}
		g.topics[t.ID] = t
	}

	for _, t := range topics {
		for _, p := range t.Prerequisites.Required {
			if _, ok := g.topics[p]; !ok {
				return nil, fmt.Errorf("topic %q requires unknown topic %q", t.ID, p)
			}
			g.dependents[p] = append(g.dependents[p], t.ID)
		}
	}
	for id := range g.dependents {
		sort.Strings(g.dependents[id])
	}

	if err := g.buildTopoOrder(); err != nil {
		return nil, err
	}

	return g, nil
}

// buildTopoOrder runs a three-color DFS over sorted topic IDs. A back-edge
// to a gray node is a cycle; the error names the topics on the cycle. The
// DFS postorder yields a deterministic topological order.
func (g *Graph) buildTopoOrder() error {
	ids := make([]string, 0, len(g.topics))
	for id := range g.topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	color := make(map[string]int, len(ids))
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		stack = append(stack, id)

		prereqs := append([]string(nil), g.topics[id].Prerequisites.Required...)
		sort.Strings(prereqs)
		for _, p := range prereqs {
			switch color[p] {
			case gray:
				return fmt.Errorf("prerequisite cycle: %s", cyclePath(stack, p))
			case white:
				if err := visit(p); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		g.topoOrder = append(g.topoOrder, id)
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}

	for i, id := range g.topoOrder {
		g.topoIndex[id] = i
	}
	return nil
}

// cyclePath formats the portion of the DFS stack from the first occurrence
// of start, closing the loop back to start.
func cyclePath(stack []string, start string) string {
	i := 0
	for ; i < len(stack); i++ {
		if stack[i] == start {
			break
		}
	}
	return strings.Join(append(append([]string{}, stack[i:]...), start), " -> ")
}

// Threshold returns the mastery threshold the graph was built with.
func (g *Graph) Threshold() float64 {
	return g.threshold
}

// Topic returns a topic by ID.
func (g *Graph) Topic(id string) (catalog.Topic, bool) {
	t, ok := g.topics[id]
	return t, ok
}

// IsUnlocked reports whether every required prerequisite of topicID is at or
// above the mastery threshold in the given per-topic mastery map. Topics
// without prerequisites are always unlocked; unknown topics never are.
func (g *Graph) IsUnlocked(mastery map[string]float64, topicID string) bool {
	t, ok := g.topics[topicID]
	if !ok {
		return false
	}
	for _, p := range t.Prerequisites.Required {
		if mastery[p] < g.threshold {
			return false
		}
	}
	return true
}

// ReadyTopics returns the unlocked topics of a subject in topological order.
// An empty subjectID selects all subjects.
func (g *Graph) ReadyTopics(mastery map[string]float64, subjectID string) []string {
	var ready []string
	for _, id := range g.topoOrder {
		t := g.topics[id]
		if subjectID != "" && t.SubjectID != subjectID {
			continue
		}
		if g.IsUnlocked(mastery, id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// UnlockPath returns the not-yet-mastered prerequisite topics that must reach
// the threshold before targetID unlocks, in topological order (the topics the
// student can start on first come first). The path is empty when the target
// is already unlocked or unknown.
func (g *Graph) UnlockPath(mastery map[string]float64, targetID string) []string {
	t, ok := g.topics[targetID]
	if !ok || g.IsUnlocked(mastery, targetID) {
		return nil
	}

	needed := make(map[string]bool)
	var collect func(topic catalog.Topic)
	collect = func(topic catalog.Topic) {
		for _, p := range topic.Prerequisites.Required {
			if mastery[p] >= g.threshold || needed[p] {
				continue
			}
			needed[p] = true
			collect(g.topics[p])
		}
	}
	collect(t)

	path := make([]string, 0, len(needed))
	for id := range needed {
		path = append(path, id)
	}
	sort.Slice(path, func(i, j int) bool {
		return g.topoIndex[path[i]] < g.topoIndex[path[j]]
	})
	return path
}

// Dependents returns the topics that directly require topicID, sorted by ID.
func (g *Graph) Dependents(topicID string) []string {
	return append([]string(nil), g.dependents[topicID]...)
}

// TopologicalOrder returns all topic IDs in a valid topological order,
// prerequisites first.
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.topoOrder...)
}
