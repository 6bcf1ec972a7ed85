package graph_test

import (
	"strings"
	"testing"

	"github.com/p-n-ai/pai-engine/internal/catalog"
	"github.com/p-n-ai/pai-engine/internal/graph"
)

// testTopics builds a small two-subject catalog:
//
//	algebra: alg-01 -> alg-02 -> alg-03 (chain)
//	numbers: num-01 (root), num-02 requires num-01 and alg-01
func testTopics() []catalog.Topic {
	return []catalog.Topic{
		topic("alg-01", "algebra", 1),
		topic("alg-02", "algebra", 2, "alg-01"),
		topic("alg-03", "algebra", 3, "alg-02"),
		topic("num-01", "numbers", 1),
		topic("num-02", "numbers", 2, "num-01", "alg-01"),
	}
}

func topic(id, subject string, order int, prereqs ...string) catalog.Topic {
	return catalog.Topic{
		ID:            id,
		Name:          id,
		SubjectID:     subject,
		OrderIndex:    order,
		Prerequisites: catalog.Prerequisites{Required: prereqs},
	}
}

func mustBuild(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(testTopics(), 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g
}

func TestNew_DefaultThreshold(t *testing.T) {
	g := mustBuild(t)
	if g.Threshold() != graph.DefaultMasteryThreshold {
		t.Errorf("Threshold() = %v, want %v", g.Threshold(), graph.DefaultMasteryThreshold)
	}
}

func TestNew_UnknownPrerequisite(t *testing.T) {
	topics := []catalog.Topic{topic("a", "s", 1, "ghost")}

	_, err := graph.New(topics, 0)
	if err == nil {
		t.Fatal("New() should reject unknown prerequisite reference")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error = %v, want mention of the unknown topic", err)
	}
}

func TestNew_RejectsCycle(t *testing.T) {
	topics := []catalog.Topic{
		topic("a", "s", 1, "c"),
		topic("b", "s", 2, "a"),
		topic("c", "s", 3, "b"),
	}

	_, err := graph.New(topics, 0)
	if err == nil {
		t.Fatal("New() should reject a cyclic graph")
	}
	for _, id := range []string{"a", "b", "c"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("error = %v, want mention of topic %q", err, id)
		}
	}
}

func TestNew_RejectsSelfCycle(t *testing.T) {
	topics := []catalog.Topic{topic("a", "s", 1, "a")}

	if _, err := graph.New(topics, 0); err == nil {
		t.Fatal("New() should reject a self-referencing topic")
	}
}

func TestIsUnlocked(t *testing.T) {
	g := mustBuild(t)

	tests := []struct {
		name    string
		mastery map[string]float64
		topicID string
		want    bool
	}{
		{"root-always-unlocked", nil, "alg-01", true},
		{"unmet-prereq", map[string]float64{"alg-01": 0.4}, "alg-02", false},
		{"prereq-at-threshold", map[string]float64{"alg-01": 0.6}, "alg-02", true},
		{"one-of-two-prereqs", map[string]float64{"num-01": 0.9}, "num-02", false},
		{"both-prereqs", map[string]float64{"num-01": 0.9, "alg-01": 0.7}, "num-02", true},
		{"unknown-topic", nil, "ghost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.IsUnlocked(tt.mastery, tt.topicID); got != tt.want {
				t.Errorf("IsUnlocked(%s) = %v, want %v", tt.topicID, got, tt.want)
			}
		})
	}
}

func TestReadyTopics_PrereqsAllMet(t *testing.T) {
	g := mustBuild(t)
	mastery := map[string]float64{"alg-01": 0.7}

	ready := g.ReadyTopics(mastery, "")
	for _, id := range ready {
		if !g.IsUnlocked(mastery, id) {
			t.Errorf("ReadyTopics() includes locked topic %s", id)
		}
	}

	want := map[string]bool{"alg-01": true, "alg-02": true, "num-01": true}
	if len(ready) != len(want) {
		t.Fatalf("ReadyTopics() = %v, want %v", ready, want)
	}
	for _, id := range ready {
		if !want[id] {
			t.Errorf("ReadyTopics() includes unexpected topic %s", id)
		}
	}
}

func TestReadyTopics_SubjectFilter(t *testing.T) {
	g := mustBuild(t)

	ready := g.ReadyTopics(nil, "numbers")
	if len(ready) != 1 || ready[0] != "num-01" {
		t.Errorf("ReadyTopics(numbers) = %v, want [num-01]", ready)
	}
}

func TestUnlockPath(t *testing.T) {
	g := mustBuild(t)

	tests := []struct {
		name    string
		mastery map[string]float64
		target  string
		want    []string
	}{
		{"already-unlocked", map[string]float64{"alg-01": 0.8}, "alg-02", nil},
		{"one-missing", map[string]float64{"alg-01": 0.4}, "alg-02", []string{"alg-01"}},
		{"chain-topo-order", nil, "alg-03", []string{"alg-01", "alg-02"}},
		{"diamond-both-branches", map[string]float64{}, "num-02", []string{"alg-01", "num-01"}},
		{"unknown-target", nil, "ghost", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.UnlockPath(tt.mastery, tt.target)
			if len(got) != len(tt.want) {
				t.Fatalf("UnlockPath(%s) = %v, want %v", tt.target, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("UnlockPath(%s) = %v, want %v", tt.target, got, tt.want)
				}
			}
		})
	}
}

func TestUnlockPath_Deterministic(t *testing.T) {
	g := mustBuild(t)

	first := g.UnlockPath(nil, "num-02")
	for i := 0; i < 10; i++ {
		again := g.UnlockPath(nil, "num-02")
		if len(again) != len(first) {
			t.Fatalf("UnlockPath() not deterministic: %v vs %v", first, again)
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("UnlockPath() not deterministic: %v vs %v", first, again)
			}
		}
	}
}

func TestDependents(t *testing.T) {
	g := mustBuild(t)

	deps := g.Dependents("alg-01")
	want := []string{"alg-02", "num-02"}
	if len(deps) != len(want) || deps[0] != want[0] || deps[1] != want[1] {
		t.Errorf("Dependents(alg-01) = %v, want %v", deps, want)
	}

	if deps := g.Dependents("alg-03"); len(deps) != 0 {
		t.Errorf("Dependents(alg-03) = %v, want none", deps)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := mustBuild(t)

	order := g.TopologicalOrder()
	if len(order) != 5 {
		t.Fatalf("TopologicalOrder() has %d topics, want 5", len(order))
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, tp := range testTopics() {
		for _, p := range tp.Prerequisites.Required {
			if pos[p] > pos[tp.ID] {
				t.Errorf("topological order violated: %s after %s", p, tp.ID)
			}
		}
	}
}
