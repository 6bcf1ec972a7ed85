package catalog

// Topic represents a curriculum topic loaded from YAML.
type Topic struct {
	ID            string        `yaml:"id" json:"id"`
	Name          string        `yaml:"name" json:"name"`
	SubjectID     string        `yaml:"subject_id" json:"subject_id"`
	GradeLevel    int           `yaml:"grade_level" json:"grade_level"`
	Difficulty    string        `yaml:"difficulty" json:"difficulty"`
	OrderIndex    int           `yaml:"order_index" json:"order_index"`
	Prerequisites Prerequisites `yaml:"prerequisites" json:"prerequisites"`
}

// Prerequisites holds required and recommended prerequisite topic IDs.
// Only required prerequisites gate unlocking.
type Prerequisites struct {
	Required    []string `yaml:"required" json:"required"`
	Recommended []string `yaml:"recommended" json:"recommended"`
}

// Subject represents a subject grouping topics (e.g., Algebra).
type Subject struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	TopicIDs []string `yaml:"topic_ids" json:"topic_ids"`
}

// Rarity tiers for achievements.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityLegendary = "legendary"
)

// AchievementDefinition is a single achievement loaded from the catalog.
type AchievementDefinition struct {
	Code        string        `json:"code"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Condition   ConditionSpec `json:"condition"`
	Points      int           `json:"points"`
	Rarity      string        `json:"rarity"`
	Active      bool          `json:"active"`
}

// ConditionSpec is the raw, declarative form of an achievement condition.
// The achievement package compiles it into an executable rule; an unknown
// Kind is a configuration error at startup.
type ConditionSpec struct {
	Kind    string  `json:"kind"`
	Count   int     `json:"count,omitempty"`
	Days    int     `json:"days,omitempty"`
	Minutes int     `json:"minutes,omitempty"`
	Points  int     `json:"points,omitempty"`
	Level   float64 `json:"level,omitempty"`
}

// Condition kinds recognized by the engine.
const (
	KindFirstSession   = "first_session"
	KindSessionCount   = "session_count"
	KindStreak         = "streak"
	KindProblemsSolved = "problems_solved"
	KindPerfectSession = "perfect_session"
	KindTimeSpent      = "time_spent"
	KindTopicsMastered = "topics_mastered"
	KindPointsEarned   = "points_earned"
	KindMasteryLevel   = "mastery_level"
)
