package achievement

import (
	"fmt"

	"github.com/p-n-ai/pai-engine/internal/catalog"
)

// Stats is the aggregate snapshot a condition is evaluated against. It is
// assembled fresh for each check, after the triggering outcome has been
// applied to the student's records.
type Stats struct {
	SessionsCount    int
	CurrentStreak    int
	ProblemsSolved   int
	TotalTimeMinutes int
	PointsEarned     int
	TopicsMastered   int

	// SubjectMastery maps subject ID to the mean mastery across the
	// student's recorded topics in that subject, in [0,1]. Subjects with
	// no records are absent.
	SubjectMastery map[string]float64

	// Session is the outcome that triggered this check. Only the
	// perfect_session condition reads it.
	Session SessionStats
}

// SessionStats carries the triggering session's problem counts.
type SessionStats struct {
	ProblemsAttempted int
	ProblemsCorrect   int
}

// Condition decides whether one achievement's rule holds for a stats
// snapshot. Implementations are pure and safe for concurrent use.
type Condition interface {
	Satisfied(stats Stats) bool
}

type firstSession struct{}

func (firstSession) Satisfied(s Stats) bool { return s.SessionsCount >= 1 }

type sessionCount struct{ count int }

func (c sessionCount) Satisfied(s Stats) bool { return s.SessionsCount >= c.count }

type streakDays struct{ days int }

func (c streakDays) Satisfied(s Stats) bool { return s.CurrentStreak >= c.days }

type problemsSolved struct{ count int }

func (c problemsSolved) Satisfied(s Stats) bool { return s.ProblemsSolved >= c.count }

// perfectSession looks at the triggering session only. Judging it against
// history would let one early imperfect session block the achievement
// forever.
type perfectSession struct{}

func (perfectSession) Satisfied(s Stats) bool {
	return s.Session.ProblemsAttempted > 0 && s.Session.ProblemsCorrect == s.Session.ProblemsAttempted
}

type timeSpent struct{ minutes int }

func (c timeSpent) Satisfied(s Stats) bool { return s.TotalTimeMinutes >= c.minutes }

type topicsMastered struct{ count int }

func (c topicsMastered) Satisfied(s Stats) bool { return s.TopicsMastered >= c.count }

type pointsEarned struct{ points int }

func (c pointsEarned) Satisfied(s Stats) bool { return s.PointsEarned >= c.points }

// masteryLevel holds when any subject's mean mastery, scaled to 0-100,
// reaches the configured level.
type masteryLevel struct{ level float64 }

func (c masteryLevel) Satisfied(s Stats) bool {
	for _, m := range s.SubjectMastery {
		if m*100 >= c.level {
			return true
		}
	}
	return false
}

// Compile turns a catalog condition spec into an executable Condition.
// An unknown kind is a configuration error, caught at startup rather than
// silently never unlocking.
func Compile(spec catalog.ConditionSpec) (Condition, error) {
	switch spec.Kind {
	case catalog.KindFirstSession:
		return firstSession{}, nil
	case catalog.KindSessionCount:
		return sessionCount{count: spec.Count}, nil
	case catalog.KindStreak:
		return streakDays{days: spec.Days}, nil
	case catalog.KindProblemsSolved:
		return problemsSolved{count: spec.Count}, nil
	case catalog.KindPerfectSession:
		return perfectSession{}, nil
	case catalog.KindTimeSpent:
		return timeSpent{minutes: spec.Minutes}, nil
	case catalog.KindTopicsMastered:
		return topicsMastered{count: spec.Count}, nil
	case catalog.KindPointsEarned:
		return pointsEarned{points: spec.Points}, nil
	case catalog.KindMasteryLevel:
		return masteryLevel{level: spec.Level}, nil
	default:
		return nil, fmt.Errorf("unknown achievement condition kind %q", spec.Kind)
	}
}
