// Package streak tracks daily learning activity and consecutive-day streaks.
//
// Activity is bucketed into calendar days in the engine's configured
// timezone. Each day a student practices gets one DailyActivity row whose
// StreakDay is fixed when the row is created: 1 after a gap, yesterday's
// StreakDay + 1 otherwise. A streak is therefore never recomputed from
// history, only read off the most recent rows.
package streak

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultMilestones are the streak lengths that emit a milestone, in days.
var DefaultMilestones = []int{3, 7, 14, 30, 100}

// DefaultRecentDays is how many activity days Recent returns by default.
const DefaultRecentDays = 7

// DailyActivity aggregates one student's practice on one calendar day.
// StreakDay is immutable after the row is created.
type DailyActivity struct {
	StudentID      string    `json:"student_id"`
	Day            time.Time `json:"day"`
	MinutesLearned int       `json:"minutes_learned"`
	SessionsCount  int       `json:"sessions_count"`
	PointsEarned   int       `json:"points_earned"`
	StreakDay      int       `json:"streak_day"`
}

// Result describes the streak state after recording one session.
type Result struct {
	StreakContinued  bool `json:"streak_continued"`
	CurrentStreak    int  `json:"current_streak"`
	LongestStreak    int  `json:"longest_streak"`
	MilestoneReached bool `json:"milestone_reached"`
	Milestone        int  `json:"milestone,omitempty"`
}

// CalculatorConfig configures a Calculator. Zero values get defaults.
type CalculatorConfig struct {
	Store      Store
	Location   *time.Location
	Milestones []int
}

// Calculator records activity and answers streak queries.
type Calculator struct {
	store      Store
	loc        *time.Location
	milestones []int
}

func NewCalculator(cfg CalculatorConfig) *Calculator {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	milestones := cfg.Milestones
	if len(milestones) == 0 {
		milestones = DefaultMilestones
	}
	milestones = slices.Clone(milestones)
	slices.Sort(milestones)

	return &Calculator{store: store, loc: loc, milestones: milestones}
}

// RecordActivity folds one session into the student's daily ledger.
// The first session of a day creates the day's row and may extend the
// streak and reach a milestone; later sessions of the same day only
// increment the counters.
func (c *Calculator) RecordActivity(ctx context.Context, studentID string, at time.Time, minutes, points int) (Result, error) {
	if studentID == "" {
		return Result{}, fmt.Errorf("student_id is required")
	}
	if at.IsZero() {
		return Result{}, fmt.Errorf("activity timestamp is required")
	}

	day := c.dayOf(at)

	prevStreak := 0
	switch prev, err := c.store.Get(ctx, studentID, day.AddDate(0, 0, -1)); {
	case err == nil:
		prevStreak = prev.StreakDay
	case !errors.Is(err, ErrNoActivity):
		return Result{}, fmt.Errorf("reading previous day: %w", err)
	}

	row, created, err := c.store.Upsert(ctx, studentID, day, minutes, points, prevStreak+1)
	if err != nil {
		return Result{}, fmt.Errorf("recording activity: %w", err)
	}

	longest, err := c.store.LongestStreak(ctx, studentID)
	if err != nil {
		return Result{}, fmt.Errorf("reading longest streak: %w", err)
	}

	res := Result{
		StreakContinued: created && prevStreak > 0,
		CurrentStreak:   row.StreakDay,
		LongestStreak:   longest,
	}
	if created && slices.Contains(c.milestones, row.StreakDay) {
		res.MilestoneReached = true
		res.Milestone = row.StreakDay
	}
	return res, nil
}

// CurrentStreak returns the streak as seen at the given moment. A streak
// survives one day without activity: practicing yesterday but not yet today
// still counts. Two silent days in a row break it to zero.
func (c *Calculator) CurrentStreak(ctx context.Context, studentID string, now time.Time) (int, error) {
	day := c.dayOf(now)

	row, err := c.store.Get(ctx, studentID, day)
	if err == nil {
		return row.StreakDay, nil
	}
	if !errors.Is(err, ErrNoActivity) {
		return 0, err
	}

	row, err = c.store.Get(ctx, studentID, day.AddDate(0, 0, -1))
	if err == nil {
		return row.StreakDay, nil
	}
	if !errors.Is(err, ErrNoActivity) {
		return 0, err
	}
	return 0, nil
}

// LongestStreak returns the longest streak the student has ever held.
func (c *Calculator) LongestStreak(ctx context.Context, studentID string) (int, error) {
	return c.store.LongestStreak(ctx, studentID)
}

// Milestones returns the configured milestone days in ascending order.
func (c *Calculator) Milestones() []int {
	return slices.Clone(c.milestones)
}

// Recent returns the student's latest activity days, newest first. A
// limit <= 0 selects DefaultRecentDays.
func (c *Calculator) Recent(ctx context.Context, studentID string, limit int) ([]DailyActivity, error) {
	if studentID == "" {
		return nil, fmt.Errorf("student_id is required")
	}
	if limit <= 0 {
		limit = DefaultRecentDays
	}
	return c.store.Recent(ctx, studentID, limit)
}

// dayOf normalizes a moment to its calendar day in the engine timezone.
func (c *Calculator) dayOf(at time.Time) time.Time {
	t := at.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
