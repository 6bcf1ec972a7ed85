package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types appended to the engine event log.
const (
	EventOutcomeApplied      = "outcome_applied"
	EventOutcomeSkipped      = "outcome_skipped"
	EventStreakMilestone     = "streak_milestone"
	EventAchievementUnlocked = "achievement_unlocked"
)

// Event represents an analytics event persisted to the engine_events table.
type Event struct {
	StudentID string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the engine_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO engine_events (student_id, event_type, data, created_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		event.StudentID,
		event.EventType,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
