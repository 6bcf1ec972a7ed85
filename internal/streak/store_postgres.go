package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore persists daily activity in the daily_activity table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Upsert creates or bumps the day's row in a single statement. streak_day
// is only written on insert; a conflicting insert leaves it untouched.
// created is inferred from the returned sessions_count.
func (s *PostgresStore) Upsert(ctx context.Context, studentID string, day time.Time, minutes, points, streakDay int) (DailyActivity, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		INSERT INTO daily_activity (student_id, day, minutes_learned, sessions_count, points_earned, streak_day)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (student_id, day) DO UPDATE SET
			minutes_learned = daily_activity.minutes_learned + EXCLUDED.minutes_learned,
			sessions_count  = daily_activity.sessions_count + 1,
			points_earned   = daily_activity.points_earned + EXCLUDED.points_earned
		RETURNING student_id, day, minutes_learned, sessions_count, points_earned, streak_day`

	var row DailyActivity
	err := s.pool.QueryRow(ctx, query, studentID, day, minutes, points, streakDay).Scan(
		&row.StudentID, &row.Day, &row.MinutesLearned, &row.SessionsCount, &row.PointsEarned, &row.StreakDay,
	)
	if err != nil {
		return DailyActivity{}, false, fmt.Errorf("upserting daily activity: %w", err)
	}
	return row, row.SessionsCount == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, studentID string, day time.Time) (DailyActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		SELECT student_id, day, minutes_learned, sessions_count, points_earned, streak_day
		FROM daily_activity
		WHERE student_id = $1 AND day = $2`

	var row DailyActivity
	err := s.pool.QueryRow(ctx, query, studentID, day).Scan(
		&row.StudentID, &row.Day, &row.MinutesLearned, &row.SessionsCount, &row.PointsEarned, &row.StreakDay,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DailyActivity{}, ErrNoActivity
	}
	if err != nil {
		return DailyActivity{}, fmt.Errorf("loading daily activity: %w", err)
	}
	return row, nil
}

func (s *PostgresStore) LongestStreak(ctx context.Context, studentID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var longest int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(streak_day), 0) FROM daily_activity WHERE student_id = $1`,
		studentID,
	).Scan(&longest)
	if err != nil {
		return 0, fmt.Errorf("loading longest streak: %w", err)
	}
	return longest, nil
}

func (s *PostgresStore) Recent(ctx context.Context, studentID string, limit int) ([]DailyActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `
		SELECT student_id, day, minutes_learned, sessions_count, points_earned, streak_day
		FROM daily_activity
		WHERE student_id = $1
		ORDER BY day DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing daily activity: %w", err)
	}
	defer rows.Close()

	var out []DailyActivity
	for rows.Next() {
		var row DailyActivity
		if err := rows.Scan(&row.StudentID, &row.Day, &row.MinutesLearned, &row.SessionsCount, &row.PointsEarned, &row.StreakDay); err != nil {
			return nil, fmt.Errorf("scanning daily activity: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily activity: %w", err)
	}
	return out, nil
}
