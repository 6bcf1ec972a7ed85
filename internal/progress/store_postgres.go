package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Apply runs a single conditional upsert so concurrent outcomes for the same
// (student, topic) pair serialize on the row without a read-modify-write
// round trip. The DO UPDATE branch only fires for timestamps newer than the
// stored one; an excluded update means the outcome is out of order.
func (s *PostgresStore) Apply(ctx context.Context, outcome SessionOutcome, initial, step float64) (StudentTopicProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var row StudentTopicProgress
	err := s.pool.QueryRow(ctx,
		`INSERT INTO student_topic_progress
		     (student_id, topic_id, subject_id, mastery_level, sessions_count,
		      problems_attempted, problems_correct, total_time_minutes, points_earned, last_practiced_at)
		 VALUES ($1, $2, $3, LEAST($4::float8, 1.0), 1, $5, $6, $7, $8, $9)
		 ON CONFLICT (student_id, topic_id) DO UPDATE SET
		     mastery_level      = LEAST(student_topic_progress.mastery_level + $10::float8, 1.0),
		     sessions_count     = student_topic_progress.sessions_count + 1,
		     problems_attempted = student_topic_progress.problems_attempted + $5,
		     problems_correct   = student_topic_progress.problems_correct + $6,
		     total_time_minutes = student_topic_progress.total_time_minutes + $7,
		     points_earned      = student_topic_progress.points_earned + $8,
		     last_practiced_at  = EXCLUDED.last_practiced_at
		 WHERE student_topic_progress.last_practiced_at < EXCLUDED.last_practiced_at
		 RETURNING student_id, topic_id, subject_id, mastery_level, sessions_count,
		           problems_attempted, problems_correct, total_time_minutes, points_earned, last_practiced_at`,
		outcome.StudentID,
		outcome.TopicID,
		outcome.SubjectID,
		initial,
		outcome.ProblemsAttempted,
		outcome.ProblemsCorrect,
		outcome.DurationMinutes,
		outcome.PointsEarned,
		outcome.Timestamp,
		step,
	).Scan(
		&row.StudentID,
		&row.TopicID,
		&row.SubjectID,
		&row.MasteryLevel,
		&row.SessionsCount,
		&row.ProblemsAttempted,
		&row.ProblemsCorrect,
		&row.TotalTimeMinutes,
		&row.PointsEarned,
		&row.LastPracticedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The conflict update was excluded by the timestamp guard.
			return StudentTopicProgress{}, ErrOutOfOrder
		}
		return StudentTopicProgress{}, fmt.Errorf("apply outcome: %w", err)
	}

	return row, nil
}

func (s *PostgresStore) Get(ctx context.Context, studentID, topicID string) (StudentTopicProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var row StudentTopicProgress
	err := s.pool.QueryRow(ctx,
		`SELECT student_id, topic_id, subject_id, mastery_level, sessions_count,
		        problems_attempted, problems_correct, total_time_minutes, points_earned, last_practiced_at
		 FROM student_topic_progress
		 WHERE student_id = $1 AND topic_id = $2`,
		studentID, topicID,
	).Scan(
		&row.StudentID,
		&row.TopicID,
		&row.SubjectID,
		&row.MasteryLevel,
		&row.SessionsCount,
		&row.ProblemsAttempted,
		&row.ProblemsCorrect,
		&row.TotalTimeMinutes,
		&row.PointsEarned,
		&row.LastPracticedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StudentTopicProgress{}, ErrNotFound
		}
		return StudentTopicProgress{}, fmt.Errorf("get progress: %w", err)
	}

	return row, nil
}

func (s *PostgresStore) ListByStudent(ctx context.Context, studentID string) ([]StudentTopicProgress, error) {
	return s.list(ctx,
		`SELECT student_id, topic_id, subject_id, mastery_level, sessions_count,
		        problems_attempted, problems_correct, total_time_minutes, points_earned, last_practiced_at
		 FROM student_topic_progress
		 WHERE student_id = $1
		 ORDER BY topic_id ASC`,
		studentID,
	)
}

func (s *PostgresStore) ListBySubject(ctx context.Context, studentID, subjectID string) ([]StudentTopicProgress, error) {
	return s.list(ctx,
		`SELECT student_id, topic_id, subject_id, mastery_level, sessions_count,
		        problems_attempted, problems_correct, total_time_minutes, points_earned, last_practiced_at
		 FROM student_topic_progress
		 WHERE student_id = $1 AND subject_id = $2
		 ORDER BY topic_id ASC`,
		studentID, subjectID,
	)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]StudentTopicProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var result []StudentTopicProgress
	for rows.Next() {
		var row StudentTopicProgress
		if err := rows.Scan(
			&row.StudentID,
			&row.TopicID,
			&row.SubjectID,
			&row.MasteryLevel,
			&row.SessionsCount,
			&row.ProblemsAttempted,
			&row.ProblemsCorrect,
			&row.TotalTimeMinutes,
			&row.PointsEarned,
			&row.LastPracticedAt,
		); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}

	return result, nil
}
