package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore persists unlocks in the achievement_unlocks table. The
// primary key on (student_id, code) makes Insert the atomic unlock
// decision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, studentID, code string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO achievement_unlocks (student_id, code, unlocked_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (student_id, code) DO NOTHING`,
		studentID, code, at,
	)
	if err != nil {
		return false, fmt.Errorf("inserting unlock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) List(ctx context.Context, studentID string) ([]Unlock, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, code, unlocked_at
		 FROM achievement_unlocks
		 WHERE student_id = $1
		 ORDER BY unlocked_at DESC, code`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing unlocks: %w", err)
	}
	defer rows.Close()

	var out []Unlock
	for rows.Next() {
		var u Unlock
		if err := rows.Scan(&u.StudentID, &u.Code, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scanning unlock: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unlocks: %w", err)
	}
	return out, nil
}
