package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transportuni/chatbot-api/apperror"
)

// PostgresStats implements StatsStore with aggregate queries.
type PostgresStats struct {
	db *pgxpool.Pool
}

// NewPostgresStats creates a new PostgresStats.
func NewPostgresStats(db *pgxpool.Pool) *PostgresStats {
	return &PostgresStats{db: db}
}

var _ StatsStore = (*PostgresStats)(nil)

func (s *PostgresStats) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, apperror.NewDatabaseError("failed to count accounts", err)
	}
	return n, nil
}

func (s *PostgresStats) CountQuestions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM chat_history WHERE role = 'user'`).Scan(&n); err != nil {
		return 0, apperror.NewDatabaseError("failed to count questions", err)
	}
	return n, nil
}

func (s *PostgresStats) FrequentQuestions(ctx context.Context, n int) ([]FrequentQuestion, error) {
	rows, err := s.db.Query(ctx, `SELECT message, count(*) AS asked
		FROM chat_history
		WHERE role = 'user'
		GROUP BY message
		ORDER BY asked DESC, message ASC
		LIMIT $1`, n)
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to load frequent questions", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[FrequentQuestion])
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to read frequent questions", err)
	}
	return out, nil
}
