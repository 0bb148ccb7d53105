package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transportuni/chatbot-api/apperror"
)

const messageColumns = `id, user_id, role, message, response, timestamp`

// PostgresStore implements Store on the chat_history table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.UserID, &m.Role, &m.Message, &m.Response, &m.Timestamp); err != nil {
		return nil, err
	}
	return &m, nil
}

var errMessageNotFound = apperror.NewNotFoundError("chat message not found", nil)

// Create inserts msg.
func (s *PostgresStore) Create(ctx context.Context, msg *Message) (*Message, error) {
	query := `INSERT INTO chat_history (id, user_id, role, message, response, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + messageColumns
	created, err := scanMessage(s.db.QueryRow(ctx, query,
		msg.ID, msg.UserID, msg.Role, msg.Message, msg.Response, msg.Timestamp))
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to save chat message", err)
	}
	return created, nil
}

// List returns one page of owner's history, newest first.
func (s *PostgresStore) List(ctx context.Context, owner uuid.UUID, limit, offset int) ([]Message, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM chat_history WHERE user_id = $1`, owner).Scan(&total); err != nil {
		return nil, 0, apperror.NewDatabaseError("failed to count chat history", err)
	}

	rows, err := s.db.Query(ctx, `SELECT `+messageColumns+` FROM chat_history
		WHERE user_id = $1
		ORDER BY timestamp DESC, seq DESC
		LIMIT $2 OFFSET $3`, owner, limit, offset)
	if err != nil {
		return nil, 0, apperror.NewDatabaseError("failed to list chat history", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		m, err := scanMessage(row)
		if err != nil {
			return Message{}, err
		}
		return *m, nil
	})
	if err != nil {
		return nil, 0, apperror.NewDatabaseError("failed to read chat history", err)
	}
	return items, total, nil
}

// FindOwned loads message id if owner owns it.
func (s *PostgresStore) FindOwned(ctx context.Context, owner, id uuid.UUID) (*Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM chat_history WHERE id = $1 AND user_id = $2`, id, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errMessageNotFound
		}
		return nil, apperror.NewDatabaseError("failed to get chat message", err)
	}
	return m, nil
}

// Delete removes message id if owner owns it.
func (s *PostgresStore) Delete(ctx context.Context, owner, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_history WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return apperror.NewDatabaseError("failed to delete chat message", err)
	}
	if tag.RowsAffected() == 0 {
		return errMessageNotFound
	}
	return nil
}

// DeleteAll removes all of owner's messages.
func (s *PostgresStore) DeleteAll(ctx context.Context, owner uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_history WHERE user_id = $1`, owner)
	if err != nil {
		return 0, apperror.NewDatabaseError("failed to delete chat history", err)
	}
	return tag.RowsAffected(), nil
}
