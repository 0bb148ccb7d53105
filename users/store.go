// Package users owns account persistence and the administrative operations on
// accounts: toggling the active and admin flags.
package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/auth"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

const accountColumns = `id, username, email, password_hash, is_active, is_admin, created_at, updated_at`

// PostgresStore implements auth.AccountStore and AdminStore on a pgxpool.
// Every method borrows a pool connection only for the duration of its query.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	_ auth.AccountStore = (*PostgresStore)(nil)
	_ AdminStore        = (*PostgresStore)(nil)
)

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var a auth.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsActive, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFoundError("account not found", nil)
	}
	return apperror.NewDatabaseError(message, err)
}

// FindByID loads an account by its identifier.
func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, notFoundOr(err, "failed to get account by id")
	}
	return a, nil
}

// FindByLogin matches login against the username, then against the lowercased email.
// A username match wins when both would match different accounts.
func (s *PostgresStore) FindByLogin(ctx context.Context, login string) (*auth.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users
		WHERE username = $1 OR email = $2
		ORDER BY (username = $1) DESC
		LIMIT 1`
	a, err := scanAccount(s.db.QueryRow(ctx, query, login, strings.ToLower(login)))
	if err != nil {
		return nil, notFoundOr(err, "failed to get account by login")
	}
	return a, nil
}

// FindByUsername loads an account by its exact username.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, notFoundOr(err, "failed to get account by username")
	}
	return a, nil
}

// Create inserts a new account. Duplicate usernames and emails become Conflict errors.
func (s *PostgresStore) Create(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	query := `INSERT INTO users (id, username, email, password_hash, is_active, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns
	created, err := scanAccount(s.db.QueryRow(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash, account.IsActive, account.IsAdmin))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "username") {
				return nil, apperror.NewConflictError("username already exists", nil)
			}
			if strings.Contains(pgErr.ConstraintName, "email") {
				return nil, apperror.NewConflictError("email already exists", nil)
			}
			return nil, apperror.NewConflictError("account already exists", nil)
		}
		return nil, apperror.NewDatabaseError("failed to create account", err)
	}
	return created, nil
}

// UpdateFlags changes the active and/or admin flag. Nil leaves a flag unchanged.
func (s *PostgresStore) UpdateFlags(ctx context.Context, id uuid.UUID, isActive, isAdmin *bool) (*auth.Account, error) {
	query := `UPDATE users SET
			is_active  = COALESCE($2, is_active),
			is_admin   = COALESCE($3, is_admin),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + accountColumns
	a, err := scanAccount(s.db.QueryRow(ctx, query, id, isActive, isAdmin))
	if err != nil {
		return nil, notFoundOr(err, "failed to update account")
	}
	return a, nil
}
