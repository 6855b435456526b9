package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edusched/school/libs/db"
	"github.com/edusched/school/libs/outbox"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username or email already exists")
)

const codeUniqueViolation = "23505"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	RelatedID    *int64    `json:"related_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser is an account created by an administrator.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
	RelatedID    *int64
}

type UserRepository struct {
	pool *db.Pool
}

func NewUserRepository(pool *db.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, email, password_hash, role, related_id, status, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.RelatedID, &u.Status, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// GetActiveByLogin matches login against username or email.
func (r *UserRepository) GetActiveByLogin(ctx context.Context, login string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE (username = $1 OR email = $1) AND status = 'active'
		LIMIT 1
	`, login))
}

func (r *UserRepository) GetActiveByID(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND status = 'active'
	`, id))
}

// UpdatePassword stores the new hash and queues auth.user.password_changed.v1
// in the same transaction.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	payload, err := json.Marshal(map[string]any{
		"user_id":    id,
		"changed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "user",
		AggregateID:   strconv.FormatInt(id, 10),
		EventType:     "auth.user.password_changed.v1",
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Create inserts an active user and queues auth.user.created.v1 in the same
// transaction. A taken username or email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, in NewUser) (User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, role, related_id, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING `+userColumns,
		in.Username, in.Email, in.PasswordHash, in.Role, in.RelatedID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}

	payload, err := json.Marshal(u)
	if err != nil {
		return User{}, err
	}
	if err := outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "user",
		AggregateID:   strconv.FormatInt(u.ID, 10),
		EventType:     "auth.user.created.v1",
		Payload:       payload,
	}); err != nil {
		return User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

// List returns every account, newest first.
func (r *UserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UsernameTaken compares case-insensitively.
func (r *UserRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))`, username).Scan(&taken)
	return taken, err
}
