// Package storage implements scheduling.Store on PostgreSQL through pgx.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/edusched/school/libs/db"
	"github.com/edusched/school/libs/scheduling"
)

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs statements against either the pool or an open transaction.
type Queries struct {
	q querier
}

type Store struct {
	*Queries
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{Queries: &Queries{q: pool}, pool: pool}
}

// WithTx runs fn in one transaction. The transaction is committed only when
// fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(scheduling.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}
	return mapError(tx.Commit(ctx))
}

var _ scheduling.Store = (*Store)(nil)

const (
	codeExclusionViolation = "23P01"
	codeForeignKey         = "23503"
	codeCheckViolation     = "23514"
	codeUniqueViolation    = "23505"
)

var ErrDuplicate = scheduling.ErrDuplicate

// IsConflict reports whether err is the exclusion constraint refusing an
// overlapping live booking.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeExclusionViolation
}

// mapError translates driver errors into the kinds callers branch on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduling.ErrNotFound
	}
	if IsConflict(err) {
		return fmt.Errorf("%w: %w", scheduling.ErrOverlap, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeForeignKey:
		return &scheduling.ValidationError{Message: "referenced record does not exist (" + pgErr.ConstraintName + ")"}
	case codeCheckViolation:
		if pgErr.ConstraintName == "bookings_time_order" {
			return &scheduling.ValidationError{Message: "end time must be after start time"}
		}
		return &scheduling.ValidationError{Message: pgErr.Message}
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
