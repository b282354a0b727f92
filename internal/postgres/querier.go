package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// statement helpers run standalone or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func inTx(ctx context.Context, db txBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return mapPgError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return mapPgError(tx.Commit(ctx))
}

// ambiguous SQLSTATEs plus the PostgREST embedding code; all of them mean the
// joined query cannot be resolved and a simpler strategy should be used.
var ambiguousCodes = map[string]struct{}{
	"42702":    {}, // ambiguous_column
	"42P09":    {}, // ambiguous_alias
	"42725":    {}, // ambiguous_function
	"PGRST201": {},
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := ambiguousCodes[pgErr.Code]; ok {
			return fmt.Errorf("%w: %s", domain.ErrAmbiguousRelationship, pgErr.Message)
		}
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.ConstraintName)
		case "22023", "22P02", "23514":
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, pgErr.Message)
		}
	}
	return err
}
