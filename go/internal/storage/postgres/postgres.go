// Package postgres implements the backing-store repositories on
// Postgres via pgx. The store is the source of truth on (re)load and
// owns the two pieces of truly shared mutable state: round end stamps
// and point balances, both guarded by atomic update paths.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable reports that the backing store could not be reached.
// Callers treat it as advisory: the room stays usable in a degraded
// read-mostly mode and the failed operation can simply be retried.
var ErrUnavailable = errors.New("store unavailable")

// Repository bundles the backing-store operations for rooms, members,
// messages, rounds, hints and the points ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository on an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// wrap attaches the operation to a query error, classifying
// connectivity failures into ErrUnavailable so callers can tell a dead
// store apart from a bad query.
func wrap(op string, err error) error {
	if unavailable(err) {
		return fmt.Errorf("failed to %s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// unavailable reports whether an error is a connectivity failure.
// Class 08 is Postgres's connection exception family.
func unavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Connect opens a pgx pool for the given DSN and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
