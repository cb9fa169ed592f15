// Package postgres implements the domain repositories on PostgreSQL via
// pgx. The checkout and cancellation units run as single transactions with
// conditional updates guarding the shared counters (stock, coupon uses).
package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopcore/db"
	"github.com/xenking/shopcore/internal/domain/order"
)

// ErrIntegrityViolation is surfaced when the store rejects a write for a
// foreign-key or uniqueness breach that no more specific domain error covers.
var ErrIntegrityViolation = errors.New("integrity violation")

// PostgreSQL error codes this package reacts to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerializationFail   = "40001"
	codeDeadlockDetected    = "40P01"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// RunSeed loads the embedded fixed sample rows.
func RunSeed(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Seed)
	if err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}
	return nil
}

// mapError converts low-level pgx errors into the domain taxonomy:
// serialization failures and deadlocks become order.ErrTxConflict (retryable),
// constraint breaches become ErrIntegrityViolation.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFail, codeDeadlockDetected:
			return errors.Wrap(order.ErrTxConflict, pgErr.Message)
		case codeUniqueViolation, codeForeignKeyViolation:
			return errors.Wrapf(ErrIntegrityViolation, "%s on %s", pgErr.Message, pgErr.ConstraintName)
		}
	}
	return err
}

// isUniqueViolation reports whether err is a uniqueness breach, used by the
// 1:1 recorders to detect duplicate payment/shipment rows.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
