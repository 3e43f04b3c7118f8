package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresBackend struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool, q: pool}
}

func (b *PostgresBackend) Entities() EntityStore {
	return &EntityRepository{q: b.q}
}

func (b *PostgresBackend) Audit() AuditLog {
	return &AuditRepository{q: b.q}
}

func (b *PostgresBackend) Directory() Directory {
	return &DirectoryRepository{q: b.q}
}

func (b *PostgresBackend) Atomically(ctx context.Context, fn func(tx Backend) error) (retErr error) {
	if b.inTx {
		return fn(b)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				retErr = errors.Join(retErr, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err := fn(&PostgresBackend{pool: b.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close is a no-op: the pool belongs to the database package.
func (b *PostgresBackend) Close() error {
	return nil
}
