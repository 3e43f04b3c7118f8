// Package repository holds the storage contract of the lifecycle engine and
// its Postgres, SQLite and in-memory implementations.
package repository

import (
	"context"
	"iter"

	"umbrella-admin/internal/model"
)

// EntityStore persists entity records. Get returns records whether deleted
// or not; callers decide what a deleted record means to them.
type EntityStore interface {
	Get(ctx context.Context, kind string, id string) (model.EntityRecord, error)
	Save(ctx context.Context, rec *model.EntityRecord) error
	SoftDelete(ctx context.Context, kind string, id string) error
	Restore(ctx context.Context, kind string, id string) error
	Query(ctx context.Context, q model.EntityQuery) iter.Seq2[model.EntityRecord, error]
	Count(ctx context.Context, q model.EntityQuery) (int, error)
}

// AuditLog is append-only.
type AuditLog interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
	History(ctx context.Context, kind string, entityID string) ([]model.AuditEntry, error)
	Query(ctx context.Context, q model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// Directory stores units, accounts and the grants attached to them.
type Directory interface {
	ListUnits(ctx context.Context) ([]model.Unit, error)
	CreateUnit(ctx context.Context, u model.Unit) error
	FindAccount(ctx context.Context, id string) (model.Account, error)
	FindAccountByUsername(ctx context.Context, username string) (model.Account, error)
	CreateAccount(ctx context.Context, a model.Account) error
	SetGrants(ctx context.Context, subjectID string, grants []model.Grant) error
	CountAccounts(ctx context.Context) (int, error)
}

// Backend bundles the stores of one database. Atomically runs fn against a
// transactional view; fn's writes are committed only if it returns nil.
type Backend interface {
	Entities() EntityStore
	Audit() AuditLog
	Directory() Directory
	Atomically(ctx context.Context, fn func(tx Backend) error) error
	Close() error
}

// Collect drains a query sequence into a slice.
func Collect(seq iter.Seq2[model.EntityRecord, error]) ([]model.EntityRecord, error) {
	out := make([]model.EntityRecord, 0)
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
