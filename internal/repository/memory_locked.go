package repository

import (
	"context"
	"iter"

	"umbrella-admin/internal/model"
)

// The locked views read under the backend's read lock and turn every write
// into a single-statement transaction.

type lockedEntities struct {
	b *MemoryBackend
}

func (l lockedEntities) Get(ctx context.Context, kind string, id string) (rec model.EntityRecord, err error) {
	l.b.read(func(s *memState) { rec, err = memEntities{s: s}.Get(ctx, kind, id) })
	return rec, err
}

func (l lockedEntities) Save(ctx context.Context, rec *model.EntityRecord) error {
	return l.b.Atomically(ctx, func(tx Backend) error { return tx.Entities().Save(ctx, rec) })
}

func (l lockedEntities) SoftDelete(ctx context.Context, kind string, id string) error {
	return l.b.Atomically(ctx, func(tx Backend) error { return tx.Entities().SoftDelete(ctx, kind, id) })
}

func (l lockedEntities) Restore(ctx context.Context, kind string, id string) error {
	return l.b.Atomically(ctx, func(tx Backend) error { return tx.Entities().Restore(ctx, kind, id) })
}

// Query snapshots the matching records before iteration starts.
func (l lockedEntities) Query(ctx context.Context, q model.EntityQuery) iter.Seq2[model.EntityRecord, error] {
	var records []model.EntityRecord
	l.b.read(func(s *memState) { records = memEntities{s: s}.matching(q) })
	return seqOf(records)
}

func (l lockedEntities) Count(ctx context.Context, q model.EntityQuery) (n int, err error) {
	l.b.read(func(s *memState) { n, err = memEntities{s: s}.Count(ctx, q) })
	return n, err
}

type lockedAudit struct {
	b *MemoryBackend
}

func (l lockedAudit) Append(ctx context.Context, entry *model.AuditEntry) error {
	return l.b.Atomically(ctx, func(tx Backend) error { return tx.Audit().Append(ctx, entry) })
}

func (l lockedAudit) History(ctx context.Context, kind string, entityID string) (out []model.AuditEntry, err error) {
	l.b.read(func(s *memState) { out, err = memAudit{s: s}.History(ctx, kind, entityID) })
	return out, err
}

func (l lockedAudit) Query(ctx context.Context, q model.AuditQuery) (out []model.AuditEntry, meta model.Meta, err error) {
	l.b.read(func(s *memState) { out, meta, err = memAudit{s: s}.Query(ctx, q) })
	return out, meta, err
}

type lockedDirectory struct {
	b *MemoryBackend
}

func (l lockedDirectory) ListUnits(ctx context.Context) (out []model.Unit, err error) {
	l.b.read(func(s *memState) { out, err = memDirectory{s: s}.ListUnits(ctx) })
	return out, err
}

func (l lockedDirectory) CreateUnit(ctx context.Context, u model.Unit) error {
	return l.b.Atomically(ctx, func(tx Backend) error { return tx.Directory().CreateUnit(ctx, u) })
}

func (l lockedDirectory) FindAccount(ctx context.Context, id string) (a model.Account, err error) {
	l.b.read(func(s *memState) { a, err = memDirectory{s: s}.FindAccount(ctx, id) })
	return a, err
}

func (l lockedDirectory) FindAccountByUsername(ctx context.Context, username string) (a model.Account, err error) {
	l.b.read(func(s *memState) { a, err = memDirectory{s: s}.FindAccountByUsername(ctx, username) })
	return a, err
}

func (l lockedDirectory) CreateAccount(ctx context.Context, a model.Account) error {
	return l.b.Atomically(ctx, func(tx Backend) error { return tx.Directory().CreateAccount(ctx, a) })
}

func (l lockedDirectory) SetGrants(ctx context.Context, subjectID string, grants []model.Grant) error {
	return l.b.Atomically(ctx, func(tx Backend) error { return tx.Directory().SetGrants(ctx, subjectID, grants) })
}

func (l lockedDirectory) CountAccounts(ctx context.Context) (n int, err error) {
	l.b.read(func(s *memState) { n, err = memDirectory{s: s}.CountAccounts(ctx) })
	return n, err
}
