package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umbrella-admin/internal/model"
)

func seedInvoices(t *testing.T, b Backend) []string {
	t.Helper()
	ctx := context.Background()

	specs := []model.EntityHeader{
		{Kind: "invoice", UnitID: "ski", Status: "0_preparing"},
		{Kind: "invoice", UnitID: "ski", Status: "2_sent"},
		{Kind: "invoice", UnitID: "cine", Status: "0_preparing"},
		{Kind: "invoice", Status: "0_preparing", BlankOwnerID: "bob"},
		{Kind: "year", Status: "1_active"},
	}

	ids := make([]string, 0, len(specs))
	for _, h := range specs {
		rec := &model.EntityRecord{EntityHeader: h, Data: json.RawMessage(`{"title":"x"}`)}
		require.NoError(t, b.Entities().Save(ctx, rec))
		require.NotEmpty(t, rec.ID)
		ids = append(ids, rec.ID)
		time.Sleep(time.Millisecond)
	}
	return ids
}

func TestMemoryEntities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemoryBackend()
	ids := seedInvoices(t, b)

	t.Run("get round trips", func(t *testing.T) {
		rec, err := b.Entities().Get(ctx, "invoice", ids[0])
		require.NoError(t, err)
		assert.Equal(t, "ski", rec.UnitID)
		assert.JSONEq(t, `{"title":"x"}`, string(rec.Data))
		assert.False(t, rec.CreatedAt.IsZero())
	})

	t.Run("get checks the kind", func(t *testing.T) {
		_, err := b.Entities().Get(ctx, "year", ids[0])
		require.ErrorIs(t, err, model.ErrEntityNotFound)
	})

	t.Run("query filters by unit and status", func(t *testing.T) {
		recs, err := Collect(b.Entities().Query(ctx, model.EntityQuery{Kind: "invoice", Unit: model.InUnit("ski")}))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, ids[1], recs[0].ID, "newest first")

		recs, err = Collect(b.Entities().Query(ctx, model.EntityQuery{Kind: "invoice", Status: []string{"0_preparing"}}))
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})

	t.Run("unscoped filter and blank owner", func(t *testing.T) {
		recs, err := Collect(b.Entities().Query(ctx, model.EntityQuery{Kind: "invoice", Unit: model.InUnit(""), BlankOwnerID: "bob"}))
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, ids[3], recs[0].ID)
	})

	t.Run("paging and count", func(t *testing.T) {
		q := model.EntityQuery{Kind: "invoice", Limit: 2, Offset: 2}
		recs, err := Collect(b.Entities().Query(ctx, q))
		require.NoError(t, err)
		assert.Len(t, recs, 2)

		total, err := b.Entities().Count(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
	})

	t.Run("soft delete hides from live queries", func(t *testing.T) {
		require.NoError(t, b.Entities().SoftDelete(ctx, "invoice", ids[2]))

		live, err := b.Entities().Count(ctx, model.EntityQuery{Kind: "invoice", Unit: model.InUnit("cine")})
		require.NoError(t, err)
		assert.Zero(t, live)

		deleted, err := b.Entities().Count(ctx, model.EntityQuery{Kind: "invoice", Deleted: true})
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)

		require.NoError(t, b.Entities().Restore(ctx, "invoice", ids[2]))
		rec, err := b.Entities().Get(ctx, "invoice", ids[2])
		require.NoError(t, err)
		assert.False(t, rec.Deleted)
	})

	t.Run("soft delete of unknown entity", func(t *testing.T) {
		require.ErrorIs(t, b.Entities().SoftDelete(ctx, "invoice", "ghost"), model.ErrEntityNotFound)
	})
}

func TestMemoryAtomicallyRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemoryBackend()

	boom := errors.New("hook failed")
	err := b.Atomically(ctx, func(tx Backend) error {
		rec := &model.EntityRecord{EntityHeader: model.EntityHeader{Kind: "invoice"}, Data: json.RawMessage(`{}`)}
		require.NoError(t, tx.Entities().Save(ctx, rec))
		require.NoError(t, tx.Audit().Append(ctx, &model.AuditEntry{ID: "a1", Kind: "invoice", EntityID: rec.ID, Action: model.AuditCreated}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	total, err := b.Entities().Count(ctx, model.EntityQuery{Kind: "invoice"})
	require.NoError(t, err)
	assert.Zero(t, total)

	entries, meta, err := b.Audit().Query(ctx, model.AuditQuery{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, meta.Total)
}

func TestMemoryAudit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemoryBackend()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, action := range []model.AuditAction{model.AuditCreated, model.AuditEdited, model.AuditStateChanged} {
		require.NoError(t, b.Audit().Append(ctx, &model.AuditEntry{
			ID: string(action), Kind: "invoice", EntityID: "e1", Action: action,
			Actor: model.AuditActor{UserID: "u1"}, OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, b.Audit().Append(ctx, &model.AuditEntry{ID: "other", Kind: "invoice", EntityID: "e2", Action: model.AuditCreated, OccurredAt: base}))

	history, err := b.Audit().History(ctx, "invoice", "e1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.AuditStateChanged, history[0].Action)
	assert.Equal(t, model.AuditCreated, history[2].Action)

	page, meta, err := b.Audit().Query(ctx, model.AuditQuery{ActorID: "u1", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Total)
	assert.Equal(t, 2, meta.TotalPages)
	require.Len(t, page, 1)
	assert.Equal(t, model.AuditCreated, page[0].Action)
}

func TestMemoryDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := NewMemoryBackend().Directory()

	require.NoError(t, dir.CreateUnit(ctx, model.Unit{ID: "root", Name: "Root"}))
	require.Error(t, dir.CreateUnit(ctx, model.Unit{ID: "root", Name: "Again"}))

	account := model.Account{
		Subject:      model.Subject{ID: "u1", Username: "Alice", Grants: []model.Grant{{UnitID: "root", Capability: "TRESORERIE"}}},
		PasswordHash: "hash",
	}
	require.NoError(t, dir.CreateAccount(ctx, account))
	require.ErrorIs(t, dir.CreateAccount(ctx, model.Account{Subject: model.Subject{ID: "u2", Username: "alice"}}), model.ErrSubjectAlreadyExists)

	found, err := dir.FindAccountByUsername(ctx, " ALICE ")
	require.NoError(t, err)
	assert.Equal(t, "hash", found.PasswordHash)
	assert.True(t, found.HasGrant("root", "TRESORERIE"))

	require.NoError(t, dir.SetGrants(ctx, "u1", nil))
	found, err = dir.FindAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, found.Grants)

	_, err = dir.FindAccount(ctx, "ghost")
	require.ErrorIs(t, err, model.ErrSubjectNotFound)

	n, err := dir.CountAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
