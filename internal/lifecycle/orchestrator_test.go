package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/event"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/repository"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/state"
	"umbrella-admin/internal/unit"
)

type note struct {
	model.EntityHeader
	Title  string `json:"title"`
	Label  string `json:"label"`
	Amount int    `json:"amount"`
	Email  string `json:"email"`
}

const (
	noteDraft     = "0_draft"
	noteSubmitted = "1_submitted"
	noteDone      = "2_done"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, recipients []string, subject string, body string, data map[string]any) error {
	args := m.Called(ctx, recipients, subject, body, data)
	return args.Error(0)
}

var (
	admin     = &model.Subject{ID: "admin", Username: "admin", Superuser: true}
	member    = &model.Subject{ID: "member", Username: "member", Grants: []model.Grant{{UnitID: "ski", Capability: "member"}}}
	treasurer = &model.Subject{ID: "treasurer", Username: "treasurer", Grants: []model.Grant{{UnitID: "root", Capability: "treasurer"}}}
	validator = &model.Subject{ID: "validator", Username: "validator", Grants: []model.Grant{{UnitID: "root", Capability: "validator"}}}
	stranger  = &model.Subject{ID: "stranger", Username: "stranger"}
	other     = &model.Subject{ID: "other", Username: "other"}
)

func noteKind() Kind[*note] {
	live := rights.StatusIn(noteDraft, noteSubmitted)
	see := rights.AnyOf(
		rights.Superuser(),
		rights.Capability("treasurer"),
		rights.AllOf(rights.Capability("member"), live),
		rights.AllOf(rights.BlankOwner(), live),
	)
	draftOnly := rights.StatusIn(noteDraft)

	policy := rights.NewPolicy().
		Allow(rights.Show, see).
		Allow(rights.List, see).
		Allow(rights.Create, rights.AnyOf(rights.Superuser(), rights.Capability("member"), rights.BlankOwner())).
		Allow(rights.Edit, rights.AnyOf(
			rights.Superuser(),
			rights.AllOf(rights.Capability("member"), draftOnly),
			rights.AllOf(rights.BlankOwner(), draftOnly),
		)).
		Allow(rights.Delete, rights.AnyOf(rights.Superuser(), rights.Capability("member"), rights.BlankOwner())).
		Allow(rights.Restore, rights.AnyOf(rights.Superuser(), rights.Capability("treasurer"))).
		Allow(rights.Validate, rights.AnyOf(rights.Superuser(), rights.Capability("treasurer"), rights.Capability("validator"))).
		Allow(rights.Export, rights.AnyOf(rights.Superuser(), rights.Capability("treasurer")))

	states := state.New[*note](
		state.State{Key: noteDraft, Label: "Draft"},
		state.State{Key: noteSubmitted, Label: "Submitted"},
		state.State{Key: noteDone, Label: "Done"},
	).
		Allow(noteDraft, noteSubmitted, func(_ context.Context, _ *model.Subject, n *note) (bool, string) {
			if n.Label == "" {
				return false, "a label is required before submitting"
			}
			return true, ""
		}).
		Allow(noteSubmitted, noteDone, nil).
		Allow(noteSubmitted, noteDraft, nil).
		Bonus(noteDone, state.BonusForm[*note]{
			Fields: []string{"amount"},
			Apply: func(n *note, data map[string]any) map[string]string {
				amount, ok := data["amount"].(float64)
				if !ok {
					return map[string]string{"amount": "must be a number"}
				}
				n.Amount = int(amount)
				return nil
			},
		})

	return Kind[*note]{
		Name:  "note",
		Label: "Note",
		New:   func() *note { return &note{} },
		Snapshot: func(n *note) audit.Snapshot {
			return audit.Snapshot{"title": n.Title, "label": n.Label, "amount": n.Amount}
		},
		Policy:     policy,
		States:     states,
		UnitScoped: true,
		AllowBlank: true,
		Moderation: noteSubmitted,
		Validate: func(_ context.Context, n *note) map[string]string {
			if n.Title == "" {
				return map[string]string{"title": "this field is required"}
			}
			return nil
		},
		Contacts: func(n *note) map[string][]string {
			return map[string][]string{"author": {n.Email}}
		},
		Hooks: Hooks[*note]{
			Saved: func(_ context.Context, _ repository.Backend, _ *model.Subject, n *note, _ bool) error {
				if n.Title == "boom" {
					return errors.New("hook exploded")
				}
				return nil
			},
			CanDelete: func(_ context.Context, _ *model.Subject, n *note) (bool, string) {
				if n.Status == noteDone {
					return false, "done notes are kept"
				}
				return true, ""
			},
		},
	}
}

type fixture struct {
	backend  *repository.MemoryBackend
	engine   *Engine
	bus      *event.InMemoryBus
	notifier *mockNotifier
	notes    *Orchestrator[*note]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	units, err := unit.New([]model.Unit{
		{ID: "root", Name: "Root"},
		{ID: "com", ParentID: "root", Name: "Commissions"},
		{ID: "ski", ParentID: "com", Name: "Ski"},
	})
	require.NoError(t, err)
	evaluator, err := rights.NewEvaluator(units, 256)
	require.NoError(t, err)

	f := &fixture{
		backend:  repository.NewMemoryBackend(),
		bus:      event.NewBus(),
		notifier: &mockNotifier{},
	}
	f.engine = &Engine{
		Units:    units,
		Rights:   evaluator,
		Backend:  f.backend,
		Recorder: audit.NewRecorder(),
		Events:   f.bus,
		Notifier: f.notifier,
	}
	f.notes, err = New(f.engine, noteKind())
	require.NoError(t, err)
	return f
}

func (f *fixture) create(t *testing.T, s *model.Subject, unitID string, data string) *note {
	t.Helper()
	res, err := f.notes.Submit(context.Background(), s, SubmitRequest{UnitID: unitID, Data: json.RawMessage(data)})
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Entity
}

func codeOf(t *testing.T, err error) Code {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	return e.Code
}

func TestSubmitCreateAndShow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, member, "ski", `{"title":"Skis","label":"gear"}`)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ski", created.UnitID)
	assert.Equal(t, noteDraft, created.Status)
	assert.Empty(t, created.BlankOwnerID)

	shown, err := f.notes.Show(ctx, member, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Skis", shown.Entity.Title)
	require.NotNil(t, shown.CurrentUnit)
	assert.Equal(t, "ski", shown.CurrentUnit.ID)
	assert.Equal(t, "Draft", shown.StatusLabel)
	assert.Equal(t, []state.State{{Key: noteSubmitted, Label: "Submitted"}}, shown.NextStates)
	require.Len(t, shown.History, 1)
	assert.Equal(t, model.AuditCreated, shown.History[0].Action)
	assert.Equal(t, "member", shown.History[0].Actor.Username)
	assert.Contains(t, shown.Rights, rights.Decision{Right: rights.Edit, Allowed: true})
	assert.Contains(t, shown.Rights, rights.Decision{Right: rights.Restore, Allowed: false})

	t.Run("post-save destination", func(t *testing.T) {
		for dest, want := range map[string]string{"": NextShow, "new": NextNew, "stay": NextEdit} {
			res, err := f.notes.Submit(ctx, member, SubmitRequest{ID: created.ID, Data: json.RawMessage(`{}`), Dest: dest})
			require.NoError(t, err)
			assert.False(t, res.Created)
			assert.Equal(t, want, res.Next, "dest %q", dest)
		}
	})

	t.Run("tilde creates", func(t *testing.T) {
		res, err := f.notes.Submit(ctx, member, SubmitRequest{ID: "~", UnitID: "ski", Data: json.RawMessage(`{"title":"Poles"}`)})
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.NotEqual(t, created.ID, res.Entity.ID)
	})
}

func TestDeniedLooksLikeMissing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	n := f.create(t, member, "ski", `{"title":"Private"}`)

	_, deniedErr := f.notes.Show(ctx, stranger, n.ID)
	_, missingErr := f.notes.Show(ctx, stranger, "does-not-exist")

	require.ErrorIs(t, deniedErr, ErrNotFound)
	require.ErrorIs(t, missingErr, ErrNotFound)
	assert.Equal(t, missingErr.Error(), deniedErr.Error())

	_, err := f.notes.Submit(ctx, stranger, SubmitRequest{ID: n.ID, Data: json.RawMessage(`{"title":"x"}`)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.notes.Submit(ctx, stranger, SubmitRequest{UnitID: "ski", Data: json.RawMessage(`{"title":"x"}`)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.notes.Submit(ctx, member, SubmitRequest{UnitID: "nowhere", Data: json.RawMessage(`{"title":"x"}`)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitRejectsBadData(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	t.Run("header fields are ignored", func(t *testing.T) {
		res, err := f.notes.Submit(ctx, member, SubmitRequest{
			UnitID: "ski",
			Data:   json.RawMessage(`{"title":"a","unit_id":"root","status":"2_done","deleted":true,"id":"forged"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, "ski", res.Entity.UnitID)
		assert.Equal(t, noteDraft, res.Entity.Status)
		assert.False(t, res.Entity.Deleted)
		assert.NotEqual(t, "forged", res.Entity.ID)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := f.notes.Submit(ctx, member, SubmitRequest{UnitID: "ski", Data: json.RawMessage(`{"title":"a","nope":1}`)})
		assert.Equal(t, CodeInvalid, codeOf(t, err))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.notes.Submit(ctx, member, SubmitRequest{UnitID: "ski", Data: json.RawMessage(`{"title":""}`)})
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, map[string]string{"title": "this field is required"}, e.Fields)
	})
}

func TestEditRecordsDiff(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	n := f.create(t, member, "ski", `{"title":"Skis","label":"gear"}`)

	_, err := f.notes.Submit(ctx, member, SubmitRequest{ID: n.ID, Data: json.RawMessage(`{"title":"Skis 2","label":""}`)})
	require.NoError(t, err)

	history, err := f.backend.Audit().History(ctx, "note", n.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.AuditEdited, history[0].Action)
	assert.Equal(t, model.AuditCreated, history[1].Action)
	assert.True(t, history[0].OccurredAt.After(history[1].OccurredAt))

	var changes audit.Changes
	require.NoError(t, json.Unmarshal(history[0].Payload, &changes))
	assert.Equal(t, map[string]any{"label": "gear"}, changes.Deleted)
	assert.Equal(t, [2]any{"Skis", "Skis 2"}, changes.Edited["title"])
	assert.Empty(t, changes.Added)
}

func TestBlankOwnership(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	n := f.create(t, stranger, "", `{"title":"Mine"}`)
	assert.Empty(t, n.UnitID)
	assert.Equal(t, "stranger", n.BlankOwnerID)

	mine, err := f.notes.List(ctx, stranger, ListQuery{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Nil(t, mine.CurrentUnit)
	assert.True(t, mine.CanCreate)

	theirs, err := f.notes.List(ctx, other, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, theirs.Items)

	all, err := f.notes.List(ctx, admin, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 1)

	_, err = f.notes.Show(ctx, other, n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.notes.Submit(ctx, stranger, SubmitRequest{ID: n.ID, Data: json.RawMessage(`{"label":"mine"}`)})
	assert.NoError(t, err)
}

func TestDeleteAndRestore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	n := f.create(t, member, "ski", `{"title":"Old"}`)

	preview, err := f.notes.Delete(ctx, member, n.ID, false)
	require.NoError(t, err)
	assert.True(t, preview.CanDelete)
	assert.False(t, preview.Done)
	_, err = f.notes.Show(ctx, member, n.ID)
	require.NoError(t, err)

	done, err := f.notes.Delete(ctx, member, n.ID, true)
	require.NoError(t, err)
	assert.True(t, done.Done)
	assert.True(t, done.Entity.Deleted)

	_, err = f.notes.Delete(ctx, member, n.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.notes.Show(ctx, member, n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	live, err := f.notes.List(ctx, member, ListQuery{UnitID: "ski"})
	require.NoError(t, err)
	assert.Empty(t, live.Items)

	_, err = f.notes.ListDeleted(ctx, member, ListQuery{UnitID: "ski"})
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := f.notes.ListDeleted(ctx, treasurer, ListQuery{UnitID: "ski"})
	require.NoError(t, err)
	require.Len(t, deleted.Items, 1)
	assert.Equal(t, n.ID, deleted.Items[0].ID)

	restored, err := f.notes.Restore(ctx, treasurer, n.ID)
	require.NoError(t, err)
	assert.False(t, restored.Deleted)

	_, err = f.notes.Restore(ctx, treasurer, n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := f.backend.Audit().History(ctx, "note", n.ID)
	require.NoError(t, err)
	actions := make([]model.AuditAction, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []model.AuditAction{model.AuditRestored, model.AuditDeleted, model.AuditCreated}, actions)
}

func TestSwitchStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	t.Run("dry run then confirm", func(t *testing.T) {
		n := f.create(t, member, "ski", `{"title":"Trip","label":"winter"}`)

		preview, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: n.ID, Dest: noteSubmitted})
		require.NoError(t, err)
		assert.True(t, preview.Decision.Allowed)
		assert.False(t, preview.Done)
		assert.Equal(t, "Draft", preview.FromLabel)
		assert.Equal(t, "Submitted", preview.ToLabel)

		stored, err := f.notes.Show(ctx, member, n.ID)
		require.NoError(t, err)
		assert.Equal(t, noteDraft, stored.Entity.Status)

		res, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: n.ID, Dest: noteSubmitted, Confirm: true})
		require.NoError(t, err)
		assert.True(t, res.Done)
		assert.False(t, res.NoMoreAccess)
		assert.Equal(t, noteSubmitted, res.Entity.Status)

		history, err := f.backend.Audit().History(ctx, "note", n.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AuditStateChanged, history[0].Action)
		assert.JSONEq(t, `{"old":"Draft","new":"Submitted"}`, string(history[0].Payload))

		t.Run("bonus data is required", func(t *testing.T) {
			_, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: n.ID, Dest: noteDone, Confirm: true})
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, CodeInvalid, e.Code)
			assert.Contains(t, e.Fields, "amount")
		})

		t.Run("access lost after switch", func(t *testing.T) {
			res, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{
				ID: n.ID, Dest: noteDone, Confirm: true, Bonus: map[string]any{"amount": float64(12)},
			})
			require.NoError(t, err)
			assert.True(t, res.Done)
			assert.True(t, res.NoMoreAccess)
			assert.Equal(t, 12, res.Entity.Amount)

			_, err = f.notes.Show(ctx, member, n.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	})

	t.Run("guard denial", func(t *testing.T) {
		n := f.create(t, member, "ski", `{"title":"Unlabelled"}`)

		preview, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: n.ID, Dest: noteSubmitted})
		require.NoError(t, err)
		assert.False(t, preview.Decision.Allowed)
		assert.Equal(t, "a label is required before submitting", preview.Decision.Reason)

		_, err = f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: n.ID, Dest: noteSubmitted, Confirm: true})
		assert.ErrorIs(t, err, ErrTransitionDenied)
	})

	t.Run("same state", func(t *testing.T) {
		n := f.create(t, member, "ski", `{"title":"Still"}`)
		res, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: n.ID, Dest: noteDraft})
		require.NoError(t, err)
		assert.False(t, res.Decision.Allowed)
		assert.Equal(t, "already in this state", res.Decision.Reason)
	})

	t.Run("undeclared destination is a configuration error", func(t *testing.T) {
		n := f.create(t, member, "ski", `{"title":"Odd"}`)
		_, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: n.ID, Dest: "9_unknown", Confirm: true})
		var cfg *ConfigError
		assert.ErrorAs(t, err, &cfg)
	})
}

func TestDeleteVeto(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	n := f.create(t, admin, "ski", `{"title":"Kept","label":"x"}`)

	_, err := f.notes.SwitchStatus(ctx, admin, SwitchRequest{ID: n.ID, Dest: noteSubmitted, Confirm: true})
	require.NoError(t, err)
	_, err = f.notes.SwitchStatus(ctx, admin, SwitchRequest{ID: n.ID, Dest: noteDone, Confirm: true, Bonus: map[string]any{"amount": float64(1)}})
	require.NoError(t, err)

	preview, err := f.notes.Delete(ctx, admin, n.ID, false)
	require.NoError(t, err)
	assert.False(t, preview.CanDelete)
	assert.Equal(t, "done notes are kept", preview.Reason)

	_, err = f.notes.Delete(ctx, admin, n.ID, true)
	assert.ErrorIs(t, err, ErrDeleteVetoed)

	_, err = f.notes.Show(ctx, admin, n.ID)
	assert.NoError(t, err)
}

func TestListScopingAndModeration(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		f.create(t, member, "ski", `{"title":"`+title+`","label":"l"}`)
	}
	submitted := f.create(t, member, "ski", `{"title":"queued","label":"l"}`)
	_, err := f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: submitted.ID, Dest: noteSubmitted, Confirm: true})
	require.NoError(t, err)

	page, err := f.notes.List(ctx, member, ListQuery{UnitID: "ski", Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 4, page.Meta.Total)
	assert.Equal(t, 2, page.Meta.TotalPages)
	assert.Equal(t, []string{"ski"}, unitIDs(page.SelectableUnits))

	filtered, err := f.notes.List(ctx, member, ListQuery{UnitID: "ski", Status: []string{noteSubmitted}})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, submitted.ID, filtered.Items[0].ID)

	_, err = f.notes.List(ctx, member, ListQuery{UnitID: "com"})
	assert.ErrorIs(t, err, ErrNotFound)

	parent, err := f.notes.List(ctx, admin, ListQuery{UnitID: "com"})
	require.NoError(t, err)
	assert.Empty(t, parent.Items)

	assert.Empty(t, page.Moderables)
	queue, err := f.notes.List(ctx, treasurer, ListQuery{UnitID: "root"})
	require.NoError(t, err)
	require.Len(t, queue.Moderables, 1)
	assert.Equal(t, submitted.ID, queue.Moderables[0].ID)
	assert.False(t, queue.CanCreate)
}

func TestModerationQueueWithoutList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	kind := noteKind()
	kind.AllowBlank = false
	notes, err := New(f.engine, kind)
	require.NoError(t, err)

	f.create(t, member, "ski", `{"title":"draft","label":"l"}`)
	queued := f.create(t, member, "ski", `{"title":"queued","label":"l"}`)
	_, err = f.notes.SwitchStatus(ctx, member, SwitchRequest{ID: queued.ID, Dest: noteSubmitted, Confirm: true})
	require.NoError(t, err)

	res, err := notes.List(ctx, validator, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 0, res.Meta.Total)
	require.Len(t, res.Moderables, 1)
	assert.Equal(t, queued.ID, res.Moderables[0].ID)

	_, err = notes.List(ctx, stranger, ListQuery{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRelated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, member, "ski", `{"title":"one"}`)
	f.create(t, member, "ski", `{"title":"two"}`)
	f.create(t, stranger, "", `{"title":"outside"}`)

	res, err := f.notes.ListRelated(ctx, validator, ListQuery{UnitID: "ski"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, "ski", res.CurrentUnit.ID)
	assert.ElementsMatch(t, []string{"root", "com", "ski"}, unitIDs(res.SelectableUnits))

	root, err := f.notes.ListRelated(ctx, validator, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, "root", root.CurrentUnit.ID)
	assert.Empty(t, root.Items, "unscoped entities are never related")

	_, err = f.notes.ListRelated(ctx, member, ListQuery{UnitID: "ski"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	kept := f.create(t, member, "ski", `{"title":"kept"}`)
	gone := f.create(t, member, "ski", `{"title":"gone"}`)
	outside := f.create(t, stranger, "", `{"title":"outside"}`)
	_, err := f.notes.Delete(ctx, member, gone.ID, true)
	require.NoError(t, err)

	everything, err := f.notes.Export(ctx, treasurer, ListQuery{})
	require.NoError(t, err)
	ids := make([]string, 0, len(everything))
	for _, n := range everything {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{kept.ID, outside.ID}, ids)

	ski, err := f.notes.Export(ctx, treasurer, ListQuery{UnitID: "ski"})
	require.NoError(t, err)
	require.Len(t, ski, 1)
	assert.Equal(t, kept.ID, ski[0].ID)

	_, err = f.notes.Export(ctx, member, ListQuery{UnitID: "ski"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDeletedOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, member, "ski", `{"title":"first"}`)
	second := f.create(t, member, "ski", `{"title":"second"}`)
	for _, n := range []*note{second, first} {
		_, err := f.notes.Delete(ctx, member, n.ID, true)
		require.NoError(t, err)
	}

	res, err := f.notes.ListDeleted(ctx, treasurer, ListQuery{UnitID: "ski"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, first.ID, res.Items[0].ID, "last deleted comes first")
	assert.Equal(t, second.ID, res.Items[1].ID)
	assert.Equal(t, 2, res.Meta.Total)
	assert.ElementsMatch(t, []string{"root", "com", "ski"}, unitIDs(res.SelectableUnits))

	paged, err := f.notes.ListDeleted(ctx, treasurer, ListQuery{UnitID: "ski", Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
	assert.Equal(t, second.ID, paged.Items[0].ID)
}

func unitIDs(units []model.Unit) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		out = append(out, u.ID)
	}
	return out
}

func TestHookFailureRollsBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.notes.Submit(ctx, member, SubmitRequest{UnitID: "ski", Data: json.RawMessage(`{"title":"boom"}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook exploded")

	count, err := f.backend.Entities().Count(ctx, model.EntityQuery{Kind: "note", Unit: model.InUnit("ski")})
	require.NoError(t, err)
	assert.Zero(t, count)

	entries, _, err := f.backend.Audit().Query(ctx, model.AuditQuery{Kind: "note"})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContact(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	n := f.create(t, member, "ski", `{"title":"Reach me","email":"author@example.org"}`)

	f.notifier.On("Send", mock.Anything, []string{"author@example.org"}, "Hello", "About your note", mock.MatchedBy(func(data map[string]any) bool {
		return data["id"] == n.ID && data["sender"] == "treasurer"
	})).Return(nil).Once()

	err := f.notes.Contact(ctx, treasurer, ContactRequest{ID: n.ID, Group: "author", Subject: "Hello", Message: "About your note"})
	require.NoError(t, err)
	f.notifier.AssertExpectations(t)

	err = f.notes.Contact(ctx, treasurer, ContactRequest{ID: n.ID, Group: "nobody", Subject: "Hello", Message: "x"})
	assert.ErrorIs(t, err, ErrInvalid)

	err = f.notes.Contact(ctx, stranger, ContactRequest{ID: n.ID, Group: "author", Subject: "Hello", Message: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutationsPublishEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	n := f.create(t, member, "ski", `{"title":"Loud"}`)

	select {
	case evt := <-events:
		assert.Equal(t, event.TypeEntityCreated, evt.Type)
		assert.Equal(t, "member", evt.ActorID)
		payload, ok := evt.Payload.(event.EntityPayload)
		require.True(t, ok)
		assert.Equal(t, n.ID, payload.ID)
		assert.Equal(t, "ski", payload.UnitID)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestUndeclaredStoredStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	rec := model.EntityRecord{
		EntityHeader: model.EntityHeader{Kind: "note", UnitID: "ski", Status: "9_legacy"},
		Data:         json.RawMessage(`{"title":"old"}`),
	}
	require.NoError(t, f.backend.Atomically(ctx, func(tx repository.Backend) error {
		return tx.Entities().Save(ctx, &rec)
	}))

	_, err := f.notes.Show(ctx, admin, rec.ID)
	var cfg *ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestKindValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	kind := noteKind()
	kind.UnitScoped = false
	_, err := New(f.engine, kind)
	var cfg *ConfigError
	require.ErrorAs(t, err, &cfg)

	kind = noteKind()
	kind.Moderation = "9_unknown"
	_, err = New(f.engine, kind)
	require.ErrorAs(t, err, &cfg)

	_, err = New(&Engine{}, noteKind())
	require.ErrorAs(t, err, &cfg)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	reg := NewRegistry()

	MustRegister(reg, f.engine, noteKind())
	_, err := Register(reg, f.engine, noteKind())
	var cfg *ConfigError
	require.ErrorAs(t, err, &cfg)

	infos := reg.All()
	require.Len(t, infos, 1)
	assert.Equal(t, "note", infos[0].Name)
	assert.True(t, infos[0].Contact)
	assert.Len(t, infos[0].States, 3)

	ep, ok := reg.Lookup("note")
	require.True(t, ok)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	res, err := ep.Submit(ctx, member, SubmitRequest{UnitID: "ski", Data: json.RawMessage(`{"title":"via registry"}`)})
	require.NoError(t, err)
	created, ok := res.Entity.(*note)
	require.True(t, ok)
	assert.Equal(t, "via registry", created.Title)

	list, err := ep.List(ctx, member, ListQuery{UnitID: "ski"})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)

	exported, err := ep.Export(ctx, treasurer, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, exported, 1)

	typed, ok := Find[*note](reg, "note")
	require.True(t, ok)
	assert.Equal(t, "note", typed.kind.Name)
	_, ok = Find[*note](reg, "missing")
	assert.False(t, ok)
}

func TestAfterSwitchRunsOnlyOnCommit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var moves []string
	kind := noteKind()
	kind.Hooks.StatusSwitched = func(_ context.Context, _ repository.Backend, _ *model.Subject, n *note, _ string, _ string, _ map[string]any) error {
		if n.Label == "veto" {
			return errors.New("ledger closed")
		}
		return nil
	}
	kind.Hooks.AfterSwitch = func(_ context.Context, _ *model.Subject, n *note, from string, to string) {
		moves = append(moves, n.Title+":"+from+">"+to)
	}
	notes, err := New(f.engine, kind)
	require.NoError(t, err)

	vetoed := f.create(t, admin, "ski", `{"title":"vetoed","label":"veto"}`)
	_, err = notes.SwitchStatus(ctx, admin, SwitchRequest{ID: vetoed.ID, Dest: noteSubmitted, Confirm: true})
	require.Error(t, err)
	assert.Empty(t, moves)

	stored, err := notes.Show(ctx, admin, vetoed.ID)
	require.NoError(t, err)
	assert.Equal(t, noteDraft, stored.Entity.Status)

	ok := f.create(t, admin, "ski", `{"title":"ok","label":"fine"}`)
	_, err = notes.SwitchStatus(ctx, admin, SwitchRequest{ID: ok.ID, Dest: noteSubmitted})
	require.NoError(t, err)
	assert.Empty(t, moves, "a preview commits nothing")

	_, err = notes.SwitchStatus(ctx, admin, SwitchRequest{ID: ok.ID, Dest: noteSubmitted, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok:" + noteDraft + ">" + noteSubmitted}, moves)
}
