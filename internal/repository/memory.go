package repository

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"umbrella-admin/internal/model"
)

// memState is the whole dataset of an in-memory backend. The views over it
// take no locks; MemoryBackend serializes access.
type memState struct {
	Entities map[string]model.EntityRecord `json:"entities"`
	Audit    []model.AuditEntry            `json:"audit"`
	Units    map[string]model.Unit         `json:"units"`
	Accounts map[string]model.Account      `json:"accounts"`
}

func newMemState() *memState {
	return &memState{
		Entities: map[string]model.EntityRecord{},
		Audit:    []model.AuditEntry{},
		Units:    map[string]model.Unit{},
		Accounts: map[string]model.Account{},
	}
}

func (s *memState) clone() *memState {
	accounts := make(map[string]model.Account, len(s.Accounts))
	for id, a := range s.Accounts {
		a.Grants = slices.Clone(a.Grants)
		accounts[id] = a
	}
	return &memState{
		Entities: maps.Clone(s.Entities),
		Audit:    slices.Clone(s.Audit),
		Units:    maps.Clone(s.Units),
		Accounts: accounts,
	}
}

// MemoryBackend keeps everything in process memory. Transactions work on a
// copy of the state that replaces the live one on success. An optional
// persist hook sees each committed state before it becomes visible.
type MemoryBackend struct {
	mu      sync.RWMutex
	txMu    sync.Mutex
	state   *memState
	persist func(*memState) error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{state: newMemState()}
}

func (b *MemoryBackend) Entities() EntityStore {
	return lockedEntities{b: b}
}

func (b *MemoryBackend) Audit() AuditLog {
	return lockedAudit{b: b}
}

func (b *MemoryBackend) Directory() Directory {
	return lockedDirectory{b: b}
}

func (b *MemoryBackend) Atomically(ctx context.Context, fn func(tx Backend) error) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	b.mu.RLock()
	working := b.state.clone()
	b.mu.RUnlock()

	if err := fn(memTx{s: working}); err != nil {
		return err
	}
	if b.persist != nil {
		if err := b.persist(working); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}
	}

	b.mu.Lock()
	b.state = working
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

func (b *MemoryBackend) read(fn func(s *memState)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn(b.state)
}

// memTx is the view handed to Atomically callbacks.
type memTx struct {
	s *memState
}

func (t memTx) Entities() EntityStore { return memEntities{s: t.s} }
func (t memTx) Audit() AuditLog       { return memAudit{s: t.s} }
func (t memTx) Directory() Directory  { return memDirectory{s: t.s} }
func (t memTx) Close() error          { return nil }

func (t memTx) Atomically(_ context.Context, fn func(tx Backend) error) error {
	return fn(t)
}

type memEntities struct {
	s *memState
}

func entityKey(kind string, id string) string {
	return kind + "/" + id
}

func (m memEntities) Get(_ context.Context, kind string, id string) (model.EntityRecord, error) {
	rec, ok := m.s.Entities[entityKey(kind, id)]
	if !ok {
		return model.EntityRecord{}, fmt.Errorf("%s %s: %w", kind, id, model.ErrEntityNotFound)
	}
	rec.Data = slices.Clone(rec.Data)
	return rec, nil
}

func (m memEntities) Save(_ context.Context, rec *model.EntityRecord) error {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	stored := *rec
	stored.Data = slices.Clone(rec.Data)
	m.s.Entities[entityKey(rec.Kind, rec.ID)] = stored
	return nil
}

func (m memEntities) SoftDelete(_ context.Context, kind string, id string) error {
	return m.setDeleted(kind, id, true)
}

func (m memEntities) Restore(_ context.Context, kind string, id string) error {
	return m.setDeleted(kind, id, false)
}

func (m memEntities) setDeleted(kind string, id string, deleted bool) error {
	key := entityKey(kind, id)
	rec, ok := m.s.Entities[key]
	if !ok {
		return fmt.Errorf("%s %s: %w", kind, id, model.ErrEntityNotFound)
	}
	rec.Deleted = deleted
	rec.UpdatedAt = time.Now().UTC()
	m.s.Entities[key] = rec
	return nil
}

func (m memEntities) Query(_ context.Context, q model.EntityQuery) iter.Seq2[model.EntityRecord, error] {
	return seqOf(m.matching(q))
}

func (m memEntities) Count(_ context.Context, q model.EntityQuery) (int, error) {
	q.Offset, q.Limit = 0, 0
	return len(m.matching(q)), nil
}

func (m memEntities) matching(q model.EntityQuery) []model.EntityRecord {
	out := make([]model.EntityRecord, 0)
	for _, rec := range m.s.Entities {
		if q.Match(rec.EntityHeader) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return out[:0]
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

func seqOf(records []model.EntityRecord) iter.Seq2[model.EntityRecord, error] {
	return func(yield func(model.EntityRecord, error) bool) {
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

type memAudit struct {
	s *memState
}

func (m memAudit) Append(_ context.Context, entry *model.AuditEntry) error {
	m.s.Audit = append(m.s.Audit, *entry)
	return nil
}

func (m memAudit) History(_ context.Context, kind string, entityID string) ([]model.AuditEntry, error) {
	return m.matching(model.AuditQuery{Kind: kind, EntityID: entityID}), nil
}

func (m memAudit) Query(_ context.Context, q model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	q.Page, q.Limit = model.NormalizePage(q.Page, q.Limit)
	all := m.matching(q)
	meta := model.NewMeta(q.Page, q.Limit, len(all))

	start := (q.Page - 1) * q.Limit
	if start >= len(all) {
		return []model.AuditEntry{}, meta, nil
	}
	end := min(start+q.Limit, len(all))
	return all[start:end], meta, nil
}

// matching returns entries newest first.
func (m memAudit) matching(q model.AuditQuery) []model.AuditEntry {
	out := make([]model.AuditEntry, 0)
	for i := len(m.s.Audit) - 1; i >= 0; i-- {
		if q.Match(m.s.Audit[i]) {
			out = append(out, m.s.Audit[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out
}

type memDirectory struct {
	s *memState
}

func (m memDirectory) ListUnits(_ context.Context) ([]model.Unit, error) {
	units := slices.Collect(maps.Values(m.s.Units))
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

func (m memDirectory) CreateUnit(_ context.Context, u model.Unit) error {
	if _, exists := m.s.Units[u.ID]; exists {
		return fmt.Errorf("unit %s already exists: %w", u.ID, model.ErrInvalidInput)
	}
	m.s.Units[u.ID] = u
	return nil
}

func (m memDirectory) FindAccount(_ context.Context, id string) (model.Account, error) {
	a, ok := m.s.Accounts[id]
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: %w", id, model.ErrSubjectNotFound)
	}
	a.Grants = slices.Clone(a.Grants)
	return a, nil
}

func (m memDirectory) FindAccountByUsername(ctx context.Context, username string) (model.Account, error) {
	for _, a := range m.s.Accounts {
		if strings.EqualFold(a.Username, strings.TrimSpace(username)) {
			return m.FindAccount(ctx, a.ID)
		}
	}
	return model.Account{}, fmt.Errorf("account %s: %w", username, model.ErrSubjectNotFound)
}

func (m memDirectory) CreateAccount(ctx context.Context, a model.Account) error {
	if _, err := m.FindAccountByUsername(ctx, a.Username); err == nil {
		return fmt.Errorf("account %s: %w", a.Username, model.ErrSubjectAlreadyExists)
	}
	a.Grants = slices.Clone(a.Grants)
	m.s.Accounts[a.ID] = a
	return nil
}

func (m memDirectory) SetGrants(_ context.Context, subjectID string, grants []model.Grant) error {
	a, ok := m.s.Accounts[subjectID]
	if !ok {
		return fmt.Errorf("account %s: %w", subjectID, model.ErrSubjectNotFound)
	}
	a.Grants = slices.Clone(grants)
	m.s.Accounts[subjectID] = a
	return nil
}

func (m memDirectory) CountAccounts(_ context.Context) (int, error) {
	return len(m.s.Accounts), nil
}
