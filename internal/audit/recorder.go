package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"umbrella-admin/internal/model"
)

// Sink is the append-only store entries are written to.
type Sink interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
}

// Recorder builds audit entries with strictly increasing timestamps.
type Recorder struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record appends one entry for action on the entity. Edits carry the diff of
// before and after; other actions carry no payload.
func (r *Recorder) Record(ctx context.Context, sink Sink, actor *model.Subject, action model.AuditAction, h model.EntityHeader, before Snapshot, after Snapshot) (model.AuditEntry, error) {
	var payload any
	if action == model.AuditEdited {
		payload = Diff(before, after)
	}
	return r.append(ctx, sink, actor, action, h, payload)
}

// Transition appends a state_changed entry with the old and new labels.
func (r *Recorder) Transition(ctx context.Context, sink Sink, actor *model.Subject, h model.EntityHeader, oldLabel string, newLabel string) (model.AuditEntry, error) {
	return r.append(ctx, sink, actor, model.AuditStateChanged, h, map[string]string{"old": oldLabel, "new": newLabel})
}

func (r *Recorder) append(ctx context.Context, sink Sink, actor *model.Subject, action model.AuditAction, h model.EntityHeader, payload any) (model.AuditEntry, error) {
	entry := model.AuditEntry{
		ID:         uuid.NewString(),
		Kind:       h.Kind,
		EntityID:   h.ID,
		Action:     action,
		OccurredAt: r.tick(),
	}
	if actor != nil {
		entry.Actor = model.AuditActor{UserID: actor.ID, Username: actor.Username}
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return model.AuditEntry{}, fmt.Errorf("marshal audit payload: %w", err)
		}
		entry.Payload = raw
	}

	if err := sink.Append(ctx, &entry); err != nil {
		return model.AuditEntry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return entry, nil
}

func (r *Recorder) tick() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC().Truncate(time.Microsecond)
	if !now.After(r.last) {
		now = r.last.Add(time.Microsecond)
	}
	r.last = now
	return now
}
