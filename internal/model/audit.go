package model

import (
	"encoding/json"
	"time"
)

type AuditAction string

const (
	AuditCreated      AuditAction = "created"
	AuditEdited       AuditAction = "edited"
	AuditDeleted      AuditAction = "deleted"
	AuditRestored     AuditAction = "restored"
	AuditStateChanged AuditAction = "state_changed"
)

type AuditActor struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// AuditEntry is an immutable record of one mutation of an entity.
type AuditEntry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	EntityID   string          `json:"entity_id"`
	Action     AuditAction     `json:"action"`
	Actor      AuditActor      `json:"actor"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type AuditQuery struct {
	Kind     string
	EntityID string
	Action   string
	ActorID  string
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}

// Match applies the query filters to an entry, ignoring paging.
func (q AuditQuery) Match(e AuditEntry) bool {
	if q.Kind != "" && q.Kind != e.Kind {
		return false
	}
	if q.EntityID != "" && q.EntityID != e.EntityID {
		return false
	}
	if q.Action != "" && q.Action != string(e.Action) {
		return false
	}
	if q.ActorID != "" && q.ActorID != e.Actor.UserID {
		return false
	}
	if !q.From.IsZero() && e.OccurredAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.OccurredAt.After(q.To) {
		return false
	}
	return true
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
