package event

type Type string

const (
	TypeEntityCreated       Type = "entity.created"
	TypeEntityEdited        Type = "entity.edited"
	TypeEntityDeleted       Type = "entity.deleted"
	TypeEntityRestored      Type = "entity.restored"
	TypeEntityStatusChanged Type = "entity.status_changed"
	TypeNotificationSent    Type = "notification.sent"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"`
}

// EntityPayload describes which entity an entity.* event is about.
type EntityPayload struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	UnitID string `json:"unit_id,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
