package model

import (
	"encoding/json"
	"time"
)

// Entity is any business object managed by the lifecycle engine.
type Entity interface {
	Header() *EntityHeader
}

// EntityHeader carries the columns shared by every entity kind. Concrete
// kinds embed it.
type EntityHeader struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	UnitID       string    `json:"unit_id,omitempty"`
	BlankOwnerID string    `json:"blank_owner_id,omitempty"`
	Deleted      bool      `json:"deleted"`
	Status       string    `json:"status,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (h *EntityHeader) Header() *EntityHeader {
	return h
}

// Unscoped reports whether the entity is owned by no unit.
func (h *EntityHeader) Unscoped() bool {
	return h.UnitID == ""
}

// EntityRecord is the stored form of an entity: header columns plus the
// JSON document of the whole object.
type EntityRecord struct {
	EntityHeader
	Data json.RawMessage `json:"data"`
}

// UnitFilter restricts a query by owning unit. The zero value matches any
// unit; Set with an empty ID matches unscoped entities only.
type UnitFilter struct {
	Set bool
	ID  string
}

func InUnit(id string) UnitFilter {
	return UnitFilter{Set: true, ID: id}
}

func (f UnitFilter) Match(unitID string) bool {
	return !f.Set || f.ID == unitID
}

type EntityQuery struct {
	Kind         string
	Unit         UnitFilter
	BlankOwnerID string
	Deleted      bool
	Status       []string
	Offset       int
	Limit        int
}

// Match applies the query filters to a header, ignoring paging.
func (q EntityQuery) Match(h EntityHeader) bool {
	if h.Kind != q.Kind || h.Deleted != q.Deleted {
		return false
	}
	if !q.Unit.Match(h.UnitID) {
		return false
	}
	if q.BlankOwnerID != "" && h.BlankOwnerID != q.BlankOwnerID {
		return false
	}
	if len(q.Status) > 0 {
		for _, s := range q.Status {
			if s == h.Status {
				return true
			}
		}
		return false
	}
	return true
}
