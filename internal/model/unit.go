package model

import "time"

// Unit is a node of the organizational tree. The root has an empty ParentID.
type Unit struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (u Unit) IsRoot() bool {
	return u.ParentID == ""
}

type UnitNode struct {
	Unit
	Children []UnitNode `json:"children,omitempty"`
}
