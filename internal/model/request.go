package model

import "encoding/json"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type CreateUnitRequest struct {
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

type SubmitEntityRequest struct {
	UnitID string          `json:"unit_id"`
	Data   json.RawMessage `json:"data"`
	Dest   string          `json:"dest"`
}

type SwitchStatusRequest struct {
	Dest    string         `json:"dest"`
	Confirm bool           `json:"confirm"`
	Bonus   map[string]any `json:"bonus"`
}

type ContactRequest struct {
	Group   string `json:"group"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
