package model

import "time"

// Subject is the authenticated principal on whose behalf an operation runs.
type Subject struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Superuser bool      `json:"superuser"`
	Grants    []Grant   `json:"grants"`
	CreatedAt time.Time `json:"created_at"`
}

// Grant is a capability (accreditation) held by a subject in one unit.
type Grant struct {
	UnitID     string `json:"unit_id"`
	Capability string `json:"capability"`
}

// Account is a subject together with its credentials, as stored.
type Account struct {
	Subject
	PasswordHash string `json:"-"`
}

// HasGrant reports whether the subject holds capability directly in unitID.
func (s *Subject) HasGrant(unitID string, capability string) bool {
	if s == nil {
		return false
	}
	for _, g := range s.Grants {
		if g.UnitID == unitID && g.Capability == capability {
			return true
		}
	}
	return false
}

type AuthClaims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	Type     string `json:"typ"`
	TokenID  string `json:"jti"`
}

type TokenPair struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int64   `json:"expires_in"`
	Subject      Subject `json:"subject"`
}
