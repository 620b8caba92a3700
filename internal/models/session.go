package models

import "time"

// Session is the authenticated context of one signed-in user.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DefaultUserName is assigned when the identity provider has no display name.
const DefaultUserName = "Farmer"

// NeedsProfileSetup reports whether the user still has the placeholder name.
func (s Session) NeedsProfileSetup() bool {
	return s.Name == "" || s.Name == DefaultUserName
}
