// Package model defines the data structures used throughout the application.
package model

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Identity is one authenticated Discord user and their OAuth credentials.
//
// ID is Discord's snowflake for the account and doubles as the primary key,
// so re-authenticating overwrites the existing row instead of adding one.
// Tokens never leave the service: they are tagged json:"-".
type Identity struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	AccessToken   string       `json:"-"`
	RefreshToken  string       `json:"-"`
	ExpiresAt     time.Time    `json:"expiresAt"`
	Email         string       `json:"email"`          // may be empty if the email scope was refused
	SourceAddress string       `json:"sourceAddress"` // client IP at authentication time
}

// Expired reports whether the access token can no longer be used at now.
// A token expiring exactly at now counts as expired.
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
