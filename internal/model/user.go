// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the permission level of a user account.
//
// WHY A NAMED STRING TYPE?
// A plain string would let any value through ("admin", "Admin", "root"...).
// A named type documents intent at every call site and lets us hang
// validation (ParseRole, Valid) off it. The values match the CHECK
// constraint on users.role in the database.
type Role string

const (
	// RoleInvited is a signed-in user with read and like access only.
	// It is also the safe default for any session missing role data.
	RoleInvited Role = "INVITED"
	// RoleContributor can submit new items. New accounts start here.
	RoleContributor Role = "CONTRIBUTOR"
	// RoleAdmin can delete any item and manage users.
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleInvited, RoleContributor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts user input ("admin", " Contributor ") into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("model: unknown role %q", s)
	}
	return r, nil
}

// User represents a registered user account.
//
// We use Discord OAuth as the identity provider, so the primary external
// identifier is the Discord user ID (a snowflake, kept as a string because it
// overflows JavaScript numbers on the client side). We still generate our own
// internal string ID (xid) to avoid tying our primary keys to a third-party's
// numbering scheme.
//
// DisplayName and AvatarURL mirror the provider's profile and are refreshed
// on every sign-in. Role is only changed by an administrator.
//
// WHY Email *string?
// Discord only returns an email when the "email" scope is granted, and the
// column is UNIQUE. An empty string would collide between two accounts without
// email; NULL never collides.
type User struct {
	ID            string    `json:"id"            db:"id"`
	ExternalID    string    `json:"externalId"    db:"external_id"` // Discord snowflake
	Provider      string    `json:"provider"      db:"provider"`    // "discord"
	DisplayName   string    `json:"displayName"   db:"display_name"`
	AvatarURL     string    `json:"avatarUrl"     db:"avatar_url"`
	Discriminator string    `json:"discriminator" db:"discriminator"` // e.g. "0007"
	Email         *string   `json:"email,omitempty" db:"email"`
	Role          Role      `json:"role"          db:"role"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}
