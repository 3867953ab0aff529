package model

// Session is the per-request view of who is calling.
//
// It is materialized from a signed token on every request by copying role,
// discriminator and id from the backing User. A nil *Session means the caller
// is anonymous. Nothing outside the auth service builds one.
type Session struct {
	UserID        string `json:"userId"`
	Role          Role   `json:"role"`
	Discriminator string `json:"discriminator"`
	DisplayName   string `json:"displayName,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
}
