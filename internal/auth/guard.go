package auth

import "github.com/sakif/item-atlas/internal/model"

// AUTHORIZATION GUARD:
// These three predicates are the only role checks in the application.
// Handlers may use them to hide controls, but the service layer calls them
// again right before every mutation. That is the check that counts.
//
// All of them take a *model.Session; nil means anonymous and is always denied.

// CanDelete reports whether the session may delete a resource owned by ownerID.
// True iff the session is an admin, or the session's user is the owner.
// An empty ownerID (author removed) never matches a user.
func CanDelete(s *model.Session, ownerID string) bool {
	if s == nil {
		return false
	}
	if s.Role == model.RoleAdmin {
		return true
	}
	return ownerID != "" && s.UserID == ownerID
}

// CanWrite reports whether the session may create new items.
func CanWrite(s *model.Session) bool {
	if s == nil {
		return false
	}
	return s.Role == model.RoleContributor || s.Role == model.RoleAdmin
}

// CanAdminister reports whether the session may manage users.
func CanAdminister(s *model.Session) bool {
	return s != nil && s.Role == model.RoleAdmin
}
