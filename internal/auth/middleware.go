package auth

import (
	"context"
	"net/http"

	"github.com/sakif/item-atlas/internal/model"
)

// SessionCookieName is the HttpOnly cookie holding the session token.
const SessionCookieName = "session"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. With a plain string key, ANY
// package that knows the string could read or shadow the value. Only this
// package can create a key of type contextKey.
type contextKey string

const sessionKey contextKey = "session"

// SessionLoader turns a raw token into a materialized session.
// service.AuthService implements it; the middleware only needs this one method.
type SessionLoader interface {
	MaterializeSession(ctx context.Context, token string) (*model.Session, error)
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the session token from the cookie (or an "Authorization: Bearer"
// header, for API clients), materializes the session and stores it in the
// request context. Missing or invalid token → 401 and the chain stops.
//
// The session is materialized once per request and lives only in that
// request's context; nothing is cached across requests.
func RequireAuth(loader SessionLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := loadSession(r, loader)
			if err != nil || session == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthenticated","message":"valid authentication required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// OptionalAuth extracts the session if a valid token is present, but does NOT
// block the request when it's missing or invalid.
//
// Used on read routes like GET /api/items: anonymous users can browse, signed-in
// users additionally get their own "hasLiked" flags and pending items.
func OptionalAuth(loader SessionLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if session, err := loadSession(r, loader); err == nil && session != nil {
				r = r.WithContext(WithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the request's session, or nil for anonymous requests.
//
// Usage in handlers:
//
//	session := auth.SessionFromContext(r.Context())
//	if session == nil {
//	    // anonymous user
//	}
func SessionFromContext(ctx context.Context) *model.Session {
	s, _ := ctx.Value(sessionKey).(*model.Session)
	return s
}

// loadSession reads the token and asks the loader to materialize it.
// Shared by RequireAuth and OptionalAuth.
func loadSession(r *http.Request, loader SessionLoader) (*model.Session, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, http.ErrNoCookie
	}
	return loader.MaterializeSession(r.Context(), token)
}

// TokenFromRequest returns the session token from the cookie, falling back to
// a Bearer Authorization header. Empty string when neither is present.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
