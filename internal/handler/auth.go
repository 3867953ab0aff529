package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/service"
)

const stateCookieName = "oauth_state"

var _ IdentityProvider = (*auth.DiscordProvider)(nil)

// IdentityProvider is the OAuth side of sign-in. *auth.DiscordProvider
// implements it; tests pass a fake.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.DiscordProfile, error)
}

// AuthHandler manages the Discord OAuth login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleDiscordLogin    → redirect the browser to Discord's authorization page
//   - HandleDiscordCallback → receive the code, exchange it for a profile, sign in
//   - HandleLogout          → clear the session cookie
//   - HandleSession         → return the materialized session of the caller
type AuthHandler struct {
	provider     IdentityProvider
	auth         *service.AuthService
	cookieSecure bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. cookieSecure should be true behind HTTPS.
func NewAuthHandler(provider IdentityProvider, authService *service.AuthService, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider:     provider,
		auth:         authService,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// HandleDiscordLogin redirects the user to Discord's authorization page.
//
// HTTP: GET /auth/discord/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleDiscordCallback completes the OAuth login flow.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Discord profile
//  3. AuthService.SignIn: directory sync and session token
//  4. Store the token in an HttpOnly cookie and redirect to the app
func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// The user denied authorization on Discord.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for the Discord profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	profile, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Discord exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: Sign in ---
	result, err := h.auth.SignIn(r.Context(), *profile)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	// --- Step 4: Session cookie ---
	// HttpOnly = JavaScript cannot read this cookie (XSS protection).
	// SameSite=Lax = sent on top-level navigations but not cross-site POSTs.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   h.auth.TokenTTL(),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so logging out only deletes the client-side cookie.
// The token itself stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleSession returns the caller's materialized session.
//
// HTTP: GET /api/session
// Auth: Required (RequireAuth has already put the session in the context)
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		writeError(w, apperror.Unauthenticated())
		return
	}
	writeJSON(w, http.StatusOK, session)
}
