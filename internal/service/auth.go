// Package service: authentication business logic.
//
// AuthService is the Session Issuer. It sits between the HTTP handlers and
// the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// SIGN-IN STATE MACHINE:
//
//	Unauthenticated ─(Discord callback)→ ProfileReceived ─(directory lookup)→ Linked | NewUser → SessionActive
//
//   - Linked:  a user with this Discord id exists, or (no such user, but) a
//     user with the same non-empty email and the same provider exists.
//     The stored profile is overwritten with the fresh one.
//   - NewUser: nobody matched; a CONTRIBUTOR is created.
//
// Reaching SessionActive never depends on the directory write succeeding.
// A failed lookup or write is logged as an upstream sync failure and the
// session is issued anyway (see SignIn).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/auth"
	"github.com/sakif/item-atlas/internal/metrics"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
)

// provisionalPrefix marks a token subject that is an external id rather than
// an internal user id. It is only issued when the directory could not store
// the user during sign-in.
const provisionalPrefix = "provisional:"

// compile-time check: the session middleware can load sessions through us.
var _ auth.SessionLoader = (*AuthService)(nil)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users    repository.UserRepository → the user directory
//   - tokens   *auth.TokenService        → sign/verify session tokens
//   - metrics  *metrics.Metrics          → sign-in outcome counters (may be nil)
//   - logger   *slog.Logger              → structured logging
type AuthService struct {
	users   repository.UserRepository
	tokens  *auth.TokenService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		metrics: m,
		logger:  logger,
	}
}

// AuthResult is returned by SignIn.
// It bundles the session and the signed token so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	Session *model.Session
	Token   string
}

// SignIn runs the sign-in state machine for a Discord profile that has just
// been received from the OAuth callback.
//
// The only errors returned are an unusable profile (no id) and a failure to
// sign the token. Directory failures are not errors here: they are logged
// with apperror.ErrUpstreamSync and the session is built from whatever the
// directory could give us.
func (s *AuthService) SignIn(ctx context.Context, profile auth.DiscordProfile) (*AuthResult, error) {
	identity, err := auth.NormalizeDiscordProfile(profile)
	if err != nil {
		s.metrics.SignIn(metrics.SignInRejected)
		return nil, apperror.ValidationFailed("profile", err.Error())
	}

	user, outcome, syncErr := s.syncDirectory(ctx, identity)
	if syncErr != nil {
		s.logger.Error("directory sync failed during sign-in, issuing session anyway",
			slog.String("externalID", identity.ExternalID),
			slog.String("error", syncErr.Error()),
		)
		outcome = metrics.SignInSyncFailed
	}
	s.metrics.SignIn(outcome)

	var (
		session *model.Session
		subject string
	)
	if user != nil {
		session = sessionFromUser(user)
		subject = user.ID
	} else {
		// No directory record at all: a signed-in session with the safe
		// default role. MaterializeSession retries the lookup on every request.
		session = &model.Session{
			Role:          model.RoleInvited,
			Discriminator: identity.Discriminator,
			DisplayName:   identity.DisplayName,
			AvatarURL:     identity.AvatarURL,
		}
		subject = provisionalPrefix + identity.Provider + ":" + identity.ExternalID
	}

	token, err := s.tokens.Generate(subject, identity.Discriminator)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", subject, err)
	}

	s.logger.Info("user signed in",
		slog.String("userID", session.UserID),
		slog.String("outcome", outcome),
		slog.String("role", string(session.Role)),
	)

	return &AuthResult{Session: session, Token: token}, nil
}

// syncDirectory finds or creates the user for identity and mirrors the
// profile onto it.
//
// It returns the best user record it has even when it also returns an error:
// a user found by id whose profile update failed is still a valid user.
func (s *AuthService) syncDirectory(ctx context.Context, identity auth.Identity) (*model.User, string, error) {
	// 1. Linked by external id.
	user, err := s.users.GetByExternalID(ctx, identity.Provider, identity.ExternalID)
	switch {
	case err == nil:
		if err := s.applyProfile(ctx, user, identity); err != nil {
			return user, metrics.SignInLinked, apperror.UpstreamSync("profile update", err)
		}
		return user, metrics.SignInLinked, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, "", apperror.UpstreamSync("lookup by external id", err)
	}

	// 2. Linked by email. Only a non-empty email from the same provider may
	//    claim an existing account.
	if identity.Email != "" {
		user, err := s.users.GetByEmail(ctx, identity.Email)
		switch {
		case err == nil && user.Provider == identity.Provider:
			if err := s.applyProfile(ctx, user, identity); err != nil {
				return user, metrics.SignInEmailLinked, apperror.UpstreamSync("profile update", err)
			}
			return user, metrics.SignInEmailLinked, nil
		case err == nil:
			// Same email, different provider: no silent merge. The create
			// below will hit the email UNIQUE constraint and be reported.
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, "", apperror.UpstreamSync("lookup by email", err)
		}
	}

	// 3. New user.
	user = &model.User{
		ExternalID:    identity.ExternalID,
		Provider:      identity.Provider,
		DisplayName:   identity.DisplayName,
		AvatarURL:     identity.AvatarURL,
		Discriminator: identity.Discriminator,
		Email:         emailPtr(identity.Email),
		Role:          model.RoleContributor,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", apperror.UpstreamSync("create user", err)
	}
	return user, metrics.SignInCreated, nil
}

// applyProfile overwrites the provider-owned fields of user with identity
// and persists them. The in-memory user is updated even if the write fails.
func (s *AuthService) applyProfile(ctx context.Context, user *model.User, identity auth.Identity) error {
	user.ExternalID = identity.ExternalID
	user.Provider = identity.Provider
	user.DisplayName = identity.DisplayName
	user.AvatarURL = identity.AvatarURL
	user.Discriminator = identity.Discriminator
	if identity.Email != "" {
		user.Email = emailPtr(identity.Email)
	}
	return s.users.UpdateProfile(ctx, user)
}

// MaterializeSession turns a session token into the caller's Session.
//
// Role, discriminator and id are copied from the backing User on every call,
// so role changes apply on the next request. Any token problem, or a user
// that no longer exists, is apperror.ErrUnauthenticated.
func (s *AuthService) MaterializeSession(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthenticated()
	}

	if rest, ok := strings.CutPrefix(claims.Subject, provisionalPrefix); ok {
		return s.materializeProvisional(ctx, rest, claims), nil
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated()
		}
		return nil, fmt.Errorf("service/auth: loading session user %s: %w", claims.Subject, err)
	}

	return sessionFromUser(user), nil
}

// materializeProvisional resolves a "provisional:<provider>:<externalID>"
// subject. If the directory has the user by now, the session is the real one.
// Otherwise it stays an INVITED session without a user id.
func (s *AuthService) materializeProvisional(ctx context.Context, rest string, claims *auth.TokenClaims) *model.Session {
	provider, externalID, _ := strings.Cut(rest, ":")
	if user, err := s.users.GetByExternalID(ctx, provider, externalID); err == nil {
		return sessionFromUser(user)
	}
	return &model.Session{
		Role:          model.RoleInvited,
		Discriminator: claims.Discriminator,
	}
}

// TokenTTL is the lifetime of issued tokens; the handler uses it for the cookie.
func (s *AuthService) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

// sessionFromUser copies the session fields from the directory record.
// A user with no (or an unknown) role gets INVITED, never CONTRIBUTOR.
func sessionFromUser(u *model.User) *model.Session {
	role := u.Role
	if !role.Valid() {
		role = model.RoleInvited
	}
	return &model.Session{
		UserID:        u.ID,
		Role:          role,
		Discriminator: u.Discriminator,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
	}
}

func emailPtr(email string) *string {
	if email == "" {
		return nil
	}
	return &email
}
