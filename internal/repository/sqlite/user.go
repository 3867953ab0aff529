package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/item-atlas/internal/apperror"
	"github.com/sakif/item-atlas/internal/model"
	"github.com/sakif/item-atlas/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the user directory table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, external_id, provider, display_name, avatar_url, discriminator,
	email, role, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var u model.User
	var role string
	err := s.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Provider,
		&u.DisplayName,
		&u.AvatarURL,
		&u.Discriminator,
		&u.Email,
		&role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// Create inserts a new user. ID, timestamps and (when empty) Role are filled in
// on the caller's struct. New users start as CONTRIBUTOR.
//
// A duplicate (provider, external_id) or email is reported as apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.Role == "" {
		user.Role = model.RoleContributor
	}
	user.Email = normalizeEmail(user.Email)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.ExternalID,
		user.Provider,
		user.DisplayName,
		user.AvatarURL,
		user.Discriminator,
		user.Email,
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if mapped := mapConstraintError(err, "user", user.ExternalID); mapped != err {
			return mapped
		}
		return fmt.Errorf("sqlite: inserting user (externalID=%s): %w", user.ExternalID, err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByExternalID looks a user up by the identity provider's id for them.
func (u *UserDB) GetByExternalID(ctx context.Context, provider, externalID string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND external_id = ?`,
		provider, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+":"+externalID)
		}
		return nil, fmt.Errorf("sqlite: getting user by external id %s: %w", externalID, err)
	}
	return user, nil
}

// GetByEmail looks a user up by email. An empty email never matches.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, apperror.NotFound("user", "<empty email>")
	}
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

// UpdateProfile mirrors the provider's current profile onto the stored user.
// Role and CreatedAt are never touched; UpdatedAt is refreshed.
func (u *UserDB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users
		 SET external_id = ?, provider = ?, display_name = ?, avatar_url = ?,
		     discriminator = ?, email = ?, updated_at = ?
		 WHERE id = ?`,
		user.ExternalID,
		user.Provider,
		user.DisplayName,
		user.AvatarURL,
		user.Discriminator,
		user.Email,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if mapped := mapConstraintError(err, "user", user.ID); mapped != err {
			return mapped
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	return expectOneRow(result, "user", user.ID)
}

// SetRole changes a user's role.
func (u *UserDB) SetRole(ctx context.Context, id string, role model.Role) error {
	if !role.Valid() {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting role of user %s: %w", id, err)
	}

	return expectOneRow(result, "user", id)
}

// List returns every user, oldest account first.
func (u *UserDB) List(ctx context.Context) ([]model.User, error) {
	rows, err := u.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// normalizeEmail stores "no email" as NULL so the UNIQUE index never
// collides between two accounts without one.
func normalizeEmail(email *string) *string {
	if email == nil || *email == "" {
		return nil
	}
	return email
}

// expectOneRow turns "0 rows affected" into apperror.ErrNotFound.
func expectOneRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
