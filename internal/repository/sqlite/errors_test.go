package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/item-atlas/internal/apperror"
)

func TestMapConstraintError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "1", "taken")

	_, err := db.conn.ExecContext(ctx, `
		CREATE TRIGGER block_user_delete BEFORE DELETE ON users
		BEGIN
			SELECT RAISE(ABORT, 'blocked');
		END`)
	if err != nil {
		t.Fatalf("creating trigger: %v", err)
	}

	tests := []struct {
		name string
		stmt string
		args []any
		want error // nil: passed through untouched
	}{
		{
			name: "primary key",
			stmt: `INSERT INTO users (id, external_id, created_at, updated_at) VALUES (?, 'other', 0, 0)`,
			args: []any{user.ID},
			want: apperror.ErrConflict,
		},
		{
			name: "unique",
			stmt: `INSERT INTO users (id, external_id, provider, created_at, updated_at) VALUES ('u2', '1', 'discord', 0, 0)`,
			want: apperror.ErrConflict,
		},
		{
			name: "foreign key",
			stmt: `INSERT INTO likes (user_id, item_id, created_at) VALUES (?, 'missing', 0)`,
			args: []any{user.ID},
			want: apperror.ErrNotFound,
		},
		{
			name: "check",
			stmt: `UPDATE users SET role = 'ROOT' WHERE id = ?`,
			args: []any{user.ID},
			want: apperror.ErrValidation,
		},
		{
			name: "trigger",
			stmt: `DELETE FROM users WHERE id = ?`,
			args: []any{user.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, raw := db.conn.ExecContext(ctx, tt.stmt, tt.args...)
			if raw == nil {
				t.Fatal("statement succeeded, want a constraint error")
			}

			got := mapConstraintError(raw, "user", "x")
			if tt.want == nil {
				if got != raw {
					t.Errorf("mapConstraintError() = %v, want the error unchanged", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("mapConstraintError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapConstraintError_NonDriverError(t *testing.T) {
	plain := errors.New("UNIQUE constraint failed: users.email")
	if got := mapConstraintError(plain, "user", "x"); got != plain {
		t.Errorf("mapConstraintError() = %v, want the error unchanged", got)
	}
	if got := mapConstraintError(nil, "user", "x"); got != nil {
		t.Errorf("mapConstraintError(nil) = %v, want nil", got)
	}
}
