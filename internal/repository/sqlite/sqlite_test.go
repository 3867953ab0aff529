package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sakif/item-atlas/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" creates a fresh database that exists only during the test.
// Each test gets its own database, fully migrated, destroyed on Close.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, externalID, name string) *model.User {
	t.Helper()
	user := &model.User{
		ExternalID:    externalID,
		Provider:      "discord",
		DisplayName:   name,
		AvatarURL:     "https://cdn.discordapp.com/embed/avatars/0.png",
		Discriminator: "0001",
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestItem creates a public item owned by author at createdAt.
func createTestItem(t *testing.T, db *DB, author *model.User, location string, createdAt time.Time) *model.Item {
	t.Helper()
	item := &model.Item{
		Location:    location,
		Description: "behind the waterfall",
		GameVersion: "1.2",
		ShardID:     "eu-1",
		IsPublic:    true,
		CreatedAt:   createdAt,
	}
	if author != nil {
		item.AuthorID = &author.ID
	}
	if err := db.Items().Create(context.Background(), item); err != nil {
		t.Fatalf("failed to create test item: %v", err)
	}
	return item
}

// likeN has n fresh users like item.
func likeN(t *testing.T, db *DB, item *model.Item, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		u := createTestUser(t, db, item.ID+"-liker-"+string(rune('a'+i)), "liker")
		if err := db.Likes().Insert(context.Background(), u.ID, item.ID); err != nil {
			t.Fatalf("failed to like item: %v", err)
		}
	}
}

// =========================================================================
// SCHEMA TESTS
// =========================================================================

func TestNew_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != 3 {
		t.Errorf("SchemaVersion() = %d, want 3", version)
	}
	if dirty {
		t.Error("SchemaVersion() reports a dirty migration")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestNew_FileDatabaseReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	createTestUser(t, db, "123", "persisted")
	db.Close()

	// Reopening must not re-run migrations or lose data.
	db, err = New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer db.Close()

	if _, err := db.Users().GetByExternalID(context.Background(), "discord", "123"); err != nil {
		t.Errorf("GetByExternalID() after reopen: %v", err)
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	db := newTestDB(t)

	var on int
	if err := db.conn.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("reading foreign_keys pragma: %v", err)
	}
	if on != 1 {
		t.Errorf("foreign_keys = %d, want 1", on)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{":memory:", ":memory:?" + connPragmas},
		{"data/atlas.db", "data/atlas.db?" + connPragmas},
		{"file:x.db?mode=rwc", "file:x.db?mode=rwc&" + connPragmas},
	}
	for _, tt := range tests {
		if got := dsn(tt.in); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
