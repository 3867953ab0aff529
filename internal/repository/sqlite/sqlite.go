// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary as a single file.
// No separate database server to install, configure, or manage. Perfect for
// a single-server community app and for tests (":memory:" gives an in-memory DB).
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, no C compiler needed.
//
// LAYOUT:
// DB owns the connection pool and the schema. Each table gets its own small
// repository type (UserDB, ItemDB, LikeDB) sharing that pool:
//
//	db, _ := sqlite.New("data/atlas.db")
//	users := db.Users()   // repository.UserRepository
//	items := db.Items()   // repository.ItemRepository
//	likes := db.Likes()   // repository.LikeRepository
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named "sqlite".
	// After this import, sql.Open("sqlite", ...) knows how to talk to SQLite.
	_ "modernc.org/sqlite"
)

// MIGRATION FILES:
// The SQL files under migrations/ are compiled into the binary with go:embed,
// so the server and atlasctl never depend on files next to the executable.
// golang-migrate records the applied version in schema_migrations.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// connPragmas are applied by the driver to every new connection.
//
//   - foreign_keys: OFF by default in SQLite; the likes cascade and
//     items.author_id SET NULL depend on it.
//   - busy_timeout: wait for a lock instead of failing with SQLITE_BUSY.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// DB wraps a sql.DB connection pool and hands out the table repositories.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and migrates it to the latest schema.
//
// dbPath examples:
//   - "data/atlas.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// ONE CONNECTION:
	// SQLite allows a single writer at a time. Funnelling the pool through one
	// connection serializes writers inside the process (no SQLITE_BUSY under
	// concurrent likes) and keeps ":memory:" databases from splitting into one
	// private database per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) lets readers proceed while a write is in
	// progress. In-memory databases have no journal file, so skip it there.
	if !isMemory(dbPath) {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn}

	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the user directory backed by this database.
func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }

// Items returns the item repository backed by this database.
func (db *DB) Items() *ItemDB { return &ItemDB{conn: db.conn} }

// Likes returns the like ledger backed by this database.
func (db *DB) Likes() *LikeDB { return &LikeDB{conn: db.conn} }

// Migrate applies every pending migration. It is idempotent: an up-to-date
// database is left untouched.
//
// The migrate.Migrate instance is never closed: closing it closes the
// database driver, which in turn closes db.conn.
func (db *DB) Migrate() error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version and whether the last
// migration was left half-applied.
func (db *DB) SchemaVersion() (version uint, dirty bool, err error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	return version, dirty, nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating migrator: %w", err)
	}
	return m, nil
}

// dsn appends the connection pragmas to a path, keeping any query string the
// caller already supplied.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + connPragmas
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}
