package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/item-atlas/internal/repository"
)

var _ repository.LikeRepository = (*LikeDB)(nil)

// LikeDB is the like ledger: one row per (user, item) pair.
type LikeDB struct {
	conn *sql.DB
}

// Insert records that userID likes itemID.
//
// AT MOST ONE LIKE PER PAIR:
// (user_id, item_id) is the primary key, so the database itself serializes
// two racing inserts: exactly one succeeds, the other gets a UNIQUE/PRIMARY KEY
// violation, reported here as apperror.ErrConflict.
//
// A missing item (or user) fails the foreign key and is reported as
// apperror.ErrNotFound.
func (r *LikeDB) Insert(ctx context.Context, userID, itemID string) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO likes (user_id, item_id, created_at) VALUES (?, ?, ?)`,
		userID, itemID, time.Now().UTC(),
	)
	if err != nil {
		if mapped := mapConstraintError(err, "item", itemID); mapped != err {
			return mapped
		}
		return fmt.Errorf("sqlite: inserting like (%s, %s): %w", userID, itemID, err)
	}
	return nil
}

// Delete removes the like. Deleting a pair that does not exist is a no-op.
func (r *LikeDB) Delete(ctx context.Context, userID, itemID string) error {
	_, err := r.conn.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND item_id = ?`, userID, itemID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting like (%s, %s): %w", userID, itemID, err)
	}
	return nil
}

// Exists reports whether userID currently likes itemID.
func (r *LikeDB) Exists(ctx context.Context, userID, itemID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM likes WHERE user_id = ? AND item_id = ?)`,
		userID, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking like (%s, %s): %w", userID, itemID, err)
	}
	return exists, nil
}

// Count returns how many users like itemID.
func (r *LikeDB) Count(ctx context.Context, itemID string) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE item_id = ?`, itemID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting likes of item %s: %w", itemID, err)
	}
	return n, nil
}
