package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// withTx runs fn inside a transaction and commits when fn returns nil.
// Any error, or a panic, rolls the transaction back.
//
// The pool has a single connection, so fn must only use tx. Touching conn
// from inside fn would wait forever for the connection tx is holding.
//
//	err := withTx(ctx, conn, func(tx *sql.Tx) error {
//	    if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE item_id = ?`, id); err != nil {
//	        return err
//	    }
//	    _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
//	    return err
//	})
func withTx(ctx context.Context, conn *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("sqlite: rollback failed (%v) after: %w", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
