package sqlite

import (
	"errors"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/item-atlas/internal/apperror"
)

// SQLITE ERROR MAPPING:
// The driver returns *sqlitedriver.Error carrying the extended result code, so a
// constraint violation is told apart by code, never by message text:
//
//	SQLITE_CONSTRAINT_UNIQUE / _PRIMARYKEY → apperror.ErrConflict
//	SQLITE_CONSTRAINT_FOREIGNKEY           → apperror.ErrNotFound
//	SQLITE_CONSTRAINT_CHECK                → apperror.ErrValidation
//
// Anything else is returned unchanged and ends up as a 500.
// resource/id only flavour the message of the returned AppError.
func mapConstraintError(err error, resource, id string) error {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return apperror.Conflict(resource, id)
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return apperror.NotFound(resource, id)
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return apperror.ValidationFailed(resource, "value violates a "+resource+" constraint")
	}
	return err
}
