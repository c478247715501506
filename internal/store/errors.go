package store

import (
	"database/sql"
	"errors"

	msqlite "modernc.org/sqlite"

	"github.com/segin2005/efgrabber/internal/model"
)

// Raw SQLite primary result codes (see sqlite3.h); modernc.org/sqlite
// surfaces these via (*sqlite.Error).Code() without exporting named
// constants for all of them.
const (
	sqliteBusy      = 5
	sqliteLocked    = 6
	sqliteConstraint = 19
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// classify wraps a raw driver/sql error into a model.StorageError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqliteBusy, sqliteLocked:
			return model.NewStorageError(model.IoFailure, op, err)
		case sqliteConstraint:
			return model.NewStorageError(model.ConstraintViolation, op, err)
		}
	}

	return model.NewStorageError(model.IoFailure, op, err)
}
