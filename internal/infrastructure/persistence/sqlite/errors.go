package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
)

// StorageError classifies a driver error for the engine.
// Constraint violations mean another writer got there first; everything else is transient.
func StorageError(op string, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return wrapf(workflow.ErrStaleVersion, "%s: %v", op, err)
	}
	return wrapf(workflow.ErrStorageFailure, "%s: %v", op, err)
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED
func IsBusy(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked
}

// Failure wraps err as a transient storage failure regardless of its kind
func Failure(op string, err error) error {
	return wrapf(workflow.ErrStorageFailure, "%s: %v", op, err)
}
