// Package storeerr defines the sentinel error taxonomy shared by every
// component that talks to the legacy store, the target store, or the
// coordination service.
package storeerr

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrConfiguration indicates a missing or invalid env var or snapshot file. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrCoordinationUnavailable indicates the coordination service cannot be reached. Fatal to the worker.
	ErrCoordinationUnavailable = errors.New("coordination service unavailable")

	// ErrReferenceMissing indicates a required PlatformCountry, Country, or
	// BaseCategory is absent. Non-fatal: counted as a per-record failure.
	ErrReferenceMissing = errors.New("reference missing")

	// ErrSourceDataMalformed indicates unparseable provider or gallery JSON.
	ErrSourceDataMalformed = errors.New("source data malformed")

	// ErrTargetWriteConflict indicates an insert violated a unique constraint.
	ErrTargetWriteConflict = errors.New("target write conflict")

	// ErrTransientStore indicates connection loss or a timeout talking to a store.
	ErrTransientStore = errors.New("transient store error")

	// ErrNotFound indicates a lookup found no matching row.
	ErrNotFound = errors.New("not found")
)

const mysqlDuplicateEntry = 1062

// WrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to ErrNotFound and MySQL duplicate-key errors to
// ErrTargetWriteConflict so callers can branch with errors.Is instead of
// string matching.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%s: %w", op, ErrTargetWriteConflict)
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w", op, ErrTransientStore)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapDBErrorf is WrapDBError with a formatted operation string.
func WrapDBErrorf(err error, format string, args ...interface{}) error {
	return WrapDBError(fmt.Sprintf(format, args...), err)
}

func isTransient(err error) bool {
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is or wraps ErrTargetWriteConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrTargetWriteConflict) }

// IsTransient reports whether err is or wraps ErrTransientStore.
func IsTransient(err error) bool { return errors.Is(err, ErrTransientStore) }
