package source

import (
	"database/sql"
	"log/slog"
)

// Select chooses the snapshot backend if snapshotPath names an
// existing file, else falls back to the store backend (spec.md §4.3,
// "Selection is by presence of the snapshot file").
func Select(db *sql.DB, snapshotPath string, log *slog.Logger) Reader {
	if SnapshotExists(snapshotPath) {
		return NewSnapshotReader(snapshotPath, log)
	}
	return NewStoreReader(db)
}
