package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Import history is the dedup ledger for whole payloads: an uploaded file is
// keyed by its content digest, an external sync by its source identifier.
// The table is intentionally non-authoritative so operators can wipe it and
// force a full re-import without touching the real health data.

// FindImportHistory reports whether a payload was already imported.
func (db *Database) FindImportHistory(ctx context.Context, source, sourceID string) (bool, error) {
	source = strings.TrimSpace(source)
	sourceID = strings.TrimSpace(sourceID)
	if source == "" || sourceID == "" {
		return false, nil
	}
	query := fmt.Sprintf(`SELECT 1 FROM import_history WHERE source = %s AND source_id = %s LIMIT 1`,
		placeholder(db.Driver, 1), placeholder(db.Driver, 2))
	var one int
	if err := db.DB.QueryRowContext(ctx, query, source, sourceID).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("find import history: %w", err)
	}
	return true, nil
}

// EnsureImportHistory records a completed import so future runs can skip
// already-processed payloads.  The insert is guarded by NOT EXISTS, which
// keeps it portable across every supported engine.
func (db *Database) EnsureImportHistory(ctx context.Context, source, sourceID, status, message string) error {
	source = strings.TrimSpace(source)
	sourceID = strings.TrimSpace(sourceID)
	status = strings.TrimSpace(status)
	message = strings.TrimSpace(message)
	if source == "" || sourceID == "" {
		return nil
	}
	if status == "" {
		status = "imported"
	}
	importedAt := time.Now().Unix()

	stmt := fmt.Sprintf(`INSERT INTO import_history (source, source_id, status, imported_at, message)
SELECT %s, %s, %s, %s, %s
WHERE NOT EXISTS (SELECT 1 FROM import_history WHERE source = %s AND source_id = %s)`,
		placeholder(db.Driver, 1), placeholder(db.Driver, 2), placeholder(db.Driver, 3),
		placeholder(db.Driver, 4), placeholder(db.Driver, 5),
		placeholder(db.Driver, 6), placeholder(db.Driver, 7))
	if _, err := db.DB.ExecContext(ctx, stmt, source, sourceID, status, importedAt, message, source, sourceID); err != nil {
		return fmt.Errorf("insert import history: %w", err)
	}
	return nil
}
