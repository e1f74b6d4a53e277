package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"sasana/internal/registry/models"
)

// recordTableDDL mirrors the postgres shape. AUTOINCREMENT is required:
// it is what makes SQLite track the family in sqlite_sequence, which
// ResyncSequence repairs.
const recordTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	internal_id             INTEGER   PRIMARY KEY AUTOINCREMENT,
	public_code             TEXT      NOT NULL UNIQUE,
	name                    TEXT      NOT NULL,
	address                 TEXT      NOT NULL DEFAULT '',
	district                TEXT      NOT NULL DEFAULT '',
	phone                   TEXT      UNIQUE,
	email                   TEXT      UNIQUE,
	notes                   TEXT      NOT NULL DEFAULT '',
	workflow_status         TEXT      NOT NULL DEFAULT 'PENDING',
	is_deleted              BOOLEAN   NOT NULL DEFAULT 0,
	version_number          INTEGER   NOT NULL DEFAULT 1,
	created_by              TEXT      NOT NULL,
	created_at              TIMESTAMP NOT NULL,
	updated_by              TEXT      NOT NULL,
	updated_at              TIMESTAMP NOT NULL,
	approved_by             TEXT      NOT NULL DEFAULT '',
	approved_at             TIMESTAMP,
	rejected_by             TEXT      NOT NULL DEFAULT '',
	rejected_at             TIMESTAMP,
	rejected_reason         TEXT      NOT NULL DEFAULT '',
	printed_by              TEXT      NOT NULL DEFAULT '',
	printed_at              TIMESTAMP,
	scanned_by              TEXT      NOT NULL DEFAULT '',
	scanned_at              TIMESTAMP,
	scanned_document_ref    TEXT      NOT NULL DEFAULT '',
	reprint_status          TEXT      NOT NULL DEFAULT 'NONE',
	reprint_requested_by    TEXT      NOT NULL DEFAULT '',
	reprint_requested_at    TIMESTAMP,
	reprint_reason          TEXT      NOT NULL DEFAULT '',
	reprint_approved_by     TEXT      NOT NULL DEFAULT '',
	reprint_approved_at     TIMESTAMP,
	reprint_rejected_by     TEXT      NOT NULL DEFAULT '',
	reprint_rejected_at     TIMESTAMP,
	reprint_rejected_reason TEXT      NOT NULL DEFAULT '',
	reprint_completed_by    TEXT      NOT NULL DEFAULT '',
	reprint_completed_at    TIMESTAMP
)`

const sharedDDL = `
CREATE TABLE IF NOT EXISTS code_counters (
	family      TEXT    NOT NULL,
	scope       TEXT    NOT NULL,
	last_issued INTEGER NOT NULL,
	PRIMARY KEY (family, scope)
);

CREATE TABLE IF NOT EXISTS retired_codes (
	family      TEXT      NOT NULL,
	public_code TEXT      NOT NULL,
	retired_by  TEXT      NOT NULL DEFAULT '',
	retired_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (family, public_code)
)`

// EnsureSchema creates every table the registry needs in the SQLite file.
// Idempotent; the embedded deployments run it at startup.
func EnsureSchema(ctx context.Context, db *sql.DB, families models.FamilySet) error {
	for _, name := range families.Names() {
		f, _ := families.Get(name)
		if _, err := db.ExecContext(ctx, fmt.Sprintf(recordTableDDL, f.Table)); err != nil {
			return fmt.Errorf("ensure %s table: %w", f.Name, translateError(f, err))
		}
	}
	if _, err := db.ExecContext(ctx, sharedDDL); err != nil {
		return fmt.Errorf("ensure shared tables: %w", err)
	}
	return nil
}
