package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"sasana/internal/registry/models"
)

// recordTableDDL is the per-family table shape. Constraint names follow the
// canonical scheme the allocation loop classifies on, so they are spelled
// out instead of left to postgres defaults.
const recordTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	internal_id             BIGSERIAL,
	public_code             TEXT        NOT NULL,
	name                    TEXT        NOT NULL,
	address                 TEXT        NOT NULL DEFAULT '',
	district                TEXT        NOT NULL DEFAULT '',
	phone                   TEXT,
	email                   TEXT,
	notes                   TEXT        NOT NULL DEFAULT '',
	workflow_status         TEXT        NOT NULL DEFAULT 'PENDING',
	is_deleted              BOOLEAN     NOT NULL DEFAULT FALSE,
	version_number          BIGINT      NOT NULL DEFAULT 1,
	created_by              TEXT        NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL,
	updated_by              TEXT        NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL,
	approved_by             TEXT        NOT NULL DEFAULT '',
	approved_at             TIMESTAMPTZ,
	rejected_by             TEXT        NOT NULL DEFAULT '',
	rejected_at             TIMESTAMPTZ,
	rejected_reason         TEXT        NOT NULL DEFAULT '',
	printed_by              TEXT        NOT NULL DEFAULT '',
	printed_at              TIMESTAMPTZ,
	scanned_by              TEXT        NOT NULL DEFAULT '',
	scanned_at              TIMESTAMPTZ,
	scanned_document_ref    TEXT        NOT NULL DEFAULT '',
	reprint_status          TEXT        NOT NULL DEFAULT 'NONE',
	reprint_requested_by    TEXT        NOT NULL DEFAULT '',
	reprint_requested_at    TIMESTAMPTZ,
	reprint_reason          TEXT        NOT NULL DEFAULT '',
	reprint_approved_by     TEXT        NOT NULL DEFAULT '',
	reprint_approved_at     TIMESTAMPTZ,
	reprint_rejected_by     TEXT        NOT NULL DEFAULT '',
	reprint_rejected_at     TIMESTAMPTZ,
	reprint_rejected_reason TEXT        NOT NULL DEFAULT '',
	reprint_completed_by    TEXT        NOT NULL DEFAULT '',
	reprint_completed_at    TIMESTAMPTZ,
	CONSTRAINT pk_%[1]s PRIMARY KEY (internal_id),
	CONSTRAINT uq_%[1]s_public_code UNIQUE (public_code),
	CONSTRAINT uq_%[1]s_phone UNIQUE (phone),
	CONSTRAINT uq_%[1]s_email UNIQUE (email)
)`

const sharedDDL = `
CREATE TABLE IF NOT EXISTS code_counters (
	family      TEXT   NOT NULL,
	scope       TEXT   NOT NULL,
	last_issued BIGINT NOT NULL,
	CONSTRAINT pk_code_counters PRIMARY KEY (family, scope)
);

CREATE TABLE IF NOT EXISTS retired_codes (
	family      TEXT        NOT NULL,
	public_code TEXT        NOT NULL,
	retired_by  TEXT        NOT NULL DEFAULT '',
	retired_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT pk_retired_codes PRIMARY KEY (family, public_code)
);

CREATE TABLE IF NOT EXISTS audit_outbox (
	outbox_id    BIGSERIAL   PRIMARY KEY,
	event_id     UUID        NOT NULL UNIQUE,
	family       TEXT        NOT NULL DEFAULT '',
	record_id    BIGINT      NOT NULL DEFAULT 0,
	public_code  TEXT        NOT NULL DEFAULT '',
	action       TEXT        NOT NULL,
	actor_id     TEXT        NOT NULL DEFAULT '',
	reason       TEXT        NOT NULL DEFAULT '',
	request_id   TEXT        NOT NULL DEFAULT '',
	occurred_at  TIMESTAMPTZ NOT NULL,
	payload      JSONB       NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_audit_outbox_unpublished
	ON audit_outbox (outbox_id) WHERE published_at IS NULL`

// EnsureSchema creates every table the registry needs. It is idempotent and
// safe to run at startup; the migrate subcommand and the integration tests
// both go through it.
func EnsureSchema(ctx context.Context, db *sql.DB, families models.FamilySet) error {
	for _, name := range families.Names() {
		f, _ := families.Get(name)
		// Family tables are validated identifiers, never user input.
		if _, err := db.ExecContext(ctx, fmt.Sprintf(recordTableDDL, f.Table)); err != nil {
			return fmt.Errorf("ensure %s table: %w", f.Name, translateError(err))
		}
	}
	if _, err := db.ExecContext(ctx, sharedDDL); err != nil {
		return fmt.Errorf("ensure shared tables: %w", translateError(err))
	}
	return nil
}
