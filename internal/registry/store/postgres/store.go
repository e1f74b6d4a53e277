// Package postgres implements the registry store on PostgreSQL. The store
// works against whatever *sql.DB the caller opened, whether through pgx's
// stdlib adapter or lib/pq, and normalizes both drivers' errors.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sasana/internal/registry/codes"
	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
	"sasana/pkg/platform/sentinel"
	txcontext "sasana/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction carried in ctx when present, so every store
// method called under RunInTx shares it.
func (s *Store) conn(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// RunInTx runs fn inside a single transaction. Nested calls join the
// transaction already in flight.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", translateError(err))
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", translateError(err))
	}
	return nil
}

const recordColumns = `internal_id, public_code, name, address, district, phone, email, notes,
		workflow_status, is_deleted, version_number,
		created_by, created_at, updated_by, updated_at,
		approved_by, approved_at, rejected_by, rejected_at, rejected_reason,
		printed_by, printed_at, scanned_by, scanned_at, scanned_document_ref,
		reprint_status, reprint_requested_by, reprint_requested_at, reprint_reason,
		reprint_approved_by, reprint_approved_at,
		reprint_rejected_by, reprint_rejected_at, reprint_rejected_reason,
		reprint_completed_by, reprint_completed_at`

func (s *Store) InsertRecord(ctx context.Context, f models.Family, rec *models.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (public_code, name, address, district, phone, email, notes,
			workflow_status, is_deleted, version_number,
			created_by, created_at, updated_by, updated_at,
			approved_by, approved_at, rejected_by, rejected_at, rejected_reason,
			printed_by, printed_at, scanned_by, scanned_at, scanned_document_ref,
			reprint_status, reprint_requested_by, reprint_requested_at, reprint_reason,
			reprint_approved_by, reprint_approved_at,
			reprint_rejected_by, reprint_rejected_at, reprint_rejected_reason,
			reprint_completed_by, reprint_completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35)
		RETURNING internal_id
	`, f.Table)

	err := s.conn(ctx).QueryRowContext(ctx, query,
		rec.PublicCode, rec.Name, rec.Address, rec.District,
		nullStr(rec.Phone), nullStr(rec.Email), rec.Notes,
		string(rec.Status), rec.IsDeleted, rec.Version,
		rec.CreatedBy, rec.CreatedAt, rec.UpdatedBy, rec.UpdatedAt,
		rec.ApprovedBy, nullTime(rec.ApprovedAt),
		rec.RejectedBy, nullTime(rec.RejectedAt), rec.RejectedReason,
		rec.PrintedBy, nullTime(rec.PrintedAt),
		rec.ScannedBy, nullTime(rec.ScannedAt), rec.ScannedDocumentRef,
		string(rec.ReprintStatus),
		rec.ReprintRequestedBy, nullTime(rec.ReprintRequestedAt), rec.ReprintReason,
		rec.ReprintApprovedBy, nullTime(rec.ReprintApprovedAt),
		rec.ReprintRejectedBy, nullTime(rec.ReprintRejectedAt), rec.ReprintRejectedReason,
		rec.ReprintCompletedBy, nullTime(rec.ReprintCompletedAt),
	).Scan(&rec.InternalID)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", f.Name, translateError(err))
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, f models.Family, id int64) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE internal_id = $1 AND NOT is_deleted`, recordColumns, f.Table)
	return s.queryOne(ctx, f, query, id)
}

func (s *Store) GetRecordByCode(ctx context.Context, f models.Family, code string) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE public_code = $1 AND NOT is_deleted`, recordColumns, f.Table)
	return s.queryOne(ctx, f, query, code)
}

// GetRecordForUpdate locks the row until the surrounding transaction ends,
// serializing concurrent transitions on the same record.
func (s *Store) GetRecordForUpdate(ctx context.Context, f models.Family, id int64) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE internal_id = $1 AND NOT is_deleted FOR UPDATE`, recordColumns, f.Table)
	return s.queryOne(ctx, f, query, id)
}

func (s *Store) queryOne(ctx context.Context, f models.Family, query string, arg any) (*models.Record, error) {
	rec, err := scanRecord(s.conn(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s record %v: %w", f.Name, arg, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load %s record: %w", f.Name, translateError(err))
	}
	rec.Family = f.Name
	return rec, nil
}

func (s *Store) UpdateRecord(ctx context.Context, f models.Family, rec *models.Record, expectedVersion int64) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			name = $1, address = $2, district = $3, phone = $4, email = $5, notes = $6,
			workflow_status = $7, is_deleted = $8, version_number = $9,
			updated_by = $10, updated_at = $11,
			approved_by = $12, approved_at = $13,
			rejected_by = $14, rejected_at = $15, rejected_reason = $16,
			printed_by = $17, printed_at = $18,
			scanned_by = $19, scanned_at = $20, scanned_document_ref = $21,
			reprint_status = $22,
			reprint_requested_by = $23, reprint_requested_at = $24, reprint_reason = $25,
			reprint_approved_by = $26, reprint_approved_at = $27,
			reprint_rejected_by = $28, reprint_rejected_at = $29, reprint_rejected_reason = $30,
			reprint_completed_by = $31, reprint_completed_at = $32
		WHERE internal_id = $33 AND version_number = $34 AND NOT is_deleted
	`, f.Table)

	res, err := s.conn(ctx).ExecContext(ctx, query,
		rec.Name, rec.Address, rec.District,
		nullStr(rec.Phone), nullStr(rec.Email), rec.Notes,
		string(rec.Status), rec.IsDeleted, rec.Version,
		rec.UpdatedBy, rec.UpdatedAt,
		rec.ApprovedBy, nullTime(rec.ApprovedAt),
		rec.RejectedBy, nullTime(rec.RejectedAt), rec.RejectedReason,
		rec.PrintedBy, nullTime(rec.PrintedAt),
		rec.ScannedBy, nullTime(rec.ScannedAt), rec.ScannedDocumentRef,
		string(rec.ReprintStatus),
		rec.ReprintRequestedBy, nullTime(rec.ReprintRequestedAt), rec.ReprintReason,
		rec.ReprintApprovedBy, nullTime(rec.ReprintApprovedAt),
		rec.ReprintRejectedBy, nullTime(rec.ReprintRejectedAt), rec.ReprintRejectedReason,
		rec.ReprintCompletedBy, nullTime(rec.ReprintCompletedAt),
		rec.InternalID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update %s record: %w", f.Name, translateError(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s record: %w", f.Name, translateError(err))
	}
	if affected == 1 {
		return nil
	}

	// Nothing matched: tell a lost version race apart from a missing or
	// soft-deleted row.
	var (
		current   int64
		isDeleted bool
	)
	probe := fmt.Sprintf(`SELECT version_number, is_deleted FROM %s WHERE internal_id = $1`, f.Table)
	err = s.conn(ctx).QueryRowContext(ctx, probe, rec.InternalID).Scan(&current, &isDeleted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s record %d: %w", f.Name, rec.InternalID, sentinel.ErrNotFound)
	case err != nil:
		return fmt.Errorf("update %s record: %w", f.Name, translateError(err))
	case isDeleted:
		return fmt.Errorf("%s record %d: %w", f.Name, rec.InternalID, sentinel.ErrNotFound)
	default:
		return fmt.Errorf("%s record %d at version %d, expected %d: %w",
			f.Name, rec.InternalID, current, expectedVersion, sentinel.ErrStaleVersion)
	}
}

func (s *Store) MaxCodeNumber(ctx context.Context, f models.Family, scope string) (int64, error) {
	prefix := codes.ScopePrefix(f, scope)
	query := fmt.Sprintf(
		`SELECT COALESCE(MAX(CAST(SUBSTRING(public_code FROM %d) AS BIGINT)), 0) FROM %s WHERE public_code ~ $1`,
		len(prefix)+1, f.Table)
	var max int64
	if err := s.conn(ctx).QueryRowContext(ctx, query, codePattern(f, prefix)).Scan(&max); err != nil {
		return 0, fmt.Errorf("max code number for %s: %w", f.Name, translateError(err))
	}
	return max, nil
}

// NextCodeNumber bumps the family counter in one statement. The first touch
// seeds the counter from codes already in the table, so counter allocation
// can be turned on over pre-existing data.
func (s *Store) NextCodeNumber(ctx context.Context, f models.Family, scope string, floor int64) (int64, error) {
	prefix := codes.ScopePrefix(f, scope)
	query := fmt.Sprintf(`
		INSERT INTO code_counters (family, scope, last_issued)
		VALUES ($1, $2, GREATEST(
			$3::bigint,
			COALESCE((SELECT MAX(CAST(SUBSTRING(public_code FROM %d) AS BIGINT))
				FROM %s WHERE public_code ~ $4), 0)
		) + 1)
		ON CONFLICT (family, scope) DO UPDATE
			SET last_issued = GREATEST(code_counters.last_issued, $3::bigint) + 1
		RETURNING last_issued
	`, len(prefix)+1, f.Table)

	var next int64
	err := s.conn(ctx).QueryRowContext(ctx, query, f.Name, scope, floor, codePattern(f, prefix)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next code number for %s: %w", f.Name, translateError(err))
	}
	return next, nil
}

// SeedCounter raises the counter to the highest code already stored, never
// lowering it and never consuming a number.
func (s *Store) SeedCounter(ctx context.Context, f models.Family, scope string) (int64, error) {
	prefix := codes.ScopePrefix(f, scope)
	query := fmt.Sprintf(`
		INSERT INTO code_counters (family, scope, last_issued)
		VALUES ($1, $2, COALESCE((SELECT MAX(CAST(SUBSTRING(public_code FROM %d) AS BIGINT))
			FROM %s WHERE public_code ~ $3), 0))
		ON CONFLICT (family, scope) DO UPDATE
			SET last_issued = GREATEST(code_counters.last_issued, EXCLUDED.last_issued)
		RETURNING last_issued
	`, len(prefix)+1, f.Table)

	var last int64
	if err := s.conn(ctx).QueryRowContext(ctx, query, f.Name, scope, codePattern(f, prefix)).Scan(&last); err != nil {
		return 0, fmt.Errorf("seed counter for %s: %w", f.Name, translateError(err))
	}
	return last, nil
}

// ListDeletedCodes returns soft-deleted rows' codes with the stamps of the
// deleting write.
func (s *Store) ListDeletedCodes(ctx context.Context, f models.Family) ([]store.DeletedCode, error) {
	query := fmt.Sprintf(`SELECT public_code, updated_by, updated_at FROM %s WHERE is_deleted ORDER BY public_code`, f.Table)
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deleted %s codes: %w", f.Name, translateError(err))
	}
	defer rows.Close()

	var out []store.DeletedCode
	for rows.Next() {
		var dc store.DeletedCode
		if err := rows.Scan(&dc.PublicCode, &dc.DeletedBy, &dc.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan deleted %s code: %w", f.Name, err)
		}
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted %s codes: %w", f.Name, err)
	}
	return out, nil
}

// ResyncSequence repairs the BIGSERIAL sequence behind internal_id. Without
// force it only advances a sequence that has fallen behind the table, which
// is the state explicit-id inserts leave behind.
func (s *Store) ResyncSequence(ctx context.Context, f models.Family, force bool) error {
	conn := s.conn(ctx)

	var seqName sql.NullString
	err := conn.QueryRowContext(ctx, `SELECT pg_get_serial_sequence($1, 'internal_id')`, f.Table).Scan(&seqName)
	if err != nil {
		return fmt.Errorf("resolve sequence for %s: %w", f.Name, translateError(err))
	}
	if !seqName.Valid {
		return fmt.Errorf("table %s has no serial sequence on internal_id", f.Table)
	}

	var max int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(internal_id), 0) FROM %s`, f.Table)).Scan(&max); err != nil {
		return fmt.Errorf("read max internal id for %s: %w", f.Name, translateError(err))
	}

	if !force {
		var (
			last     int64
			isCalled bool
		)
		if err := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT last_value, is_called FROM %s`, seqName.String)).Scan(&last, &isCalled); err != nil {
			return fmt.Errorf("read sequence state for %s: %w", f.Name, translateError(err))
		}
		nextIssue := last
		if isCalled {
			nextIssue = last + 1
		}
		if nextIssue > max {
			return nil
		}
	}

	if max == 0 {
		_, err = conn.ExecContext(ctx, `SELECT setval($1, 1, false)`, seqName.String)
	} else {
		_, err = conn.ExecContext(ctx, `SELECT setval($1, $2, true)`, seqName.String, max)
	}
	if err != nil {
		return fmt.Errorf("resync sequence for %s: %w", f.Name, translateError(err))
	}
	return nil
}

// codePattern anchors code parsing to the family's exact shape so stray rows
// cannot poison the numeric MAX.
func codePattern(f models.Family, prefix string) string {
	return fmt.Sprintf(`^%s[0-9]{%d}$`, prefix, f.Width)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec                models.Record
		phone, email       sql.NullString
		status, reprint    string
		approvedAt         sql.NullTime
		rejectedAt         sql.NullTime
		printedAt          sql.NullTime
		scannedAt          sql.NullTime
		reprintRequestedAt sql.NullTime
		reprintApprovedAt  sql.NullTime
		reprintRejectedAt  sql.NullTime
		reprintCompletedAt sql.NullTime
	)
	err := row.Scan(
		&rec.InternalID, &rec.PublicCode, &rec.Name, &rec.Address, &rec.District,
		&phone, &email, &rec.Notes,
		&status, &rec.IsDeleted, &rec.Version,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedBy, &rec.UpdatedAt,
		&rec.ApprovedBy, &approvedAt,
		&rec.RejectedBy, &rejectedAt, &rec.RejectedReason,
		&rec.PrintedBy, &printedAt,
		&rec.ScannedBy, &scannedAt, &rec.ScannedDocumentRef,
		&reprint,
		&rec.ReprintRequestedBy, &reprintRequestedAt, &rec.ReprintReason,
		&rec.ReprintApprovedBy, &reprintApprovedAt,
		&rec.ReprintRejectedBy, &reprintRejectedAt, &rec.ReprintRejectedReason,
		&rec.ReprintCompletedBy, &reprintCompletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Phone = phone.String
	rec.Email = email.String
	rec.Status = models.WorkflowStatus(status)
	rec.ReprintStatus = models.ReprintStatus(reprint)
	rec.ApprovedAt = timeVal(approvedAt)
	rec.RejectedAt = timeVal(rejectedAt)
	rec.PrintedAt = timeVal(printedAt)
	rec.ScannedAt = timeVal(scannedAt)
	rec.ReprintRequestedAt = timeVal(reprintRequestedAt)
	rec.ReprintApprovedAt = timeVal(reprintApprovedAt)
	rec.ReprintRejectedAt = timeVal(reprintRejectedAt)
	rec.ReprintCompletedAt = timeVal(reprintCompletedAt)
	return &rec, nil
}

func timeVal(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
