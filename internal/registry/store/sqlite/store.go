// Package sqlite implements the registry store on an embedded SQLite file
// through the pure-Go modernc driver. It exists for field offices that run
// the registry without a database server; semantics match the postgres
// backend, including sequence repair via sqlite_sequence.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

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

// Open opens the SQLite file with the pragmas the store needs and a single
// connection. SQLite allows one writer at a time anyway; a single pooled
// connection turns lock contention into queueing instead of SQLITE_BUSY.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		url.PathEscape(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?)
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
		return fmt.Errorf("insert %s record: %w", f.Name, translateError(f, err))
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, f models.Family, id int64) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE internal_id = ? AND NOT is_deleted`, recordColumns, f.Table)
	return s.queryOne(ctx, f, query, id)
}

func (s *Store) GetRecordByCode(ctx context.Context, f models.Family, code string) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE public_code = ? AND NOT is_deleted`, recordColumns, f.Table)
	return s.queryOne(ctx, f, query, code)
}

// GetRecordForUpdate is a plain read: with a single pooled connection the
// surrounding transaction already excludes every other writer.
func (s *Store) GetRecordForUpdate(ctx context.Context, f models.Family, id int64) (*models.Record, error) {
	return s.GetRecord(ctx, f, id)
}

func (s *Store) queryOne(ctx context.Context, f models.Family, query string, arg any) (*models.Record, error) {
	rec, err := scanRecord(s.conn(ctx).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s record %v: %w", f.Name, arg, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load %s record: %w", f.Name, translateError(f, err))
	}
	rec.Family = f.Name
	return rec, nil
}

func (s *Store) UpdateRecord(ctx context.Context, f models.Family, rec *models.Record, expectedVersion int64) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			name = ?, address = ?, district = ?, phone = ?, email = ?, notes = ?,
			workflow_status = ?, is_deleted = ?, version_number = ?,
			updated_by = ?, updated_at = ?,
			approved_by = ?, approved_at = ?,
			rejected_by = ?, rejected_at = ?, rejected_reason = ?,
			printed_by = ?, printed_at = ?,
			scanned_by = ?, scanned_at = ?, scanned_document_ref = ?,
			reprint_status = ?,
			reprint_requested_by = ?, reprint_requested_at = ?, reprint_reason = ?,
			reprint_approved_by = ?, reprint_approved_at = ?,
			reprint_rejected_by = ?, reprint_rejected_at = ?, reprint_rejected_reason = ?,
			reprint_completed_by = ?, reprint_completed_at = ?
		WHERE internal_id = ? AND version_number = ? AND NOT is_deleted
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
		return fmt.Errorf("update %s record: %w", f.Name, translateError(f, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s record: %w", f.Name, err)
	}
	if affected == 1 {
		return nil
	}

	var (
		current   int64
		isDeleted bool
	)
	probe := fmt.Sprintf(`SELECT version_number, is_deleted FROM %s WHERE internal_id = ?`, f.Table)
	err = s.conn(ctx).QueryRowContext(ctx, probe, rec.InternalID).Scan(&current, &isDeleted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s record %d: %w", f.Name, rec.InternalID, sentinel.ErrNotFound)
	case err != nil:
		return fmt.Errorf("update %s record: %w", f.Name, err)
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
		`SELECT COALESCE(MAX(CAST(SUBSTR(public_code, ?) AS INTEGER)), 0)
			FROM %s WHERE public_code LIKE ? AND LENGTH(public_code) = ?`, f.Table)
	var max int64
	err := s.conn(ctx).QueryRowContext(ctx, query, len(prefix)+1, prefix+"%", len(prefix)+f.Width).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max code number for %s: %w", f.Name, translateError(f, err))
	}
	return max, nil
}

func (s *Store) NextCodeNumber(ctx context.Context, f models.Family, scope string, floor int64) (int64, error) {
	prefix := codes.ScopePrefix(f, scope)
	query := fmt.Sprintf(`
		INSERT INTO code_counters (family, scope, last_issued)
		VALUES (?, ?, MAX(
			CAST(? AS INTEGER),
			COALESCE((SELECT MAX(CAST(SUBSTR(public_code, ?) AS INTEGER))
				FROM %s WHERE public_code LIKE ? AND LENGTH(public_code) = ?), 0)
		) + 1)
		ON CONFLICT (family, scope) DO UPDATE
			SET last_issued = MAX(last_issued, CAST(? AS INTEGER)) + 1
		RETURNING last_issued
	`, f.Table)

	var next int64
	err := s.conn(ctx).QueryRowContext(ctx, query,
		f.Name, scope, floor, len(prefix)+1, prefix+"%", len(prefix)+f.Width, floor,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next code number for %s: %w", f.Name, translateError(f, err))
	}
	return next, nil
}

// SeedCounter raises the counter to the highest code already stored, never
// lowering it and never consuming a number.
func (s *Store) SeedCounter(ctx context.Context, f models.Family, scope string) (int64, error) {
	prefix := codes.ScopePrefix(f, scope)
	query := fmt.Sprintf(`
		INSERT INTO code_counters (family, scope, last_issued)
		VALUES (?, ?, COALESCE((SELECT MAX(CAST(SUBSTR(public_code, ?) AS INTEGER))
			FROM %s WHERE public_code LIKE ? AND LENGTH(public_code) = ?), 0))
		ON CONFLICT (family, scope) DO UPDATE
			SET last_issued = MAX(last_issued, excluded.last_issued)
		RETURNING last_issued
	`, f.Table)

	var last int64
	err := s.conn(ctx).QueryRowContext(ctx, query,
		f.Name, scope, len(prefix)+1, prefix+"%", len(prefix)+f.Width,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("seed counter for %s: %w", f.Name, translateError(f, err))
	}
	return last, nil
}

// ListDeletedCodes returns soft-deleted rows' codes with the stamps of the
// deleting write.
func (s *Store) ListDeletedCodes(ctx context.Context, f models.Family) ([]store.DeletedCode, error) {
	query := fmt.Sprintf(`SELECT public_code, updated_by, updated_at FROM %s WHERE is_deleted ORDER BY public_code`, f.Table)
	rows, err := s.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deleted %s codes: %w", f.Name, translateError(f, err))
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

// ResyncSequence repairs sqlite_sequence for the family's table. SQLite only
// creates the row after the first AUTOINCREMENT insert; a missing row with
// data present is itself drift (a restored dump, for instance).
func (s *Store) ResyncSequence(ctx context.Context, f models.Family, force bool) error {
	conn := s.conn(ctx)

	var max int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(internal_id), 0) FROM %s`, f.Table)).Scan(&max); err != nil {
		return fmt.Errorf("read max internal id for %s: %w", f.Name, translateError(f, err))
	}

	var seq int64
	err := conn.QueryRowContext(ctx, `SELECT seq FROM sqlite_sequence WHERE name = ?`, f.Table).Scan(&seq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read sequence for %s: %w", f.Name, translateError(f, err))
	}

	if !force && seq >= max {
		return nil
	}

	if max == 0 {
		if _, err := conn.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = ?`, f.Table); err != nil {
			return fmt.Errorf("reset sequence for %s: %w", f.Name, translateError(f, err))
		}
		return nil
	}

	res, err := conn.ExecContext(ctx, `UPDATE sqlite_sequence SET seq = ? WHERE name = ?`, max, f.Table)
	if err != nil {
		return fmt.Errorf("write sequence for %s: %w", f.Name, translateError(f, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write sequence for %s: %w", f.Name, err)
	}
	if affected == 0 {
		if _, err := conn.ExecContext(ctx, `INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)`, f.Table, max); err != nil {
			return fmt.Errorf("write sequence for %s: %w", f.Name, translateError(f, err))
		}
	}
	return nil
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
