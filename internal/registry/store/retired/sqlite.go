package retired

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "sasana/pkg/platform/tx"
)

// SQLite is the durable tombstone table for embedded deployments. Same
// contract as Postgres, SQLite placeholder syntax.
type SQLite struct {
	db *sql.DB
}

var _ Index = (*SQLite)(nil)

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) conn(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *SQLite) Retire(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO retired_codes (family, public_code, retired_by, retired_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (family, public_code) DO NOTHING
	`
	_, err := s.conn(ctx).ExecContext(ctx, query, entry.Family, entry.PublicCode, entry.RetiredBy, entry.RetiredAt)
	if err != nil {
		return fmt.Errorf("retire code %s: %w", entry.PublicCode, err)
	}
	return nil
}

func (s *SQLite) IsRetired(ctx context.Context, family, code string) (bool, error) {
	var retired bool
	query := `SELECT EXISTS (SELECT 1 FROM retired_codes WHERE family = ? AND public_code = ?)`
	if err := s.conn(ctx).QueryRowContext(ctx, query, family, code).Scan(&retired); err != nil {
		return false, fmt.Errorf("check retired code %s: %w", code, err)
	}
	return retired, nil
}

func (s *SQLite) List(ctx context.Context, family string) ([]Entry, error) {
	query := `
		SELECT family, public_code, retired_by, retired_at
		FROM retired_codes
		WHERE family = ?
		ORDER BY public_code
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, family)
	if err != nil {
		return nil, fmt.Errorf("list retired codes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Family, &e.PublicCode, &e.RetiredBy, &e.RetiredAt); err != nil {
			return nil, fmt.Errorf("scan retired code: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retired codes: %w", err)
	}
	return entries, nil
}
