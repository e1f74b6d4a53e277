package retired

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "sasana/pkg/platform/tx"
)

// Postgres is the durable tombstone table. It is transaction-aware so a
// soft delete and its tombstone commit or roll back together.
type Postgres struct {
	db *sql.DB
}

var _ Index = (*Postgres)(nil)

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) conn(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

func (p *Postgres) Retire(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO retired_codes (family, public_code, retired_by, retired_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (family, public_code) DO NOTHING
	`
	_, err := p.conn(ctx).ExecContext(ctx, query, entry.Family, entry.PublicCode, entry.RetiredBy, entry.RetiredAt)
	if err != nil {
		return fmt.Errorf("retire code %s: %w", entry.PublicCode, err)
	}
	return nil
}

func (p *Postgres) IsRetired(ctx context.Context, family, code string) (bool, error) {
	var retired bool
	query := `SELECT EXISTS (SELECT 1 FROM retired_codes WHERE family = $1 AND public_code = $2)`
	if err := p.conn(ctx).QueryRowContext(ctx, query, family, code).Scan(&retired); err != nil {
		return false, fmt.Errorf("check retired code %s: %w", code, err)
	}
	return retired, nil
}

func (p *Postgres) List(ctx context.Context, family string) ([]Entry, error) {
	query := `
		SELECT family, public_code, retired_by, retired_at
		FROM retired_codes
		WHERE family = $1
		ORDER BY public_code
	`
	rows, err := p.conn(ctx).QueryContext(ctx, query, family)
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
