// Package postgres implements the audit outbox on PostgreSQL. Append joins
// the transaction carried in context, so an audit row commits or rolls back
// together with the record mutation it describes; the relay reads the table
// from its own connection.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	audit "sasana/pkg/platform/audit"
	txcontext "sasana/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

var _ audit.Store = (*Store)(nil)
var _ audit.OutboxStore = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes the event to the outbox table. The full event is stored as
// the JSON payload the relay will publish verbatim; the scalar columns exist
// for operators querying the outbox directly.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	query := `
		INSERT INTO audit_outbox (event_id, family, record_id, public_code,
			action, actor_id, reason, request_id, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID, event.Family, event.RecordID, event.PublicCode,
		event.Action, event.ActorID, event.Reason, event.RequestID,
		event.OccurredAt, payload,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// FetchUnpublished returns up to limit unshipped entries, oldest first.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	query := `
		SELECT outbox_id, event_id, family, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY outbox_id
		LIMIT $1
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished audit events: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var e audit.OutboxEntry
		if err := rows.Scan(&e.OutboxID, &e.EventID, &e.Family, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given entries as shipped. Already-stamped rows
// are left alone, so a relay crash between publish and mark at worst
// republishes, never loses. Placeholders are built by hand to stay portable
// across the lib/pq and pgx stdlib drivers.
func (s *Store) MarkPublished(ctx context.Context, outboxIDs []int64) error {
	if len(outboxIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(outboxIDs))
	args := make([]any, len(outboxIDs))
	for i, id := range outboxIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`
		UPDATE audit_outbox SET published_at = NOW()
		WHERE outbox_id IN (%s) AND published_at IS NULL
	`, strings.Join(placeholders, ", "))

	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark audit events published: %w", err)
	}
	return nil
}
