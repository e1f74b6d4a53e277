package retired

import (
	"context"
	"log/slog"
)

// Mirrored layers a fast shared cache (Redis) over the durable tombstone
// table. The primary is the source of truth: cache failures degrade to
// primary reads and are logged, never surfaced.
type Mirrored struct {
	primary Index
	cache   Index
	log     *slog.Logger
}

var _ Index = (*Mirrored)(nil)

func NewMirrored(primary, cache Index, log *slog.Logger) *Mirrored {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Mirrored{primary: primary, cache: cache, log: log}
}

func (m *Mirrored) Retire(ctx context.Context, entry Entry) error {
	if err := m.primary.Retire(ctx, entry); err != nil {
		return err
	}
	if err := m.cache.Retire(ctx, entry); err != nil {
		m.log.WarnContext(ctx, "retired-code cache write failed",
			"family", entry.Family, "code", entry.PublicCode, "error", err)
	}
	return nil
}

func (m *Mirrored) IsRetired(ctx context.Context, family, code string) (bool, error) {
	hit, err := m.cache.IsRetired(ctx, family, code)
	if err != nil {
		m.log.WarnContext(ctx, "retired-code cache read failed",
			"family", family, "code", code, "error", err)
	} else if hit {
		return true, nil
	}

	retired, err := m.primary.IsRetired(ctx, family, code)
	if err != nil {
		return false, err
	}
	if retired {
		// Backfill so the next check is a cache hit. Membership is all the
		// allocator needs; the audit fields stay in the primary.
		if cerr := m.cache.Retire(ctx, Entry{Family: family, PublicCode: code}); cerr != nil {
			m.log.WarnContext(ctx, "retired-code cache backfill failed",
				"family", family, "code", code, "error", cerr)
		}
	}
	return retired, nil
}

func (m *Mirrored) List(ctx context.Context, family string) ([]Entry, error) {
	return m.primary.List(ctx, family)
}
