// Package retired tracks public codes that must never be issued again.
// Soft-deleting a record retires its code; the allocation loop consults the
// index before proposing a candidate so numbering can step over tombstones
// even if the underlying rows are ever purged.
package retired

import (
	"context"
	"time"
)

// Entry is one tombstoned code.
type Entry struct {
	Family     string    `json:"family"`
	PublicCode string    `json:"public_code"`
	RetiredBy  string    `json:"retired_by"`
	RetiredAt  time.Time `json:"retired_at"`
}

// Index is the tombstone set. Retire is idempotent: retiring an already
// retired code is not an error.
type Index interface {
	Retire(ctx context.Context, entry Entry) error
	IsRetired(ctx context.Context, family, code string) (bool, error)
	List(ctx context.Context, family string) ([]Entry, error)
}
