package audit

import "context"

// OutboxEntry is one durably stored event awaiting publication. Payload is
// the serialized Event exactly as it will appear on the topic; Family keys
// partitioning so per-family order survives the broker.
type OutboxEntry struct {
	OutboxID int64
	EventID  string
	Family   string
	Payload  []byte
}

// OutboxStore is the relay's view of the outbox: read a batch of
// unpublished entries in insertion order, then mark the shipped ones.
type OutboxStore interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, outboxIDs []int64) error
}
