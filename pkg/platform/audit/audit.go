// Package audit records who did what to which record. Events are appended
// to an outbox in the same transaction as the change they describe and
// shipped to Kafka asynchronously by the relay, so the audit trail can never
// show a change that was rolled back.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sasana/pkg/requestcontext"
)

// Event is one audit entry. Details carries action-specific extras such as
// the old and new workflow status.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Family     string            `json:"family"`
	RecordID   int64             `json:"record_id"`
	PublicCode string            `json:"public_code"`
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id"`
	Reason     string            `json:"reason,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
}

// Actions emitted by the registry service.
const (
	ActionRecordCreated     = "record.created"
	ActionRecordUpdated     = "record.updated"
	ActionRecordSoftDeleted = "record.soft_deleted"
	ActionWorkflowMoved     = "workflow.transitioned"
	ActionScanAttached      = "workflow.scan_attached"
	ActionReprintRequested  = "reprint.requested"
	ActionReprintAccepted   = "reprint.accepted"
	ActionReprintRejected   = "reprint.rejected"
	ActionReprintCompleted  = "reprint.completed"
)

// Store appends events durably. The postgres implementation writes the
// outbox table and joins any transaction carried in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher fills in event identity from the request context before handing
// it to the store. A nil Publisher drops events, which keeps call sites free
// of conditionals when auditing is not wired.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit completes and appends the event. ID and OccurredAt are always set
// here; ActorID and RequestID fall back to the request context when the
// caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p == nil || p.store == nil {
		return nil
	}
	event.ID = uuid.New()
	event.OccurredAt = requestcontext.Now(ctx)
	if event.ActorID == "" {
		event.ActorID = requestcontext.ActorID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	return p.store.Append(ctx, event)
}
