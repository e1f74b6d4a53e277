// Package memory implements the audit outbox in process memory for unit
// tests and relay tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	audit "sasana/pkg/platform/audit"
)

type entry struct {
	audit.OutboxEntry
	published bool
}

type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*entry
}

var _ audit.Store = (*InMemoryStore)(nil)
var _ audit.OutboxStore = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows = append(s.rows, &entry{OutboxEntry: audit.OutboxEntry{
		OutboxID: s.nextID,
		EventID:  event.ID.String(),
		Family:   event.Family,
		Payload:  payload,
	}})
	return nil
}

func (s *InMemoryStore) FetchUnpublished(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.OutboxEntry
	for _, row := range s.rows {
		if row.published {
			continue
		}
		out = append(out, row.OutboxEntry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, outboxIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]struct{}, len(outboxIDs))
	for _, id := range outboxIDs {
		ids[id] = struct{}{}
	}
	for _, row := range s.rows {
		if _, ok := ids[row.OutboxID]; ok {
			row.published = true
		}
	}
	return nil
}

// Unpublished reports how many rows still await the relay. Test hook.
func (s *InMemoryStore) Unpublished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if !row.published {
			n++
		}
	}
	return n
}
