package retired

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Index for tests and single-node runs.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry
}

var _ Index = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: map[string]map[string]Entry{}}
}

func (m *Memory) Retire(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fam, ok := m.entries[entry.Family]
	if !ok {
		fam = map[string]Entry{}
		m.entries[entry.Family] = fam
	}
	if _, exists := fam[entry.PublicCode]; !exists {
		fam[entry.PublicCode] = entry
	}
	return nil
}

func (m *Memory) IsRetired(ctx context.Context, family, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[family][code]
	return ok, nil
}

func (m *Memory) List(ctx context.Context, family string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries[family]))
	for _, e := range m.entries[family] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicCode < out[j].PublicCode })
	return out, nil
}
