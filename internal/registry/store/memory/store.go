// Package memory provides an in-memory Store for unit tests and local runs.
// It mirrors the SQL backends' observable behavior: canonical unique
// violations, primary-key collisions when the sequence drifts, version
// checks, and transactional rollback via state snapshots.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sasana/internal/registry/codes"
	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
	"sasana/pkg/platform/audit"
	"sasana/pkg/platform/sentinel"
)

type txMarker struct{}

// Store keeps all registry state behind one mutex. It also implements
// audit.Store so outbox appends roll back together with record writes, the
// way they do against postgres.
type Store struct {
	mu       sync.Mutex
	records  map[string]map[int64]*models.Record
	codeIdx  map[string]map[string]int64
	seqs     map[string]int64
	counters map[string]int64
	events   []audit.Event
}

var _ store.Store = (*Store)(nil)
var _ audit.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		records:  map[string]map[int64]*models.Record{},
		codeIdx:  map[string]map[string]int64{},
		seqs:     map[string]int64{},
		counters: map[string]int64{},
	}
}

// lock acquires the store mutex unless ctx already runs inside RunInTx,
// which holds it for the whole transaction.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txMarker{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	records  map[string]map[int64]*models.Record
	codeIdx  map[string]map[string]int64
	seqs     map[string]int64
	counters map[string]int64
	events   []audit.Event
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		records:  make(map[string]map[int64]*models.Record, len(s.records)),
		codeIdx:  make(map[string]map[string]int64, len(s.codeIdx)),
		seqs:     make(map[string]int64, len(s.seqs)),
		counters: make(map[string]int64, len(s.counters)),
		events:   s.events,
	}
	for fam, recs := range s.records {
		cp := make(map[int64]*models.Record, len(recs))
		for id, rec := range recs {
			cp[id] = rec.Clone()
		}
		snap.records[fam] = cp
	}
	for fam, idx := range s.codeIdx {
		cp := make(map[string]int64, len(idx))
		for code, id := range idx {
			cp[code] = id
		}
		snap.codeIdx[fam] = cp
	}
	for k, v := range s.seqs {
		snap.seqs[k] = v
	}
	for k, v := range s.counters {
		snap.counters[k] = v
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.records = snap.records
	s.codeIdx = snap.codeIdx
	s.seqs = snap.seqs
	s.counters = snap.counters
	s.events = snap.events
}

// RunInTx holds the store lock for the whole callback and restores the
// pre-transaction state when fn fails, so partial writes never survive.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

func (s *Store) family(f models.Family) (map[int64]*models.Record, map[string]int64) {
	recs, ok := s.records[f.Name]
	if !ok {
		recs = map[int64]*models.Record{}
		s.records[f.Name] = recs
	}
	idx, ok := s.codeIdx[f.Name]
	if !ok {
		idx = map[string]int64{}
		s.codeIdx[f.Name] = idx
	}
	return recs, idx
}

// checkContactUnique mirrors the partial behavior of SQL UNIQUE columns:
// empty values are NULLs and never collide, and soft-deleted rows still
// occupy their values.
func (s *Store) checkContactUnique(f models.Family, rec *models.Record) error {
	recs, _ := s.family(f)
	for id, other := range recs {
		if id == rec.InternalID {
			continue
		}
		if rec.Phone != "" && other.Phone == rec.Phone {
			return &store.UniqueViolation{Constraint: store.UniqueConstraint(f, "phone")}
		}
		if rec.Email != "" && other.Email == rec.Email {
			return &store.UniqueViolation{Constraint: store.UniqueConstraint(f, "email")}
		}
	}
	return nil
}

func (s *Store) InsertRecord(ctx context.Context, f models.Family, rec *models.Record) error {
	defer s.lock(ctx)()
	recs, idx := s.family(f)

	if _, taken := idx[rec.PublicCode]; taken {
		return &store.UniqueViolation{Constraint: store.CodeConstraint(f)}
	}
	if err := s.checkContactUnique(f, rec); err != nil {
		return err
	}

	// The sequence is consumed even when the insert then collides, exactly
	// like a SQL sequence.
	id := s.seqs[f.Name] + 1
	s.seqs[f.Name] = id
	if _, taken := recs[id]; taken {
		return &store.UniqueViolation{Constraint: store.PKConstraint(f)}
	}

	rec.InternalID = id
	recs[id] = rec.Clone()
	idx[rec.PublicCode] = id
	return nil
}

func (s *Store) GetRecord(ctx context.Context, f models.Family, id int64) (*models.Record, error) {
	defer s.lock(ctx)()
	return s.getLocked(f, id)
}

func (s *Store) getLocked(f models.Family, id int64) (*models.Record, error) {
	recs, _ := s.family(f)
	rec, ok := recs[id]
	if !ok || rec.IsDeleted {
		return nil, fmt.Errorf("%s record %d: %w", f.Name, id, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *Store) GetRecordByCode(ctx context.Context, f models.Family, code string) (*models.Record, error) {
	defer s.lock(ctx)()
	_, idx := s.family(f)
	id, ok := idx[code]
	if !ok {
		return nil, fmt.Errorf("%s record %s: %w", f.Name, code, sentinel.ErrNotFound)
	}
	return s.getLocked(f, id)
}

// GetRecordForUpdate behaves like GetRecord; the store mutex already
// serializes transactions the way row locks do in SQL.
func (s *Store) GetRecordForUpdate(ctx context.Context, f models.Family, id int64) (*models.Record, error) {
	return s.GetRecord(ctx, f, id)
}

func (s *Store) UpdateRecord(ctx context.Context, f models.Family, rec *models.Record, expectedVersion int64) error {
	defer s.lock(ctx)()
	recs, _ := s.family(f)
	current, ok := recs[rec.InternalID]
	if !ok || current.IsDeleted {
		return fmt.Errorf("%s record %d: %w", f.Name, rec.InternalID, sentinel.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%s record %d at version %d, expected %d: %w",
			f.Name, rec.InternalID, current.Version, expectedVersion, sentinel.ErrStaleVersion)
	}
	if err := s.checkContactUnique(f, rec); err != nil {
		return err
	}

	updated := rec.Clone()
	// The public code column is never part of an update.
	updated.PublicCode = current.PublicCode
	recs[rec.InternalID] = updated
	return nil
}

func (s *Store) MaxCodeNumber(ctx context.Context, f models.Family, scope string) (int64, error) {
	defer s.lock(ctx)()
	return s.maxCodeLocked(f, scope), nil
}

func (s *Store) maxCodeLocked(f models.Family, scope string) int64 {
	_, idx := s.family(f)
	var max int64
	for code := range idx {
		if n, ok := codes.Parse(f, scope, code); ok && n > max {
			max = n
		}
	}
	return max
}

func (s *Store) NextCodeNumber(ctx context.Context, f models.Family, scope string, floor int64) (int64, error) {
	defer s.lock(ctx)()
	key := f.Name + "\x00" + scope
	last, ok := s.counters[key]
	if !ok {
		// First touch: seed from the data already in the table so the
		// counter never reissues a historical code.
		last = s.maxCodeLocked(f, scope)
	}
	if floor > last {
		last = floor
	}
	next := last + 1
	s.counters[key] = next
	return next, nil
}

// SeedCounter raises the counter to the highest code already stored without
// consuming a number.
func (s *Store) SeedCounter(ctx context.Context, f models.Family, scope string) (int64, error) {
	defer s.lock(ctx)()
	key := f.Name + "\x00" + scope
	max := s.maxCodeLocked(f, scope)
	if max > s.counters[key] {
		s.counters[key] = max
	} else if _, ok := s.counters[key]; !ok {
		s.counters[key] = max
	}
	return s.counters[key], nil
}

// ListDeletedCodes returns soft-deleted rows' codes, sorted.
func (s *Store) ListDeletedCodes(ctx context.Context, f models.Family) ([]store.DeletedCode, error) {
	defer s.lock(ctx)()
	recs, _ := s.family(f)
	var out []store.DeletedCode
	for _, rec := range recs {
		if rec.IsDeleted {
			out = append(out, store.DeletedCode{
				PublicCode: rec.PublicCode,
				DeletedBy:  rec.UpdatedBy,
				DeletedAt:  rec.UpdatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicCode < out[j].PublicCode })
	return out, nil
}

func (s *Store) ResyncSequence(ctx context.Context, f models.Family, force bool) error {
	defer s.lock(ctx)()
	recs, _ := s.family(f)
	var max int64
	for id := range recs {
		if id > max {
			max = id
		}
	}
	if force || s.seqs[f.Name] < max {
		s.seqs[f.Name] = max
	}
	return nil
}

// Append implements audit.Store.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	defer s.lock(ctx)()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the appended audit events, oldest first.
func (s *Store) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}

// SeedRecord inserts rec at its explicit InternalID without consuming the
// sequence, reproducing an out-of-band insert that leaves the sequence
// behind the table. Test hook.
func (s *Store) SeedRecord(f models.Family, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.InternalID <= 0 {
		return fmt.Errorf("seed record: explicit internal id required")
	}
	recs, idx := s.family(f)
	if _, taken := recs[rec.InternalID]; taken {
		return fmt.Errorf("seed record: id %d already present", rec.InternalID)
	}
	if _, taken := idx[rec.PublicCode]; taken {
		return fmt.Errorf("seed record: code %s already present", rec.PublicCode)
	}
	recs[rec.InternalID] = rec.Clone()
	idx[rec.PublicCode] = rec.InternalID
	return nil
}

// SetSequence forces the family's internal-id sequence. Test hook.
func (s *Store) SetSequence(f models.Family, last int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[f.Name] = last
}

// SequenceValue reads the family's internal-id sequence. Test hook.
func (s *Store) SequenceValue(f models.Family) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[f.Name]
}

// CounterValue reads the allocation counter for a scope. Test hook.
func (s *Store) CounterValue(f models.Family, scope string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[f.Name+"\x00"+scope]
}
