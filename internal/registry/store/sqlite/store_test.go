package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
	"sasana/pkg/platform/sentinel"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func temple() models.Family {
	return models.Family{Name: "temple", Table: "temple_records", Prefix: "TRN", Width: 7,
		Transitions: models.PrintThenApprove()}
}

// openStore opens a fresh SQLite file in a test temp dir with the schema
// applied. The pure-Go driver needs no external service.
func openStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	families, err := models.NewFamilySet([]models.Family{temple()})
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(context.Background(), db, families))
	return New(db), db
}

func newRecord(code string) *models.Record {
	rec := models.NewRecord("temple", models.RecordInput{Name: "Sri Vajiraramaya"}, "officer-1", testNow)
	rec.PublicCode = code
	return rec
}

func TestInsertAndLoadRoundTrip(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	rec := newRecord("TRN0000001")
	rec.Phone = "0112345678"
	require.NoError(t, s.InsertRecord(ctx, f, rec))
	assert.Equal(t, int64(1), rec.InternalID)

	got, err := s.GetRecord(ctx, f, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "TRN0000001", got.PublicCode)
	assert.Equal(t, "Sri Vajiraramaya", got.Name)
	assert.Equal(t, "0112345678", got.Phone)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.ReprintNone, got.ReprintStatus)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.Nil(t, got.ApprovedAt)

	byCode, err := s.GetRecordByCode(ctx, f, "TRN0000001")
	require.NoError(t, err)
	assert.Equal(t, rec.InternalID, byCode.InternalID)

	_, err = s.GetRecord(ctx, f, 99)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDuplicateCodeMapsToCanonicalConstraint(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000001")))
	err := s.InsertRecord(ctx, f, newRecord("TRN0000001"))
	require.Error(t, err)

	var uv *store.UniqueViolation
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, "uq_temple_records_public_code", uv.Constraint)
	assert.True(t, store.IsCodeConflict(err, f))
}

func TestDuplicatePhoneMapsToPhoneConstraint(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	a := newRecord("TRN0000001")
	a.Phone = "0112345678"
	require.NoError(t, s.InsertRecord(ctx, f, a))

	b := newRecord("TRN0000002")
	b.Phone = "0112345678"
	err := s.InsertRecord(ctx, f, b)
	var uv *store.UniqueViolation
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, "uq_temple_records_phone", uv.Constraint)
	assert.False(t, store.IsCodeConflict(err, f))

	// Empty contacts are stored as NULLs and never collide.
	c := newRecord("TRN0000003")
	require.NoError(t, s.InsertRecord(ctx, f, c))
	d := newRecord("TRN0000004")
	require.NoError(t, s.InsertRecord(ctx, f, d))
}

func TestUpdateVersionGuard(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	rec := newRecord("TRN0000001")
	require.NoError(t, s.InsertRecord(ctx, f, rec))

	rec.District = "Colombo"
	rec.Version = 2
	require.NoError(t, s.UpdateRecord(ctx, f, rec, 1))

	stale := rec.Clone()
	stale.District = "Kandy"
	err := s.UpdateRecord(ctx, f, stale, 1)
	assert.ErrorIs(t, err, sentinel.ErrStaleVersion)

	got, err := s.GetRecord(ctx, f, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "Colombo", got.District)
	assert.Equal(t, int64(2), got.Version)
}

func TestSoftDeletedRowsAreInvisibleButKeepTheCode(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	rec := newRecord("TRN0000001")
	require.NoError(t, s.InsertRecord(ctx, f, rec))

	rec.IsDeleted = true
	rec.Version = 2
	require.NoError(t, s.UpdateRecord(ctx, f, rec, 1))

	_, err := s.GetRecord(ctx, f, rec.InternalID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// The code column is still occupied.
	err = s.InsertRecord(ctx, f, newRecord("TRN0000001"))
	assert.True(t, store.IsCodeConflict(err, f))

	// And the deleted row still counts toward MAX().
	max, err := s.MaxCodeNumber(ctx, f, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), max)

	deleted, err := s.ListDeletedCodes(ctx, f)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "TRN0000001", deleted[0].PublicCode)
}

func TestRunInTxRollsBack(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.InsertRecord(txCtx, f, newRecord("TRN0000001")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetRecordByCode(ctx, f, "TRN0000001")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMaxCodeNumberIgnoresForeignShapes(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000007")))
	// Wrong length never parses into the scan.
	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN123")))

	max, err := s.MaxCodeNumber(ctx, f, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), max)

	// Year scopes partition the number space.
	scoped := temple()
	scoped.YearScoped = true
	scoped.Width = 6
	max, err = s.MaxCodeNumber(ctx, scoped, "2025")
	require.NoError(t, err)
	assert.Equal(t, int64(0), max)
}

func TestNextCodeNumberCounter(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	f := temple()

	// First touch seeds from existing rows.
	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000004")))

	n, err := s.NextCodeNumber(ctx, f, "", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = s.NextCodeNumber(ctx, f, "", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	// A floor above the counter advances past it.
	n, err = s.NextCodeNumber(ctx, f, "", 9)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	// SeedCounter never lowers an advanced counter.
	last, err := s.SeedCounter(ctx, f, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), last)
}

func TestResyncSequenceRepairsDrift(t *testing.T) {
	s, db := openStore(t)
	ctx := context.Background()
	f := temple()

	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000001")))
	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000002")))

	// A restored dump arrives without the sqlite_sequence row.
	_, err := db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'temple_records'`)
	require.NoError(t, err)

	require.NoError(t, s.ResyncSequence(ctx, f, false))

	var seq int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT seq FROM sqlite_sequence WHERE name = 'temple_records'`).Scan(&seq))
	assert.Equal(t, int64(2), seq)

	rec := newRecord("TRN0000003")
	require.NoError(t, s.InsertRecord(ctx, f, rec))
	assert.Equal(t, int64(3), rec.InternalID)

	// With the sequence already ahead and no force, resync is a no-op.
	_, err = db.ExecContext(ctx, `UPDATE sqlite_sequence SET seq = 10 WHERE name = 'temple_records'`)
	require.NoError(t, err)
	require.NoError(t, s.ResyncSequence(ctx, f, false))
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT seq FROM sqlite_sequence WHERE name = 'temple_records'`).Scan(&seq))
	assert.Equal(t, int64(10), seq)

	// force snaps it back to the table's actual max.
	require.NoError(t, s.ResyncSequence(ctx, f, true))
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT seq FROM sqlite_sequence WHERE name = 'temple_records'`).Scan(&seq))
	assert.Equal(t, int64(3), seq)
}
