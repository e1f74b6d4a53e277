package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
	"sasana/pkg/platform/audit"
	"sasana/pkg/platform/sentinel"
)

var testNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func temple() models.Family {
	return models.Family{Name: "temple", Table: "temple_records", Prefix: "TRN", Width: 7,
		Transitions: models.PrintThenApprove()}
}

func newRecord(code string) *models.Record {
	rec := models.NewRecord("temple", models.RecordInput{Name: "Sri Vajiraramaya"}, "officer-1", testNow)
	rec.PublicCode = code
	return rec
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	a := newRecord("TRN0000001")
	require.NoError(t, s.InsertRecord(ctx, f, a))
	assert.Equal(t, int64(1), a.InternalID)

	b := newRecord("TRN0000002")
	require.NoError(t, s.InsertRecord(ctx, f, b))
	assert.Equal(t, int64(2), b.InternalID)
}

func TestInsertDuplicateCodeIsCanonicalViolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000001")))
	err := s.InsertRecord(ctx, f, newRecord("TRN0000001"))
	require.Error(t, err)

	var uv *store.UniqueViolation
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, "uq_temple_records_public_code", uv.Constraint)
	assert.True(t, store.IsCodeConflict(err, f))
	assert.True(t, errors.Is(err, sentinel.ErrConflict))
}

func TestInsertConsumesSequenceOnConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000001")))
	require.Error(t, s.InsertRecord(ctx, f, newRecord("TRN0000001")))
	// The failed insert burned id 2, like a SQL sequence would.
	c := newRecord("TRN0000003")
	require.NoError(t, s.InsertRecord(ctx, f, c))
	assert.Equal(t, int64(3), c.InternalID)
}

func TestInsertDriftedSequenceHitsPrimaryKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	seeded := newRecord("TRN0000005")
	seeded.InternalID = 1
	require.NoError(t, s.SeedRecord(f, seeded))
	s.SetSequence(f, 0)

	err := s.InsertRecord(ctx, f, newRecord("TRN0000006"))
	require.Error(t, err)
	assert.True(t, store.IsPKConflict(err, f))

	require.NoError(t, s.ResyncSequence(ctx, f, false))
	assert.Equal(t, int64(1), s.SequenceValue(f))
	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000006")))
}

func TestContactUniquenessCountsDeletedRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	a := newRecord("TRN0000001")
	a.Phone = "0112345678"
	require.NoError(t, s.InsertRecord(ctx, f, a))

	a.IsDeleted = true
	require.NoError(t, s.UpdateRecord(ctx, f, a, 1))

	b := newRecord("TRN0000002")
	b.Phone = "0112345678"
	err := s.InsertRecord(ctx, f, b)
	var uv *store.UniqueViolation
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, "uq_temple_records_phone", uv.Constraint)

	// Empty contacts behave like NULLs and never collide.
	c := newRecord("TRN0000003")
	require.NoError(t, s.InsertRecord(ctx, f, c))
	d := newRecord("TRN0000004")
	require.NoError(t, s.InsertRecord(ctx, f, d))
}

func TestUpdateVersionCheck(t *testing.T) {
	s := New()
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
	assert.True(t, errors.Is(err, sentinel.ErrStaleVersion))

	stored, err := s.GetRecord(ctx, f, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "Colombo", stored.District)
}

func TestUpdateNeverMovesPublicCode(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	rec := newRecord("TRN0000001")
	require.NoError(t, s.InsertRecord(ctx, f, rec))

	rec.PublicCode = "TRN9999999"
	rec.Version = 2
	require.NoError(t, s.UpdateRecord(ctx, f, rec, 1))

	stored, err := s.GetRecord(ctx, f, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "TRN0000001", stored.PublicCode)
}

func TestRunInTxRollsBackEverything(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000001")))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.InsertRecord(txCtx, f, newRecord("TRN0000002")); err != nil {
			return err
		}
		if err := s.Append(txCtx, audit.Event{Family: "temple", Action: audit.ActionRecordCreated}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetRecordByCode(ctx, f, "TRN0000002")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.Empty(t, s.Events())
	// Even the consumed sequence number is restored.
	assert.Equal(t, int64(1), s.SequenceValue(f))
}

func TestGetReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	rec := newRecord("TRN0000001")
	require.NoError(t, s.InsertRecord(ctx, f, rec))

	got, err := s.GetRecord(ctx, f, rec.InternalID)
	require.NoError(t, err)
	got.Name = "Mutated"

	again, err := s.GetRecord(ctx, f, rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "Sri Vajiraramaya", again.Name)
}

func TestNextCodeNumberSeedsFromExistingRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	require.NoError(t, s.InsertRecord(ctx, f, newRecord("TRN0000004")))

	n, err := s.NextCodeNumber(ctx, f, "", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// A floor above the counter advances it.
	n, err = s.NextCodeNumber(ctx, f, "", 9)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	// A floor below it does not reissue.
	n, err = s.NextCodeNumber(ctx, f, "", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
}

func TestSeedCounterAndDeletedCodes(t *testing.T) {
	s := New()
	ctx := context.Background()
	f := temple()

	rec := newRecord("TRN0000002")
	require.NoError(t, s.InsertRecord(ctx, f, rec))

	v, err := s.SeedCounter(ctx, f, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	rec.IsDeleted = true
	rec.Version = 2
	rec.UpdatedBy = "supervisor-1"
	require.NoError(t, s.UpdateRecord(ctx, f, rec, 1))

	deleted, err := s.ListDeletedCodes(ctx, f)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "TRN0000002", deleted[0].PublicCode)
	assert.Equal(t, "supervisor-1", deleted[0].DeletedBy)
}
