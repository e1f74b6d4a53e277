package service_test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"sasana/internal/registry/models"
	"sasana/internal/registry/store/memory"
	dErrors "sasana/pkg/domainerrors"
)

func TestConcurrentCreatesAllocateDistinctCodes(t *testing.T) {
	const n = 25
	st := memory.New()
	svc := newService(st)

	codesCh := make(chan string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			rec, err := svc.Create(testCtx(), "temple",
				models.RecordInput{Name: fmt.Sprintf("Temple %02d", i)}, "officer-1")
			if err != nil {
				return err
			}
			codesCh <- rec.PublicCode
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(codesCh)

	seen := make(map[string]bool, n)
	for code := range codesCh {
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true
	}
	require.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("TRN%07d", i)])
	}
}

func TestConcurrentUpdatesOneWinnerPerVersion(t *testing.T) {
	const n = 10
	svc := newService(memory.New())
	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")

	var wins, stale atomic.Int64
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			district := fmt.Sprintf("District %d", i)
			_, err := svc.Update(testCtx(), "temple", rec.InternalID,
				models.RecordPatch{District: &district}, "officer-2", rec.Version)
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeStaleVersion):
				stale.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), wins.Load())
	assert.Equal(t, int64(n-1), stale.Load())

	stored, err := svc.Get(testCtx(), "temple", rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, rec.Version+1, stored.Version)
}
