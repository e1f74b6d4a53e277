//go:build integration

package retired

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sasana/pkg/testutil/containers"
)

func TestRedisIndex(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	idx := NewRedis(rc.Client)
	ctx := context.Background()

	retired, err := idx.IsRetired(ctx, "temple", "TRN0000001")
	require.NoError(t, err)
	assert.False(t, retired)

	entry := Entry{
		Family:     "temple",
		PublicCode: "TRN0000001",
		RetiredBy:  "supervisor-1",
		RetiredAt:  time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, idx.Retire(ctx, entry))

	retired, err = idx.IsRetired(ctx, "temple", "TRN0000001")
	require.NoError(t, err)
	assert.True(t, retired)

	// Families are separate sets.
	retired, err = idx.IsRetired(ctx, "shrine", "TRN0000001")
	require.NoError(t, err)
	assert.False(t, retired)

	// Retiring again keeps the first entry's audit fields.
	again := entry
	again.RetiredBy = "supervisor-2"
	require.NoError(t, idx.Retire(ctx, again))

	list, err := idx.List(ctx, "temple")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "TRN0000001", list[0].PublicCode)
	assert.Equal(t, "supervisor-1", list[0].RetiredBy)
	assert.True(t, list[0].RetiredAt.Equal(entry.RetiredAt))
}

func TestRedisIndexMirroredOverMemory(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	primary := NewMemory()
	cache := NewRedis(rc.Client)
	m := NewMirrored(primary, cache, nil)
	ctx := context.Background()

	entry := Entry{Family: "temple", PublicCode: "TRN0000007", RetiredAt: time.Now().UTC()}
	require.NoError(t, m.Retire(ctx, entry))

	// The write went through to both layers.
	hit, err := cache.IsRetired(ctx, "temple", "TRN0000007")
	require.NoError(t, err)
	assert.True(t, hit)

	// A cold cache is backfilled from the primary on the first miss.
	require.NoError(t, rc.FlushAll(ctx))
	retired, err := m.IsRetired(ctx, "temple", "TRN0000007")
	require.NoError(t, err)
	assert.True(t, retired)

	hit, err = cache.IsRetired(ctx, "temple", "TRN0000007")
	require.NoError(t, err)
	assert.True(t, hit)
}
