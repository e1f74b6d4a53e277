//go:build integration

package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "sasana/pkg/platform/audit"
	auditmem "sasana/pkg/platform/audit/store/memory"
	"sasana/pkg/testutil/containers"
)

func TestKafkaSinkEndToEnd(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx := context.Background()

	const topic = "sasana.audit.test"
	sink, err := NewKafkaSink(rp.Brokers, topic)
	require.NoError(t, err)
	t.Cleanup(sink.Close)

	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	// Idempotent on restart.
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))

	store := auditmem.NewInMemoryStore()
	families := []string{"temple", "monk", "temple", "temple", "monk"}
	for i, family := range families {
		require.NoError(t, store.Append(ctx, audit.Event{
			ID:         uuid.New(),
			Family:     family,
			RecordID:   int64(i + 1),
			Action:     audit.ActionRecordCreated,
			ActorID:    "officer-1",
			OccurredAt: time.Now().UTC(),
		}))
	}

	r := New(store, sink, WithBatchSize(2))
	require.NoError(t, r.Drain(ctx))
	assert.Equal(t, 0, store.Unpublished())

	// Consume everything back and check keying and per-family order.
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	var records []*kgo.Record
	deadline := time.Now().Add(30 * time.Second)
	for len(records) < len(families) && time.Now().Before(deadline) {
		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		fetches := consumer.PollFetches(fetchCtx)
		cancel()
		records = append(records, fetches.Records()...)
	}
	require.Len(t, records, len(families))

	perFamily := map[string][]int64{}
	for _, rec := range records {
		var event audit.Event
		require.NoError(t, json.Unmarshal(rec.Value, &event))
		assert.Equal(t, event.Family, string(rec.Key))
		perFamily[event.Family] = append(perFamily[event.Family], event.RecordID)
	}
	assert.Equal(t, []int64{1, 3, 4}, perFamily["temple"])
	assert.Equal(t, []int64{2, 5}, perFamily["monk"])
}
