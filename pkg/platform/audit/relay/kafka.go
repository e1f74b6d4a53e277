package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "sasana/pkg/platform/audit"
)

// KafkaSink publishes outbox entries to one Kafka topic. Records are keyed
// by family, so a single-producer relay keeps each family's events in order
// on its partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

var _ Sink = (*KafkaSink)(nil)

// NewKafkaSink connects to the seed brokers and produces to topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: at least one seed broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka sink: a topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: connect: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}

// EnsureTopic creates the audit topic when it does not exist yet. Safe to
// call on every relay start.
func (s *KafkaSink) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(s.client)
	resps, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Publish produces the batch synchronously and fails when any record does.
func (s *KafkaSink) Publish(ctx context.Context, entries []audit.OutboxEntry) error {
	records := make([]*kgo.Record, len(entries))
	for i, e := range entries {
		records[i] = &kgo.Record{
			Topic: s.topic,
			Key:   []byte(e.Family),
			Value: e.Payload,
		}
	}
	if err := s.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}
	return nil
}
