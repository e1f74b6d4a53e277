// Package relay ships audit events from the transactional outbox to Kafka.
// Publishing is at-least-once: entries are marked published only after the
// broker acknowledged them, so a crash in between republishes rather than
// loses. Per-family order is preserved by keying records on the family.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "sasana/pkg/platform/audit"
)

// Sink is where drained entries go. The Kafka sink is the production
// implementation; tests substitute their own.
type Sink interface {
	Publish(ctx context.Context, entries []audit.OutboxEntry) error
}

// Relay polls the outbox and pushes batches into the sink.
type Relay struct {
	source   audit.OutboxStore
	sink     Sink
	batch    int
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithBatchSize caps how many entries one pass drains.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithPollInterval sets the idle sleep between passes.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func New(source audit.OutboxStore, sink Sink, opts ...Option) *Relay {
	r := &Relay{
		source:   source,
		sink:     sink,
		batch:    100,
		interval: time.Second,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Failures are logged and retried on the
// next tick; the outbox keeps everything until it is acknowledged.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Drain(ctx); err != nil {
			r.logger.ErrorContext(ctx, "audit relay pass failed", "error", err)
			if r.metrics != nil {
				r.metrics.IncrementPassFailed()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain ships batches until the outbox has nothing unpublished, then
// returns. One pass of the Run loop; also the whole job for tests and
// one-shot tooling.
func (r *Relay) Drain(ctx context.Context) error {
	for {
		entries, err := r.source.FetchUnpublished(ctx, r.batch)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		if err := r.sink.Publish(ctx, entries); err != nil {
			return fmt.Errorf("publish outbox batch: %w", err)
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.OutboxID
		}
		if err := r.source.MarkPublished(ctx, ids); err != nil {
			return fmt.Errorf("mark outbox batch published: %w", err)
		}

		if r.metrics != nil {
			r.metrics.AddPublished(len(entries))
		}
		r.logger.DebugContext(ctx, "audit batch shipped", "count", len(entries))
	}
}
