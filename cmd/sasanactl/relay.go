package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"sasana/internal/platform/httpserver"
	"sasana/pkg/platform/audit/relay"
	auditpg "sasana/pkg/platform/audit/store/postgres"
)

func newAuditRelayCmd() *cobra.Command {
	var (
		partitions  int32
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "audit-relay",
		Short: "Ship audit events from the outbox to Kafka until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.Database.Driver != "postgres" {
				return fmt.Errorf("the audit outbox lives in postgres; driver is %q", e.cfg.Database.Driver)
			}

			sink, err := relay.NewKafkaSink(e.cfg.Audit.Brokers, e.cfg.Audit.Topic)
			if err != nil {
				return err
			}
			defer sink.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sink.EnsureTopic(ctx, partitions, 1); err != nil {
				return err
			}

			r := relay.New(auditpg.New(e.db), sink,
				relay.WithLogger(e.log),
				relay.WithMetrics(relay.NewMetrics()),
				relay.WithBatchSize(e.cfg.Audit.BatchSize),
				relay.WithPollInterval(e.cfg.Audit.PollInterval),
			)

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := httpserver.New(metricsAddr, mux)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						e.log.Error("metrics listener failed", "error", err)
					}
				}()
				defer func() { _ = srv.Shutdown(context.Background()) }()
				e.log.Info("metrics listener started", "addr", metricsAddr)
			}

			e.log.Info("audit relay started",
				"topic", e.cfg.Audit.Topic, "brokers", e.cfg.Audit.Brokers)
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Int32Var(&partitions, "partitions", 3, "partitions when creating the topic")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (off when empty)")
	return cmd
}
