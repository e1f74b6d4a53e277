// Package service orchestrates the registry: code allocation, workflow
// transitions, optimistic-concurrency writes and audit emission. It is the
// only layer that talks to the stores; callers get typed domain errors and
// never see driver details.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sasana/internal/registry/codes"
	registrymetrics "sasana/internal/registry/metrics"
	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
	"sasana/internal/registry/store/retired"
	dErrors "sasana/pkg/domainerrors"
	"sasana/pkg/platform/audit"
	"sasana/pkg/platform/sentinel"
)

const tracerName = "sasana/registry"

// AuditPublisher appends audit events; the transactional outbox implements
// it in production.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the registry façade. Construct with New; the zero value is not
// usable.
type Service struct {
	store    store.Store
	families models.FamilySet
	retired  retired.Index
	audit    AuditPublisher
	metrics  *registrymetrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	alloc    codes.AllocatorConfig
}

type Option func(s *Service)

// WithFamilies replaces the default family catalog. Build the set with
// models.NewFamilySet so it is validated.
func WithFamilies(set models.FamilySet) Option {
	return func(s *Service) {
		s.families = set
	}
}

// WithRetiredIndex wires the tombstone index consulted during allocation
// and written on soft delete.
func WithRetiredIndex(idx retired.Index) Option {
	return func(s *Service) {
		s.retired = idx
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllocator tunes the code allocation loop. Zero-valued fields keep
// their defaults.
func WithAllocator(cfg codes.AllocatorConfig) Option {
	return func(s *Service) {
		if cfg.Strategy != "" {
			s.alloc.Strategy = cfg.Strategy
		}
		if cfg.MaxAttempts > 0 {
			s.alloc.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.RetryBackoff >= 0 {
			s.alloc.RetryBackoff = cfg.RetryBackoff
		}
	}
}

// New constructs a Service over the given store.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
		alloc:  codes.DefaultAllocatorConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.families == nil {
		s.families = models.DefaultFamilySet()
	}
	return s
}

// Families exposes the catalog the service runs with, for operational
// tooling that iterates every family.
func (s *Service) Families() models.FamilySet {
	return s.families
}

func (s *Service) familyOf(name string) (models.Family, error) {
	f, ok := s.families.Get(strings.TrimSpace(name))
	if !ok {
		return models.Family{}, dErrors.Newf(dErrors.CodeValidation, "unknown record family %q", name)
	}
	return f, nil
}

func requireActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", dErrors.New(dErrors.CodeValidation, "an acting user is required")
	}
	return actor, nil
}

func (s *Service) startSpan(ctx context.Context, op, family string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("registry.family", family)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// wrapStoreErr translates store and sentinel errors into the domain
// vocabulary. Errors already carrying a domain code pass through untouched.
func (s *Service) wrapStoreErr(err error, op string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrStaleVersion):
		s.incrementStaleVersionWrite()
		return dErrors.Wrap(err, dErrors.CodeStaleVersion, "record was modified concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrConflict):
		return s.wrapUniqueViolation(err)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" canceled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

// wrapUniqueViolation maps a lost uniqueness race on a payload column
// (phone, email) to a validation error naming the column. Code and
// primary-key conflicts never reach here; the allocation loop consumes
// them.
func (s *Service) wrapUniqueViolation(err error) error {
	constraint, ok := store.ViolatedConstraint(err)
	if !ok {
		return dErrors.Wrap(err, dErrors.CodeConflict, "conflicting write")
	}
	column := constraint
	if i := strings.LastIndex(constraint, "_"); i >= 0 {
		column = constraint[i+1:]
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, column+" is already in use by another record")
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "record audit event")
	}
	return nil
}

func (s *Service) incrementCodeIssued(family string) {
	if s.metrics != nil {
		s.metrics.IncrementCodeIssued(family)
	}
}

func (s *Service) incrementAllocationAttempt() {
	if s.metrics != nil {
		s.metrics.IncrementAllocationAttempt()
	}
}

func (s *Service) incrementAllocationConflict(kind string) {
	if s.metrics != nil {
		s.metrics.IncrementAllocationConflict(kind)
	}
}

func (s *Service) incrementAllocationExhausted() {
	if s.metrics != nil {
		s.metrics.IncrementAllocationExhausted()
	}
}

func (s *Service) observeAllocation(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveAllocation(start)
	}
}

func (s *Service) incrementSequenceResync(family string) {
	if s.metrics != nil {
		s.metrics.IncrementSequenceResync(family)
	}
}

func (s *Service) incrementTransition(family, action string) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(family, action)
	}
}

func (s *Service) incrementTransitionRejected(family string) {
	if s.metrics != nil {
		s.metrics.IncrementTransitionRejected(family)
	}
}

func (s *Service) incrementStaleVersionWrite() {
	if s.metrics != nil {
		s.metrics.IncrementStaleVersionWrite()
	}
}

func (s *Service) incrementRecordSoftDeleted(family string) {
	if s.metrics != nil {
		s.metrics.IncrementRecordSoftDeleted(family)
	}
}

func (s *Service) incrementReprintRequest(family string) {
	if s.metrics != nil {
		s.metrics.IncrementReprintRequest(family)
	}
}
