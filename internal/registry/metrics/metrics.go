package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry module.
// Tracks code allocation behavior and workflow movement.
type Metrics struct {
	CodesIssued         *prometheus.CounterVec
	AllocationAttempts  prometheus.Counter
	AllocationConflicts *prometheus.CounterVec
	AllocationExhausted prometheus.Counter
	AllocationDuration  prometheus.Histogram
	SequenceResyncs     *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	StaleVersionWrites  prometheus.Counter
	RecordsSoftDeleted  *prometheus.CounterVec
	ReprintRequests     *prometheus.CounterVec
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sasana_codes_issued_total",
			Help: "Public codes successfully issued, by family",
		}, []string{"family"}),
		AllocationAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sasana_code_allocation_attempts_total",
			Help: "Allocation loop attempts, including retries",
		}),
		AllocationConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sasana_code_allocation_conflicts_total",
			Help: "Allocation attempts lost to a conflict, by kind",
		}, []string{"kind"}),
		AllocationExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sasana_code_allocation_exhausted_total",
			Help: "Creations abandoned after the retry budget ran out",
		}),
		AllocationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sasana_code_allocation_duration_seconds",
			Help:    "Duration of the whole allocation loop per create",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		SequenceResyncs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sasana_sequence_resyncs_total",
			Help: "Sequence repairs performed, by family",
		}, []string{"family"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sasana_workflow_transitions_total",
			Help: "Workflow transitions applied, by family and action",
		}, []string{"family", "action"}),
		TransitionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sasana_workflow_transitions_rejected_total",
			Help: "Workflow transitions refused, by family",
		}, []string{"family"}),
		StaleVersionWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sasana_stale_version_writes_total",
			Help: "Writes refused because the caller held a stale version",
		}),
		RecordsSoftDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sasana_records_soft_deleted_total",
			Help: "Records soft-deleted, by family",
		}, []string{"family"}),
		ReprintRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sasana_reprint_requests_total",
			Help: "Certificate reissue requests opened, by family",
		}, []string{"family"}),
	}
}

// Allocation conflict kinds.
const (
	ConflictKindCode       = "public_code"
	ConflictKindPrimaryKey = "primary_key"
	ConflictKindRetired    = "retired_code"
)

// IncrementCodeIssued records a successful allocation.
func (m *Metrics) IncrementCodeIssued(family string) {
	m.CodesIssued.WithLabelValues(family).Inc()
}

// IncrementAllocationAttempt records one pass through the allocation loop.
func (m *Metrics) IncrementAllocationAttempt() {
	m.AllocationAttempts.Inc()
}

// IncrementAllocationConflict records a lost allocation race.
func (m *Metrics) IncrementAllocationConflict(kind string) {
	m.AllocationConflicts.WithLabelValues(kind).Inc()
}

// IncrementAllocationExhausted records an abandoned create.
func (m *Metrics) IncrementAllocationExhausted() {
	m.AllocationExhausted.Inc()
}

// ObserveAllocation records the duration of an allocation loop.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAllocation(start time.Time) {
	m.AllocationDuration.Observe(time.Since(start).Seconds())
}

// IncrementSequenceResync records a sequence repair.
func (m *Metrics) IncrementSequenceResync(family string) {
	m.SequenceResyncs.WithLabelValues(family).Inc()
}

// IncrementTransition records an applied workflow transition.
func (m *Metrics) IncrementTransition(family, action string) {
	m.Transitions.WithLabelValues(family, action).Inc()
}

// IncrementTransitionRejected records a refused workflow transition.
func (m *Metrics) IncrementTransitionRejected(family string) {
	m.TransitionsRejected.WithLabelValues(family).Inc()
}

// IncrementStaleVersionWrite records an optimistic-concurrency loss.
func (m *Metrics) IncrementStaleVersionWrite() {
	m.StaleVersionWrites.Inc()
}

// IncrementRecordSoftDeleted records a soft delete.
func (m *Metrics) IncrementRecordSoftDeleted(family string) {
	m.RecordsSoftDeleted.WithLabelValues(family).Inc()
}

// IncrementReprintRequest records an opened reissue request.
func (m *Metrics) IncrementReprintRequest(family string) {
	m.ReprintRequests.WithLabelValues(family).Inc()
}
