package observability

import (
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the pipeline service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	leadsCreated      prometheus.Counter
	activitiesLogged  *prometheus.CounterVec
	stageTransitions  *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	versionConflicts  prometheus.Counter
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	leadTemperature   prometheus.Histogram
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_operation_duration_seconds",
				Help:    "Duration of pipeline operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		leadsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_leads_created_total",
				Help: "Total leads created.",
			},
		),
		activitiesLogged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_activities_total",
				Help: "Total activities appended, by type.",
			},
			[]string{"type"},
		),
		stageTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_transitions_total",
				Help: "Total stage moves, by source and target stage.",
			},
			[]string{"from", "to"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_outcomes_total",
				Help: "Total won, lost and reactivated leads.",
			},
			[]string{"outcome"},
		),
		versionConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_version_conflicts_total",
				Help: "Total writes rejected for a stale lead version.",
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_store_errors_total",
				Help: "Total errors returned by the lead store.",
			},
			[]string{"backend"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		leadTemperature: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_lead_temperature",
				Help:    "Lead temperature after each committed change.",
				Buckets: []float64{-10, 0, 25, 50, 75, 90, 100},
			},
		),
	}
}

// RecordOperationDuration records the duration of an operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrLeadCreated increments the created-leads counter.
func (m *Metrics) IncrLeadCreated() {
	m.leadsCreated.Inc()
}

// IncrActivity counts an appended activity.
func (m *Metrics) IncrActivity(activityType domain.ActivityType) {
	m.activitiesLogged.WithLabelValues(string(activityType)).Inc()
}

// IncrStageTransition counts a stage move.
func (m *Metrics) IncrStageTransition(from, to domain.Stage) {
	m.stageTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// IncrOutcome counts won, lost and reactivated.
func (m *Metrics) IncrOutcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

// IncrVersionConflict counts a stale write.
func (m *Metrics) IncrVersionConflict() {
	m.versionConflicts.Inc()
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(backend string) {
	m.storeErrors.WithLabelValues(backend).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// ObserveTemperature records a lead temperature.
func (m *Metrics) ObserveTemperature(t int) {
	m.leadTemperature.Observe(float64(t))
}

// GetPipelineSnapshot returns a snapshot suitable for GET /v1/metrics/pipeline.
func (m *Metrics) GetPipelineSnapshot(backend string) *domain.PipelineMetrics {
	byType := make(map[string]int64)
	var total int64
	for _, t := range append(append([]domain.ActivityType{}, domain.UserActivityTypes...), domain.SystemActivityTypes...) {
		if v := int64(getCounterValue(m.activitiesLogged, string(t))); v > 0 {
			byType[string(t)] = v
			total += v
		}
	}

	var transitions int64
	for _, from := range domain.AllStages {
		for _, to := range domain.AllStages {
			transitions += int64(getCounterValue(m.stageTransitions, string(from), string(to)))
		}
	}

	cacheHits := getCounterValue(m.cacheHits, "customer")
	cacheMisses := getCounterValue(m.cacheMisses, "customer")
	cacheHitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.PipelineMetrics{
		LeadsCreated:     int64(readCounter(m.leadsCreated)),
		ActivitiesLogged: total,
		StageTransitions: transitions,
		DealsWon:         int64(getCounterValue(m.outcomes, "won")),
		DealsLost:        int64(getCounterValue(m.outcomes, "lost")),
		Reactivations:    int64(getCounterValue(m.outcomes, "reactivated")),
		VersionConflicts: int64(readCounter(m.versionConflicts)),
		CacheHitRate:     cacheHitRate,
		ActivitiesByType: byType,
		StoreBackend:     backend,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	return readCounter(cv.WithLabelValues(labels...))
}

func readCounter(counter prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
