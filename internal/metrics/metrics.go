// Package metrics exposes Prometheus instruments for the planning engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine counters and histograms
type Metrics struct {
	Runs          *prometheus.CounterVec
	SKUsExcluded  *prometheus.CounterVec
	ModelSelected *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	SolverResults *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartstock_runs_total",
				Help: "Engine runs by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		SKUsExcluded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartstock_skus_excluded_total",
				Help: "SKUs excluded from a run by failing stage",
			},
			[]string{"stage"},
		),
		ModelSelected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartstock_model_selected_total",
				Help: "Forecast models chosen by the selector",
			},
			[]string{"model"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartstock_stage_duration_seconds",
				Help:    "Wall time spent per engine stage",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
			},
			[]string{"stage"},
		),
		SolverResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartstock_solver_results_total",
				Help: "Optimization outcomes by backend and status",
			},
			[]string{"backend", "status"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartstock_forecast_cache_lookups_total",
				Help: "Forecast cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RunFinished(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Runs.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) SKUExcluded(stage string) {
	if m == nil {
		return
	}
	m.SKUsExcluded.WithLabelValues(stage).Inc()
}

func (m *Metrics) Selected(model string) {
	if m == nil {
		return
	}
	m.ModelSelected.WithLabelValues(model).Inc()
}

// ObserveStage records the time since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Solved(backend, status string) {
	if m == nil {
		return
	}
	m.SolverResults.WithLabelValues(backend, status).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
