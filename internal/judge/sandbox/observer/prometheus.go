package observer

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports sandbox metrics to a Prometheus registry.
type PrometheusRecorder struct {
	compiles    *prometheus.CounterVec
	runs        *prometheus.CounterVec
	validations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	memory      *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the judge collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		compiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderush_compiles_total",
				Help: "Total number of compilations",
			},
			[]string{"language", "ok"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderush_runs_total",
				Help: "Total number of test case executions",
			},
			[]string{"language", "verdict"},
		),
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderush_validations_total",
				Help: "Total number of completed submission validations",
			},
			[]string{"language", "verdict"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coderush_duration_ms",
				Help:    "Duration in milliseconds",
				Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"language", "phase"}, // phase: "compile", "run", "total"
		),
		memory: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coderush_memory_usage_kb",
				Help:    "Peak memory usage per execution in KB",
				Buckets: []float64{1024, 4096, 16384, 65536, 131072, 262144},
			},
			[]string{"language"},
		),
	}
}

func (p *PrometheusRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
	p.compiles.WithLabelValues(languageID, strconv.FormatBool(ok)).Inc()
	p.duration.WithLabelValues(languageID, "compile").Observe(float64(timeMs))
}

func (p *PrometheusRecorder) ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
	p.runs.WithLabelValues(languageID, verdict).Inc()
	p.duration.WithLabelValues(languageID, "run").Observe(float64(timeMs))
	if memoryKB > 0 {
		p.memory.WithLabelValues(languageID).Observe(float64(memoryKB))
	}
}

func (p *PrometheusRecorder) ObserveValidation(ctx context.Context, languageID string, verdict string, durationMs int64) {
	p.validations.WithLabelValues(languageID, verdict).Inc()
	p.duration.WithLabelValues(languageID, "total").Observe(float64(durationMs))
}
