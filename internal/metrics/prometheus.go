// Package metrics exposes Prometheus metrics for the note synthesis service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medreportgen-server/internal/domain"
)

const namespace = "medreportgen"

// Outcome label values for notes_generated_total.
const (
	OutcomeGenerated = "generated"
	OutcomeDegraded  = "degraded"
)

// Collector owns a private registry and every metric the service exports.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	notesGenerated     *prometheus.CounterVec
	warningsRaised     *prometheus.CounterVec
	generationDuration prometheus.Histogram
	confidenceScore    prometheus.Histogram
}

// NewCollector registers all metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		notesGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notes_generated_total",
				Help:      "Total number of clinical notes produced, by outcome",
			},
			[]string{"outcome"},
		),
		warningsRaised: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warnings_raised_total",
				Help:      "Total number of clinical warnings raised, by warning",
			},
			[]string{"warning"},
		),
		generationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Note generation duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		confidenceScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "confidence_score",
				Help:      "Confidence score attached to each report",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RegisterBreakerState exports the generation circuit breaker state
// (0 closed, 1 half-open, 2 open) read from state on every scrape.
func (c *Collector) RegisterBreakerState(state func() int) {
	promauto.With(c.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_breaker_state",
			Help:      "Generation circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		func() float64 { return float64(state()) },
	)
}

// ObserveReport records one synthesized report.
func (c *Collector) ObserveReport(resp *domain.MedicalReportResponse, generation time.Duration) {
	outcome := OutcomeGenerated
	if resp.Degraded() {
		outcome = OutcomeDegraded
	}
	c.notesGenerated.WithLabelValues(outcome).Inc()
	c.generationDuration.Observe(generation.Seconds())
	c.confidenceScore.Observe(resp.ConfidenceScore)
	for _, w := range resp.Warnings {
		c.warningsRaised.WithLabelValues(w).Inc()
	}
}

// GinMiddleware records HTTP request count and latency per route template.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		c.httpRequestsInFlight.Inc()
		defer c.httpRequestsInFlight.Dec()

		ctx.Next()

		// Route templates keep label cardinality bounded.
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.httpRequestsTotal.WithLabelValues(ctx.Request.Method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(ctx.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
