package metrics

import (
	"time"

	"chainhealth/internal/application/port"
	"chainhealth/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "chainhealth"

// Compile-time check
var _ port.Observer = (*Collector)(nil)

// Collector records selection events as Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	probes             *prometheus.CounterVec
	suppressedSkips    *prometheus.CounterVec
	selections         *prometheus.CounterVec
	selectionDurations *prometheus.HistogramVec
	invalidations      *prometheus.CounterVec
}

// New registers the collector metrics on reg.
func New(reg *prometheus.Registry) *Collector {
	c := &Collector{
		gatherer: reg,
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Liveness probes by endpoint kind and verdict reason.",
		}, []string{"kind", "reason"}),
		suppressedSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_skips_total",
			Help:      "Candidates skipped because they were in the unhealthy cache.",
		}, []string{"kind"}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Endpoint selections by kind and outcome.",
		}, []string{"kind", "outcome"}),
		selectionDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "Time spent selecting an endpoint.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_total",
			Help:      "Chain health entries dropped by cause.",
		}, []string{"cause"}),
	}

	reg.MustRegister(c.probes, c.suppressedSkips, c.selections, c.selectionDurations, c.invalidations)
	return c
}

// RegisterUnhealthySize exposes the current unhealthy cache size as a gauge.
func (c *Collector) RegisterUnhealthySize(reg prometheus.Registerer, size func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unhealthy_endpoints",
		Help:      "Addresses currently suppressed.",
	}, func() float64 { return float64(size()) }))
}

func (c *Collector) ObserveVerdict(verdict entity.ProbeVerdict) {
	reason := string(verdict.Reason)
	if verdict.Healthy {
		reason = "healthy"
	}
	c.probes.WithLabelValues(string(verdict.Kind), reason).Inc()
}

func (c *Collector) ObserveSuppressedSkip(kind entity.Kind) {
	c.suppressedSkips.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) ObserveSelection(kind entity.Kind, found bool, elapsed time.Duration) {
	outcome := "unknown"
	if found {
		outcome = "found"
	}
	c.selections.WithLabelValues(string(kind), outcome).Inc()
	c.selectionDurations.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveInvalidation(cause string) {
	c.invalidations.WithLabelValues(cause).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
}
