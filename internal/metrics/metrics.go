package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hazard"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg prometheus.Gatherer

	eventsTotal         *prometheus.CounterVec
	coordinatesRepaired prometheus.Counter
	cacheErrors         *prometheus.CounterVec
	storeErrors         *prometheus.CounterVec
	ingestDuration      prometheus.Histogram
	alertsTotal         *prometheus.CounterVec
	activeSubscribers   prometheus.Gauge
	publishErrors       *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	registerer          prometheus.Registerer
}

// New registers the collectors on a fresh registry together with the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		reg:        gatherer,
		registerer: registerer,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Ingested hazard events by outcome.",
		}, []string{"outcome"}),
		coordinatesRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinates_corrected_total",
			Help:      "Events whose latitude and longitude were swapped back.",
		}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Duplicate cache failures that were failed open.",
		}, []string{"op"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Geospatial store failures.",
		}, []string{"op"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent processing one incoming event.",
			Buckets:   prometheus.DefBuckets,
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts submitted to subscriber dispatchers by priority and outcome.",
		}, []string{"priority", "outcome"}),
		activeSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscribers",
			Help:      "Connected subscriber sessions.",
		}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failures publishing accepted events downstream.",
		}, []string{"transport"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registerer.MustRegister(
		m.eventsTotal,
		m.coordinatesRepaired,
		m.cacheErrors,
		m.storeErrors,
		m.ingestDuration,
		m.alertsTotal,
		m.activeSubscribers,
		m.publishErrors,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// RegisterStateGauge exposes a scrape-time gauge, e.g. a circuit breaker state.
func (m *Metrics) RegisterStateGauge(name, help string, f func() float64) {
	if m == nil {
		return
	}
	m.registerer.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, f))
}

func (m *Metrics) EventProcessed(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(took.Seconds())
}

func (m *Metrics) CoordinatesCorrected() {
	if m == nil {
		return
	}
	m.coordinatesRepaired.Inc()
}

func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) AlertSubmitted(priority, outcome string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(priority, outcome).Inc()
}

func (m *Metrics) SubscriberConnected() {
	if m == nil {
		return
	}
	m.activeSubscribers.Inc()
}

func (m *Metrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.activeSubscribers.Dec()
}

func (m *Metrics) PublishError(transport string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(transport).Inc()
}

func (m *Metrics) ObserveHTTP(route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}
