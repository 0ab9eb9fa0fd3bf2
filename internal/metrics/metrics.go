package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphummel/hwportal/internal/models"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwportal_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hwportal_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hwportal_http_requests_in_flight",
		Help: "Current number of HTTP requests being processed.",
	})

	checkRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwportal_checkincheckout_requests_total",
			Help: "Check-in and check-out requests by action and result.",
		},
		[]string{"action", "result"},
	)

	unitsMovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwportal_units_moved_total",
			Help: "Hardware units checked in or out, by action and hardware set.",
		},
		[]string{"action", "hardwareid"},
	)
)

// HardwareDB is the subset of db.DB needed to collect hardware metrics.
type HardwareDB interface {
	ListHardware() ([]*models.HardwareSet, error)
}

// hardwareCollector queries the database on each scrape to report capacity
// and availability per hardware set.
type hardwareCollector struct {
	db            HardwareDB
	capacityDesc  *prometheus.Desc
	availableDesc *prometheus.Desc
}

func newHardwareCollector(db HardwareDB) *hardwareCollector {
	return &hardwareCollector{
		db: db,
		capacityDesc: prometheus.NewDesc(
			"hwportal_hardware_capacity",
			"Total units owned, partitioned by hardware set.",
			[]string{"hardwareid"},
			nil,
		),
		availableDesc: prometheus.NewDesc(
			"hwportal_hardware_available",
			"Units not checked out, partitioned by hardware set.",
			[]string{"hardwareid"},
			nil,
		),
	}
}

func (c *hardwareCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacityDesc
	ch <- c.availableDesc
}

func (c *hardwareCollector) Collect(ch chan<- prometheus.Metric) {
	sets, err := c.db.ListHardware()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.capacityDesc, err)
		return
	}
	for _, h := range sets {
		ch <- prometheus.MustNewConstMetric(c.capacityDesc, prometheus.GaugeValue, float64(h.Capacity), h.ID)
		ch <- prometheus.MustNewConstMetric(c.availableDesc, prometheus.GaugeValue, float64(h.Available), h.ID)
	}
}

// Register registers all metrics with reg. Call once at startup after the
// database is initialised.
func Register(reg prometheus.Registerer, db HardwareDB) {
	reg.MustRegister(
		// Standard Go runtime and process metrics
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		// HTTP service metrics
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,

		// Application metrics
		checkRequestsTotal,
		unitsMovedTotal,
		newHardwareCollector(db),
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
// serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveCheck counts a check-in or check-out request by its result
// ("ok", "rejected", "forbidden", "not_found", "error").
func ObserveCheck(action models.Action, result string) {
	checkRequestsTotal.WithLabelValues(string(action), result).Inc()
}

// ObserveMoved counts units moved by an applied check-in or check-out line.
func ObserveMoved(action models.Action, hardwareID string, n int) {
	unitsMovedTotal.WithLabelValues(string(action), hardwareID).Add(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an http.Handler to record HTTP metrics.
// pattern should be the route pattern string (e.g. "/api/v1/hardware/{id}")
// so the path label has bounded cardinality.
func Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			httpRequestsInFlight.Dec()
			status := strconv.Itoa(rw.status)
			httpRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(rw, r)
	})
}
