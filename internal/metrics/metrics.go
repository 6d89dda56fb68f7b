// Package metrics collects and exposes Prometheus metrics for the HTTP
// surface, media streams and background file removal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reelhouse"

// Collector records metrics on a caller-supplied registry.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeStreams   prometheus.Gauge
	streamedBytes   prometheus.Counter
	streamErrors    prometheus.Counter
	authEvents      *prometheus.CounterVec
	removals        *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds, including streamed bodies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "media_active_streams",
			Help:      "Media responses currently being streamed.",
		}),
		streamedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_streamed_bytes_total",
			Help:      "Bytes of media written to clients.",
		}),
		streamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_stream_errors_total",
			Help:      "Media streams that ended before the full range was written.",
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Authentication and authorization outcomes.",
		}, []string{"outcome"}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_removals_total",
			Help:      "Background media file removals by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.requests,
		c.requestDuration,
		c.activeStreams,
		c.streamedBytes,
		c.streamErrors,
		c.authEvents,
		c.removals,
	)

	return c
}

// ObserveRequest records a finished HTTP request.
func (c *Collector) ObserveRequest(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// StreamStarted marks a media stream as in flight.
func (c *Collector) StreamStarted() {
	c.activeStreams.Inc()
}

// StreamFinished records the bytes written by a media stream and whether it failed.
func (c *Collector) StreamFinished(bytes int64, err error) {
	c.activeStreams.Dec()
	c.streamedBytes.Add(float64(bytes))
	if err != nil {
		c.streamErrors.Inc()
	}
}

// RecordAuth counts an authentication outcome such as "login_success" or "token_invalid".
func (c *Collector) RecordAuth(outcome string) {
	c.authEvents.WithLabelValues(outcome).Inc()
}

// RecordRemoval counts a background file removal. A nil err counts as removed.
func (c *Collector) RecordRemoval(err error) {
	result := "removed"
	if err != nil {
		result = "failed"
	}
	c.removals.WithLabelValues(result).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
