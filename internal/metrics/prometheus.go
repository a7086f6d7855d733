package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the port reservation service
type Metrics struct {
	// UDP datagram metrics
	DatagramsReceived prometheus.Counter
	DecodeErrors      prometheus.Counter
	SendErrors        prometheus.Counter

	// Request metrics
	Requests        *prometheus.CounterVec
	RequestDuration prometheus.Histogram

	// Reservation metrics
	ReservedPorts prometheus.Gauge
	Reservations  prometheus.Counter
	Releases      prometheus.Counter
	Expirations   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP datagram metrics
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "prs_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prs_decode_errors_total",
			Help: "Total number of datagrams that failed to decode",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prs_send_errors_total",
			Help: "Total number of responses that could not be sent",
		}),

		// Request metrics
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prs_requests_total",
			Help: "Total number of handled requests by message type and response status",
		}, []string{"type", "status"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prs_request_duration_seconds",
			Help:    "Time spent handling a request in the registry",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us to ~160ms
		}),

		// Reservation metrics
		ReservedPorts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "prs_reserved_ports",
			Help: "Current number of reserved ports",
		}),
		Reservations: factory.NewCounter(prometheus.CounterOpts{
			Name: "prs_reservations_total",
			Help: "Total number of ports reserved",
		}),
		Releases: factory.NewCounter(prometheus.CounterOpts{
			Name: "prs_releases_total",
			Help: "Total number of ports released by CLOSE_PORT",
		}),
		Expirations: factory.NewCounter(prometheus.CounterOpts{
			Name: "prs_expirations_total",
			Help: "Total number of reservations released by keep-alive timeout",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prs_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prs_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prs_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordDatagramReceived increments the datagrams received counter
func (m *Metrics) RecordDatagramReceived() {
	m.DatagramsReceived.Inc()
}

// RecordDecodeError increments the decode errors counter
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// RecordSendError increments the send errors counter
func (m *Metrics) RecordSendError() {
	m.SendErrors.Inc()
}

// RecordRequest records a handled request with its outcome
func (m *Metrics) RecordRequest(msgType, status string, durationSeconds float64) {
	m.Requests.WithLabelValues(msgType, status).Inc()
	m.RequestDuration.Observe(durationSeconds)
}

// PortReserved records a new reservation
func (m *Metrics) PortReserved(port uint16) {
	m.Reservations.Inc()
	m.ReservedPorts.Inc()
}

// PortReleased records a reservation ending by close or by expiry
func (m *Metrics) PortReleased(port uint16, expired bool) {
	if expired {
		m.Expirations.Inc()
	} else {
		m.Releases.Inc()
	}
	m.ReservedPorts.Dec()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
