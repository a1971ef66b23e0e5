// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for mpdemux.
package metrics

import (
	"errors"
	"strconv"
	"time"

	mperrors "github.com/absmach/mpdemux/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for mpdemux.
type Metrics struct {
	// Demux metrics
	ActiveDemux   *prometheus.GaugeVec
	DemuxTotal    *prometheus.CounterVec
	DemuxErrors   *prometheus.CounterVec
	DemuxDuration *prometheus.HistogramVec
	PartsTotal    *prometheus.CounterVec
	PartSize      *prometheus.HistogramVec

	// Sink metrics
	SinkDuration *prometheus.HistogramVec
	SinkErrors   *prometheus.CounterVec
	Parsers      *prometheus.GaugeVec

	// Receiver request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec

	// Document service metrics
	BackendRequestsTotal *prometheus.CounterVec
	BackendErrors        *prometheus.CounterVec
	BackendDuration      *prometheus.HistogramVec
	PackageUploads       *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitedRequests *prometheus.CounterVec

	// Resource metrics
	GoroutinesActive *prometheus.GaugeVec
	MemoryAllocated  *prometheus.GaugeVec
}

// New creates a new Metrics instance and registers it with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "mpdemux"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	sizeBuckets := []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000}

	return &Metrics{
		ActiveDemux: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_demux",
				Help:      "Number of multipart streams being demultiplexed",
			},
			[]string{"source"},
		),
		DemuxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "demux_total",
				Help:      "Total number of demultiplexed multipart streams",
			},
			[]string{"source", "status"},
		),
		DemuxErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "demux_errors_total",
				Help:      "Total number of failed streams by parser state and error kind",
			},
			[]string{"source", "state", "kind"},
		),
		DemuxDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "demux_duration_seconds",
				Help:      "Time spent demultiplexing one stream in seconds",
				Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"source"},
		),
		PartsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parts_total",
				Help:      "Total number of parts by disposition",
			},
			[]string{"source", "disposition"},
		),
		PartSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "part_size_bytes",
				Help:      "Part body size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"source"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of receiver requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Receiver request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_size_bytes",
				Help:      "Receiver request body size in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"method"},
		),
		SinkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sink_open_duration_seconds",
				Help:      "Time spent resolving part sinks in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		SinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Total number of part sink failures",
			},
			[]string{"handler", "stage"},
		),
		Parsers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "parsers",
				Help:      "Number of pooled multipart parsers",
			},
			[]string{"state"},
		),
		BackendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Total number of document service requests",
			},
			[]string{"backend", "status"},
		),
		BackendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of document service errors",
			},
			[]string{"backend", "error_type"},
		),
		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Document service request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		PackageUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "package_uploads_total",
				Help:      "Total number of package uploads triggered by cache misses",
			},
			[]string{"status"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"backend"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"backend"},
		),
		RateLimitedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Total number of rate limited requests",
			},
			[]string{"component", "limiter_type"},
		),
		GoroutinesActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_active",
				Help:      "Number of active goroutines by component",
			},
			[]string{"component"},
		),
		MemoryAllocated: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_allocated_bytes",
				Help:      "Memory allocated in bytes",
			},
			[]string{"type"},
		),
	}
}

// ObserveDemux tracks one demultiplexing run from source.
func (m *Metrics) ObserveDemux(source string, f func() error) error {
	m.ActiveDemux.WithLabelValues(source).Inc()
	defer m.ActiveDemux.WithLabelValues(source).Dec()

	start := time.Now()
	err := f()
	m.DemuxDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
		state := "unknown"
		var de *mperrors.DemuxError
		if errors.As(err, &de) {
			state = de.State
		}
		m.DemuxErrors.WithLabelValues(source, state, Kind(err)).Inc()
	}
	m.DemuxTotal.WithLabelValues(source, status).Inc()

	return err
}

// ObservePart records one demultiplexed part.
func (m *Metrics) ObservePart(source string, stored bool, size int64) {
	disposition := "discarded"
	if stored {
		disposition = "stored"
	}
	m.PartsTotal.WithLabelValues(source, disposition).Inc()
	m.PartSize.WithLabelValues(source).Observe(float64(size))
}

// ObserveRequest tracks a receiver request. f returns the HTTP status code.
func (m *Metrics) ObserveRequest(method string, f func() int) {
	start := time.Now()
	status := f()
	m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// ObserveBackend tracks a document service call. f returns the HTTP status
// code, or an error when no response was received.
func (m *Metrics) ObserveBackend(backend string, f func() (int, error)) (int, error) {
	start := time.Now()
	status, err := f()
	m.BackendDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	if err != nil {
		m.BackendErrors.WithLabelValues(backend, Kind(err)).Inc()
		m.BackendRequestsTotal.WithLabelValues(backend, "error").Inc()
		return status, err
	}
	m.BackendRequestsTotal.WithLabelValues(backend, strconv.Itoa(status)).Inc()
	return status, nil
}

// Kind returns a short label for the error kind of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, mperrors.ErrPatternNotFound):
		return "pattern_not_found"
	case errors.Is(err, mperrors.ErrEndOfStream):
		return "end_of_stream"
	case errors.Is(err, mperrors.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(err, mperrors.ErrPatternTooLong):
		return "pattern_too_long"
	case errors.Is(err, mperrors.ErrSink):
		return "sink"
	case errors.Is(err, mperrors.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, mperrors.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, mperrors.ErrUnexpectedStatus):
		return "unexpected_status"
	case errors.Is(err, mperrors.ErrInvalidInput):
		return "invalid_input"
	default:
		return "other"
	}
}
