package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homest_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homest_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Estimation metrics
	estimationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homest_estimations_total",
			Help: "Total number of homography estimations",
		},
		[]string{"transport", "outcome"}, // outcome: success, degenerate, rank_deficient, projection_at_infinity, error
	)

	estimationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homest_estimation_duration_seconds",
			Help:    "Homography estimation duration in seconds",
			Buckets: []float64{1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2, 5e-2, .1, .5},
		},
		[]string{"transport"},
	)

	correspondencesPerRequest = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homest_correspondences_per_request",
			Help:    "Number of point correspondences per estimation request",
			Buckets: []float64{4, 8, 16, 32, 64, 128, 256, 1024, 4096},
		},
	)

	validationRMS = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homest_validation_rms",
			Help:    "Validation RMS reprojection error of successful estimations",
			Buckets: prometheus.ExponentialBuckets(1e-6, 10, 10),
		},
	)

	pointsProjectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homest_points_projected_total",
			Help: "Total number of points mapped through /homography/apply",
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homest_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		},
	)

	rateLimitClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homest_rate_limit_clients",
			Help: "Number of clients with a tracked token bucket",
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homest_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homest_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
