// Package server exposes homography estimation over HTTP and WebSocket.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	estimation  homography.Config
	corsOrigin  string
	maxBodyKB   int64
	maxPoints   int
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	CORSOrigin string
	MaxBodyKB  int64
	MaxPoints  int
	TimeoutSec int
	Estimation homography.Config
	RateLimit  RateLimitConfig
}

// RateLimitConfig configures per-client token buckets.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version,omitempty"`
	Time             string `json:"time"`
	RateLimitClients *int   `json:"rate_limit_clients,omitempty"` // set only when rate limiting is enabled
}

// EstimateOptions overrides the server's estimation policy for one request.
type EstimateOptions struct {
	ScaleConvention    string `json:"scale_convention,omitempty"`
	AllowRankDeficient *bool  `json:"allow_rank_deficient,omitempty"`
}

// EstimateRequest carries correspondences for POST /homography/estimate.
// The first Train pairs are used for estimation, the rest for validation.
type EstimateRequest struct {
	Name        string           `json:"name,omitempty"`
	Source      [][]float64      `json:"source"`
	Destination [][]float64      `json:"destination"`
	Train       int              `json:"train,omitempty"`
	Options     *EstimateOptions `json:"options,omitempty"`
}

// EstimateResponse wraps a calibration report.
type EstimateResponse struct {
	Success bool                `json:"success"`
	Result  *calibration.Report `json:"result,omitempty"`
}

// ApplyRequest maps points through a homography via POST /homography/apply.
type ApplyRequest struct {
	H      homography.Matrix `json:"h"`
	Points [][]float64       `json:"points"`
}

// ApplyResponse holds the projected points.
type ApplyResponse struct {
	Success bool        `json:"success"`
	Points  [][]float64 `json:"points"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// NewServer creates a new estimation server instance.
func NewServer(config Config) (*Server, error) {
	if config.MaxBodyKB <= 0 {
		return nil, fmt.Errorf("invalid max body size: %d KB", config.MaxBodyKB)
	}
	if config.MaxPoints < homography.MinCorrespondences {
		return nil, fmt.Errorf("invalid max points: %d (must be at least %d)", config.MaxPoints, homography.MinCorrespondences)
	}

	s := &Server{
		estimation: config.Estimation,
		corsOrigin: config.CORSOrigin,
		maxBodyKB:  config.MaxBodyKB,
		maxPoints:  config.MaxPoints,
	}
	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst < 1 {
			return nil, errors.New("rate limit requires positive requests per second and burst")
		}
		s.rateLimiter = NewRateLimiter(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}
	return s, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.rateLimiter != nil {
		s.rateLimiter.Reset()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/homography/estimate", s.corsMiddleware(s.rateLimitMiddleware(s.estimateHandler)))
	mux.HandleFunc("/homography/apply", s.corsMiddleware(s.rateLimitMiddleware(s.applyHandler)))
	mux.HandleFunc("/ws/estimate", s.rateLimitMiddleware(s.estimateWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}
