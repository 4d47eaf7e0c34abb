package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/homest/internal/calibration"
	"github.com/MeKo-Tech/homest/internal/correspondence"
	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/MeKo-Tech/homest/internal/version"
	"github.com/golang/geo/r2"
)

// requestError marks malformed requests that map to 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.rateLimiter != nil {
		clients := s.rateLimiter.Clients()
		response.RateLimitClients = &clients
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health response", "error", err)
	}
}

// estimateHandler fits a homography to the posted correspondences.
func (s *Server) estimateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EstimateRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	rep, err := s.estimate(&req, "http")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EstimateResponse{Success: true, Result: rep})
}

// applyHandler maps points through a caller-supplied homography.
func (s *Server) applyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ApplyRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.H == (homography.Matrix{}) {
		s.writeError(w, badRequest("missing homography h"))
		return
	}
	if len(req.Points) > s.maxPoints {
		s.writeError(w, badRequest("too many points: %d (limit %d)", len(req.Points), s.maxPoints))
		return
	}
	points, err := toPoints(req.Points, "points")
	if err != nil {
		s.writeError(w, err)
		return
	}

	projected, err := homography.Apply(req.H, points, s.estimation.InfinityTolerance)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pointsProjectedTotal.Add(float64(len(projected)))
	s.writeJSON(w, http.StatusOK, ApplyResponse{Success: true, Points: fromPoints(projected)})
}

// estimate converts a request into a dataset and runs the calibration
// pipeline. transport labels the metrics.
func (s *Server) estimate(req *EstimateRequest, transport string) (*calibration.Report, error) {
	if len(req.Source) > s.maxPoints || len(req.Destination) > s.maxPoints {
		return nil, badRequest("too many correspondences (limit %d)", s.maxPoints)
	}
	src, err := toPoints(req.Source, "source")
	if err != nil {
		return nil, err
	}
	dst, err := toPoints(req.Destination, "destination")
	if err != nil {
		return nil, err
	}
	cfg, err := s.requestConfig(req.Options)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = "request"
	}
	ds := &correspondence.Dataset{Name: name, Source: src, Destination: dst, Train: req.Train}
	correspondencesPerRequest.Observe(float64(ds.Len()))

	start := time.Now()
	rep, err := calibration.Run(ds, cfg)
	estimationDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	if err != nil {
		_, errType := classifyError(err)
		estimationsTotal.WithLabelValues(transport, errType).Inc()
		return nil, err
	}
	estimationsTotal.WithLabelValues(transport, "success").Inc()
	validationRMS.Observe(rep.ValidationRMS())
	return rep, nil
}

// requestConfig applies per-request overrides to the server policy.
func (s *Server) requestConfig(opts *EstimateOptions) (homography.Config, error) {
	cfg := s.estimation
	if opts == nil {
		return cfg, nil
	}
	switch conv := homography.ScaleConvention(opts.ScaleConvention); conv {
	case "":
	case homography.ScaleH22, homography.ScaleFrobenius:
		cfg.ScaleConvention = conv
	default:
		return cfg, badRequest("unsupported scale convention %q", opts.ScaleConvention)
	}
	if opts.AllowRankDeficient != nil {
		cfg.AllowRankDeficient = *opts.AllowRankDeficient
	}
	return cfg, nil
}

// decodeBody reads a size-limited JSON body into v.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyKB*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &bodyTooLargeError{limit: tooLarge.Limit}
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

type bodyTooLargeError struct {
	limit int64
}

func (e *bodyTooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds %d bytes", e.limit)
}

// classifyError maps an error to an HTTP status and a stable error type.
func classifyError(err error) (int, string) {
	var (
		reqErr     *requestError
		tooLarge   *bodyTooLargeError
		degenerate *homography.DegenerateInputError
		rank       *homography.RankDeficiencyWarning
		infinity   *homography.ProjectionAtInfinityError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, correspondence.ErrInvalidDataset):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity, "degenerate_input"
	case errors.As(err, &rank):
		return http.StatusUnprocessableEntity, "rank_deficient"
	case errors.As(err, &infinity):
		return http.StatusUnprocessableEntity, "projection_at_infinity"
	case errors.Is(err, homography.ErrSingular):
		return http.StatusUnprocessableEntity, "singular"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError writes a JSON error response classified from err.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, errType := classifyError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	} else {
		slog.Debug("Request rejected", "error", err, "type", errType)
	}
	s.writeJSON(w, status, ErrorResponse{Success: false, Error: err.Error(), ErrorType: errType})
}

// writeJSON marshals v before writing the header so that an encoding failure
// still produces a complete 500 response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Success: false, Error: "failed to encode response", ErrorType: "internal_error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func toPoints(pairs [][]float64, field string) ([]r2.Point, error) {
	pts := make([]r2.Point, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, badRequest("%s[%d] has %d coordinates, want 2", field, i, len(p))
		}
		pts[i] = r2.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}

func fromPoints(pts []r2.Point) [][]float64 {
	out := make([][]float64, len(pts))
	for i, p := range pts {
		out[i] = []float64{p.X, p.Y}
	}
	return out
}
