package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/homest/internal/homography"
	"github.com/stretchr/testify/require"
)

// testConfig returns a server configuration suitable for handler tests.
func testConfig() Config {
	return Config{
		Host:       "localhost",
		Port:       8080,
		CORSOrigin: "*",
		MaxBodyKB:  64,
		MaxPoints:  100,
		TimeoutSec: 5,
		Estimation: homography.DefaultConfig(),
	}
}

// newTestServer builds a server and its mux.
func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *http.ServeMux) {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	return srv, mux
}

// postJSON sends body to path and returns the recorder.
func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// sampleRequest is the demonstration dataset as an estimation request.
func sampleRequest() EstimateRequest {
	return EstimateRequest{
		Name:        "sample",
		Source:      [][]float64{{-2, 3}, {4, -5}, {8, 7}, {-6, 6}, {10, -8}, {-4, 2}},
		Destination: [][]float64{{-12, 6}, {16, -10}, {30, 20}, {-24, 12}, {40, -24}, {-20, 8}},
		Train:       4,
	}
}

// scaledRequest maps four points by a uniform scale of 5.
func scaledRequest() EstimateRequest {
	return EstimateRequest{
		Source:      [][]float64{{-2, 3}, {4, -5}, {8, 7}, {-6, 6}},
		Destination: [][]float64{{-10, 15}, {20, -25}, {40, 35}, {-30, 30}},
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
