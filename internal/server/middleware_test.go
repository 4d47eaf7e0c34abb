package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	server := &Server{corsOrigin: "https://example.com"}
	called := false
	handler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("preflight", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodOptions, "/homography/estimate", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
		assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("passes through", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodPost, "/homography/estimate", nil)
		w := httptest.NewRecorder()
		handler(w, req)

		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	})
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	server := &Server{}
	calls := 0
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) { calls++ })

	for range 10 {
		handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	}
	assert.Equal(t, 10, calls)
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	_, mux := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, RequestsPerSecond: 0.5, Burst: 2}
	})

	send := func() *httptest.ResponseRecorder {
		return postJSON(t, mux, "/homography/estimate", scaledRequest())
	}

	require.Equal(t, http.StatusOK, send().Code)
	require.Equal(t, http.StatusOK, send().Code)

	w := send()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Burst"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error_type"])
	assert.Equal(t, false, body["success"])
}

func TestRateLimitMiddleware_PerClient(t *testing.T) {
	server := &Server{rateLimiter: NewRateLimiter(0.1, 1)}
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) {})

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1"))
	assert.Equal(t, http.StatusOK, request("10.0.0.2"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, "9.9.9.9:1", "1.2.3.4"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 1.2.3.4 "}, "9.9.9.9:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "4.3.2.1"}, "9.9.9.9:1", "4.3.2.1"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"remote addr without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}

func TestHealthReportsRateLimitClients(t *testing.T) {
	server := &Server{rateLimiter: NewRateLimiter(10, 5)}
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, r *http.Request) {})

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		handler(httptest.NewRecorder(), req)
	}
	assert.InDelta(t, 2.0, testutil.ToFloat64(rateLimitClients), 0)

	w := httptest.NewRecorder()
	server.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotNil(t, response.RateLimitClients)
	assert.Equal(t, 2, *response.RateLimitClients)

	// without a limiter the field is omitted
	w = httptest.NewRecorder()
	(&Server{}).healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotContains(t, w.Body.String(), "rate_limit_clients")
}
