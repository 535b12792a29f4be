package middleware_test

import (
	"compress/flate"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaledger/internal/platform/net/middleware"
)

func TestCompress_GzipWhenAccepted(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rows":[`+strings.Repeat(`{"order_id":"1"},`, 200)+`{}]}`)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/stages/118", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	middleware.Compress(flate.BestSpeed)(h).ServeHTTP(rr, req)

	assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
}

func TestCORS_DefaultsAreReadOnly(t *testing.T) {
	cors := middleware.CORS(middleware.CORSOptions{AllowedOrigins: []string{"https://ops.example.com"}})
	h := cors(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	preflight := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/v1/watermarks/118", nil)
		req.Header.Set("Origin", "https://ops.example.com")
		req.Header.Set("Access-Control-Request-Method", method)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	assert.Contains(t, preflight(http.MethodGet).Header().Get("Access-Control-Allow-Methods"), "GET")
	assert.Empty(t, preflight(http.MethodDelete).Header().Get("Access-Control-Allow-Methods"))
}

func TestThrottle_RejectsOverLimit(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	h := middleware.Throttle(1)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	done := make(chan int)
	go func() {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/reports/primary/118", nil))
		done <- rr.Code
	}()
	<-entered

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/reports/primary/118", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	close(release)
	require.Equal(t, http.StatusOK, <-done)
}

func TestHeartbeatAndNoCache(t *testing.T) {
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	h := middleware.NoCache()(middleware.Heartbeat("/health")(next))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, reached, "heartbeat answers before the router")
	assert.NotEmpty(t, rr.Header().Get("Cache-Control"))
}
