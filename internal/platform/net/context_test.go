package net_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	pnet "slaledger/internal/platform/net"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := pnet.WithRequestID(context.Background(), "req-118")
	assert.Equal(t, "req-118", pnet.RequestID(ctx))

	assert.Empty(t, pnet.RequestID(context.Background()))
	assert.Empty(t, pnet.RequestID(pnet.WithRequestID(context.Background(), "")))
}

func TestRequestID_FromChiMiddleware(t *testing.T) {
	var got string
	h := chimw.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = pnet.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/watermarks/118", nil)
	req.Header.Set("X-Request-Id", "probe-7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "probe-7", got)
}
