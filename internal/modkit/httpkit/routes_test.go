package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	phttp "slaledger/internal/platform/net/http"
)

func TestMountUnder_PrefixAndMiddlewares(t *testing.T) {
	mux := chi.NewRouter()
	r := phttp.AdaptChi(mux)

	tag := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Module", "reports")
			next.ServeHTTP(w, req)
		})
	}
	MountUnder(r, "/v1", []func(http.Handler) http.Handler{tag}, func(sub Router) {
		Get(sub, "/reports/{kind}/{configID}", func(*http.Request) (any, error) { return "ok", nil })
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/stages/118", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reports", rec.Header().Get("X-Module"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/stages/118", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMountUnder_NoMiddlewares(t *testing.T) {
	mux := chi.NewRouter()
	mounted := false
	MountUnder(phttp.AdaptChi(mux), "/v1", nil, func(Router) { mounted = true })
	assert.True(t, mounted)
}
