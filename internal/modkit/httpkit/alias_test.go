package httpkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "slaledger/internal/platform/errors"
)

func serve(h Handler, r *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	h(rec, r)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestCall_WrapsValueInEnvelope(t *testing.T) {
	h := Call(func(*http.Request) (any, error) {
		return map[string]int{"total": 3}, nil
	})
	rec, body := serve(h, httptest.NewRequest(http.MethodGet, "/v1/reports/stages/118", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"total": float64(3)}, body["data"])
}

func TestCall_PassesResponseThrough(t *testing.T) {
	h := Call(func(*http.Request) (any, error) {
		return OK([]string{"118"}), nil
	})
	rec, body := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"118"}, body["data"])
}

func TestCall_MapsErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", perr.New(perr.ErrorCodeValidation, "limit must be an integer"), http.StatusBadRequest},
		{"not found", perr.NotFoundf("no accumulation for 118"), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := Call(func(*http.Request) (any, error) { return nil, tc.err })
			rec, body := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tc.want, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleAndError(t *testing.T) {
	h := Handle(func(*http.Request) Response { return Error(perr.NotFoundf("gone")) })
	rec, _ := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
