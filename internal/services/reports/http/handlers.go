// Package http provides http transport for reports
package http

import (
	stdhttp "net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"slaledger/internal/modkit/httpkit"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/services/reports/domain"
)

// Register mounts report endpoints on the given router
func Register(r httpkit.Router, s domain.ServicePort) {
	h := &handlers{svc: s}

	// accumulation pages
	httpkit.Get(r, "/reports/{kind}/{configID}", h.report)

	// per order watermarks
	httpkit.Get(r, "/watermarks/{configID}", h.watermarks)
}

type handlers struct{ svc domain.ServicePort }

// @Summary Accumulated stage or primary table
// @Tags Reports
// @Produce json
// @Param kind path string true "stages or primary"
// @Param configID path string true "configuration id"
// @Param limit query int false "page size"
// @Param offset query int false "rows to skip"
// @Success 200 {object} domain.Report "ok"
// @Router /v1/reports/{kind}/{configID} [get]
func (h *handlers) report(r *stdhttp.Request) (any, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return nil, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return nil, err
	}
	return h.svc.Report(r.Context(), domain.ReportInput{
		Kind:     strings.ToLower(chi.URLParam(r, "kind")),
		ConfigID: chi.URLParam(r, "configID"),
		Limit:    limit,
		Offset:   offset,
	})
}

// @Summary Per order watermarks
// @Tags Reports
// @Produce json
// @Param configID path string true "configuration id"
// @Success 200 {object} domain.WatermarkList "ok"
// @Router /v1/watermarks/{configID} [get]
func (h *handlers) watermarks(r *stdhttp.Request) (any, error) {
	return h.svc.Watermarks(r.Context(), chi.URLParam(r, "configID"))
}

func queryInt(r *stdhttp.Request, key string) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, perr.WithField(perr.Newf(perr.ErrorCodeValidation, "%s must be an integer", key), key)
	}
	return n, nil
}
