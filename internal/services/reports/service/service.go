// Package service serves persisted accumulations and watermarks
package service

import (
	"context"
	"time"

	"slaledger/internal/core/accumulate"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/validate"
	"slaledger/internal/services/reports/domain"
)

// DefaultLimit is the page size when a request does not set one
const DefaultLimit = 100

// Svc implements domain.ServicePort
type Svc struct {
	loader domain.Loader
	marks  domain.WatermarkSource
	loc    *time.Location
}

var _ domain.ServicePort = (*Svc)(nil)

// New constructs the report service
func New(loader domain.Loader, marks domain.WatermarkSource, loc *time.Location) *Svc {
	if loader == nil || marks == nil {
		panic("reports.Service requires a loader and a watermark source")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Svc{loader: loader, marks: marks, loc: loc}
}

// kinds maps wire kinds to accumulation kinds
var kinds = map[string]string{
	domain.KindStages:  accumulate.StageSpec.Kind,
	domain.KindPrimary: accumulate.PrimarySpec.Kind,
}

// Report returns one page of an accumulation in its persisted column order
func (s *Svc) Report(ctx context.Context, in domain.ReportInput) (domain.Report, error) {
	if err := validate.Err(validate.Struct(in)); err != nil {
		return domain.Report{}, err
	}
	if in.Limit == 0 {
		in.Limit = DefaultLimit
	}
	t, err := s.loader.Accumulation(ctx, kinds[in.Kind], in.ConfigID)
	if err != nil {
		return domain.Report{}, perr.Wrapf(err, perr.ErrorCodeAccumulationRead, "load %s for %s", in.Kind, in.ConfigID)
	}
	if t.Empty() {
		return domain.Report{}, perr.NotFoundf("no %s accumulation for configuration %s", in.Kind, in.ConfigID)
	}

	out := domain.Report{
		Kind:     in.Kind,
		ConfigID: in.ConfigID,
		Columns:  t.Columns,
		Total:    t.Len(),
		Limit:    in.Limit,
		Offset:   in.Offset,
		Rows:     []map[string]string{},
	}
	lo := min(in.Offset, t.Len())
	hi := min(lo+in.Limit, t.Len())
	for _, r := range t.Rows[lo:hi] {
		row := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			row[c] = r[c]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Watermarks lists per order watermarks sorted by order id
func (s *Svc) Watermarks(ctx context.Context, configID string) (domain.WatermarkList, error) {
	if err := validate.Err(validate.Struct(domain.ReportInput{Kind: domain.KindStages, ConfigID: configID})); err != nil {
		return domain.WatermarkList{}, err
	}
	set, err := s.marks.Watermarks(ctx, configID)
	if err != nil {
		return domain.WatermarkList{}, err
	}
	out := domain.WatermarkList{ConfigID: configID, Orders: make([]domain.WatermarkRow, 0, len(set))}
	for _, e := range set.Sorted() {
		out.Orders = append(out.Orders, domain.WatermarkRow{
			OrderID:   e.OrderID,
			Watermark: e.Watermark.In(s.loc).Format(time.RFC3339),
		})
	}
	return out, nil
}
