package domain

import (
	"context"

	"slaledger/internal/core/accumulate"
	"slaledger/internal/core/watermark"
)

// ServicePort is the read surface of the report server
type ServicePort interface {
	Report(ctx context.Context, in ReportInput) (Report, error)
	Watermarks(ctx context.Context, configID string) (WatermarkList, error)
}

// Loader reads persisted accumulations
type Loader interface {
	Accumulation(ctx context.Context, kind, configID string) (accumulate.Table, error)
}

// WatermarkSource resolves per order watermarks
type WatermarkSource interface {
	Watermarks(ctx context.Context, configID string) (watermark.Set, error)
}
