package domain

import (
	"context"

	"slaledger/internal/core/calendar"
	"slaledger/internal/core/order"
	"slaledger/internal/core/stages"
	"slaledger/internal/core/watermark"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	Run(ctx context.Context, m Manifest) (RunSummary, error)
	Watermarks(ctx context.Context, configID string) (watermark.Set, error)
}

// OrderSource yields the orders and the workflow configuration of one configuration
type OrderSource interface {
	Orders(ctx context.Context, configID string) ([]order.Order, error)
	Workflow(ctx context.Context, configID string) (calendar.WorkflowConfig, error)
	// ConfigName returns a display name, "" when the source does not know it
	ConfigName(ctx context.Context, configID string) (string, error)
}

// SourceFactory builds the source of one configuration
type SourceFactory func(spec ConfigSpec) (OrderSource, error)

// StageMirror keeps a relational copy of stage rows, keyed like the accumulation
type StageMirror interface {
	UpsertStages(ctx context.Context, configID, runID string, rows []stages.Stage) (int, error)
	Watermarks(ctx context.Context, configID string) (watermark.Set, error)
}

// FactWriter appends immutable stage facts for analytics
type FactWriter interface {
	AppendStages(ctx context.Context, configID, runID string, rows []stages.Stage) error
}
