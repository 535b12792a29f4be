package repo

import (
	"context"
	"time"

	"slaledger/internal/core/stages"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/store"
	"slaledger/internal/services/slarun/domain"
)

// FactsTable is the append-only stage fact table
const FactsTable = "sla_stage_facts"

// FactsDDL creates FactsTable. Facts are never updated: a resolved stage
// appears once open and once closed, distinguished by run_id
const FactsDDL = `CREATE TABLE IF NOT EXISTS ` + FactsTable + ` (
	config_id            LowCardinality(String),
	run_id               String,
	order_id             String,
	stage                LowCardinality(String),
	status_code          LowCardinality(String),
	event_time           DateTime('UTC'),
	actor                String,
	end_time             Nullable(DateTime('UTC')),
	target_seconds       Nullable(Int64),
	deadline             Nullable(DateTime('UTC')),
	wall_seconds         Nullable(Int64),
	working_seconds      Nullable(Int64),
	over_wall_seconds    Nullable(Int64),
	over_working_seconds Nullable(Int64),
	sla_status           LowCardinality(String),
	recorded_at          DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (config_id, order_id, event_time, run_id)`

// Facts appends stage rows to clickhouse
type Facts struct {
	ch  store.Clickhouse
	now func() time.Time
}

var _ domain.FactWriter = (*Facts)(nil)

// NewFacts binds a clickhouse seam
func NewFacts(ch store.Clickhouse) *Facts {
	return &Facts{ch: ch, now: time.Now}
}

// EnsureSchema creates FactsTable when missing
func (f *Facts) EnsureSchema(ctx context.Context) error {
	if err := f.ch.Exec(ctx, FactsDDL); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "ensure "+FactsTable)
	}
	return nil
}

// AppendStages inserts one fact per stage in a single batch
func (f *Facts) AppendStages(ctx context.Context, configID, runID string, rows []stages.Stage) error {
	if len(rows) == 0 {
		return nil
	}
	at := f.now().UTC().Truncate(time.Second)
	batch := make([][]any, 0, len(rows))
	for _, s := range rows {
		batch = append(batch, FactRow(configID, runID, s, at))
	}
	if err := f.ch.Insert(ctx, FactsTable, batch); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "insert %d facts for %s", len(rows), configID)
	}
	return nil
}

// FactRow flattens one stage in FactsDDL column order
func FactRow(configID, runID string, s stages.Stage, recorded time.Time) []any {
	return []any{
		configID,
		runID,
		s.OrderID,
		s.StatusTitle,
		s.StatusCode,
		s.Start.UTC(),
		s.Actor,
		utc(s.End),
		secs(s.Target),
		utc(s.Deadline),
		secs(s.Wall),
		secs(s.Working),
		secs(s.OverWall),
		secs(s.OverWorking),
		string(s.Breach),
		recorded,
	}
}
