// Package repo provides postgres and clickhouse access for sla stage rows
package repo

import (
	"context"
	"time"

	"slaledger/internal/core/stages"
	"slaledger/internal/core/watermark"
	"slaledger/internal/modkit/repokit"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/store"
	"slaledger/internal/services/slarun/domain"
)

// Schema creates the stage mirror; statements are idempotent
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS sla_stages (
		config_id            text        NOT NULL,
		order_id             text        NOT NULL,
		stage                text        NOT NULL,
		status_code          text        NOT NULL,
		event_time           timestamptz NOT NULL,
		actor                text        NOT NULL DEFAULT '',
		end_time             timestamptz NULL,
		target_seconds       bigint      NULL,
		deadline             timestamptz NULL,
		wall_seconds         bigint      NULL,
		working_seconds      bigint      NULL,
		over_wall_seconds    bigint      NULL,
		over_working_seconds bigint      NULL,
		sla_status           text        NOT NULL,
		run_id               text        NOT NULL,
		updated_at           timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (config_id, order_id, stage, status_code, event_time)
	)`,
	`CREATE INDEX IF NOT EXISTS sla_stages_open_idx ON sla_stages (config_id, order_id) WHERE end_time IS NULL`,
}

// upsertChunk bounds the array parameters of one statement
const upsertChunk = 500

type (
	// PG is a Postgres binder for domain.StageMirror
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.StageMirror
func NewPG() repokit.Binder[domain.StageMirror] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.StageMirror { return &queries{q: q} }

// EnsureSchema applies Schema on q
func EnsureSchema(ctx context.Context, q repokit.Queryer) error {
	for _, stmt := range Schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return perr.FromPostgres(err, "ensure sla schema")
		}
	}
	return nil
}

const upsertSQL = `
	INSERT INTO sla_stages (
		config_id, order_id, stage, status_code, event_time, actor,
		end_time, target_seconds, deadline, wall_seconds, working_seconds,
		over_wall_seconds, over_working_seconds, sla_status, run_id, updated_at
	)
	SELECT $1, t.order_id, t.stage, t.status_code, t.event_time, t.actor,
		t.end_time, t.target_seconds, t.deadline, t.wall_seconds, t.working_seconds,
		t.over_wall_seconds, t.over_working_seconds, t.sla_status, $2, now()
	FROM UNNEST(
		$3::text[], $4::text[], $5::text[], $6::timestamptz[], $7::text[],
		$8::timestamptz[], $9::bigint[], $10::timestamptz[], $11::bigint[], $12::bigint[],
		$13::bigint[], $14::bigint[], $15::text[]
	) AS t(order_id, stage, status_code, event_time, actor,
		end_time, target_seconds, deadline, wall_seconds, working_seconds,
		over_wall_seconds, over_working_seconds, sla_status)
	ON CONFLICT (config_id, order_id, stage, status_code, event_time) DO UPDATE SET
		actor = EXCLUDED.actor,
		end_time = EXCLUDED.end_time,
		target_seconds = EXCLUDED.target_seconds,
		deadline = EXCLUDED.deadline,
		wall_seconds = EXCLUDED.wall_seconds,
		working_seconds = EXCLUDED.working_seconds,
		over_wall_seconds = EXCLUDED.over_wall_seconds,
		over_working_seconds = EXCLUDED.over_working_seconds,
		sla_status = EXCLUDED.sla_status,
		run_id = EXCLUDED.run_id,
		updated_at = now()
`

// columns are the UNNEST arrays of one chunk, in parameter order
type columns struct {
	orderID, stage, code, actor, status []string
	start                               []time.Time
	end, deadline                       []*time.Time
	target, wall, working               []*int64
	overWall, overWorking               []*int64
}

func columnsOf(rows []stages.Stage) columns {
	n := len(rows)
	c := columns{
		orderID: make([]string, 0, n), stage: make([]string, 0, n), code: make([]string, 0, n),
		actor: make([]string, 0, n), status: make([]string, 0, n), start: make([]time.Time, 0, n),
	}
	for _, s := range rows {
		c.orderID = append(c.orderID, s.OrderID)
		c.stage = append(c.stage, s.StatusTitle)
		c.code = append(c.code, s.StatusCode)
		c.actor = append(c.actor, s.Actor)
		c.status = append(c.status, string(s.Breach))
		c.start = append(c.start, s.Start.UTC())
		c.end = append(c.end, utc(s.End))
		c.deadline = append(c.deadline, utc(s.Deadline))
		c.target = append(c.target, secs(s.Target))
		c.wall = append(c.wall, secs(s.Wall))
		c.working = append(c.working, secs(s.Working))
		c.overWall = append(c.overWall, secs(s.OverWall))
		c.overWorking = append(c.overWorking, secs(s.OverWorking))
	}
	return c
}

// UpsertStages writes rows keyed like the stage accumulation; a re-emitted
// stage replaces the open row it resolves
func (r *queries) UpsertStages(ctx context.Context, configID, runID string, rows []stages.Stage) (int, error) {
	total := 0
	for lo := 0; lo < len(rows); lo += upsertChunk {
		hi := min(lo+upsertChunk, len(rows))
		c := columnsOf(rows[lo:hi])
		tag, err := r.q.Exec(ctx, upsertSQL,
			configID, runID,
			c.orderID, c.stage, c.code, c.start, c.actor,
			c.end, c.target, c.deadline, c.wall, c.working,
			c.overWall, c.overWorking, c.status,
		)
		if err != nil {
			return total, perr.FromPostgresf(err, "upsert sla stages %d..%d for %s", lo, hi, configID)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

// Watermarks returns the latest stage start per order of a configuration
func (r *queries) Watermarks(ctx context.Context, configID string) (watermark.Set, error) {
	type mark struct {
		id string
		at time.Time
	}
	marks, err := store.Many(ctx, r.q, func(row store.Row) (mark, error) {
		var m mark
		err := row.Scan(&m.id, &m.at)
		return m, err
	}, `
		SELECT order_id, max(event_time)
		FROM sla_stages
		WHERE config_id = $1
		GROUP BY order_id
	`, configID)
	if err != nil {
		return nil, perr.FromPostgresf(err, "watermarks for %s", configID)
	}
	out := make(watermark.Set, len(marks))
	for _, m := range marks {
		out[m.id] = m.at
	}
	return out, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func secs(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(*d / time.Second)
	return &s
}
