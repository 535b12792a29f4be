package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaledger/internal/core/stages"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/store"
)

type execCall struct {
	sql  string
	args []any
}

type fakeTag int64

func (f fakeTag) String() string      { return fmt.Sprintf("INSERT 0 %d", int64(f)) }
func (f fakeTag) RowsAffected() int64 { return int64(f) }

type markRows struct {
	data []struct {
		id string
		at time.Time
	}
	i int
}

func (m *markRows) Next() bool { m.i++; return m.i <= len(m.data) }
func (m *markRows) Scan(dest ...any) error {
	r := m.data[m.i-1]
	*(dest[0].(*string)) = r.id
	*(dest[1].(*time.Time)) = r.at
	return nil
}
func (m *markRows) Err() error        { return nil }
func (m *markRows) Close()            {}
func (m *markRows) Columns() []string { return []string{"order_id", "max"} }

// fakeQ records statements; UNNEST upserts report one affected row per element
type fakeQ struct {
	execs   []execCall
	execErr error
	rows    *markRows
	qErr    error
}

func (f *fakeQ) Exec(_ context.Context, sql string, args ...any) (store.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql, args})
	if f.execErr != nil {
		return nil, f.execErr
	}
	n := 0
	if len(args) > 2 {
		n = len(args[2].([]string))
	}
	return fakeTag(n), nil
}

func (f *fakeQ) Query(context.Context, string, ...any) (store.Rows, error) {
	if f.qErr != nil {
		return nil, f.qErr
	}
	return f.rows, nil
}

func (f *fakeQ) QueryRow(context.Context, string, ...any) store.Row { return nil }

func dur(d time.Duration) *time.Duration { return &d }

func closedStage(order string, start time.Time) stages.Stage {
	end := start.Add(90 * time.Minute)
	deadline := start.Add(2 * time.Hour)
	return stages.Stage{
		OrderID: order, StatusCode: "10", StatusTitle: "Aberta", Actor: "ana",
		Start: start, End: &end, Target: dur(2 * time.Hour), Deadline: &deadline,
		Wall: dur(90 * time.Minute), Working: dur(90 * time.Minute),
		OverWall: dur(0), OverWorking: dur(0), Breach: stages.OnTime,
	}
}

func TestUpsertStages_Columns(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, loc)
	open := stages.Stage{OrderID: "2", StatusCode: "20", StatusTitle: "Em campo", Start: start, Breach: stages.Unknown}

	q := &fakeQ{}
	n, err := NewPG().Bind(q).UpsertStages(context.Background(), "118", "run-1", []stages.Stage{closedStage("1", start), open})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, q.execs, 1)

	call := q.execs[0]
	assert.Contains(t, call.sql, "ON CONFLICT (config_id, order_id, stage, status_code, event_time)")
	require.Len(t, call.args, 15)
	assert.Equal(t, "118", call.args[0])
	assert.Equal(t, "run-1", call.args[1])
	assert.Equal(t, []string{"1", "2"}, call.args[2])
	assert.Equal(t, []string{"Aberta", "Em campo"}, call.args[3])

	starts := call.args[5].([]time.Time)
	assert.Equal(t, time.UTC, starts[0].Location())
	assert.True(t, starts[0].Equal(start))

	ends := call.args[7].([]*time.Time)
	require.NotNil(t, ends[0])
	assert.Nil(t, ends[1], "open stage has NULL end")

	targets := call.args[8].([]*int64)
	assert.Equal(t, int64(7200), *targets[0])
	assert.Nil(t, targets[1])
	assert.Equal(t, []string{"on_time", "unknown"}, call.args[14])
}

func TestUpsertStages_ChunksAndEmpty(t *testing.T) {
	start := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	rows := make([]stages.Stage, upsertChunk+3)
	for i := range rows {
		rows[i] = closedStage(fmt.Sprint(i), start)
	}

	q := &fakeQ{}
	n, err := NewPG().Bind(q).UpsertStages(context.Background(), "1", "r", rows)
	require.NoError(t, err)
	assert.Equal(t, len(rows), n)
	require.Len(t, q.execs, 2)
	assert.Len(t, q.execs[1].args[2], 3)

	q = &fakeQ{}
	n, err = NewPG().Bind(q).UpsertStages(context.Background(), "1", "r", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, q.execs)
}

func TestUpsertStages_MapsPgErrors(t *testing.T) {
	q := &fakeQ{execErr: &pgconn.PgError{Code: "23505", Message: "duplicate"}}
	_, err := NewPG().Bind(q).UpsertStages(context.Background(), "1", "r", []stages.Stage{closedStage("1", time.Now())})
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeDuplicateKey), "got %v", perr.CodeOf(err))
	assert.Contains(t, err.Error(), "upsert sla stages")
}

func TestWatermarks(t *testing.T) {
	at := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)
	q := &fakeQ{rows: &markRows{data: []struct {
		id string
		at time.Time
	}{{"1", at}, {"2", at.Add(time.Hour)}}}}

	wm, err := NewPG().Bind(q).Watermarks(context.Background(), "118")
	require.NoError(t, err)
	require.Len(t, wm, 2)
	assert.True(t, wm.For("2").Equal(at.Add(time.Hour)))
	assert.Nil(t, wm.For("3"))

	_, err = NewPG().Bind(&fakeQ{qErr: errors.New("conn reset")}).Watermarks(context.Background(), "118")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeDB))
}

func TestEnsureSchema(t *testing.T) {
	q := &fakeQ{}
	require.NoError(t, EnsureSchema(context.Background(), q))
	require.Len(t, q.execs, len(Schema))
	assert.True(t, strings.HasPrefix(strings.TrimSpace(q.execs[0].sql), "CREATE TABLE IF NOT EXISTS sla_stages"))

	q = &fakeQ{execErr: errors.New("permission denied")}
	assert.Error(t, EnsureSchema(context.Background(), q))
	assert.Len(t, q.execs, 1, "stops at the first failure")
}

type fakeCH struct {
	ddl      string
	table    string
	rows     [][]any
	insertEr error
}

func (f *fakeCH) Exec(_ context.Context, sql string, _ ...any) error { f.ddl = sql; return nil }
func (f *fakeCH) Insert(_ context.Context, table string, data any) error {
	if f.insertEr != nil {
		return f.insertEr
	}
	f.table, f.rows = table, data.([][]any)
	return nil
}
func (f *fakeCH) Query(context.Context, string, ...any) (store.Rows, error) { return nil, nil }
func (f *fakeCH) Close() error                                              { return nil }

func TestFacts_AppendStages(t *testing.T) {
	ch := &fakeCH{}
	f := NewFacts(ch)
	f.now = func() time.Time { return time.Date(2024, 3, 4, 15, 0, 0, 500, time.UTC) }

	require.NoError(t, f.EnsureSchema(context.Background()))
	assert.Equal(t, FactsDDL, ch.ddl)

	start := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	open := stages.Stage{OrderID: "2", StatusCode: "20", StatusTitle: "Em campo", Start: start, Breach: stages.Unknown}
	require.NoError(t, f.AppendStages(context.Background(), "118", "run-1", []stages.Stage{closedStage("1", start), open}))

	assert.Equal(t, FactsTable, ch.table)
	require.Len(t, ch.rows, 2)
	first := ch.rows[0]
	require.Len(t, first, 16)
	assert.Equal(t, "118", first[0])
	assert.Equal(t, "run-1", first[1])
	assert.Equal(t, "Aberta", first[3])
	assert.Equal(t, int64(5400), *(first[10].(*int64)))
	assert.Equal(t, "on_time", first[14])
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), first[15])

	second := ch.rows[1]
	assert.Nil(t, second[7].(*time.Time))
	assert.Nil(t, second[8].(*int64))

	require.NoError(t, f.AppendStages(context.Background(), "118", "run-2", nil))
}

func TestFacts_InsertError(t *testing.T) {
	f := NewFacts(&fakeCH{insertEr: errors.New("code: 241, memory limit")})
	err := f.AppendStages(context.Background(), "118", "r", []stages.Stage{closedStage("1", time.Now())})
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnavailable))
}

// fakeTx runs fn on its embedded fakeQ and records the outcome
type fakeTx struct {
	fakeQ
	txs       int
	committed int
}

func (f *fakeTx) Tx(ctx context.Context, fn func(q store.RowQuerier) error) error {
	f.txs++
	if err := fn(&f.fakeQ); err != nil {
		return err
	}
	f.committed++
	return nil
}

func TestTxMirror_OneTransactionPerRun(t *testing.T) {
	start := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	rows := make([]stages.Stage, upsertChunk+1)
	for i := range rows {
		rows[i] = closedStage(fmt.Sprint(i), start)
	}

	db := &fakeTx{}
	m := NewTxMirror(db, 30*time.Second)
	n, err := m.UpsertStages(context.Background(), "118", "run-1", rows)
	require.NoError(t, err)
	assert.Equal(t, len(rows), n)
	assert.Equal(t, 1, db.txs)
	assert.Equal(t, 1, db.committed)
	require.Len(t, db.execs, 3, "timeout hook then two chunks")
	assert.Equal(t, "SET LOCAL statement_timeout = 30000", db.execs[0].sql)

	n, err = m.UpsertStages(context.Background(), "118", "run-2", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, db.txs, "empty runs open no transaction")
}

func TestTxMirror_FailureRollsBack(t *testing.T) {
	db := &fakeTx{fakeQ: fakeQ{execErr: &pgconn.PgError{Code: "40001"}}}
	n, err := NewTxMirror(db, 0).UpsertStages(context.Background(), "118", "r", []stages.Stage{closedStage("1", time.Now())})
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Zero(t, db.committed)
	require.Len(t, db.execs, 1, "no hook without a timeout")
}
