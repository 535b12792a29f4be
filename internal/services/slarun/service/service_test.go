package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaledger/internal/adapters/tabular/csvfile"
	"slaledger/internal/core/accumulate"
	"slaledger/internal/core/calendar"
	"slaledger/internal/core/order"
	"slaledger/internal/core/stages"
	"slaledger/internal/core/watermark"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/metrics"
	kit "slaledger/internal/platform/testkit"
	"slaledger/internal/services/slarun/domain"
)

const workflowJSON = `{
  "id": 118,
  "name": "Preventiva Sul",
  "extra_data": {"sla": [
    {"statusId": 10, "slaTime": "02:00", "workWeek": [
      {"dayOfWeek": "Monday", "isActive": true, "shifts": [{"startTime": "09:00", "endTime": "18:00"}]},
      {"dayOfWeek": "Tuesday", "isActive": true, "shifts": [{"startTime": "09:00", "endTime": "18:00"}]}
    ]},
    {"statusId": 20, "slaTime": "01:00", "workWeek": [
      {"dayOfWeek": "Monday", "isActive": true, "shifts": [{"startTime": "09:00", "endTime": "18:00"}]}
    ]}
  ]}
}`

type fakeSource struct {
	mu        sync.Mutex
	histories map[string]string
	name      string
	ordersErr error
}

func (f *fakeSource) set(id, history string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.histories == nil {
		f.histories = map[string]string{}
	}
	f.histories[id] = history
}

func (f *fakeSource) Orders(_ context.Context, _ string) ([]order.Order, error) {
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []order.Order
	for _, id := range []string{"1", "2", "3"} {
		h, ok := f.histories[id]
		if !ok {
			continue
		}
		o, err := order.Decode([]byte(fmt.Sprintf(`{"id": %s, "card_id": "C-%s", "status_history": [%s]}`, id, id, h)))
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeSource) Workflow(_ context.Context, _ string) (calendar.WorkflowConfig, error) {
	return calendar.Decode([]byte(workflowJSON))
}

func (f *fakeSource) ConfigName(_ context.Context, _ string) (string, error) { return f.name, nil }

func entry(code, title, ts, user string) string {
	return fmt.Sprintf(`{"status": {"code": %q, "status": %q}, "time_created": %q, "event_data": {"user": %q}}`, code, title, ts, user)
}

type recordingMirror struct {
	runs  []string
	rows  int
	fails bool
}

func (m *recordingMirror) UpsertStages(_ context.Context, _ string, runID string, rows []stages.Stage) (int, error) {
	if m.fails {
		return 0, perr.Unavailablef("pg down")
	}
	m.runs = append(m.runs, runID)
	m.rows += len(rows)
	return len(rows), nil
}

func (m *recordingMirror) Watermarks(_ context.Context, _ string) (watermark.Set, error) {
	return watermark.Set{}, nil
}

func newTestService(t *testing.T, sources map[string]*fakeSource, dir string, loc *time.Location) *Service {
	t.Helper()
	svc := New(func(spec domain.ConfigSpec) (domain.OrderSource, error) {
		src, ok := sources[spec.ID]
		if !ok {
			return nil, perr.NotFoundf("no source for %s", spec.ID)
		}
		return src, nil
	}, Config{Loc: loc, OutputDir: dir, Workers: 3})
	ids := 0
	svc.newID = func() string { ids++; return fmt.Sprintf("run-%d", ids) }
	return svc
}

func readTable(t *testing.T, path string) accumulate.Table {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	tb, err := csvfile.Decode(f)
	require.NoError(t, err)
	return tb
}

func rowFor(t *testing.T, tb accumulate.Table, orderID, code string) accumulate.Row {
	t.Helper()
	for _, r := range tb.Rows {
		if r[accumulate.ColOrderID] == orderID && r[accumulate.ColStatusCode] == code {
			return r
		}
	}
	t.Fatalf("no row for order %s status %s", orderID, code)
	return nil
}

func TestRun_ResolvesOpenStageAcrossRuns(t *testing.T) {
	loc := kit.MustLoc(t, "America/Sao_Paulo")
	dir := t.TempDir()
	src := &fakeSource{name: "Preventiva Sul"}
	src.set("1", entry("10", "Aberta", "2024-03-04T12:00:00Z", "ana"))
	src.set("2", strings.Join([]string{
		entry("10", "Aberta", "2024-03-04T12:00:00Z", "ana"),
		entry("20", "Em campo", "2024-03-04T15:00:00Z", "integracao.bot"),
		entry("", "", "2024-03-04T15:30:00Z", "rui"),
	}, ","))

	svc := newTestService(t, map[string]*fakeSource{"118": src}, dir, loc)
	m := metrics.New(metrics.DefaultConfig())
	svc.WithMetrics(m)
	mirror := &recordingMirror{}
	svc.WithMirror(mirror)

	svc.now = func() time.Time { return kit.At(t, loc, "2024-03-04 11:00") }
	manifest := domain.Manifest{Configurations: []domain.ConfigSpec{{ID: "118", Name: "config_118"}}}

	sum, err := svc.Run(context.Background(), manifest)
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)
	res := sum.Results[0]
	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, "Preventiva Sul", res.Name, "source name replaces the default")
	assert.Equal(t, 2, res.Orders)
	assert.Equal(t, 3, res.Stages)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.Late)
	assert.Equal(t, 3, res.StageRows)
	assert.Equal(t, 2, res.PrimaryRows)
	assert.Equal(t, "report_sla_preventiva_sul_2024-03-04_11-00", res.ExportPath)
	assert.Equal(t, 3, mirror.rows)

	first := readTable(t, filepath.Join(dir, "sla_118.csv"))
	open := rowFor(t, first, "1", "10")
	assert.Equal(t, "", open["end_time"])
	assert.Equal(t, string(stages.Unknown), open["sla_status"])

	// the order moves on between runs
	src.set("1", strings.Join([]string{
		entry("10", "Aberta", "2024-03-04T12:00:00Z", "ana"),
		entry("20", "Em campo", "2024-03-04T13:00:00Z", "rui"),
	}, ","))
	svc.now = func() time.Time { return kit.At(t, loc, "2024-03-04 12:00") }

	sum, err = svc.Run(context.Background(), manifest)
	require.NoError(t, err)
	res = sum.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Stages, "only the resolved stage and the new one")
	assert.Equal(t, 4, res.StageRows)

	for _, name := range []string{"sla_118.csv", "sla_118_latest.csv", "sla_118_2024-03-04_12-00.csv", "sla_118_2024-03-04_11-00.csv"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	acc := readTable(t, filepath.Join(dir, "sla_118_latest.csv"))
	require.Equal(t, 4, acc.Len())
	closed := rowFor(t, acc, "1", "10")
	assert.Equal(t, "2024-03-04 10:00:00", closed["end_time"])
	assert.Equal(t, string(stages.OnTime), closed["sla_status"])
	assert.Equal(t, "3600", closed["working_seconds"])
	assert.Equal(t, string(stages.Unknown), rowFor(t, acc, "1", "20")["sla_status"])

	wm, err := svc.Watermarks(context.Background(), "118")
	require.NoError(t, err)
	require.NotNil(t, wm.For("1"))
	assert.True(t, wm.For("1").Equal(kit.At(t, loc, "2024-03-04 10:00")))

	prim := readTable(t, filepath.Join(dir, "primary_118.csv"))
	assert.Equal(t, 2, prim.Len())
	assert.Equal(t, []string{"run-1", "run-2"}, mirror.runs)
}

func TestRun_IsolatesFailingConfiguration(t *testing.T) {
	loc := time.UTC
	dir := t.TempDir()
	good := &fakeSource{}
	good.set("1", entry("10", "Aberta", "2024-03-04T12:00:00Z", "ana"))
	bad := &fakeSource{ordersErr: perr.Unavailablef("upstream down")}

	svc := newTestService(t, map[string]*fakeSource{"1": bad, "2": good}, dir, loc)
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, loc) }

	sum, err := svc.Run(context.Background(), domain.Manifest{Configurations: []domain.ConfigSpec{
		{ID: "1", Name: "config_1"},
		{ID: "missing", Name: "config_missing"},
		{ID: "2", Name: "Second"},
	}})
	require.NoError(t, err)
	require.Len(t, sum.Results, 3)

	failed := sum.Failed()
	require.Len(t, failed, 2)
	assert.True(t, perr.IsCode(failed[0].Err, perr.ErrorCodeUnavailable))
	assert.True(t, perr.IsCode(failed[1].Err, perr.ErrorCodeNotFound))

	ok := sum.Results[2]
	require.NoError(t, ok.Err)
	assert.Equal(t, "Second", ok.Name)
	assert.Equal(t, 1, ok.StageRows)
	_, statErr := os.Stat(filepath.Join(dir, "sla_2.csv"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(dir, "sla_1.csv"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRun_MirrorFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	src.set("1", entry("10", "Aberta", "2024-03-04T12:00:00Z", "ana"))

	svc := newTestService(t, map[string]*fakeSource{"5": src}, dir, time.UTC)
	svc.WithMirror(&recordingMirror{fails: true})

	sum, err := svc.Run(context.Background(), domain.Manifest{Configurations: []domain.ConfigSpec{{ID: "5", Name: "config_5"}}})
	require.NoError(t, err)
	res := sum.Results[0]
	require.NoError(t, res.Err)
	assert.False(t, res.OK())
	assert.Len(t, sum.Failed(), 1)

	var mirrorErr error
	for _, w := range res.Writes {
		if w.Artifact == ArtifactMirror {
			mirrorErr = w.Err
		}
	}
	assert.True(t, perr.IsCode(mirrorErr, perr.ErrorCodeUnavailable))
}

func TestRun_StageKeyFailureKeepsPrimary(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	src.set("1", entry("10", "Aberta", "2024-03-04T12:00:00Z", "ana"))

	svc := newTestService(t, map[string]*fakeSource{"7": src}, dir, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) }
	svc.stageRows = func([]stages.Stage, *time.Location) accumulate.Table {
		return accumulate.Table{Columns: []string{"sla_status"}, Rows: []accumulate.Row{{"sla_status": "late"}}}
	}

	sum, err := svc.Run(context.Background(), domain.Manifest{Configurations: []domain.ConfigSpec{{ID: "7", Name: "config_7"}}})
	require.NoError(t, err)
	res := sum.Results[0]
	require.Error(t, res.Err)
	assert.True(t, perr.IsCode(res.Err, perr.ErrorCodeKeyResolution))
	assert.Equal(t, 0, res.StageRows)
	assert.Equal(t, 1, res.PrimaryRows)

	assert.Equal(t, 1, readTable(t, filepath.Join(dir, "primary_7.csv")).Len())
	_, statErr := os.Stat(filepath.Join(dir, "sla_7.csv"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRun_ManifestOverridesAndCancel(t *testing.T) {
	svc := newTestService(t, nil, t.TempDir(), time.UTC)

	_, err := svc.Run(context.Background(), domain.Manifest{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Run(ctx, domain.Manifest{Configurations: []domain.ConfigSpec{{ID: "1"}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportName(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "report_sla_manutencao_preventiva_2025-01-06_09-30", ExportName("Manutenção preventiva", 40, at))
}
