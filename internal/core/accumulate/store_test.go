package accumulate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu        sync.Mutex
	tables    map[string]Table
	failRead  map[string]bool
	failWrite map[string]bool
	writes    []string
}

func newMemSink() *memSink {
	return &memSink{tables: map[string]Table{}, failRead: map[string]bool{}, failWrite: map[string]bool{}}
}

func (m *memSink) Read(_ context.Context, name string) (Table, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead[name] {
		return Table{}, false, errors.New("corrupt")
	}
	t, ok := m.tables[name]
	return t, ok, nil
}

func (m *memSink) Write(_ context.Context, name string, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, name)
	if m.failWrite[name] {
		return errors.New("disk full")
	}
	m.tables[name] = t
	return nil
}

func fixedClock() time.Time { return time.Date(2024, 3, 4, 18, 5, 0, 0, time.UTC) }

func TestNamesFor(t *testing.T) {
	n := NamesFor("sla", " 42 ", fixedClock())
	assert.Equal(t, Names{Canonical: "sla_42", Latest: "sla_42_latest", Dated: "sla_42_2024-03-04_18-05"}, n)
}

func TestStore_SaveWritesThreeArtifacts(t *testing.T) {
	sink := newMemSink()
	var hooked []string
	s := NewStore(sink, WithClock(fixedClock), WithWriteHook(func(kind string, a Artifact, err error) {
		hooked = append(hooked, kind+":"+string(a)+":"+boolStr(err == nil))
	}))

	sink.failWrite["sla_42_latest"] = true
	rep := s.Save(context.Background(), "sla", "42", table(stageCols, stageRow("1", "A", "10", "x", "unknown")))

	assert.False(t, rep.OK())
	require.Len(t, rep.Failed(), 1)
	assert.Equal(t, ArtifactLatest, rep.Failed()[0].Artifact)
	assert.Equal(t, []string{"sla_42", "sla_42_latest", "sla_42_2024-03-04_18-05"}, sink.writes)
	assert.Contains(t, sink.tables, "sla_42_2024-03-04_18-05", "later artifacts still written")
	assert.Equal(t, []string{"sla:canonical:ok", "sla:latest:fail", "sla:dated:ok"}, hooked)
}

func boolStr(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func TestStore_LoadPrefersLatest(t *testing.T) {
	sink := newMemSink()
	s := NewStore(sink, WithClock(fixedClock))

	assert.True(t, s.Load(context.Background(), "sla", "42").Empty())

	sink.tables["sla_42"] = table(stageCols, stageRow("canonical", "A", "10", "x", "unknown"))
	assert.Equal(t, "canonical", s.Load(context.Background(), "sla", "42").Rows[0][ColOrderID])

	sink.tables["sla_42_latest"] = table(stageCols, stageRow("latest", "A", "10", "x", "unknown"))
	assert.Equal(t, "latest", s.Load(context.Background(), "sla", "42").Rows[0][ColOrderID])

	sink.failRead["sla_42_latest"] = true
	assert.Equal(t, "canonical", s.Load(context.Background(), "sla", "42").Rows[0][ColOrderID])

	sink.failRead["sla_42"] = true
	assert.True(t, s.Load(context.Background(), "sla", "42").Empty(), "read failures mean an empty old table")
}

func TestStore_Accumulate(t *testing.T) {
	sink := newMemSink()
	s := NewStore(sink, WithClock(fixedClock))
	m := Merger{Spec: StageSpec, Loc: time.UTC}

	first := table(stageCols, stageRow("1", "A", "10", "2024-03-04 09:00:00", "unknown"))
	_, rep, err := s.Accumulate(context.Background(), m, "42", first)
	require.NoError(t, err)
	assert.True(t, rep.OK())

	second := table(stageCols,
		stageRow("1", "A", "10", "2024-03-04 09:00:00", "on_time"),
		stageRow("1", "B", "20", "2024-03-04 10:00:00", "unknown"),
	)
	got, _, err := s.Accumulate(context.Background(), m, "42", second)
	require.NoError(t, err)
	assert.Equal(t, []string{"on_time", "unknown"}, got.Column("sla_status"))
	assert.Equal(t, got, sink.tables["sla_42_latest"])

	_, _, err = s.Accumulate(context.Background(), m, "42", table([]string{"x"}, Row{"x": "1"}))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "accumulate sla for 42"))
}

func TestStore_ConcurrentAccumulateSerializes(t *testing.T) {
	sink := newMemSink()
	s := NewStore(sink, WithClock(fixedClock))
	m := Merger{Spec: StageSpec, Loc: time.UTC}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := table(stageCols, stageRow(string(rune('a'+i)), "A", "10", "2024-03-04 09:00:00", "unknown"))
			_, _, err := s.Accumulate(context.Background(), m, "42", b)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, sink.tables["sla_42"].Len(), "no lost update")
}
