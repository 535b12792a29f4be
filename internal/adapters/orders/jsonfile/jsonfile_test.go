package jsonfile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/testkit"
)

func TestSource(t *testing.T) {
	dir := t.TempDir()
	orders := testkit.WriteFile(t, dir, "orders.json", `{"results": [{"id": 1, "status_history": [{"status": {"code": "100"}, "time_created": "2025-01-06T12:00:00Z"}]}]}`)
	wf := testkit.WriteFile(t, dir, "workflow.json", `{"id": 7, "name": "Ops", "extra_data": {"sla": []}}`)
	s := New(orders, wf)
	ctx := context.Background()

	got, err := s.Orders(ctx, "7")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].RawEvents(), 1)

	cfg, err := s.Workflow(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Ops", cfg.Name)

	name, err := s.ConfigName(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Ops", name)
}

func TestSource_Failures(t *testing.T) {
	dir := t.TempDir()
	bad := testkit.WriteFile(t, dir, "bad.json", `[{"id": 1},`)
	ctx := context.Background()

	_, err := New(filepath.Join(dir, "missing.json"), "").Orders(ctx, "1")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeNotFound))

	_, err = New(bad, "").Orders(ctx, "1")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeEventParse))

	_, err = New(bad, bad).Workflow(ctx, "1")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeConfigParse))

	wf, err := New(bad, "").Workflow(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, wf.ExtraData.SLA)

	name, err := New(bad, "").ConfigName(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, name)
}
