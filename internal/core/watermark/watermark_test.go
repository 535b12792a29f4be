package watermark

import (
	"testing"
	"time"

	"slaledger/internal/core/accumulate"
	kit "slaledger/internal/platform/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTable(t *testing.T) {
	loc := kit.MustLoc(t, "America/Sao_Paulo")
	tbl := accumulate.Table{
		Columns: []string{accumulate.ColOrderID, accumulate.ColEventTime},
		Rows: []accumulate.Row{
			{accumulate.ColOrderID: "1", accumulate.ColEventTime: "2024-03-04 09:00:00"},
			{accumulate.ColOrderID: "1", accumulate.ColEventTime: "2024-03-04 11:00:00"},
			{accumulate.ColOrderID: "1", accumulate.ColEventTime: "2024-03-04 10:00:00"},
			{accumulate.ColOrderID: "2", accumulate.ColEventTime: ""},
			{accumulate.ColOrderID: "3", accumulate.ColEventTime: "soon"},
			{accumulate.ColOrderID: " ", accumulate.ColEventTime: "2024-03-04 10:00:00"},
			{accumulate.ColOrderID: "4", accumulate.ColEventTime: "2024-03-01 08:00:00"},
		},
	}
	set := FromTable(tbl, loc)
	require.Len(t, set, 2)

	w := set.For("1")
	require.NotNil(t, w)
	assert.True(t, w.Equal(kit.At(t, loc, "2024-03-04 11:00")))
	assert.Nil(t, set.For("2"))
	assert.Nil(t, set.For("missing"))

	sorted := set.Sorted()
	assert.Equal(t, "1", sorted[0].OrderID)
	assert.Equal(t, "4", sorted[1].OrderID)
}

func TestFromTable_MissingColumns(t *testing.T) {
	assert.Empty(t, FromTable(accumulate.NewTable(accumulate.ColOrderID), time.UTC))
	assert.Empty(t, FromTable(accumulate.Table{}, time.UTC))
}
