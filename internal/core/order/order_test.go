package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perr "slaledger/internal/platform/errors"
)

const payload = `{
  "id": 42,
  "card_id": "C-7",
  "status": {"code": 300, "status": "Done"},
  "client": {"name": "ACME", "number": 991},
  "location": {"name": "Recife"},
  "priority_ordering": 2,
  "time_created": "2025-01-06T12:00:00Z",
  "status_history": [
    {"status": {"code": "100", "status": "Open"}, "time_created": "2025-01-06T12:00:00Z", "event_data": {"user": "ana", "source": "web"}},
    {"status": {"code": "200"}, "time_created": " 2025-01-06T13:00:00Z "},
    {"time_created": "2025-01-06T14:00:00Z", "event_data": {"user": "integracao_x"}}
  ]
}`

func TestDecode(t *testing.T) {
	o, err := Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, ID("42"), o.ID)
	assert.Equal(t, "C-7", o.Card())
	assert.Equal(t, "300", o.CodeOf())
	assert.Equal(t, "Done", o.TitleOf())
	require.NotNil(t, o.Client)
	assert.Equal(t, "991", o.Client.Number.String())
	require.NotNil(t, o.Priority)
	assert.Equal(t, 2, *o.Priority)
	assert.Nil(t, o.TimeLastUpdated)
	require.Len(t, o.StatusHistory, 3)
}

func TestRawEvents(t *testing.T) {
	o, err := Decode([]byte(payload))
	require.NoError(t, err)

	raw := o.RawEvents()
	require.Len(t, raw, 3)
	assert.Equal(t, "42", raw[0].OrderID)
	assert.Equal(t, "100", raw[0].StatusCode)
	assert.Equal(t, "Open", raw[0].StatusTitle)
	assert.Equal(t, "ana", raw[0].Actor)
	assert.Equal(t, "2025-01-06T13:00:00Z", raw[1].Timestamp)
	assert.Equal(t, "", raw[1].Actor)
	assert.Equal(t, "", raw[2].StatusCode)
}

func TestAbsentFields(t *testing.T) {
	o, err := Decode([]byte(`{"id":"7"}`))
	require.NoError(t, err)
	assert.Equal(t, "", o.Card())
	assert.Equal(t, "", o.CodeOf())
	assert.Equal(t, "", o.TitleOf())
	assert.Empty(t, o.RawEvents())

	var h HistoryEntry
	assert.Equal(t, "", h.User())
	assert.Equal(t, "", h.Source())
}

func TestDecodeList(t *testing.T) {
	arr, err := DecodeList([]byte(`[{"id":1},{"id":"2"}]`))
	require.NoError(t, err)
	require.Len(t, arr, 2)
	assert.Equal(t, ID("2"), arr[1].ID)

	page, err := DecodeList([]byte(` {"next": null, "results": [{"id": 3}]}`))
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ID("3"), page[0].ID)

	_, err = DecodeList([]byte(`{"results": [`))
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeEventParse))
}
