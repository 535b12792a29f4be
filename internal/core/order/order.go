// Package order is the typed view of an upstream order payload. Every field
// the source may omit is a pointer so absence stays distinguishable from a
// blank value
package order

import (
	"encoding/json"
	"strings"

	"slaledger/internal/core/normalize"
	perr "slaledger/internal/platform/errors"
)

// ID is a scalar the source sends either as a JSON number or as a string
type ID string

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the id text
func (id ID) String() string { return string(id) }

// Status is a status code and its human title
type Status struct {
	Code  *ID     `json:"code"`
	Title *string `json:"status"`
}

// Named is a nested object carrying a display name
type Named struct {
	Name   *string `json:"name"`
	Number *ID     `json:"number"`
}

// EventData describes who caused a history entry
type EventData struct {
	User   *string `json:"user"`
	Source *string `json:"source"`
}

// HistoryEntry is one status-history record
type HistoryEntry struct {
	Status      *Status    `json:"status"`
	TimeCreated *string    `json:"time_created"`
	EventData   *EventData `json:"event_data"`
}

// Order is one upstream order
type Order struct {
	ID              ID             `json:"id"`
	CardID          *ID            `json:"card_id"`
	Status          *Status        `json:"status"`
	Client          *Named         `json:"client"`
	Location        *Named         `json:"location"`
	Priority        *int           `json:"priority_ordering"`
	TimeCreated     *string        `json:"time_created"`
	TimeLastUpdated *string        `json:"time_last_updated"`
	StatusHistory   []HistoryEntry `json:"status_history"`
}

// Decode parses one order payload
func Decode(b []byte) (Order, error) {
	var o Order
	if err := json.Unmarshal(b, &o); err != nil {
		return Order{}, perr.Wrapf(err, perr.ErrorCodeEventParse, "decode order")
	}
	return o, nil
}

// DecodeList parses a JSON array of orders or a page object {results:[...]}
func DecodeList(b []byte) ([]Order, error) {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var out []Order
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeEventParse, "decode order list")
		}
		return out, nil
	}
	var page struct {
		Results []Order `json:"results"`
	}
	if err := json.Unmarshal(b, &page); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeEventParse, "decode order page")
	}
	return page.Results, nil
}

// CodeOf returns the current status code, blank when absent
func (o Order) CodeOf() string {
	if o.Status == nil {
		return ""
	}
	return idStr(o.Status.Code)
}

// TitleOf returns the current status title, blank when absent
func (o Order) TitleOf() string {
	if o.Status == nil {
		return ""
	}
	return str(o.Status.Title)
}

// Card returns the card id, blank when absent
func (o Order) Card() string {
	return idStr(o.CardID)
}

// Code of the entry status
func (h HistoryEntry) Code() string {
	if h.Status == nil {
		return ""
	}
	return idStr(h.Status.Code)
}

// Title of the entry status
func (h HistoryEntry) Title() string {
	if h.Status == nil {
		return ""
	}
	return str(h.Status.Title)
}

// User behind the entry
func (h HistoryEntry) User() string {
	if h.EventData == nil {
		return ""
	}
	return str(h.EventData.User)
}

// Source channel of the entry
func (h HistoryEntry) Source() string {
	if h.EventData == nil {
		return ""
	}
	return str(h.EventData.Source)
}

// RawEvents projects the status history into normalizer input, in payload order
func (o Order) RawEvents() []normalize.RawEvent {
	out := make([]normalize.RawEvent, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		out = append(out, normalize.RawEvent{
			OrderID:     o.ID.String(),
			StatusCode:  h.Code(),
			StatusTitle: h.Title(),
			Timestamp:   str(h.TimeCreated),
			Actor:       h.User(),
		})
	}
	return out
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func idStr(p *ID) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.String())
}
