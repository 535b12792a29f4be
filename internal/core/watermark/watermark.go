// Package watermark derives per-order high-water marks from an accumulated stage table
package watermark

import (
	"sort"
	"strings"
	"time"

	"slaledger/internal/core/accumulate"
	ptime "slaledger/internal/platform/time"
)

// Set maps order ids to the latest event instant already accumulated
type Set map[string]time.Time

// FromTable scans the order_id and event_time columns of t. Rows with a
// blank or unparsable event time are ignored
func FromTable(t accumulate.Table, loc *time.Location) Set {
	out := Set{}
	if !t.Has(accumulate.ColOrderID) || !t.Has(accumulate.ColEventTime) {
		return out
	}
	for _, r := range t.Rows {
		id := strings.TrimSpace(r[accumulate.ColOrderID])
		if id == "" {
			continue
		}
		at, err := ptime.ParseLocal(r[accumulate.ColEventTime], loc)
		if err != nil {
			continue
		}
		if cur, ok := out[id]; !ok || at.After(cur) {
			out[id] = at
		}
	}
	return out
}

// For returns the watermark of one order, nil when the order is new
func (s Set) For(orderID string) *time.Time {
	if t, ok := s[strings.TrimSpace(orderID)]; ok {
		return &t
	}
	return nil
}

// Entry is one order watermark
type Entry struct {
	OrderID   string    `json:"order_id"`
	Watermark time.Time `json:"watermark"`
}

// Sorted lists the set ordered by order id
func (s Set) Sorted() []Entry {
	out := make([]Entry, 0, len(s))
	for id, t := range s {
		out = append(out, Entry{OrderID: id, Watermark: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
