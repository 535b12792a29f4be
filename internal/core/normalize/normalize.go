// Package normalize turns an order's raw status history into the ordered
// sequence of genuine status transitions after a watermark
//
// Pipeline
// 1 drop events without a status code or with an unparsable timestamp
// 2 stable sort ascending by timestamp
// 3 collapse: a later event at the same instant replaces the earlier one and
// consecutive events with the same code keep only the first
// 4 split at the watermark: the collapsed events at or before it only seed
// the state, the ones after it are emitted
package normalize

import (
	"sort"
	"strings"
	"time"

	perr "slaledger/internal/platform/errors"
	ptime "slaledger/internal/platform/time"
)

// RawEvent is one upstream status-history entry, read-only input
type RawEvent struct {
	OrderID     string
	StatusCode  string
	StatusTitle string
	Timestamp   string
	Actor       string
}

// Event is a normalized stage-entry event
type Event struct {
	Code  string
	Title string
	Actor string
	At    time.Time
}

// DropKind distinguishes missing data from malformed data
type DropKind string

const (
	// DropMissingCode is an event without a status code
	DropMissingCode DropKind = "missing_code"
	// DropMissingTime is an event without a timestamp
	DropMissingTime DropKind = "missing_time"
	// DropMalformedTime is an event whose timestamp cannot be parsed
	DropMalformedTime DropKind = "malformed_time"
)

// DropReason reports one discarded raw event by its input index
type DropReason struct {
	Index int
	Kind  DropKind
	Err   error
}

// Result is the normalized view of one order
type Result struct {
	// Events are strictly increasing in time, strictly after the watermark,
	// with no two adjacent codes equal
	Events []Event
	// Anchor is the entry event of the stage still open at the watermark, nil without one
	Anchor  *Event
	Dropped []DropReason
}

// Options tunes the normalizer
type Options struct {
	// Precision truncates parsed instants so they compare equal to persisted ones
	Precision time.Duration
}

// Normalizer is stateless and safe for concurrent use
type Normalizer struct {
	opt Options
}

// New constructs a Normalizer; zero Precision means whole seconds
func New(opt Options) *Normalizer {
	if opt.Precision <= 0 {
		opt.Precision = time.Second
	}
	return &Normalizer{opt: opt}
}

// Normalize runs the pipeline over raw with the default options
func Normalize(raw []RawEvent, watermark *time.Time) Result {
	return New(Options{}).Normalize(raw, watermark)
}

// Normalize runs the pipeline over one order's raw events
func (n *Normalizer) Normalize(raw []RawEvent, watermark *time.Time) Result {
	var res Result
	parsed := make([]Event, 0, len(raw))

	for i, r := range raw {
		code := strings.TrimSpace(r.StatusCode)
		if code == "" {
			res.Dropped = append(res.Dropped, DropReason{
				Index: i, Kind: DropMissingCode,
				Err: perr.WithField(perr.EventParsef("event %d of order %s has no status code", i, r.OrderID), "status_code"),
			})
			continue
		}
		if strings.TrimSpace(r.Timestamp) == "" {
			res.Dropped = append(res.Dropped, DropReason{
				Index: i, Kind: DropMissingTime,
				Err: perr.WithField(perr.EventParsef("event %d of order %s has no timestamp", i, r.OrderID), "timestamp"),
			})
			continue
		}
		at, err := ptime.ParseInstant(r.Timestamp)
		if err != nil {
			res.Dropped = append(res.Dropped, DropReason{
				Index: i, Kind: DropMalformedTime,
				Err: perr.WithField(perr.Wrapf(err, perr.ErrorCodeEventParse, "event %d of order %s", i, r.OrderID), "timestamp"),
			})
			continue
		}
		parsed = append(parsed, Event{
			Code:  code,
			Title: strings.TrimSpace(r.StatusTitle),
			Actor: strings.TrimSpace(r.Actor),
			At:    at.Truncate(n.opt.Precision),
		})
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].At.Before(parsed[j].At) })

	collapsed := Collapse(parsed)

	res.Events = collapsed
	if watermark != nil {
		wm := watermark.Truncate(n.opt.Precision)
		split := sort.Search(len(collapsed), func(i int) bool { return collapsed[i].At.After(wm) })
		if split > 0 {
			anchor := collapsed[split-1]
			res.Anchor = &anchor
		}
		res.Events = collapsed[split:]
	}
	return res
}

// Collapse removes non-transitions from time-sorted events: a later event at
// the same instant replaces the earlier one, then repeats of the previous code
// are dropped keeping the first entry
func Collapse(sorted []Event) []Event {
	out := make([]Event, 0, len(sorted))
	for _, ev := range sorted {
		if n := len(out); n > 0 && out[n-1].At.Equal(ev.At) {
			out = out[:n-1]
		}
		if n := len(out); n > 0 && out[n-1].Code == ev.Code {
			continue
		}
		out = append(out, ev)
	}
	return out
}
