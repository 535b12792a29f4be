// Package time contains time related helpers
package time

import (
	"strings"
	"time"

	perr "slaledger/internal/platform/errors"
)

// DefaultZone is the civil zone shift calendars are written in unless configured otherwise
const DefaultZone = "America/Sao_Paulo"

// EventLayout is the canonical text form of event instants in persisted tables
const EventLayout = "2006-01-02 15:04:05"

// instantLayouts are the ISO-8601 shapes observed on upstream status histories.
// Layouts without an offset are read as UTC
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// localLayouts are the shapes older persisted tables used for start columns
var localLayouts = []string{
	EventLayout,
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"2006-01-02",
}

// LoadZone resolves an IANA zone name, falling back to DefaultZone when name is blank
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeConfigParse, "unknown time zone %q", name)
	}
	return loc, nil
}

// ParseInstant parses an upstream ISO-8601 timestamp. Naive values are UTC
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, perr.EventParsef("empty timestamp")
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, perr.EventParsef("unrecognized timestamp %q", s)
}

// ParseLocal parses a civil date-time written in loc (legacy table layouts, day first)
func ParseLocal(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, perr.InvalidArgf("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, perr.InvalidArgf("unrecognized date %q", s)
}

// FormatLocal renders t in loc using EventLayout; zero renders as ""
func FormatLocal(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(EventLayout)
}

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
