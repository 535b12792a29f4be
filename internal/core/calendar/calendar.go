// Package calendar turns a workflow configuration into per-status working
// calendars: a target budget, weekday shift windows and holidays
package calendar

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/validate"
)

// dateKey is the civil date layout used for holiday membership
const dateKey = "2006-01-02"

// ShiftWindow is an active interval of a day as offsets from local midnight
// Start < End and End <= 24h; windows never span midnight
type ShiftWindow struct {
	Start time.Duration
	End   time.Duration
}

// Len returns the window length
func (w ShiftWindow) Len() time.Duration { return w.End - w.Start }

// Rule is the calendar of one status code
type Rule struct {
	StatusID string
	// Target is nil when the status carries no budget; its stages are Unknown
	Target     *time.Duration
	SLAType    string
	ActiveDays map[time.Weekday][]ShiftWindow
	Holidays   map[string]struct{}
}

// Windows returns the sorted windows active on the civil date of day, nil on holidays and idle weekdays
func (r Rule) Windows(day time.Time) []ShiftWindow {
	if r.IsHoliday(day) {
		return nil
	}
	return r.ActiveDays[day.Weekday()]
}

// IsHoliday reports whether the civil date of day is a holiday
func (r Rule) IsHoliday(day time.Time) bool {
	if len(r.Holidays) == 0 {
		return false
	}
	_, ok := r.Holidays[day.Format(dateKey)]
	return ok
}

// HasWorkingTime reports whether any weekday has at least one window
func (r Rule) HasWorkingTime() bool {
	for _, ws := range r.ActiveDays {
		if len(ws) > 0 {
			return true
		}
	}
	return false
}

// Model maps status codes (as text) to rules. Built once per run, read-only after
type Model map[string]Rule

// Lookup returns the rule for a status code
func (m Model) Lookup(code string) (Rule, bool) {
	r, ok := m[strings.TrimSpace(code)]
	return r, ok
}

// WorkflowConfig is the subset of an upstream workflow payload carrying SLA rules
type WorkflowConfig struct {
	ID        json.Number `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	ExtraData struct {
		SLA []Entry `json:"sla"`
	} `json:"extra_data"`
}

// Entry is one raw SLA rule
type Entry struct {
	StatusID StatusID `json:"statusId"`
	SLATime  string   `json:"slaTime"`
	SLAType  string   `json:"slaType"`
	WorkWeek []Day    `json:"workWeek"`
	Holidays []string `json:"holidays"`
}

// Day is one weekday of a raw work week
type Day struct {
	DayOfWeek string  `json:"dayOfWeek"`
	IsActive  bool    `json:"isActive"`
	Shifts    []Shift `json:"shifts"`
}

// Shift is a raw "HH:MM" window
type Shift struct {
	StartTime string `json:"startTime" validate:"required,clock"`
	EndTime   string `json:"endTime" validate:"required,clock"`
}

// StatusID accepts both numeric and string ids
type StatusID string

// UnmarshalJSON implements json.Unmarshaler
func (s *StatusID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = StatusID(strings.TrimSpace(v))
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = StatusID(n.String())
	return nil
}

// Decode reads a workflow configuration payload
func Decode(b []byte) (WorkflowConfig, error) {
	var wf WorkflowConfig
	if err := json.Unmarshal(b, &wf); err != nil {
		return WorkflowConfig{}, perr.Wrap(err, perr.ErrorCodeConfigParse, "decode workflow config")
	}
	return wf, nil
}

// Parse builds the model from a workflow configuration. It never fails as a
// whole: malformed sub-entries are skipped and reported as ConfigParse errors
func Parse(wf WorkflowConfig) (Model, []error) {
	model := make(Model, len(wf.ExtraData.SLA))
	var errs []error

	for i, e := range wf.ExtraData.SLA {
		op := "sla[" + strconv.Itoa(i) + "]"
		id := strings.TrimSpace(string(e.StatusID))
		if id == "" {
			errs = append(errs, perr.WithOp(perr.WithField(perr.ConfigParsef("entry without statusId"), "statusId"), op))
			continue
		}
		rule, ruleErrs := parseEntry(id, e)
		for _, err := range ruleErrs {
			errs = append(errs, perr.WithOp(err, op))
		}
		model[id] = rule
	}
	return model, errs
}

func parseEntry(id string, e Entry) (Rule, []error) {
	var errs []error
	rule := Rule{
		StatusID:   id,
		SLAType:    strings.TrimSpace(e.SLAType),
		ActiveDays: map[time.Weekday][]ShiftWindow{},
		Holidays:   map[string]struct{}{},
	}
	if rule.SLAType == "" {
		rule.SLAType = "hours"
	}

	if s := strings.TrimSpace(e.SLATime); s != "" {
		if d, ok := parseBudget(s); ok {
			rule.Target = &d
		} else {
			errs = append(errs, fieldErr("slaTime", "status %s: bad slaTime %q", id, s))
		}
	}

	for _, day := range e.WorkWeek {
		wd, ok := validate.Weekday(day.DayOfWeek)
		if !ok {
			errs = append(errs, fieldErr("dayOfWeek", "status %s: unknown day %q", id, day.DayOfWeek))
			continue
		}
		if !day.IsActive {
			continue
		}
		var windows []ShiftWindow
		for _, sh := range day.Shifts {
			if issues := validate.Struct(sh); issues != nil {
				errs = append(errs, fieldErr(issues[0].Field, "status %s %s: %s", id, day.DayOfWeek, issues[0].Message))
				continue
			}
			start, _ := validate.ParseClock(sh.StartTime)
			end, _ := validate.ParseClock(sh.EndTime)
			if start >= end || start >= 24*time.Hour {
				errs = append(errs, fieldErr("shifts", "status %s %s: empty or overnight shift %s-%s", id, day.DayOfWeek, sh.StartTime, sh.EndTime))
				continue
			}
			windows = append(windows, ShiftWindow{Start: start, End: end})
		}
		rule.ActiveDays[wd] = mergeWindows(append(rule.ActiveDays[wd], windows...))
	}

	for _, h := range e.Holidays {
		key, ok := holidayKey(h)
		if !ok {
			errs = append(errs, fieldErr("holidays", "status %s: bad holiday %q", id, h))
			continue
		}
		rule.Holidays[key] = struct{}{}
	}
	return rule, errs
}

// parseBudget reads "HH:MM" budgets; hours may exceed 23 ("48:00")
func parseBudget(s string) (time.Duration, bool) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	hours, err1 := strconv.Atoi(strings.TrimSpace(h))
	mins, err2 := strconv.Atoi(strings.TrimSpace(m))
	if err1 != nil || err2 != nil || hours < 0 || mins < 0 || mins > 59 {
		return 0, false
	}
	return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, true
}

// holidayKey normalizes the accepted holiday shapes to a civil date key
func holidayKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= len(dateKey) {
		if t, err := time.Parse(dateKey, s[:len(dateKey)]); err == nil {
			return t.Format(dateKey), true
		}
	}
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return t.Format(dateKey), true
	}
	return "", false
}

// mergeWindows sorts windows and merges overlapping or touching ones
func mergeWindows(ws []ShiftWindow) []ShiftWindow {
	if len(ws) < 2 {
		return ws
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	out := ws[:1]
	for _, w := range ws[1:] {
		last := &out[len(out)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

func fieldErr(field, format string, a ...any) error {
	return perr.WithField(perr.ConfigParsef(format, a...), field)
}
