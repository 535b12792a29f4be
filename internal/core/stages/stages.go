// Package stages pairs normalized events into stage intervals and classifies
// each against its status calendar
package stages

import (
	"fmt"
	"strconv"
	"time"

	"slaledger/internal/core/accumulate"
	"slaledger/internal/core/calendar"
	"slaledger/internal/core/normalize"
	"slaledger/internal/core/worktime"
	ptime "slaledger/internal/platform/time"
)

// Breach is the SLA classification of a stage
type Breach string

const (
	// Unknown means no budget, no deadline or a still open stage
	Unknown Breach = "unknown"
	// OnTime means the stage closed at or before its deadline
	OnTime Breach = "on_time"
	// Late means the stage closed after its deadline
	Late Breach = "late"
)

// Stage is the time an order spent under one status code
type Stage struct {
	OrderID     string
	StatusCode  string
	StatusTitle string
	Actor       string
	Start       time.Time
	End         *time.Time

	Target   *time.Duration
	Deadline *time.Time

	Wall        *time.Duration
	Working     *time.Duration
	OverWall    *time.Duration
	OverWorking *time.Duration

	Breach Breach
}

// Open reports whether the stage has no closing event yet
func (s Stage) Open() bool { return s.End == nil }

// Builder turns normalized events into stages. It is safe for concurrent use
type Builder struct {
	Model calendar.Model
	Calc  worktime.Calculator
}

// NewBuilder binds a model and a zone
func NewBuilder(model calendar.Model, loc *time.Location) Builder {
	return Builder{Model: model, Calc: worktime.New(loc)}
}

// Build emits one stage per event. When res carries new events and an anchor,
// the stage left open by the previous run is re-emitted closed by the first
// new event
func (b Builder) Build(orderID string, res normalize.Result) []Stage {
	events := res.Events
	if len(events) > 0 && res.Anchor != nil {
		events = append([]normalize.Event{*res.Anchor}, events...)
	}
	out := make([]Stage, 0, len(events))
	for i, ev := range events {
		var end *time.Time
		if i+1 < len(events) {
			e := events[i+1].At
			end = &e
		}
		out = append(out, b.stage(orderID, ev, end))
	}
	return out
}

func (b Builder) stage(orderID string, ev normalize.Event, end *time.Time) Stage {
	st := Stage{
		OrderID:     orderID,
		StatusCode:  ev.Code,
		StatusTitle: ev.Title,
		Actor:       ev.Actor,
		Start:       ev.At,
		End:         end,
		Breach:      Unknown,
	}
	if end != nil {
		wall := end.Sub(ev.At)
		st.Wall = &wall
	}

	rule, ok := b.Model.Lookup(ev.Code)
	if !ok || rule.Target == nil {
		return st
	}
	target := *rule.Target
	st.Target = &target

	deadline, err := b.Calc.Deadline(ev.At, target, rule)
	if err != nil {
		return st
	}
	st.Deadline = &deadline
	if end == nil {
		return st
	}

	working := b.Calc.Elapsed(ev.At, *end, rule)
	st.Working = &working

	overWall, overWorking := b.Calc.Overage(deadline, *end, rule)
	st.OverWall, st.OverWorking = &overWall, &overWorking
	if end.After(deadline) {
		st.Breach = Late
	} else {
		st.Breach = OnTime
	}
	return st
}

// Columns is the stage table layout
var Columns = []string{
	accumulate.ColOrderID,
	accumulate.ColStage,
	accumulate.ColStatusCode,
	"actor",
	accumulate.ColEventTime,
	"end_time",
	"sla_target",
	"deadline",
	"wall_seconds",
	"working_seconds",
	"sla_status",
	"over_wall_seconds",
	"over_working_seconds",
}

// Rows flattens stages into the stage table, instants rendered in loc
func Rows(stages []Stage, loc *time.Location) accumulate.Table {
	t := accumulate.NewTable(Columns...)
	for _, s := range stages {
		t.Append(Row(s, loc))
	}
	return t
}

// Row flattens one stage
func Row(s Stage, loc *time.Location) accumulate.Row {
	return accumulate.Row{
		accumulate.ColOrderID:    s.OrderID,
		accumulate.ColStage:      s.StatusTitle,
		accumulate.ColStatusCode: s.StatusCode,
		"actor":                  s.Actor,
		accumulate.ColEventTime:  ptime.FormatLocal(s.Start, loc),
		"end_time":               formatTime(s.End, loc),
		"sla_target":             formatBudget(s.Target),
		"deadline":               formatTime(s.Deadline, loc),
		"wall_seconds":           seconds(s.Wall),
		"working_seconds":        seconds(s.Working),
		"sla_status":             string(s.Breach),
		"over_wall_seconds":      seconds(s.OverWall),
		"over_working_seconds":   seconds(s.OverWorking),
	}
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return ptime.FormatLocal(*t, loc)
}

func seconds(d *time.Duration) string {
	if d == nil {
		return ""
	}
	return strconv.FormatInt(int64(*d/time.Second), 10)
}

// formatBudget renders a target as HH:MM, hours unbounded
func formatBudget(d *time.Duration) string {
	if d == nil {
		return ""
	}
	mins := int64(*d / time.Minute)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}
