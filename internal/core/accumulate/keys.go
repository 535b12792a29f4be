package accumulate

import (
	"strings"
	"time"

	ptime "slaledger/internal/platform/time"
)

// Stage and primary table column names shared by builders and the merger
const (
	ColOrderID    = "order_id"
	ColCardID     = "card_id"
	ColStage      = "stage"
	ColStatusCode = "status_code"
	ColEventTime  = "event_time"
)

// Migration synthesizes Target on an older table from the first present source column
type Migration struct {
	Target  string
	Sources []string
	// Convert maps a source value; nil copies it trimmed
	Convert func(v string, loc *time.Location) string
}

// KeySpec describes how rows of one accumulation are identified
type KeySpec struct {
	// Kind prefixes artifact names ("sla", "primary")
	Kind string
	// Candidates are tried most granular first
	Candidates [][]string
	// Universe bounds the fallback dedup columns for old tables matching no candidate
	Universe []string
	// Required columns must be non-blank on old rows or the row is dropped
	Required   []string
	Migrations []Migration
}

// StageSpec identifies one row per stage entry
var StageSpec = KeySpec{
	Kind: "sla",
	Candidates: [][]string{
		{ColOrderID, ColStage, ColStatusCode, ColEventTime},
		{ColOrderID, ColStage, ColStatusCode},
		{ColOrderID, ColStage},
	},
	Universe: []string{ColOrderID, ColStage, ColStatusCode, ColEventTime},
	Required: []string{ColOrderID, ColStage},
	Migrations: []Migration{
		{Target: ColStatusCode, Sources: []string{"code", "Código", "Código do Status"}},
		{Target: ColEventTime, Sources: []string{"start", "started_at", "execution_start", "Data Início Execução", "Data Inicio Execucao"}, Convert: reformatTime},
	},
}

// PrimarySpec identifies one row per order, by card id with the order id as fallback
var PrimarySpec = KeySpec{
	Kind:       "primary",
	Candidates: [][]string{{ColCardID}, {ColOrderID}},
	Universe:   []string{ColCardID, ColOrderID},
}

// pick returns the first candidate fully present on t
func (s KeySpec) pick(t Table) []string {
	for _, c := range s.Candidates {
		if t.HasAll(c) {
			return c
		}
	}
	return nil
}

// reformatTime rewrites legacy start columns to the event_time layout, "" when unparsable
func reformatTime(v string, loc *time.Location) string {
	t, err := ptime.ParseLocal(v, loc)
	if err != nil {
		if inst, ierr := ptime.ParseInstant(v); ierr == nil {
			return ptime.FormatLocal(inst, loc)
		}
		return ""
	}
	return ptime.FormatLocal(t, loc)
}

// migrate synthesizes missing target columns in place and reports what it did
func (s KeySpec) migrate(t *Table, loc *time.Location) []string {
	var done []string
	for _, m := range s.Migrations {
		if t.Has(m.Target) {
			continue
		}
		src := ""
		for _, c := range m.Sources {
			if t.Has(c) {
				src = c
				break
			}
		}
		if src == "" {
			continue
		}
		for _, r := range t.Rows {
			v := strings.TrimSpace(r[src])
			if m.Convert != nil && v != "" {
				v = m.Convert(v, loc)
			}
			r[m.Target] = v
		}
		t.AddColumn(m.Target)
		done = append(done, m.Target+"<-"+src)
	}
	return done
}
