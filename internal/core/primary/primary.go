// Package primary flattens orders into the one-row-per-order primary table
package primary

import (
	"sort"
	"strings"
	"time"

	"slaledger/internal/core/accumulate"
	"slaledger/internal/core/order"
	ptime "slaledger/internal/platform/time"
)

// DefaultIntegrationPrefix marks actors that are automations, not people
const DefaultIntegrationPrefix = "integracao"

// Priority labels indexed by the source priority ordering
var priorities = [...]string{"none", "low", "medium", "high"}

// Columns is the primary table layout
var Columns = []string{
	accumulate.ColCardID,
	accumulate.ColOrderID,
	"status",
	accumulate.ColStatusCode,
	"client",
	"location",
	"priority",
	"time_created",
	"time_last_updated",
	"last_human_user",
	"last_human_change",
	"last_human_source",
}

// Options tunes row derivation
type Options struct {
	// IntegrationPrefix is matched case-insensitively against actor names
	IntegrationPrefix string
	// StatusFilter keeps only orders whose current code is listed; empty keeps all
	StatusFilter []string
	Loc          *time.Location
}

// Builder derives primary rows
type Builder struct {
	prefix string
	filter map[string]struct{}
	loc    *time.Location
}

// New builds a Builder, defaulting the prefix and zone
func New(opt Options) Builder {
	b := Builder{
		prefix: strings.ToLower(strings.TrimSpace(opt.IntegrationPrefix)),
		loc:    opt.Loc,
	}
	if b.prefix == "" {
		b.prefix = DefaultIntegrationPrefix
	}
	if b.loc == nil {
		b.loc = time.UTC
	}
	for _, c := range opt.StatusFilter {
		if c = strings.TrimSpace(c); c != "" {
			if b.filter == nil {
				b.filter = map[string]struct{}{}
			}
			b.filter[c] = struct{}{}
		}
	}
	return b
}

// Keep reports whether o passes the status filter
func (b Builder) Keep(o order.Order) bool {
	if b.filter == nil {
		return true
	}
	_, ok := b.filter[o.CodeOf()]
	return ok
}

// Table builds rows for the orders passing the filter, in input order
func (b Builder) Table(orders []order.Order) accumulate.Table {
	t := accumulate.NewTable(Columns...)
	for _, o := range orders {
		if b.Keep(o) {
			t.Append(b.Row(o))
		}
	}
	return t
}

// Row flattens one order. An order without a card id is keyed by its order id
// so cardless orders never collapse into one row
func (b Builder) Row(o order.Order) accumulate.Row {
	card := o.Card()
	if card == "" {
		card = o.ID.String()
	}
	r := accumulate.Row{
		accumulate.ColCardID:     card,
		accumulate.ColOrderID:    o.ID.String(),
		"status":                 o.TitleOf(),
		accumulate.ColStatusCode: o.CodeOf(),
		"client":                 name(o.Client),
		"location":               name(o.Location),
		"priority":               Priority(o.Priority),
		"time_created":           b.localTime(o.TimeCreated),
		"time_last_updated":      b.localTime(o.TimeLastUpdated),
	}
	if h, ok := b.LastHuman(o); ok {
		r["last_human_user"] = h.User()
		r["last_human_change"] = b.localTime(h.TimeCreated)
		r["last_human_source"] = h.Source()
	}
	return r
}

// Human reports whether user is a person rather than an integration
func (b Builder) Human(user string) bool {
	u := strings.TrimSpace(user)
	return u != "" && !strings.HasPrefix(strings.ToLower(u), b.prefix)
}

// LastHuman returns the most recent history entry made by a person.
// Entries with unparsable times rank oldest
func (b Builder) LastHuman(o order.Order) (order.HistoryEntry, bool) {
	type ranked struct {
		h  order.HistoryEntry
		at time.Time
		ok bool
	}
	hs := make([]ranked, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		if !b.Human(h.User()) {
			continue
		}
		r := ranked{h: h}
		if h.TimeCreated != nil {
			if at, err := ptime.ParseInstant(*h.TimeCreated); err == nil {
				r.at, r.ok = at, true
			}
		}
		hs = append(hs, r)
	}
	if len(hs) == 0 {
		return order.HistoryEntry{}, false
	}
	sort.SliceStable(hs, func(i, j int) bool {
		if hs[i].ok != hs[j].ok {
			return hs[i].ok
		}
		return hs[i].at.After(hs[j].at)
	})
	return hs[0].h, true
}

// Priority maps the source priority ordering to a label; absent or out of range is none
func Priority(p *int) string {
	if p == nil || *p < 0 || *p >= len(priorities) {
		return priorities[0]
	}
	return priorities[*p]
}

func (b Builder) localTime(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return ""
	}
	at, err := ptime.ParseInstant(*s)
	if err != nil {
		return strings.TrimSpace(*s)
	}
	return ptime.FormatLocal(at, b.loc)
}

func name(n *order.Named) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return strings.TrimSpace(*n.Name)
}
