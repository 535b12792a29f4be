package accumulate

import (
	"context"
	"strings"
	"time"

	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/logger"
	pstrings "slaledger/internal/platform/strings"
)

// Merger applies one KeySpec
type Merger struct {
	Spec KeySpec
	// Loc is the zone legacy civil timestamps are read in
	Loc *time.Location
}

// Merge folds batch into old. Rows of old sharing a key with batch are
// replaced, batch rows are appended, and no key survives twice. Only a batch
// that satisfies no key candidate is an error (KeyResolution)
func (m Merger) Merge(ctx context.Context, old, batch Table) (Table, error) {
	log := logger.C(ctx)

	batch = trimmed(batch)
	newKey := m.Spec.pick(batch)
	if newKey == nil {
		return Table{}, perr.WithOp(perr.KeyResolutionf(
			"%s batch has none of the key candidates %v (columns %v)", m.Spec.Kind, m.Spec.Candidates, batch.Columns), "accumulate.merge")
	}

	kept := Table{}
	if !old.Empty() {
		old = trimmed(old)
		if done := m.Spec.migrate(&old, m.Loc); len(done) > 0 {
			log.Info().Str("kind", m.Spec.Kind).Strs("migrated", done).Msg("legacy accumulation columns synthesized")
		}
		old = m.dropIncomplete(ctx, old)

		if oldKey := m.Spec.pick(old); oldKey != nil {
			kept = replaceByKey(old, batch, oldKey, newKey)
			kept = dedupLast(kept, m.Spec.rowKeyer(kept))
		} else {
			inter := intersect(intersect(m.Spec.Universe, old), batch)
			if len(inter) == 0 {
				log.Warn().Str("kind", m.Spec.Kind).Strs("columns", old.Columns).
					Msg("old accumulation has no identity columns; starting over")
			} else {
				log.Warn().Str("kind", m.Spec.Kind).Strs("dedup", inter).
					Msg("old accumulation satisfies no key; deduplicating by shared columns")
				kept = replaceByKey(old, batch, inter, inter)
				kept = dedupLast(kept, fixedKey(inter))
			}
		}
	}

	batch = dedupLast(batch, fixedKey(newKey))
	out := Table{Columns: union(kept.Columns, batch.Columns)}
	out.Rows = append(append(make([]Row, 0, kept.Len()+batch.Len()), kept.Rows...), batch.Rows...)
	return out, nil
}

// replaceByKey drops old rows colliding with batch by the shared key columns,
// then by the full batch key when old carries it
func replaceByKey(old, batch Table, oldKey, newKey []string) Table {
	var inter []string
	for _, c := range oldKey {
		for _, n := range newKey {
			if c == n {
				inter = append(inter, c)
			}
		}
	}
	interSeen := keySet(batch, inter)
	newSeen := keySet(batch, newKey)
	full := old.HasAll(newKey)

	out := Table{Columns: old.Columns}
	for _, r := range old.Rows {
		if len(inter) > 0 {
			if _, hit := interSeen[keyOf(r, inter)]; hit {
				continue
			}
		}
		if full {
			if _, hit := newSeen[keyOf(r, newKey)]; hit {
				continue
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// dropIncomplete removes old rows blank in a required column
func (m Merger) dropIncomplete(ctx context.Context, t Table) Table {
	req := intersect(m.Spec.Required, t)
	if len(req) == 0 {
		return t
	}
	out := Table{Columns: t.Columns, Rows: make([]Row, 0, len(t.Rows))}
	dropped := 0
	for _, r := range t.Rows {
		ok := true
		for _, c := range req {
			if strings.TrimSpace(r[c]) == "" {
				ok = false
				break
			}
		}
		if !ok {
			dropped++
			continue
		}
		out.Rows = append(out.Rows, r)
	}
	if dropped > 0 {
		logger.C(ctx).Warn().Str("kind", m.Spec.Kind).Int("dropped", dropped).Strs("required", req).
			Msg("old accumulation rows without identity dropped")
	}
	return out
}

// rowIdentity is a row key tagged with the candidate that produced it
type rowIdentity struct {
	cand int
	key  string
}

func fixedKey(cols []string) func(Row) rowIdentity {
	return func(r Row) rowIdentity { return rowIdentity{key: keyOf(r, cols)} }
}

// rowKeyer identifies each row of t by the most granular candidate t carries
// and the row fills in, so rows blank in a granular column fall back to a
// coarser key instead of colliding on ""
func (s KeySpec) rowKeyer(t Table) func(Row) rowIdentity {
	var present []int
	for i, c := range s.Candidates {
		if t.HasAll(c) {
			present = append(present, i)
		}
	}
	return func(r Row) rowIdentity {
		for _, i := range present {
			if filled(r, s.Candidates[i]) {
				return rowIdentity{cand: i, key: keyOf(r, s.Candidates[i])}
			}
		}
		return rowIdentity{cand: -1, key: keyOf(r, s.Candidates[present[0]])}
	}
}

func filled(r Row, cols []string) bool {
	for _, c := range cols {
		if r[c] == "" {
			return false
		}
	}
	return true
}

// dedupLast keeps, for each identity, the last row at its own position
func dedupLast(t Table, id func(Row) rowIdentity) Table {
	last := make(map[rowIdentity]int, len(t.Rows))
	for i, r := range t.Rows {
		last[id(r)] = i
	}
	out := Table{Columns: t.Columns, Rows: make([]Row, 0, len(last))}
	for i, r := range t.Rows {
		if last[id(r)] == i {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

func keySet(t Table, cols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		set[keyOf(r, cols)] = struct{}{}
	}
	return set
}

// trimmed copies t with every cell cleaned and trimmed, the form rows are
// stored in, so keys compare equal across runs and merges never alias caller rows
func trimmed(t Table) Table {
	out := Table{Columns: append([]string(nil), t.Columns...), Rows: make([]Row, 0, len(t.Rows))}
	for _, r := range t.Rows {
		c := make(Row, len(r))
		for k, v := range r {
			c[k] = strings.TrimSpace(pstrings.Clean(v))
		}
		out.Rows = append(out.Rows, c)
	}
	return out
}
