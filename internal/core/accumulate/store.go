package accumulate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/logger"
)

// StampLayout names timestamped snapshots
const StampLayout = "2006-01-02_15-04"

// Artifact names one of the three persisted copies
type Artifact string

const (
	// ArtifactCanonical is {kind}_{config}
	ArtifactCanonical Artifact = "canonical"
	// ArtifactLatest is {kind}_{config}_latest, always overwritten
	ArtifactLatest Artifact = "latest"
	// ArtifactDated is {kind}_{config}_{stamp}, append-only history
	ArtifactDated Artifact = "dated"
)

// Sink reads and writes whole tables by name. Write must be atomic: a reader
// sees either the previous content or the new one
type Sink interface {
	Read(ctx context.Context, name string) (Table, bool, error)
	Write(ctx context.Context, name string, t Table) error
}

// Names are the artifact names for one accumulation
type Names struct {
	Canonical string
	Latest    string
	Dated     string
}

// NamesFor builds the artifact names for kind and configID at now
func NamesFor(kind, configID string, now time.Time) Names {
	base := kind + "_" + strings.TrimSpace(configID)
	return Names{
		Canonical: base,
		Latest:    base + "_latest",
		Dated:     base + "_" + now.Format(StampLayout),
	}
}

// ArtifactResult is the outcome of one artifact write
type ArtifactResult struct {
	Artifact Artifact
	Name     string
	Err      error
}

// WriteReport lists every artifact write of a save
type WriteReport struct {
	Results []ArtifactResult
}

// OK reports whether every artifact was written
func (w WriteReport) OK() bool {
	for _, r := range w.Results {
		if r.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the failed artifacts
func (w WriteReport) Failed() []ArtifactResult {
	var out []ArtifactResult
	for _, r := range w.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Store persists accumulations through a Sink, one merge at a time per table
type Store struct {
	sink    Sink
	now     func() time.Time
	onWrite func(kind string, a Artifact, err error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock overrides the snapshot clock
func WithClock(now func() time.Time) StoreOption { return func(s *Store) { s.now = now } }

// WithWriteHook observes every artifact write
func WithWriteHook(fn func(kind string, a Artifact, err error)) StoreOption {
	return func(s *Store) { s.onWrite = fn }
}

// NewStore wires a Store over sink
func NewStore(sink Sink, opts ...StoreOption) *Store {
	s := &Store{sink: sink, now: time.Now, locks: map[string]*sync.Mutex{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) lock(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Load returns the persisted table, preferring the latest snapshot over the
// canonical one. Unreadable tables come back empty with a warning
func (s *Store) Load(ctx context.Context, kind, configID string) Table {
	names := NamesFor(kind, configID, s.now())
	log := logger.C(ctx)
	for _, name := range []string{names.Latest, names.Canonical} {
		t, found, err := s.sink.Read(ctx, name)
		if err != nil {
			log.Warn().Err(perr.Wrapf(err, perr.ErrorCodeAccumulationRead, "read %s", name)).
				Str("artifact", name).Msg("accumulation unreadable; treating as empty")
			continue
		}
		if found {
			return t
		}
	}
	return Table{}
}

// Save writes all three artifacts; a failed artifact does not stop the others
func (s *Store) Save(ctx context.Context, kind, configID string, t Table) WriteReport {
	names := NamesFor(kind, configID, s.now())
	log := logger.C(ctx)

	var rep WriteReport
	for _, a := range []struct {
		artifact Artifact
		name     string
	}{
		{ArtifactCanonical, names.Canonical},
		{ArtifactLatest, names.Latest},
		{ArtifactDated, names.Dated},
	} {
		err := s.sink.Write(ctx, a.name, t)
		if err != nil {
			err = perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "write %s", a.name)
			log.Error().Err(err).Str("artifact", a.name).Msg("accumulation artifact not written")
		}
		if s.onWrite != nil {
			s.onWrite(kind, a.artifact, err)
		}
		rep.Results = append(rep.Results, ArtifactResult{Artifact: a.artifact, Name: a.name, Err: err})
	}
	if rep.OK() {
		log.Info().Str("kind", kind).Int("rows", t.Len()).
			Str("canonical", names.Canonical).Str("dated", names.Dated).Msg("accumulation saved")
	}
	return rep
}

// Accumulate loads, merges and saves under the table lock. The returned error
// is only a key resolution failure on batch; write failures are in the report
func (s *Store) Accumulate(ctx context.Context, m Merger, configID string, batch Table) (Table, WriteReport, error) {
	unlock := s.lock(m.Spec.Kind + "/" + configID)
	defer unlock()

	old := s.Load(ctx, m.Spec.Kind, configID)
	merged, err := m.Merge(ctx, old, batch)
	if err != nil {
		return Table{}, WriteReport{}, fmt.Errorf("accumulate %s for %s: %w", m.Spec.Kind, configID, err)
	}
	return merged, s.Save(ctx, m.Spec.Kind, configID, merged), nil
}
