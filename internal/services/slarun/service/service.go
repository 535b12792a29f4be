// Package service runs the SLA pipeline over the configurations of a manifest
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"slaledger/internal/adapters/tabular/csvfile"
	"slaledger/internal/core/accumulate"
	"slaledger/internal/core/calendar"
	"slaledger/internal/core/normalize"
	"slaledger/internal/core/primary"
	"slaledger/internal/core/stages"
	"slaledger/internal/core/watermark"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/logger"
	"slaledger/internal/platform/metrics"
	pstrings "slaledger/internal/platform/strings"
	ptime "slaledger/internal/platform/time"
	"slaledger/internal/services/slarun/domain"
)

// Artifacts written outside the accumulation store
const (
	ArtifactExport accumulate.Artifact = "export"
	ArtifactMirror accumulate.Artifact = "pg_mirror"
	ArtifactFacts  accumulate.Artifact = "ch_facts"
)

// Config holds configuration options for the run service
type Config struct {
	// Loc is the zone of calendars and rendered timestamps; the manifest may override it
	Loc *time.Location
	// OutputDir holds accumulations and exports; the manifest may override it
	OutputDir string
	// Workers fans out per-order computation; <=0 -> 1
	Workers int
	// IntegrationPrefix marks automation actors on the primary table
	IntegrationPrefix string
	// Precision truncates event instants, zero means whole seconds
	Precision time.Duration
	// WatermarkFromMirror reads watermarks from the stage mirror instead of the latest accumulation
	WatermarkFromMirror bool
	// SafeNameMax caps the configuration name in export file names
	SafeNameMax int
}

// SinkFactory opens the accumulation sink of an output directory
type SinkFactory func(dir string) (accumulate.Sink, error)

// Service implements domain.RunnerPort
type Service struct {
	Sources domain.SourceFactory
	Sink    SinkFactory
	Cfg     Config

	// Optional collaborators; nil disables them
	Mirror  domain.StageMirror
	Facts   domain.FactWriter
	Metrics *metrics.Metrics

	now       func() time.Time
	newID     func() string
	stageRows func([]stages.Stage, *time.Location) accumulate.Table
}

// New constructs the run service
func New(sources domain.SourceFactory, cfg Config) *Service {
	if sources == nil {
		panic("slarun.Service requires a non nil SourceFactory")
	}
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.SafeNameMax <= 0 {
		cfg.SafeNameMax = 40
	}
	return &Service{
		Sources: sources,
		Sink: func(dir string) (accumulate.Sink, error) {
			return csvfile.New(dir)
		},
		Cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
		stageRows: stages.Rows,
	}
}

// WithMirror wires the relational stage mirror
func (s *Service) WithMirror(m domain.StageMirror) *Service {
	s.Mirror = m
	return s
}

// WithFacts wires the analytics fact writer
func (s *Service) WithFacts(f domain.FactWriter) *Service {
	s.Facts = f
	return s
}

// WithMetrics wires the run collectors
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.Metrics = m
	return s
}

// runEnv is what one run resolved from the manifest and the service defaults
type runEnv struct {
	runID string
	loc   *time.Location
	sink  accumulate.Sink
	store *accumulate.Store
}

// Run processes every configuration in manifest order. A failing
// configuration is recorded in the summary and the next one proceeds; the
// returned error is reserved for an unusable manifest or a cancelled context
func (s *Service) Run(ctx context.Context, m domain.Manifest) (domain.RunSummary, error) {
	env, err := s.env(m)
	if err != nil {
		return domain.RunSummary{}, err
	}
	sum := domain.RunSummary{RunID: env.runID, Started: s.now()}
	ctx = logger.WithRun(ctx, env.runID, "")
	log := logger.C(ctx)
	log.Info().Int("configurations", len(m.Configurations)).Str("zone", env.loc.String()).Msg("sla run started")

	for _, spec := range m.Configurations {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res := s.runConfig(logger.WithRun(ctx, env.runID, spec.ID), env, spec)
		sum.Results = append(sum.Results, res)
		if s.Metrics != nil {
			s.Metrics.RecordConfigRun(spec.ID, res.Err, res.Took)
		}
	}

	failed := sum.Failed()
	ev := log.Info()
	if len(failed) > 0 {
		ev = log.Warn()
	}
	ev.Int("configurations", len(sum.Results)).Int("failed", len(failed)).
		Dur("took", s.now().Sub(sum.Started)).Msg("sla run finished")
	return sum, nil
}

// Watermarks returns the per-order watermarks of one configuration from the
// default output directory, or from the mirror when configured to
func (s *Service) Watermarks(ctx context.Context, configID string) (watermark.Set, error) {
	if s.Cfg.WatermarkFromMirror && s.Mirror != nil {
		return s.Mirror.Watermarks(ctx, configID)
	}
	t, err := s.Accumulation(ctx, accumulate.StageSpec.Kind, configID)
	if err != nil {
		return nil, err
	}
	return watermark.FromTable(t, s.Cfg.Loc), nil
}

// Accumulation loads the persisted table of kind for a configuration from
// the default output directory
func (s *Service) Accumulation(ctx context.Context, kind, configID string) (accumulate.Table, error) {
	sink, err := s.Sink(s.Cfg.OutputDir)
	if err != nil {
		return accumulate.Table{}, err
	}
	return accumulate.NewStore(sink, accumulate.WithClock(s.now)).Load(ctx, kind, configID), nil
}

func (s *Service) env(m domain.Manifest) (runEnv, error) {
	loc := s.Cfg.Loc
	if strings.TrimSpace(m.Timezone) != "" {
		l, err := ptime.LoadZone(m.Timezone)
		if err != nil {
			return runEnv{}, err
		}
		loc = l
	}
	dir := s.Cfg.OutputDir
	if strings.TrimSpace(m.OutputDir) != "" {
		dir = m.OutputDir
	}
	sink, err := s.Sink(dir)
	if err != nil {
		return runEnv{}, err
	}
	opts := []accumulate.StoreOption{accumulate.WithClock(s.now)}
	if s.Metrics != nil {
		opts = append(opts, accumulate.WithWriteHook(func(kind string, a accumulate.Artifact, err error) {
			s.Metrics.RecordArtifactWrite(kind, string(a), err)
		}))
	}
	return runEnv{
		runID: s.newID(),
		loc:   loc,
		sink:  sink,
		store: accumulate.NewStore(sink, opts...),
	}, nil
}

// runConfig runs the whole pipeline for one configuration
func (s *Service) runConfig(ctx context.Context, env runEnv, spec domain.ConfigSpec) (res domain.ConfigResult) {
	start := s.now()
	res = domain.ConfigResult{ConfigID: spec.ID, Name: spec.Name}
	log := logger.C(ctx)
	defer func() {
		res.Took = s.now().Sub(start)
		if res.Err != nil {
			log.Error().Err(res.Err).Dur("took", res.Took).Msg("configuration failed")
		}
	}()

	src, err := s.Sources(spec)
	if err != nil {
		res.Err = fmt.Errorf("source for %s: %w", spec.ID, err)
		return res
	}

	wf, err := src.Workflow(ctx, spec.ID)
	if err != nil {
		res.Err = fmt.Errorf("workflow for %s: %w", spec.ID, err)
		return res
	}
	model, issues := calendar.Parse(wf)
	for _, is := range issues {
		log.Warn().Err(is).Msg("sla entry skipped")
	}
	res.Name = s.displayName(ctx, src, spec)

	orders, err := src.Orders(ctx, spec.ID)
	if err != nil {
		res.Err = fmt.Errorf("orders for %s: %w", spec.ID, err)
		return res
	}
	res.Orders = len(orders)

	wm, err := s.watermarks(ctx, env, spec.ID)
	if err != nil {
		res.Err = fmt.Errorf("watermarks for %s: %w", spec.ID, err)
		return res
	}

	outs, err := s.compute(ctx, orders, wm, stages.NewBuilder(model, env.loc), normalize.New(normalize.Options{Precision: s.Cfg.Precision}))
	if err != nil {
		res.Err = err
		return res
	}
	var all []stages.Stage
	for _, o := range outs {
		all = append(all, o.Stages...)
		res.Dropped += len(o.Dropped)
		for _, d := range o.Dropped {
			s.countDrop(spec.ID, d.Kind)
		}
	}
	s.tally(&res, all)

	// the primary accumulation does not depend on the stage one
	stageBatch := s.stageRows(all, env.loc)
	merged, rep, stageErr := env.store.Accumulate(ctx, accumulate.Merger{Spec: accumulate.StageSpec, Loc: env.loc}, spec.ID, stageBatch)
	if stageErr != nil {
		s.countKeyFailure(spec.ID, accumulate.StageSpec.Kind, stageErr)
	} else {
		res.StageRows = merged.Len()
		res.Writes = append(res.Writes, rep.Results...)
	}

	pb := primary.New(primary.Options{IntegrationPrefix: s.Cfg.IntegrationPrefix, StatusFilter: spec.StatusFilter, Loc: env.loc})
	pmerged, prep, err := env.store.Accumulate(ctx, accumulate.Merger{Spec: accumulate.PrimarySpec, Loc: env.loc}, spec.ID, pb.Table(orders))
	if err != nil {
		s.countKeyFailure(spec.ID, accumulate.PrimarySpec.Kind, err)
		if stageErr != nil {
			err = fmt.Errorf("%w; primary: %w", stageErr, err)
		}
		res.Err = err
		return res
	}
	res.PrimaryRows = pmerged.Len()
	res.Writes = append(res.Writes, prep.Results...)
	if stageErr != nil {
		res.Err = stageErr
		return res
	}

	res.Writes = append(res.Writes, s.export(ctx, env, res.Name, stageBatch, &res))
	res.Writes = append(res.Writes, s.mirror(ctx, env, spec.ID, all)...)

	log.Info().
		Str("name", res.Name).
		Int("orders", res.Orders).
		Int("stages", res.Stages).
		Int("late", res.Late).
		Int("dropped", res.Dropped).
		Int("stage_rows", res.StageRows).
		Int("primary_rows", res.PrimaryRows).
		Msg("configuration processed")
	return res
}

// displayName prefers an explicit manifest name, then the source's name
func (s *Service) displayName(ctx context.Context, src domain.OrderSource, spec domain.ConfigSpec) string {
	if spec.Name != "" && spec.Name != "config_"+spec.ID {
		return spec.Name
	}
	if n, err := src.ConfigName(ctx, spec.ID); err == nil && strings.TrimSpace(n) != "" {
		return strings.TrimSpace(n)
	}
	return "config_" + spec.ID
}

func (s *Service) watermarks(ctx context.Context, env runEnv, configID string) (watermark.Set, error) {
	if s.Cfg.WatermarkFromMirror && s.Mirror != nil {
		return s.Mirror.Watermarks(ctx, configID)
	}
	return watermark.FromTable(env.store.Load(ctx, accumulate.StageSpec.Kind, configID), env.loc), nil
}

// ExportName is the per-run stage report name for a configuration
func ExportName(name string, max int, now time.Time) string {
	return "report_sla_" + pstrings.SafeName(name, max) + "_" + now.Format(accumulate.StampLayout)
}

// export writes this run's stage rows (not the accumulation) as a standalone report
func (s *Service) export(ctx context.Context, env runEnv, name string, t accumulate.Table, res *domain.ConfigResult) accumulate.ArtifactResult {
	n := ExportName(name, s.Cfg.SafeNameMax, s.now())
	err := env.sink.Write(ctx, n, t)
	if err != nil {
		err = perr.Wrapf(err, perr.ErrorCodeAccumulationWrite, "export %s", n)
		logger.C(ctx).Error().Err(err).Msg("stage report not written")
	} else {
		res.ExportPath = n
	}
	if s.Metrics != nil {
		s.Metrics.RecordArtifactWrite(accumulate.StageSpec.Kind, string(ArtifactExport), err)
	}
	return accumulate.ArtifactResult{Artifact: ArtifactExport, Name: n, Err: err}
}

// mirror copies the run's stages to the optional relational and columnar stores
func (s *Service) mirror(ctx context.Context, env runEnv, configID string, all []stages.Stage) []accumulate.ArtifactResult {
	var out []accumulate.ArtifactResult
	log := logger.C(ctx)
	if s.Mirror != nil {
		n, err := s.Mirror.UpsertStages(ctx, configID, env.runID, all)
		if err != nil {
			log.Error().Err(err).Msg("stage mirror upsert failed")
		} else {
			log.Debug().Int("rows", n).Msg("stage mirror upserted")
		}
		if s.Metrics != nil {
			s.Metrics.RecordArtifactWrite(accumulate.StageSpec.Kind, string(ArtifactMirror), err)
		}
		out = append(out, accumulate.ArtifactResult{Artifact: ArtifactMirror, Name: "sla_stages", Err: err})
	}
	if s.Facts != nil {
		err := s.Facts.AppendStages(ctx, configID, env.runID, all)
		if err != nil {
			log.Error().Err(err).Msg("stage facts append failed")
		}
		if s.Metrics != nil {
			s.Metrics.RecordArtifactWrite(accumulate.StageSpec.Kind, string(ArtifactFacts), err)
		}
		out = append(out, accumulate.ArtifactResult{Artifact: ArtifactFacts, Name: "sla_stage_facts", Err: err})
	}
	return out
}

func (s *Service) tally(res *domain.ConfigResult, all []stages.Stage) {
	res.Stages = len(all)
	for _, st := range all {
		switch st.Breach {
		case stages.OnTime:
			res.OnTime++
		case stages.Late:
			res.Late++
		default:
			res.Unknown++
		}
		if s.Metrics != nil {
			s.Metrics.StagesBuilt.WithLabelValues(res.ConfigID, string(st.Breach)).Inc()
		}
	}
	if s.Metrics != nil {
		s.Metrics.OrdersProcessed.WithLabelValues(res.ConfigID).Add(float64(res.Orders))
	}
}

func (s *Service) countDrop(configID string, kind normalize.DropKind) {
	if s.Metrics != nil {
		s.Metrics.EventsDropped.WithLabelValues(configID, string(kind)).Inc()
	}
}

func (s *Service) countKeyFailure(configID, kind string, err error) {
	if s.Metrics != nil && perr.IsCode(err, perr.ErrorCodeKeyResolution) {
		s.Metrics.KeyResolutionFail.WithLabelValues(configID, kind).Inc()
	}
}
