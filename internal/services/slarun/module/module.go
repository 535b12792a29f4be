// Package module provides the sla run module implementation
package module

import (
	"sync"

	"slaledger/internal/adapters/orders/jsonfile"
	"slaledger/internal/adapters/orders/zapform"
	"slaledger/internal/modkit"
	perr "slaledger/internal/platform/errors"
	"slaledger/internal/platform/metrics"
	phttp "slaledger/internal/platform/net/http"
	"slaledger/internal/services/slarun/domain"
	"slaledger/internal/services/slarun/repo"
	"slaledger/internal/services/slarun/service"
)

// Ports defines the sla run module ports
type Ports struct {
	Runner  domain.RunnerPort
	Service *service.Service
	Metrics *metrics.Metrics
}

// Module implements the sla run module
type Module struct {
	deps  modkit.Deps
	opts  Options
	ports Ports
}

// New constructs the sla run module from deps.Cfg. The stage mirror is
// wired when deps.PG is set and the fact writer when deps.CH is set.
// It does not mount any routes
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)
	m := metrics.New(metrics.DefaultConfig())

	svc := service.New(Sources(opts, m), service.Config{
		Loc:                 opts.Loc,
		OutputDir:           opts.OutputDir,
		Workers:             opts.Workers,
		IntegrationPrefix:   opts.IntegrationPrefix,
		Precision:           opts.Precision,
		WatermarkFromMirror: opts.WatermarkFromMirror,
	}).WithMetrics(m)

	if deps.PG != nil {
		svc.WithMirror(repo.NewTxMirror(deps.PG, opts.MirrorTimeout))
	}
	if deps.CH != nil {
		svc.WithFacts(repo.NewFacts(deps.CH))
	}

	return &Module{
		deps:  deps,
		opts:  opts,
		ports: Ports{Runner: svc, Service: svc, Metrics: m},
	}
}

// Name returns the module name
func (m *Module) Name() string { return "slarun" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Options returns the resolved options
func (m *Module) Options() Options { return m.opts }

// Prefix returns the module prefix (none)
func (m *Module) Prefix() string { return "" }

// MountRoutes is a no-op as slarun has no routes
func (m *Module) MountRoutes(_ phttp.Router) {}

// Sources builds the per configuration source factory. File sources read
// the manifest paths; api sources share one client so the credential
// rotation and the breaker span the whole run
func Sources(opts Options, m *metrics.Metrics) domain.SourceFactory {
	var (
		once   sync.Once
		client *zapform.Client
	)
	api := func() *zapform.Client {
		once.Do(func() {
			zo := zapform.Options{
				BaseURL:     opts.SourceBaseURL,
				Timeout:     opts.SourceTimeout,
				Logins:      opts.SourceLogins,
				RotateEvery: opts.SourceRotateEvery,
				MaxRetries:  opts.SourceRetries,
			}
			if m != nil {
				zo.OnRequest = m.RecordSourceRequest
				zo.OnBreaker = m.SetBreakerState
				zo.OnRotate = m.CredentialRotations.Inc
			}
			client = zapform.NewClient(zo)
		})
		return client
	}

	return func(spec domain.ConfigSpec) (domain.OrderSource, error) {
		switch spec.Source.Kind {
		case domain.SourceFile:
			if spec.Source.Path == "" {
				return nil, perr.WithField(perr.ConfigParsef("configuration %s: file source without a path", spec.ID), "source.path")
			}
			return jsonfile.New(spec.Source.Path, spec.WorkflowPath), nil
		case domain.SourceAPI, "":
			if len(opts.SourceLogins) == 0 {
				return nil, perr.WithField(perr.ConfigParsef("configuration %s: api source needs SLA_SOURCE_LOGINS", spec.ID), "source.kind")
			}
			return api(), nil
		default:
			return nil, perr.WithField(perr.ConfigParsef("configuration %s: unknown source kind %q", spec.ID, spec.Source.Kind), "source.kind")
		}
	}
}
