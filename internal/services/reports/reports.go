// Package reports provides the read-only report server
package reports

import (
	"net/http"
	"time"

	"slaledger/internal/modkit"
	"slaledger/internal/modkit/httpkit"
	"slaledger/internal/modkit/module"
	"slaledger/internal/platform/config"
	"slaledger/internal/platform/metrics"
	phttp "slaledger/internal/platform/net/http"
	"slaledger/internal/platform/store"

	reportshttp "slaledger/internal/services/reports/http"
	reportsmod "slaledger/internal/services/reports/module"
	slarunmod "slaledger/internal/services/slarun/module"
)

// Options are the report server options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	EnableProfiler bool
	StartedAt      time.Time
}

// Mount builds the run module for its read ports and mounts /healthz,
// /metrics and the /v1 report routes on r. The run ports are returned so a
// caller can schedule runs in the same process
func Mount(r phttp.Router, opt Options) slarunmod.Ports {
	deps := modkit.Deps{Cfg: opt.Config}
	if opt.Store != nil {
		deps.PG, deps.CH = opt.Store.PG, opt.Store.CH
	}
	if opt.StartedAt.IsZero() {
		opt.StartedAt = time.Now()
	}

	runMod := slarunmod.New(deps)
	run := module.MustPortsOf[slarunmod.Ports](runMod)

	mods := []module.Module{
		runMod,
		reportsmod.New(deps, modkit.WithPorts(reportsmod.Ports{
			Loader:     run.Service,
			Watermarks: run.Runner,
			Loc:        runMod.Options().Loc,
		})),
	}

	stack := httpkit.CommonStack()
	r.Group(func(g phttp.Router) {
		g.Use(stack...)
		reportshttp.RegisterHealth(g, reportshttp.HealthDeps{
			ServiceName: "slaledger",
			StartedAt:   opt.StartedAt,
			PG:          deps.PG,
			CH:          deps.CH,
		})
		g.Handle("/metrics", metricsHandler(run.Metrics))
		phttp.MountProfiler(g, "/debug", opt.EnableProfiler)

		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(g)
		}
	})
	return run
}

func metricsHandler(m *metrics.Metrics) http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.Handler()
}
