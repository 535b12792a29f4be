// Package module wires reports into the server using modkit
package module

import (
	"net/http"
	"time"

	modkit "slaledger/internal/modkit"
	"slaledger/internal/modkit/httpkit"
	str "slaledger/internal/platform/strings"
	"slaledger/internal/services/reports/domain"
	reportshttp "slaledger/internal/services/reports/http"
	reportssvc "slaledger/internal/services/reports/service"
)

// Ports are what reports needs from the run module, injected with modkit.WithPorts
type Ports struct {
	Loader     domain.Loader
	Watermarks domain.WatermarkSource
	Loc        *time.Location
}

// Module implements the reports module
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws   []func(http.Handler) http.Handler
	ports domain.ServicePort

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the reports module. It panics without injected Ports
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("reports"), modkit.WithPrefix("/v1")}, opts...)...)

	in, ok := b.Ports.(Ports)
	if !ok {
		panic("reports module requires modkit.WithPorts(module.Ports{...})")
	}
	svc := reportssvc.New(in.Loader, in.Watermarks, in.Loc)

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
		ports:     svc,
	}

	external := b.Register
	m.register = func(r httpkit.Router) {
		reportshttp.Register(r, svc)
		if external != nil {
			external(r)
		}
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.prefix, m.mws, func(rr httpkit.Router) {
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		m.register(rr)
	})
}

// Ports returns the report service port
func (m *Module) Ports() any { return m.ports }

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
