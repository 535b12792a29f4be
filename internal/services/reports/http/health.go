package http

import (
	stdctx "context"
	stdhttp "net/http"
	"time"

	"slaledger/internal/modkit/httpkit"
)

// Pinger is satisfied by adapters that expose Ping
type Pinger interface {
	Ping(stdctx.Context) error
}

// HealthDeps are the health handler dependencies; nil stores are skipped
type HealthDeps struct {
	ServiceName string
	StartedAt   time.Time
	PG          any
	CH          any
}

// HealthCheck describes a single dependency check
type HealthCheck struct {
	Name   string `json:"name"   example:"pg"`
	Status string `json:"status" example:"ok"` // ok fail skipped unknown
	Error  string `json:"error,omitempty"`
}

// HealthResponse summarizes liveness and store readiness
type HealthResponse struct {
	Status  string        `json:"status"  example:"ok"` // ok degraded
	Service string        `json:"service" example:"slaledger"`
	Started string        `json:"started" example:"2025-09-03T13:00:00Z"`
	Uptime  int64         `json:"uptime"  example:"300"`
	Checks  []HealthCheck `json:"checks"`
}

// RegisterHealth mounts /healthz. A failing store ping answers 503
func RegisterHealth(r httpkit.Router, d HealthDeps) {
	httpkit.Get(r, "/healthz", func(req *stdhttp.Request) (any, error) {
		ctx, cancel := stdctx.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		check := func(name string, c any) HealthCheck {
			if c == nil {
				return HealthCheck{Name: name, Status: "skipped"}
			}
			p, ok := c.(Pinger)
			if !ok {
				return HealthCheck{Name: name, Status: "unknown"}
			}
			if err := p.Ping(ctx); err != nil {
				return HealthCheck{Name: name, Status: "fail", Error: err.Error()}
			}
			return HealthCheck{Name: name, Status: "ok"}
		}

		checks := []HealthCheck{check("pg", d.PG), check("ch", d.CH)}
		status := "ok"
		for _, c := range checks {
			if c.Status == "fail" {
				status = "degraded"
			}
		}
		out := HealthResponse{
			Status:  status,
			Service: d.ServiceName,
			Started: d.StartedAt.UTC().Format(time.RFC3339),
			Uptime:  int64(time.Since(d.StartedAt) / time.Second),
			Checks:  checks,
		}
		if status != "ok" {
			return httpkit.Response{Status: stdhttp.StatusServiceUnavailable, Body: out}, nil
		}
		return out, nil
	})
}
