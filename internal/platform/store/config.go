package store

import (
	"strings"
	"time"

	"slaledger/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG PGConfig
	CH CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// boot: ping attempts and per-attempt budget
	ConnectRetries int           // <=0 -> 6
	PingTimeout    time.Duration // <=0 -> 3s
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled bool
	URL     string

	// ClientName and ClientTag end up in system.query_log
	ClientName string
	ClientTag  string
}

// FromEnv reads PGSQL_* and CLICKHOUSE_* under c. A backend is enabled
// when its DBURL is set
func FromEnv(c config.Conf, app string) Config {
	pg := c.Prefix("PGSQL_")
	chc := c.Prefix("CLICKHOUSE_")
	cfg := Config{
		AppName: app,
		PG: PGConfig{
			URL:            strings.TrimSpace(pg.MayString("DBURL", "")),
			MaxConns:       int32(pg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs:    pg.MayInt("SLOW_MS", 500),
			LogSQL:         pg.MayBool("LOG_SQL", false),
			ConnectRetries: pg.MayInt("CONNECT_RETRIES", 6),
			PingTimeout:    pg.MayDuration("PING_TIMEOUT", 3*time.Second),
		},
		CH: CHConfig{
			URL:        strings.TrimSpace(chc.MayString("DBURL", "")),
			ClientName: app,
			ClientTag:  chc.MayString("CLIENT_TAG", "run"),
		},
	}
	cfg.PG.Enabled = cfg.PG.URL != ""
	cfg.CH.Enabled = cfg.CH.URL != ""
	return cfg
}
