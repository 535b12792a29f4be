package module

import (
	"time"

	"slaledger/internal/adapters/orders/zapform"
	"slaledger/internal/platform/config"
	"slaledger/internal/platform/logger"
	ptime "slaledger/internal/platform/time"
)

// DefaultZone is the calendar zone when SLA_TIMEZONE is unset
const DefaultZone = "America/Sao_Paulo"

// Options holds configuration options for the sla run service
type Options struct {
	Loc                 *time.Location
	OutputDir           string
	Workers             int
	IntegrationPrefix   string
	Precision           time.Duration
	WatermarkFromMirror bool
	MirrorTimeout       time.Duration
	MetricsFile         string
	DailyAt             time.Duration

	// Order API
	SourceBaseURL     string
	SourceTimeout     time.Duration
	SourceLogins      []zapform.Credential
	SourceRotateEvery int
	SourceRetries     int
}

// FromConfig reads the run options from config with SLA_ prefix
func FromConfig(cfg config.Conf) Options {
	sla := cfg.Prefix("SLA_")
	src := sla.Prefix("SOURCE_")
	return Options{
		Loc:                 zone(sla.MayString("TIMEZONE", DefaultZone)),
		OutputDir:           sla.MayString("OUTPUT_DIR", "./out"),
		Workers:             sla.MayInt("WORKERS", 4),
		IntegrationPrefix:   sla.MayString("INTEGRATION_PREFIX", "integracao"),
		Precision:           sla.MayDuration("PRECISION", time.Second),
		WatermarkFromMirror: sla.MayBool("WATERMARK_FROM_MIRROR", false),
		MirrorTimeout:       sla.MayDuration("MIRROR_TIMEOUT", time.Minute),
		MetricsFile:         sla.MayString("METRICS_FILE", ""),
		DailyAt:             sla.MayClock("DAILY_AT", 0),

		SourceBaseURL:     src.MayString("BASE_URL", ""),
		SourceTimeout:     src.MayDuration("TIMEOUT", 30*time.Second),
		SourceLogins:      zapform.ParseCredentials(src.MayString("LOGINS", "")),
		SourceRotateEvery: src.MayInt("ROTATE_EVERY", 100),
		SourceRetries:     src.MayInt("RETRIES", 3),
	}
}

// zone falls back to UTC on an unknown name
func zone(name string) *time.Location {
	loc, err := ptime.LoadZone(name)
	if err != nil {
		logger.Get().Warn().Err(err).Str("zone", name).Msg("unknown SLA_TIMEZONE; using UTC")
		return time.UTC
	}
	return loc
}
