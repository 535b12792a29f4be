// Package config reads settings from environment variables under a prefix
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"slaledger/internal/platform/logger"
	"slaledger/internal/platform/validate"
)

// Conf is a namespaced view over the environment, e.g. New().Prefix("SLA_")
type Conf struct{ prefix string }

// New creates a root Conf (no prefix)
func New() Conf { return Conf{} }

// Prefix returns a child Conf, e.g. cfg.Prefix("SLA_").Prefix("SOURCE_")
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

// lookup returns the trimmed value of key; blank counts as unset
func (c Conf) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(c.key(key)))
	return v, v != ""
}

// fallback parses the value of key with parse, logging and returning def
// when the value does not parse
func fallback[T any](c Conf, key string, def T, parse func(string) (T, error)) T {
	s, ok := c.lookup(key)
	if !ok {
		return def
	}
	v, err := parse(s)
	if err != nil {
		logger.Get().Warn().Str("key", c.key(key)).Str("value", s).Interface("default", def).
			Msg("invalid config value; using default")
		return def
	}
	return v
}

// MayString returns the value or def if missing/empty
func (c Conf) MayString(key, def string) string {
	if v, ok := c.lookup(key); ok {
		return v
	}
	return def
}

func (c Conf) MayInt(key string, def int) int { return fallback(c, key, def, strconv.Atoi) }

func (c Conf) MayBool(key string, def bool) bool { return fallback(c, key, def, strconv.ParseBool) }

// MayDuration accepts Go durations such as 250ms or 1m30s
func (c Conf) MayDuration(key string, def time.Duration) time.Duration {
	return fallback(c, key, def, time.ParseDuration)
}

// MayClock parses a wall clock "HH:MM[:SS]" into an offset from midnight.
// A malformed clock panics: a schedule must not silently move
func (c Conf) MayClock(key string, def time.Duration) time.Duration {
	s, ok := c.lookup(key)
	if !ok {
		return def
	}
	d, valid := validate.ParseClock(s)
	if !valid || d >= 24*time.Hour {
		logger.Get().Panic().Str("key", c.key(key)).Str("value", s).Msg("invalid clock; expected HH:MM")
	}
	return d
}
