package store

import "slaledger/internal/platform/logger"

// Option adjusts a Store before its backends open
type Option func(*Store) error

// WithLogger sets the logger used for connection retries and SQL tracing
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log
		return nil
	}
}
