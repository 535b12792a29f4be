// Package store opens the optional stage mirror backends: postgres for the
// upserted stage table and clickhouse for append-only stage facts
package store

import (
	"context"
	"errors"

	"slaledger/internal/platform/logger"
)

// Store holds the opened backends. A backend left out of Config stays nil,
// and callers treat nil as "mirror disabled"
type Store struct {
	Log logger.Logger

	PG TxRunner
	CH Clickhouse
}

// Row is the scan half of a single-row result
type Row interface {
	Scan(dest ...any) error
}

// Rows is a forward-only result set
type Rows interface {
	Row
	Next() bool
	Err() error
	Close()
	Columns() []string
}

// CommandTag reports what a write statement did
type CommandTag interface {
	String() string
	RowsAffected() int64
}

// RowQuerier is the sql surface repos are written against
type RowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// TxRunner is a RowQuerier that can also run fn in one transaction
type TxRunner interface {
	RowQuerier
	Tx(ctx context.Context, fn func(q RowQuerier) error) error
}

// Clickhouse is the columnar seam; Insert takes rows as [][]any
type Clickhouse interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Insert(ctx context.Context, table string, data any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Close() error
}

// Pinger is implemented by both backend adapters; the report server's
// health check probes through it
type Pinger interface{ Ping(context.Context) error }

// Open connects every backend enabled in cfg. Postgres must answer a ping
// before Open returns; clickhouse dials lazily
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	s.Log = s.Log.With().Str("component", "store").Logger()

	if cfg.PG.Enabled {
		p, err := openPG(ctx, cfg, s)
		if err != nil {
			return nil, err
		}
		s.PG = p
	}
	if cfg.CH.Enabled {
		c, err := openCH(ctx, cfg, s)
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		s.CH = c
	}
	return s, nil
}

// Close releases every opened backend; a nil Store is a no-op
func (s *Store) Close(_ context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.CH != nil {
		errs = append(errs, s.CH.Close())
	}
	if c, ok := s.PG.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
