package service

import (
	"context"
	"strings"
	"time"

	"slaledger/internal/platform/logger"
	ptime "slaledger/internal/platform/time"
	"slaledger/internal/services/slarun/domain"
)

// NextRun returns the first instant strictly after now whose wall clock in
// loc is at (offset from midnight)
func NextRun(now time.Time, at time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(at)
	if !next.After(local) {
		next = time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(at)
	}
	return next
}

// Daily runs the manifest once a day at the given wall clock, in the
// manifest zone when it sets one, until ctx is cancelled. A failed run is
// logged and the schedule continues
func (s *Service) Daily(ctx context.Context, m domain.Manifest, at time.Duration, onDone func(domain.RunSummary)) error {
	loc := s.Cfg.Loc
	if strings.TrimSpace(m.Timezone) != "" {
		l, err := ptime.LoadZone(m.Timezone)
		if err != nil {
			return err
		}
		loc = l
	}
	log := logger.Named("schedule")
	for {
		next := NextRun(s.now(), at, loc)
		wait := next.Sub(s.now())
		log.Info().Time("next_run", next).Dur("in", wait).Msg("waiting for next run")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		sum, err := s.Run(ctx, m)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("scheduled run failed")
			continue
		}
		if onDone != nil {
			onDone(sum)
		}
	}
}
