package service

import (
	"context"
	"sync"

	"slaledger/internal/core/normalize"
	"slaledger/internal/core/order"
	"slaledger/internal/core/stages"
	"slaledger/internal/core/watermark"
	"slaledger/internal/platform/logger"
)

// outcome is the per-order result of the pool; slot i belongs to orders[i]
type outcome struct {
	OrderID string
	Stages  []stages.Stage
	Dropped []normalize.DropReason
}

// compute normalizes and stages every order on a bounded pool. Results keep
// input order so accumulation output is deterministic
func (s *Service) compute(ctx context.Context, orders []order.Order, wm watermark.Set, b stages.Builder, n *normalize.Normalizer) ([]outcome, error) {
	workers := s.Cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	out := make([]outcome, len(orders))

	sem := make(chan struct{}, workers)
	wg := sync.WaitGroup{}

	for i := range orders {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem; wg.Done() }()
			o := orders[i]
			id := o.ID.String()
			res := n.Normalize(o.RawEvents(), wm.For(id))
			if len(res.Dropped) > 0 {
				l := logger.C(logger.WithOrder(ctx, id))
				for _, d := range res.Dropped {
					l.Debug().Err(d.Err).Int("index", d.Index).Str("reason", string(d.Kind)).Msg("history entry dropped")
				}
			}
			out[i] = outcome{OrderID: id, Stages: b.Build(id, res), Dropped: res.Dropped}
		}(i)
	}
	wg.Wait()
	return out, ctx.Err()
}
