package orderbook

import (
	"context"
	"log"
	"time"
)

// refresher keeps the snapshot store fresh on a fixed cadence. The interval
// is measured from the start of each cycle, so a slow fetch shortens the
// following sleep; an overrunning cycle starts the next one immediately
// without queueing skipped ticks.
type refresher struct {
	venue    VenueClient
	store    *Store
	interval time.Duration
}

func (r *refresher) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		r.cycle(ctx)
		wait := r.interval - time.Since(start)
		if wait <= 0 {
			continue
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// cycle fetches orders then balances and publishes a fresh snapshot. Any
// fetch failure abandons the cycle; the previous snapshot stays current and
// the loop retries on the next tick.
func (r *refresher) cycle(ctx context.Context) {
	orders, err := r.venue.FetchOrders(ctx)
	if err != nil {
		log.Printf("level=WARN event=refresh_orders_failed err=%q", err.Error())
		return
	}
	balances, err := r.venue.FetchBalances(ctx)
	if err != nil {
		log.Printf("level=WARN event=refresh_balances_failed err=%q", err.Error())
		return
	}
	r.store.Publish(Snapshot{
		Orders:   orders,
		Balances: balances,
		TakenAt:  time.Now().UTC(),
	})
	log.Printf("level=DEBUG event=snapshot_published orders=%d", len(orders))
}
