package orderbook

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"polymaker/internal/core"
	"polymaker/internal/metrics"
	"polymaker/internal/safety"
)

// VenueClient is everything the engine needs from the remote venue. All
// calls are fallible and latency-bearing; the engine never retries inline.
type VenueClient interface {
	FetchOrders(ctx context.Context) ([]core.Order, error)
	FetchBalances(ctx context.Context) (core.Balances, error)
	PlaceOrder(ctx context.Context, order core.Order) (string, error)
	// CancelOrder reports core.ErrOrderNotFound when the order is already
	// gone; the engine treats that as success.
	CancelOrder(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context) error
}

// Quoter computes the desired order set for the current cycle. It must be
// pure: no I/O, no side effects, fast.
type Quoter interface {
	Quotes(open []core.Order, balances core.Balances, mid decimal.Decimal) []core.Order
}

// PriceSource supplies the current mid price the quoter prices against.
type PriceSource interface {
	MidPrice(ctx context.Context) (decimal.Decimal, error)
}

type Options struct {
	// RefreshInterval is the snapshot refresh cadence. Defaults to 5s.
	RefreshInterval time.Duration
	// SyncTimeout bounds a single Synchronize call. 0 means unbounded.
	SyncTimeout time.Duration
	// ShutdownTimeout bounds the final cancel-all. Defaults to 15s.
	ShutdownTimeout time.Duration
	// Breaker, when set, gates order placement after repeated failures.
	// Cancels are never gated so the keeper can always flatten.
	Breaker *safety.Breaker
}

const (
	defaultRefreshInterval = 5 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// Manager owns the authoritative view of the keeper's live orders and
// balances and converges them toward the quoter's desired set. One
// background refresher publishes snapshots; Synchronize runs serialized,
// at most one reconciliation in flight.
type Manager struct {
	venue  VenueClient
	quoter Quoter
	prices PriceSource
	store  *Store
	opts   Options

	syncMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	closed    atomic.Bool

	cancelRefresh context.CancelFunc
	refreshDone   chan struct{}
}

func New(venue VenueClient, quoter Quoter, prices PriceSource, opts Options) *Manager {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Manager{
		venue:       venue,
		quoter:      quoter,
		prices:      prices,
		store:       NewStore(),
		opts:        opts,
		refreshDone: make(chan struct{}),
	}
}

// Start launches the background refresher. It does not block; callers that
// need a snapshot first should WaitUntilReady.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelRefresh = cancel
		r := &refresher{venue: m.venue, store: m.store, interval: m.opts.RefreshInterval}
		go func() {
			defer close(m.refreshDone)
			r.run(ctx)
		}()
		log.Printf("level=INFO event=orderbook_started refresh_interval=%s", m.opts.RefreshInterval)
	})
}

// WaitUntilReady blocks until the first snapshot has been published or the
// timeout elapses, and reports whether a snapshot is available.
func (m *Manager) WaitUntilReady(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.store.Ready():
		return true
	case <-timer.C:
		return false
	}
}

// Current returns the latest snapshot, or (nil, false) before the first
// successful refresh cycle.
func (m *Manager) Current() (*Snapshot, bool) {
	return m.store.Current()
}

// Synchronize runs one reconciliation: diff the quoter's desired orders
// against the latest snapshot and issue the minimal cancel/place batch.
// Serialized, best effort; venue failures are logged, never propagated, so
// the caller's cadence is preserved. A no-op before the first snapshot.
func (m *Manager) Synchronize(ctx context.Context) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	if m.closed.Load() {
		return
	}
	if m.opts.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.SyncTimeout)
		defer cancel()
	}

	started := time.Now()
	snap, ok := m.store.Current()
	if !ok {
		log.Printf("level=DEBUG event=synchronize_skipped reason=%q", "no snapshot yet")
		return
	}
	metrics.SnapshotAge.Set(started.Sub(snap.TakenAt).Seconds())
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(started).Seconds())
	}()
	mid, err := m.prices.MidPrice(ctx)
	if err != nil {
		log.Printf("level=WARN event=synchronize_skipped reason=%q err=%q", "price unavailable", err.Error())
		return
	}

	desired := m.desiredOrders(snap, mid)
	p := buildPlan(snap.Orders, desired)
	if p.empty() {
		log.Printf("level=DEBUG event=synchronize_converged snapshot_seq=%d open=%d", snap.Seq, len(snap.Orders))
		return
	}
	cancelled, placed := m.executePlan(ctx, p)
	log.Printf(
		"level=INFO event=synchronized snapshot_seq=%d cancels=%d places=%d cancelled=%d placed=%d",
		snap.Seq, len(p.cancels), len(p.places), cancelled, placed,
	)
}

// desiredOrders asks the quoter for its target set and drops anything the
// venue would reject, normalizing prices onto the tick grid so the diff
// compares like with like.
func (m *Manager) desiredOrders(snap *Snapshot, mid decimal.Decimal) []core.Order {
	raw := m.quoter.Quotes(snap.Orders, snap.Balances, mid)
	desired := make([]core.Order, 0, len(raw))
	for _, order := range raw {
		normalized, err := core.NormalizeOrder(order)
		if err != nil {
			log.Printf("level=WARN event=quote_dropped err=%q order=%q", err.Error(), order.String())
			continue
		}
		desired = append(desired, normalized)
	}
	return desired
}

// executePlan cancels first, then places. Each call is independent: one
// failure is logged and skipped, the rest of the batch proceeds. The next
// cycle re-diffs against a fresh snapshot and picks up the leftovers.
func (m *Manager) executePlan(ctx context.Context, p plan) (cancelled, placed int) {
	for _, order := range p.cancels {
		err := m.venue.CancelOrder(ctx, order.ID)
		alreadyGone := errors.Is(err, core.ErrOrderNotFound)
		if alreadyGone {
			// Already gone is the outcome we wanted.
			err = nil
		}
		if m.opts.Breaker != nil {
			m.opts.Breaker.RecordCancel(err)
		}
		if err != nil {
			log.Printf("level=WARN event=cancel_failed order_id=%q err=%q", order.ID, err.Error())
			continue
		}
		if alreadyGone {
			log.Printf("level=DEBUG event=cancel_already_gone order_id=%q", order.ID)
		} else {
			metrics.OrdersCancelled.Inc()
		}
		cancelled++
	}

	if m.opts.Breaker != nil {
		if err := m.opts.Breaker.AllowPlace(); err != nil {
			log.Printf("level=WARN event=placements_paused skipped=%d err=%q", len(p.places), err.Error())
			return cancelled, 0
		}
	}
	for _, order := range p.places {
		id, err := m.venue.PlaceOrder(ctx, order)
		if m.opts.Breaker != nil {
			m.opts.Breaker.RecordPlace(err)
		}
		if err != nil {
			log.Printf("level=WARN event=place_failed order=%q err=%q", order.String(), err.Error())
			continue
		}
		metrics.OrdersPlaced.WithLabelValues(string(order.Side)).Inc()
		placed++
		log.Printf("level=DEBUG event=order_placed order_id=%q order=%q", id, order.String())
	}
	return cancelled, placed
}

// Shutdown stops the refresher, then flattens every resting order with a
// single bounded cancel-all. Leaving live orders behind an unmonitored
// keeper is the main risk this engine exists to avoid, so the cancel-all is
// attempted even when the refresher was mid-cycle or ctx is already done.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		m.closed.Store(true)
		if m.cancelRefresh != nil {
			m.cancelRefresh()
			select {
			case <-m.refreshDone:
			case <-ctx.Done():
				log.Printf("level=WARN event=refresher_stop_timeout err=%q", ctx.Err().Error())
			}
		}

		// Serialize with any in-flight Synchronize before flattening.
		m.syncMu.Lock()
		defer m.syncMu.Unlock()

		cancelCtx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
		defer cancel()
		if err := m.venue.CancelAll(cancelCtx); err != nil {
			log.Printf("level=ERROR event=cancel_all_failed err=%q", err.Error())
			return
		}
		log.Printf("level=INFO event=orderbook_shutdown orders_flattened=true")
	})
}
