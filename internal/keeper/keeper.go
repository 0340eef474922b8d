// Package keeper wires the order book engine, the venue clients, and the
// chain into one long-running market-making process.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"polymaker/internal/alert"
	"polymaker/internal/metrics"
	"polymaker/internal/orderbook"
	"polymaker/internal/store"
)

var ErrNotReady = errors.New("order book not ready")

// ConnectionVerifier probes the venue before any trading starts.
type ConnectionVerifier interface {
	VerifyConnection(ctx context.Context) error
}

// Approver grants the exchange contract spending rights over the keeper's
// collateral and outcome tokens.
type Approver interface {
	EnsureApprovals(ctx context.Context) error
}

// StreamRunner feeds the price feed in the background until ctx is done.
type StreamRunner interface {
	Run(ctx context.Context)
}

// GasReader reports the keeper wallet's native token balance.
type GasReader interface {
	GasBalance(ctx context.Context) (decimal.Decimal, error)
}

type Keeper struct {
	Book        *orderbook.Manager
	CLOB        ConnectionVerifier
	Chain       Approver
	Gas         GasReader
	Stream      StreamRunner
	Store       *store.Store
	Alerts      alert.Alerter
	InstanceID  string
	ConditionID string
	// SyncInterval is the reconciliation cadence. Defaults to 5s.
	SyncInterval time.Duration
	// ReadyTimeout bounds the wait for the first snapshot. Defaults to 30s.
	ReadyTimeout time.Duration
	// GasCheckInterval is the gas balance observation cadence. Defaults
	// to 1m.
	GasCheckInterval time.Duration
	// LowGasThreshold triggers an alert when the native balance drops
	// below it. Defaults to 0.1.
	LowGasThreshold decimal.Decimal

	lowGasAlerted bool
}

// Run drives the keeper until ctx is cancelled: verify the venue, grant
// approvals, start the snapshot refresher, then reconcile on a fixed
// cadence. The book is always shut down on the way out so no resting
// orders survive the process.
func (k *Keeper) Run(ctx context.Context) (runErr error) {
	if k.SyncInterval <= 0 {
		k.SyncInterval = 5 * time.Second
	}
	if k.ReadyTimeout <= 0 {
		k.ReadyTimeout = 30 * time.Second
	}
	if k.GasCheckInterval <= 0 {
		k.GasCheckInterval = time.Minute
	}
	if k.LowGasThreshold.IsZero() {
		k.LowGasThreshold = decimal.RequireFromString("0.1")
	}
	startedAt := time.Now().UTC()

	k.persistRuntimeStatus("starting", startedAt, nil)
	defer func() {
		err := runErr
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		k.persistRuntimeStatus("stopped", startedAt, err)
	}()

	if err := k.CLOB.VerifyConnection(ctx); err != nil {
		k.alertImportant("venue_unreachable", map[string]string{"err": err.Error()})
		return fmt.Errorf("verify venue connection: %w", err)
	}
	if k.Chain != nil {
		if err := k.Chain.EnsureApprovals(ctx); err != nil {
			k.alertImportant("approvals_failed", map[string]string{"err": err.Error()})
			return fmt.Errorf("ensure approvals: %w", err)
		}
	}

	if k.Stream != nil {
		go k.Stream.Run(ctx)
	}

	k.Book.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		k.Book.Shutdown(shutdownCtx)
	}()

	if !k.Book.WaitUntilReady(k.ReadyTimeout) {
		k.alertImportant("startup_snapshot_timeout", map[string]string{
			"timeout": k.ReadyTimeout.String(),
		})
		return fmt.Errorf("%w after %s", ErrNotReady, k.ReadyTimeout)
	}
	k.persistRuntimeStatus("running", startedAt, nil)
	log.Printf("level=INFO event=keeper_running condition_id=%q sync_interval=%s", k.ConditionID, k.SyncInterval)

	k.observeGas(ctx)

	ticker := time.NewTicker(k.SyncInterval)
	defer ticker.Stop()
	gasTicker := time.NewTicker(k.GasCheckInterval)
	defer gasTicker.Stop()
	for {
		select {
		case <-ticker.C:
			k.Book.Synchronize(ctx)
			k.persistOpenOrders()
			k.persistRuntimeStatus("running", startedAt, nil)
		case <-gasTicker.C:
			k.observeGas(ctx)
		case <-ctx.Done():
			k.persistRuntimeStatus("stopping", startedAt, nil)
			return ctx.Err()
		}
	}
}

// observeGas records the native balance gauge and raises a one-shot alert
// when the wallet is running out of gas. The alert re-arms after a refill.
func (k *Keeper) observeGas(ctx context.Context) {
	if k.Gas == nil {
		return
	}
	balance, err := k.Gas.GasBalance(ctx)
	if err != nil {
		log.Printf("level=WARN event=gas_check_failed err=%q", err.Error())
		return
	}
	f, _ := balance.Float64()
	metrics.KeeperBalance.WithLabelValues("gas").Set(f)
	if balance.Cmp(k.LowGasThreshold) < 0 {
		if !k.lowGasAlerted {
			k.lowGasAlerted = true
			k.alertImportant("gas_balance_low", map[string]string{
				"balance":   balance.String(),
				"threshold": k.LowGasThreshold.String(),
			})
		}
		return
	}
	k.lowGasAlerted = false
}

func (k *Keeper) persistOpenOrders() {
	if k.Store == nil {
		return
	}
	snap, ok := k.Book.Current()
	if !ok {
		return
	}
	err := k.Store.SaveOpenOrders(store.OpenOrdersSnapshot{
		Seq:     snap.Seq,
		Orders:  snap.Orders,
		TakenAt: snap.TakenAt,
	})
	if err != nil {
		log.Printf("level=WARN event=open_orders_write_failed err=%q", err.Error())
	}
}

func (k *Keeper) persistRuntimeStatus(state string, startedAt time.Time, lastErr error) {
	if k.Store == nil {
		return
	}
	instanceID := k.InstanceID
	if instanceID == "" {
		instanceID = "default"
	}
	status := store.RuntimeStatus{
		InstanceID:  instanceID,
		ConditionID: k.ConditionID,
		PID:         os.Getpid(),
		State:       state,
		StartedAt:   startedAt,
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	if err := k.Store.SaveRuntimeStatus(status); err != nil {
		log.Printf("level=WARN event=runtime_status_write_failed err=%q", err.Error())
	}
}

func (k *Keeper) alertImportant(event string, fields map[string]string) {
	if k.Alerts == nil {
		return
	}
	k.Alerts.Important(event, fields)
}
