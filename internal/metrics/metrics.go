// Package metrics exposes the keeper's prometheus collectors and the HTTP
// endpoint that serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "market_maker"

var (
	CLOBRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "clob_requests_latency",
		Help:      "Latency of CLOB API requests.",
	}, []string{"method", "status"})

	ChainRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_requests_total",
		Help:      "Chain call executions.",
	}, []string{"method", "status"})

	KeeperBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "balance_amount",
		Help:      "Keeper balance per asset.",
	}, []string{"asset"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_placed_total",
		Help:      "Orders placed by the keeper.",
	}, []string{"side"})

	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_cancelled_total",
		Help:      "Orders cancelled by the keeper.",
	})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of a single reconciliation pass.",
	})

	SnapshotAge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_age_seconds",
		Help:      "Age of the snapshot observed by the last reconciliation.",
	})

	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_markets",
		Help:      "Markets tracked by the scorer.",
	})
)

// Server serves /metrics on the configured port.
type Server struct {
	srv *http.Server
}

func StartServer(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("level=ERROR event=metrics_server_failed err=%q", err.Error())
		}
	}()
	log.Printf("level=INFO event=metrics_server_started port=%d", port)
	return &Server{srv: srv}
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ObserveRequest records one venue request outcome in the latency
// histogram, labelled by method and status.
func ObserveRequest(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CLOBRequestLatency.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}
