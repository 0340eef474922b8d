package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"polymaker/internal/clob"
	"polymaker/internal/config"
	"polymaker/internal/metrics"
	"polymaker/internal/scoring"
	"polymaker/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(filepath.Join(cfg.State.Dir, "scorer"))
	if err != nil {
		fatal(err.Error())
	}

	if cfg.Observability.MetricsPort > 0 {
		srv := metrics.StartServer(cfg.Observability.MetricsPort)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "close metrics server failed: %v\n", err)
			}
		}()
	}

	client := clob.NewClient(clob.Options{
		Host: cfg.CLOB.Host,
		Credentials: clob.Credentials{
			Address:    cfg.CLOB.Address,
			APIKey:     cfg.CLOB.APIKey,
			Passphrase: cfg.CLOB.Passphrase,
		},
		HTTPTimeout: time.Duration(cfg.CLOB.HTTPTimeoutSec) * time.Second,
	})
	gamma := clob.NewGammaClient(cfg.Gamma.BaseURL, time.Duration(cfg.Gamma.HTTPTimeoutSec)*time.Second)

	if err := client.VerifyConnection(ctx); err != nil {
		fatal(err.Error())
	}

	scorer := scoring.New(client, gamma, st, scoring.Options{
		RefreshMarkets: time.Duration(cfg.Scoring.RefreshMarketsSec) * time.Second,
		Rescore:        time.Duration(cfg.Scoring.RescoreSec) * time.Second,
		Cleanup:        time.Duration(cfg.Scoring.CleanupSec) * time.Second,
		MaxMarkets:     cfg.Scoring.MaxMarkets,
	})
	if err := scorer.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
