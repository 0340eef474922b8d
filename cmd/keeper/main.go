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

	"polymaker/internal/alert"
	"polymaker/internal/chain"
	"polymaker/internal/clob"
	"polymaker/internal/config"
	"polymaker/internal/keeper"
	"polymaker/internal/market"
	"polymaker/internal/metrics"
	"polymaker/internal/orderbook"
	"polymaker/internal/pricefeed"
	"polymaker/internal/safety"
	"polymaker/internal/store"
	"polymaker/internal/strategy"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	alerts := buildAlertManager(cfg)
	if alerts != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(filepath.Join(cfg.State.Dir, "keeper", cfg.InstanceID))
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

	mkt, err := buildMarket(ctx, client, cfg)
	if err != nil {
		fatal(err.Error())
	}

	contracts, err := chain.Dial(ctx, chain.Options{
		RPCURL:             cfg.Chain.RPCURL,
		PrivateKeyHex:      cfg.Chain.PrivateKey,
		CollateralAddress:  cfg.Chain.CollateralAddress,
		ConditionalAddress: cfg.Chain.ConditionalAddress,
		ExchangeAddress:    cfg.Chain.ExchangeAddress,
	})
	if err != nil {
		fatal(err.Error())
	}
	defer contracts.Close()

	var stream *clob.MarketStream
	if cfg.CLOB.WSURL != "" {
		stream = clob.NewMarketStream(cfg.CLOB.WSURL, mkt.TokenIDs())
	}
	feed := pricefeed.NewCLOBFeed(client, mkt, stream, time.Now().UnixNano())

	breaker := safety.NewBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.MaxPlaceFailures,
		cfg.CircuitBreaker.MaxCancelFailures,
	)
	breaker.SetAlerter(alerts)

	bands := strategy.NewBands(strategy.BandsConfig{
		Spread: cfg.Strategy.Bands.Spread.Decimal,
		Size:   cfg.Strategy.Bands.Size.Decimal,
		Levels: cfg.Strategy.Bands.Levels,
	})

	venue := keeper.NewVenue(client, contracts, mkt)
	book := orderbook.New(venue, bands, feed, orderbook.Options{
		RefreshInterval: time.Duration(cfg.Sync.RefreshIntervalSec) * time.Second,
		SyncTimeout:     time.Duration(cfg.Sync.ReconciliationTimeoutSec) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Sync.ShutdownCancelTimeoutSec) * time.Second,
		Breaker:         breaker,
	})

	k := &keeper.Keeper{
		Book:         book,
		CLOB:         client,
		Chain:        contracts,
		Gas:          contracts,
		Store:        st,
		Alerts:       alerts,
		InstanceID:   cfg.InstanceID,
		ConditionID:  mkt.ConditionID,
		SyncInterval: time.Duration(cfg.Sync.SyncIntervalSec) * time.Second,
		ReadyTimeout: time.Duration(cfg.Sync.ReadyTimeoutSec) * time.Second,
	}
	if stream != nil {
		k.Stream = stream
	}
	if err := k.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fatal(err.Error())
	}
}

func buildMarket(ctx context.Context, client *clob.Client, cfg config.Config) (*market.Market, error) {
	if cfg.Market.TokenAID != "" {
		return market.New(cfg.Market.ConditionID, cfg.Market.TokenAID, cfg.Market.TokenBID)
	}
	return market.Discover(ctx, client, cfg.Market.ConditionID)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func buildAlertManager(cfg config.Config) *alert.Manager {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier := alert.NewTelegramNotifier(
		tg.BotToken,
		tg.ChatID,
		tg.APIBaseURL,
		time.Duration(tg.TimeoutSec)*time.Second,
	)
	return alert.NewManager(cfg.Market.ConditionID, notifier)
}
