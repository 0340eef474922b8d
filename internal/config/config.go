package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type StrategyKind string

const (
	StrategyBands StrategyKind = "bands"
)

type Config struct {
	InstanceID     string               `yaml:"instance_id"`
	Market         MarketConfig         `yaml:"market"`
	CLOB           CLOBConfig           `yaml:"clob"`
	Gamma          GammaConfig          `yaml:"gamma"`
	Chain          ChainConfig          `yaml:"chain"`
	Sync           SyncConfig           `yaml:"sync"`
	Strategy       StrategyConfig       `yaml:"strategy"`
	Scoring        ScoringConfig        `yaml:"scoring"`
	State          StateConfig          `yaml:"state"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

type MarketConfig struct {
	ConditionID string `yaml:"condition_id"`
	TokenAID    string `yaml:"token_a_id"`
	TokenBID    string `yaml:"token_b_id"`
}

type CLOBConfig struct {
	Host           string `yaml:"host"`
	WSURL          string `yaml:"ws_url"`
	Address        string `yaml:"address"`
	APIKey         string `yaml:"api_key"`
	Passphrase     string `yaml:"passphrase"`
	HTTPTimeoutSec int64  `yaml:"http_timeout_sec"`
}

type GammaConfig struct {
	BaseURL        string `yaml:"base_url"`
	HTTPTimeoutSec int64  `yaml:"http_timeout_sec"`
}

type ChainConfig struct {
	RPCURL             string `yaml:"rpc_url"`
	PrivateKey         string `yaml:"private_key"`
	CollateralAddress  string `yaml:"collateral_address"`
	ConditionalAddress string `yaml:"conditional_address"`
	ExchangeAddress    string `yaml:"exchange_address"`
}

type SyncConfig struct {
	RefreshIntervalSec       int64 `yaml:"refresh_interval_sec"`
	SyncIntervalSec          int64 `yaml:"sync_interval_sec"`
	ReadyTimeoutSec          int64 `yaml:"ready_timeout_sec"`
	ReconciliationTimeoutSec int64 `yaml:"reconciliation_timeout_sec"`
	ShutdownCancelTimeoutSec int64 `yaml:"shutdown_cancel_timeout_sec"`
}

type StrategyConfig struct {
	Kind  StrategyKind `yaml:"kind"`
	Bands BandsConfig  `yaml:"bands"`
}

type BandsConfig struct {
	Spread Decimal `yaml:"spread"`
	Size   Decimal `yaml:"size"`
	Levels int     `yaml:"levels"`
}

type ScoringConfig struct {
	RefreshMarketsSec int64 `yaml:"refresh_markets_sec"`
	RescoreSec        int64 `yaml:"rescore_sec"`
	CleanupSec        int64 `yaml:"cleanup_sec"`
	MaxMarkets        int   `yaml:"max_markets"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

type CircuitBreakerConfig struct {
	Enabled           bool `yaml:"enabled"`
	MaxPlaceFailures  int  `yaml:"max_place_failures"`
	MaxCancelFailures int  `yaml:"max_cancel_failures"`
}

type ObservabilityConfig struct {
	MetricsPort int            `yaml:"metrics_port"`
	Telegram    TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.InstanceID = strings.ToLower(strings.TrimSpace(c.InstanceID))
	c.Market.ConditionID = strings.TrimSpace(c.Market.ConditionID)
	c.Market.TokenAID = strings.TrimSpace(c.Market.TokenAID)
	c.Market.TokenBID = strings.TrimSpace(c.Market.TokenBID)
	c.CLOB.Host = strings.TrimRight(strings.TrimSpace(c.CLOB.Host), "/")
	c.CLOB.WSURL = strings.TrimSpace(c.CLOB.WSURL)
	c.CLOB.Address = strings.TrimSpace(c.CLOB.Address)
	c.CLOB.APIKey = strings.TrimSpace(c.CLOB.APIKey)
	c.CLOB.Passphrase = strings.TrimSpace(c.CLOB.Passphrase)
	c.Gamma.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gamma.BaseURL), "/")
	c.Chain.RPCURL = strings.TrimSpace(c.Chain.RPCURL)
	c.Chain.PrivateKey = strings.TrimPrefix(strings.TrimSpace(c.Chain.PrivateKey), "0x")
	c.Chain.CollateralAddress = strings.TrimSpace(c.Chain.CollateralAddress)
	c.Chain.ConditionalAddress = strings.TrimSpace(c.Chain.ConditionalAddress)
	c.Chain.ExchangeAddress = strings.TrimSpace(c.Chain.ExchangeAddress)
	c.Strategy.Kind = StrategyKind(strings.ToLower(strings.TrimSpace(string(c.Strategy.Kind))))
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.InstanceID == "" {
		c.InstanceID = "default"
	}
	if c.CLOB.HTTPTimeoutSec == 0 {
		c.CLOB.HTTPTimeoutSec = 15
	}
	if c.Gamma.BaseURL == "" {
		c.Gamma.BaseURL = "https://gamma-api.polymarket.com"
	}
	if c.Gamma.HTTPTimeoutSec == 0 {
		c.Gamma.HTTPTimeoutSec = 15
	}
	if c.Sync.RefreshIntervalSec == 0 {
		c.Sync.RefreshIntervalSec = 5
	}
	if c.Sync.SyncIntervalSec == 0 {
		c.Sync.SyncIntervalSec = 5
	}
	if c.Sync.ReadyTimeoutSec == 0 {
		c.Sync.ReadyTimeoutSec = 30
	}
	if c.Sync.ShutdownCancelTimeoutSec == 0 {
		c.Sync.ShutdownCancelTimeoutSec = 15
	}
	if c.Strategy.Kind == "" {
		c.Strategy.Kind = StrategyBands
	}
	if c.Strategy.Bands.Levels == 0 {
		c.Strategy.Bands.Levels = 1
	}
	if c.Scoring.RefreshMarketsSec == 0 {
		c.Scoring.RefreshMarketsSec = 600
	}
	if c.Scoring.RescoreSec == 0 {
		c.Scoring.RescoreSec = 300
	}
	if c.Scoring.CleanupSec == 0 {
		c.Scoring.CleanupSec = 3600
	}
	if c.Scoring.MaxMarkets == 0 {
		c.Scoring.MaxMarkets = 100
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.CircuitBreaker.MaxPlaceFailures == 0 {
		c.CircuitBreaker.MaxPlaceFailures = 5
	}
	if c.CircuitBreaker.MaxCancelFailures == 0 {
		c.CircuitBreaker.MaxCancelFailures = 5
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
}

func (c Config) Validate() error {
	if !isValidInstanceID(c.InstanceID) {
		return fmt.Errorf("instance_id must match [a-z0-9_-], length 1..24")
	}
	if c.Market.ConditionID == "" {
		return fmt.Errorf("market condition_id is required")
	}
	if c.Market.TokenAID != "" || c.Market.TokenBID != "" {
		if c.Market.TokenAID == "" || c.Market.TokenBID == "" {
			return fmt.Errorf("market token_a_id and token_b_id must be set together")
		}
		if c.Market.TokenAID == c.Market.TokenBID {
			return fmt.Errorf("market token ids must differ")
		}
	}
	if c.CLOB.Host == "" {
		return fmt.Errorf("clob host is required")
	}
	if err := validateURL(c.CLOB.Host, "http", "https"); err != nil {
		return fmt.Errorf("clob host %v", err)
	}
	if c.CLOB.WSURL != "" {
		if err := validateURL(c.CLOB.WSURL, "ws", "wss"); err != nil {
			return fmt.Errorf("clob ws_url %v", err)
		}
	}
	if c.CLOB.Address == "" || c.CLOB.APIKey == "" || c.CLOB.Passphrase == "" {
		return fmt.Errorf("clob address/api_key/passphrase are required")
	}
	if c.CLOB.HTTPTimeoutSec < 1 || c.CLOB.HTTPTimeoutSec > 120 {
		return fmt.Errorf("clob http_timeout_sec must be between 1 and 120")
	}
	if err := validateURL(c.Gamma.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("gamma base_url %v", err)
	}
	if c.Gamma.HTTPTimeoutSec < 1 || c.Gamma.HTTPTimeoutSec > 120 {
		return fmt.Errorf("gamma http_timeout_sec must be between 1 and 120")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain rpc_url is required")
	}
	if c.Chain.PrivateKey == "" {
		return fmt.Errorf("chain private_key is required")
	}
	if c.Chain.CollateralAddress == "" || c.Chain.ConditionalAddress == "" || c.Chain.ExchangeAddress == "" {
		return fmt.Errorf("chain collateral/conditional/exchange addresses are required")
	}
	if c.Sync.RefreshIntervalSec < 1 || c.Sync.RefreshIntervalSec > 3600 {
		return fmt.Errorf("sync refresh_interval_sec must be between 1 and 3600")
	}
	if c.Sync.SyncIntervalSec < 1 || c.Sync.SyncIntervalSec > 3600 {
		return fmt.Errorf("sync sync_interval_sec must be between 1 and 3600")
	}
	if c.Sync.ReadyTimeoutSec < 1 || c.Sync.ReadyTimeoutSec > 600 {
		return fmt.Errorf("sync ready_timeout_sec must be between 1 and 600")
	}
	if c.Sync.ReconciliationTimeoutSec < 0 || c.Sync.ReconciliationTimeoutSec > 600 {
		return fmt.Errorf("sync reconciliation_timeout_sec must be between 0 and 600")
	}
	if c.Sync.ShutdownCancelTimeoutSec < 1 || c.Sync.ShutdownCancelTimeoutSec > 600 {
		return fmt.Errorf("sync shutdown_cancel_timeout_sec must be between 1 and 600")
	}
	if c.Strategy.Kind != StrategyBands {
		return fmt.Errorf("strategy kind must be bands")
	}
	if c.Strategy.Bands.Spread.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("strategy bands.spread must be > 0")
	}
	if c.Strategy.Bands.Spread.Cmp(decimal.NewFromInt(1)) >= 0 {
		return fmt.Errorf("strategy bands.spread must be < 1")
	}
	if c.Strategy.Bands.Size.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("strategy bands.size must be > 0")
	}
	if c.Strategy.Bands.Levels < 1 || c.Strategy.Bands.Levels > 20 {
		return fmt.Errorf("strategy bands.levels must be between 1 and 20")
	}
	if c.Scoring.RefreshMarketsSec < 1 || c.Scoring.RefreshMarketsSec > 86400 {
		return fmt.Errorf("scoring refresh_markets_sec must be between 1 and 86400")
	}
	if c.Scoring.RescoreSec < 1 || c.Scoring.RescoreSec > 86400 {
		return fmt.Errorf("scoring rescore_sec must be between 1 and 86400")
	}
	if c.Scoring.CleanupSec < 1 || c.Scoring.CleanupSec > 86400 {
		return fmt.Errorf("scoring cleanup_sec must be between 1 and 86400")
	}
	if c.Scoring.MaxMarkets < 1 || c.Scoring.MaxMarkets > 10000 {
		return fmt.Errorf("scoring max_markets must be between 1 and 10000")
	}
	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.MaxPlaceFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_place_failures must be >= 1")
		}
		if c.CircuitBreaker.MaxCancelFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_cancel_failures must be >= 1")
		}
	}
	if c.Observability.MetricsPort < 0 || c.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be between 0 and 65535")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	return nil
}

func isValidInstanceID(v string) bool {
	if len(v) < 1 || len(v) > 24 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
