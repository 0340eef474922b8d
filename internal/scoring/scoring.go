// Package scoring ranks candidate markets by how attractive they are to
// quote: tight books, deep books, steady prices, real volume. The scorer
// runs as its own process and publishes rankings through the state store
// for operators picking the next market to deploy on.
package scoring

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"polymaker/internal/clob"
	"polymaker/internal/metrics"
	"polymaker/internal/store"
)

// MarketsAPI is the slice of the venue REST client the scorer reads.
type MarketsAPI interface {
	Markets(ctx context.Context, cursor string) ([]clob.MarketInfo, string, error)
	Book(ctx context.Context, tokenID string) (*clob.Book, error)
	PriceHistory(ctx context.Context, tokenID string) ([]clob.PricePoint, error)
}

// GammaAPI supplies off-book market stats.
type GammaAPI interface {
	VolumeAndLiquidity(ctx context.Context, conditionIDs []string) (map[string]float64, map[string]float64, error)
	InactiveConditions(ctx context.Context, conditionIDs []string) (map[string]struct{}, error)
}

type Options struct {
	// RefreshMarkets is the market universe refresh cadence. Defaults to 10m.
	RefreshMarkets time.Duration
	// Rescore is the scoring cadence. Defaults to 5m.
	Rescore time.Duration
	// Cleanup is the dead-market sweep cadence. Defaults to 1h.
	Cleanup time.Duration
	// MaxMarkets caps the tracked universe. Defaults to 100.
	MaxMarkets int
}

const depthLevels = 5

var componentWeights = struct {
	spread, depth, volatility, volume float64
}{0.35, 0.25, 0.25, 0.15}

type Scorer struct {
	venue   MarketsAPI
	gamma   GammaAPI
	store   *store.Store
	opts    Options
	markets map[string]clob.MarketInfo
}

func New(venue MarketsAPI, gamma GammaAPI, st *store.Store, opts Options) *Scorer {
	if opts.RefreshMarkets <= 0 {
		opts.RefreshMarkets = 10 * time.Minute
	}
	if opts.Rescore <= 0 {
		opts.Rescore = 5 * time.Minute
	}
	if opts.Cleanup <= 0 {
		opts.Cleanup = time.Hour
	}
	if opts.MaxMarkets <= 0 {
		opts.MaxMarkets = 100
	}
	return &Scorer{
		venue:   venue,
		gamma:   gamma,
		store:   st,
		opts:    opts,
		markets: make(map[string]clob.MarketInfo),
	}
}

// Run drives the scorer until ctx is cancelled. The universe refresh, the
// rescore, and the cleanup each run on their own cadence; a failed pass is
// logged and retried on the next tick.
func (s *Scorer) Run(ctx context.Context) error {
	if err := s.RefreshMarkets(ctx); err != nil {
		log.Printf("level=WARN event=market_refresh_failed err=%q", err.Error())
	}
	if err := s.Score(ctx); err != nil {
		log.Printf("level=WARN event=score_failed err=%q", err.Error())
	}

	refresh := time.NewTicker(s.opts.RefreshMarkets)
	defer refresh.Stop()
	rescore := time.NewTicker(s.opts.Rescore)
	defer rescore.Stop()
	cleanup := time.NewTicker(s.opts.Cleanup)
	defer cleanup.Stop()

	for {
		select {
		case <-refresh.C:
			if err := s.RefreshMarkets(ctx); err != nil {
				log.Printf("level=WARN event=market_refresh_failed err=%q", err.Error())
			}
		case <-rescore.C:
			if err := s.Score(ctx); err != nil {
				log.Printf("level=WARN event=score_failed err=%q", err.Error())
			}
		case <-cleanup.C:
			if err := s.Cleanup(ctx); err != nil {
				log.Printf("level=WARN event=cleanup_failed err=%q", err.Error())
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RefreshMarkets walks the venue's market pages and replaces the tracked
// universe with markets that are live and accepting orders.
func (s *Scorer) RefreshMarkets(ctx context.Context) error {
	tracked := make(map[string]clob.MarketInfo)
	cursor := ""
	for len(tracked) < s.opts.MaxMarkets {
		page, next, err := s.venue.Markets(ctx, cursor)
		if err != nil {
			return err
		}
		for _, m := range page {
			if len(tracked) >= s.opts.MaxMarkets {
				break
			}
			if !m.Active || m.Closed || !m.AcceptingOrders || len(m.TokenIDs) == 0 {
				continue
			}
			tracked[m.ConditionID] = m
		}
		if next == "" {
			break
		}
		cursor = next
	}
	s.markets = tracked
	metrics.ActiveMarkets.Set(float64(len(tracked)))
	log.Printf("level=INFO event=markets_refreshed tracked=%d", len(tracked))
	return nil
}

// Cleanup drops markets gamma reports as closed or no longer accepting
// orders.
func (s *Scorer) Cleanup(ctx context.Context) error {
	if len(s.markets) == 0 {
		return nil
	}
	ids := s.conditionIDs()
	inactive, err := s.gamma.InactiveConditions(ctx, ids)
	if err != nil {
		return err
	}
	for id := range inactive {
		delete(s.markets, id)
	}
	metrics.ActiveMarkets.Set(float64(len(s.markets)))
	log.Printf("level=INFO event=markets_cleaned removed=%d tracked=%d", len(inactive), len(s.markets))
	return nil
}

// Score computes raw metrics per market, min-max normalizes each component
// across the universe, combines them into a weighted total, and persists
// the ranking best first.
func (s *Scorer) Score(ctx context.Context) error {
	if len(s.markets) == 0 {
		return nil
	}
	volumes, _, err := s.gamma.VolumeAndLiquidity(ctx, s.conditionIDs())
	if err != nil {
		return err
	}

	raws := make([]rawMetrics, 0, len(s.markets))
	for id, m := range s.markets {
		raw, err := s.measure(ctx, m)
		if err != nil {
			log.Printf("level=WARN event=market_measure_failed condition_id=%q err=%q", id, err.Error())
			continue
		}
		raw.conditionID = id
		raw.volume = volumes[id]
		raws = append(raws, raw)
	}
	if len(raws) == 0 {
		return nil
	}

	scores := combine(raws)
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Total.Cmp(scores[j].Total) > 0
	})
	if s.store != nil {
		if err := s.store.SaveMarketScores(scores); err != nil {
			return err
		}
	}
	log.Printf("level=INFO event=markets_scored count=%d top=%q", len(scores), scores[0].ConditionID)
	return nil
}

type rawMetrics struct {
	conditionID string
	spread      float64
	depth       float64
	volatility  float64
	volume      float64
}

func (s *Scorer) measure(ctx context.Context, m clob.MarketInfo) (rawMetrics, error) {
	tokenID := m.TokenIDs[0]
	book, err := s.venue.Book(ctx, tokenID)
	if err != nil {
		return rawMetrics{}, err
	}
	history, err := s.venue.PriceHistory(ctx, tokenID)
	if err != nil {
		return rawMetrics{}, err
	}
	return rawMetrics{
		spread:     bookSpread(book),
		depth:      bookDepth(book),
		volatility: logReturnStdDev(history),
	}, nil
}

func bookSpread(book *clob.Book) float64 {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		// An empty side is as wide as this market gets.
		return 1
	}
	spread, _ := book.Asks[0].Price.Sub(book.Bids[0].Price).Float64()
	return spread
}

func bookDepth(book *clob.Book) float64 {
	total := decimal.Zero
	for i, level := range book.Bids {
		if i >= depthLevels {
			break
		}
		total = total.Add(level.Size)
	}
	for i, level := range book.Asks {
		if i >= depthLevels {
			break
		}
		total = total.Add(level.Size)
	}
	depth, _ := total.Float64()
	return depth
}

func logReturnStdDev(history []clob.PricePoint) float64 {
	returns := make([]float64, 0, len(history))
	for i := 1; i < len(history); i++ {
		prev, _ := history[i-1].Price.Float64()
		cur, _ := history[i].Price.Float64()
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance)
}

// combine min-max normalizes each component onto [0,1] and merges them.
// Tighter spreads and calmer prices score high, so those two components
// are inverted; depth and volume reward the raw value.
func combine(raws []rawMetrics) []store.MarketScore {
	spread := normalizer(raws, func(r rawMetrics) float64 { return r.spread })
	depth := normalizer(raws, func(r rawMetrics) float64 { return r.depth })
	vol := normalizer(raws, func(r rawMetrics) float64 { return r.volatility })
	volume := normalizer(raws, func(r rawMetrics) float64 { return r.volume })

	now := time.Now().UTC()
	scores := make([]store.MarketScore, 0, len(raws))
	for _, r := range raws {
		total := componentWeights.spread*(1-spread(r.spread)) +
			componentWeights.depth*depth(r.depth) +
			componentWeights.volatility*(1-vol(r.volatility)) +
			componentWeights.volume*volume(r.volume)
		scores = append(scores, store.MarketScore{
			ConditionID: r.conditionID,
			Spread:      decimal.NewFromFloat(r.spread),
			Depth:       decimal.NewFromFloat(r.depth),
			Volatility:  decimal.NewFromFloat(r.volatility),
			Volume:      decimal.NewFromFloat(r.volume),
			Total:       decimal.NewFromFloat(total).Round(4),
			ScoredAt:    now,
		})
	}
	return scores
}

func normalizer(raws []rawMetrics, pick func(rawMetrics) float64) func(float64) float64 {
	min, max := math.Inf(1), math.Inf(-1)
	for _, r := range raws {
		v := pick(r)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	return func(v float64) float64 {
		if span == 0 {
			return 0.5
		}
		return (v - min) / span
	}
}

func (s *Scorer) conditionIDs() []string {
	ids := make([]string, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
