// Package pricefeed supplies the mid price the strategy quotes against.
package pricefeed

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"polymaker/internal/clob"
	"polymaker/internal/core"
	"polymaker/internal/market"
)

var defaultPrice = decimal.RequireFromString("0.5")

// RESTClient is the part of the venue client the feed needs.
type RESTClient interface {
	Midpoint(ctx context.Context, tokenID string) (decimal.Decimal, error)
	Price(ctx context.Context, tokenID string, side core.Side) (decimal.Decimal, error)
}

// CLOBFeed reports the mid price of the market's token A. It prefers the
// ws market stream when a fresh mid is available and falls back to a REST
// midpoint request. When the venue has no price at all (a brand-new or
// dead book) it quotes a randomized price around 0.5 so the keeper can
// seed the book instead of stalling.
type CLOBFeed struct {
	client RESTClient
	market *market.Market
	stream *clob.MarketStream

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCLOBFeed(client RESTClient, mkt *market.Market, stream *clob.MarketStream, seed int64) *CLOBFeed {
	return &CLOBFeed{
		client: client,
		market: mkt,
		stream: stream,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (f *CLOBFeed) MidPrice(ctx context.Context) (decimal.Decimal, error) {
	tokenID := f.market.TokenID(core.TokenA)
	if f.stream != nil {
		if mid, ok := f.stream.LastMid(tokenID); ok {
			return mid, nil
		}
	}
	mid, err := f.client.Midpoint(ctx, tokenID)
	if err == nil {
		return mid, nil
	}
	if !errors.Is(err, core.ErrNoPrice) {
		return decimal.Zero, err
	}
	if best, ok := f.oneSidedPrice(ctx, tokenID); ok {
		return best, nil
	}
	fallback := f.randomizedDefault()
	log.Printf("level=WARN event=price_fallback token_id=%q price=%s", tokenID, fallback.String())
	return fallback, nil
}

// oneSidedPrice quotes off the surviving side of a book the venue refuses
// to compute a midpoint for.
func (f *CLOBFeed) oneSidedPrice(ctx context.Context, tokenID string) (decimal.Decimal, bool) {
	bid, bidErr := f.client.Price(ctx, tokenID, core.Buy)
	ask, askErr := f.client.Price(ctx, tokenID, core.Sell)
	switch {
	case bidErr == nil && askErr == nil:
		return bid.Add(ask).DivRound(decimal.NewFromInt(2), 4), true
	case bidErr == nil:
		log.Printf("level=WARN event=price_one_sided token_id=%q side=%q price=%s", tokenID, core.Buy, bid.String())
		return bid, true
	case askErr == nil:
		log.Printf("level=WARN event=price_one_sided token_id=%q side=%q price=%s", tokenID, core.Sell, ask.String())
		return ask, true
	}
	return decimal.Zero, false
}

// randomizedDefault jitters the 0.5 default by up to ±0.1 so multiple
// keepers seeding the same empty book do not stack at one tick.
func (f *CLOBFeed) randomizedDefault() decimal.Decimal {
	f.mu.Lock()
	jitter := f.rng.Float64()*0.2 - 0.1
	f.mu.Unlock()
	price := defaultPrice.Add(decimal.NewFromFloat(jitter))
	return core.RoundDownTo(price, core.MaxPriceDecimals)
}
