package pricefeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"polymaker/internal/clob"
	"polymaker/internal/core"
	"polymaker/internal/market"
)

type stubREST struct {
	mid decimal.Decimal
	err error

	bid    decimal.Decimal
	bidErr error
	ask    decimal.Decimal
	askErr error
}

func (s *stubREST) Midpoint(_ context.Context, _ string) (decimal.Decimal, error) {
	return s.mid, s.err
}

func (s *stubREST) Price(_ context.Context, _ string, side core.Side) (decimal.Decimal, error) {
	if side == core.Buy {
		return s.bid, s.bidErr
	}
	return s.ask, s.askErr
}

func testMarket(t *testing.T) *market.Market {
	t.Helper()
	m, err := market.New("0xcond", "t1", "t2")
	if err != nil {
		t.Fatalf("market.New() error = %v", err)
	}
	return m
}

func TestMidPriceFallsBackToREST(t *testing.T) {
	feed := NewCLOBFeed(&stubREST{mid: decimal.RequireFromString("0.55")}, testMarket(t), nil, 1)

	mid, err := feed.MidPrice(context.Background())
	if err != nil {
		t.Fatalf("MidPrice() error = %v", err)
	}
	if mid.String() != "0.55" {
		t.Fatalf("MidPrice() = %s, want 0.55", mid)
	}
}

func TestMidPricePrefersFreshStreamMid(t *testing.T) {
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		msg := `{"event_type":"price_change","asset_id":"t1","midpoint":"0.62"}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return
		}
		<-done
	}))
	defer srv.Close()
	defer close(done)

	stream := clob.NewMarketStream("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"t1", "t2"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := stream.LastMid("t1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stream never produced a mid for t1")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rest := &stubREST{mid: decimal.RequireFromString("0.55")}
	feed := NewCLOBFeed(rest, testMarket(t), stream, 1)
	mid, err := feed.MidPrice(context.Background())
	if err != nil {
		t.Fatalf("MidPrice() error = %v", err)
	}
	if mid.String() != "0.62" {
		t.Fatalf("MidPrice() = %s, want stream mid 0.62", mid)
	}
}

func TestMidPriceUsesSurvivingSideWhenBookOneSided(t *testing.T) {
	cases := []struct {
		name string
		rest *stubREST
		want string
	}{
		{
			name: "bid only",
			rest: &stubREST{err: core.ErrNoPrice, bid: decimal.RequireFromString("0.44"), askErr: core.ErrNoPrice},
			want: "0.44",
		},
		{
			name: "ask only",
			rest: &stubREST{err: core.ErrNoPrice, ask: decimal.RequireFromString("0.58"), bidErr: core.ErrNoPrice},
			want: "0.58",
		},
		{
			name: "both sides averaged",
			rest: &stubREST{
				err: core.ErrNoPrice,
				bid: decimal.RequireFromString("0.44"),
				ask: decimal.RequireFromString("0.5"),
			},
			want: "0.47",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			feed := NewCLOBFeed(tc.rest, testMarket(t), nil, 1)
			mid, err := feed.MidPrice(context.Background())
			if err != nil {
				t.Fatalf("MidPrice() error = %v", err)
			}
			if mid.String() != tc.want {
				t.Fatalf("MidPrice() = %s, want %s", mid, tc.want)
			}
		})
	}
}

func TestMidPriceRandomizedDefaultWhenVenueHasNoPrice(t *testing.T) {
	feed := NewCLOBFeed(&stubREST{err: core.ErrNoPrice, bidErr: core.ErrNoPrice, askErr: core.ErrNoPrice}, testMarket(t), nil, 42)

	mid, err := feed.MidPrice(context.Background())
	if err != nil {
		t.Fatalf("MidPrice() error = %v", err)
	}
	lo := decimal.RequireFromString("0.4")
	hi := decimal.RequireFromString("0.6")
	if mid.Cmp(lo) < 0 || mid.Cmp(hi) > 0 {
		t.Fatalf("MidPrice() = %s, want within [0.4, 0.6]", mid)
	}
	if mid.Exponent() < -core.MaxPriceDecimals {
		t.Fatalf("MidPrice() = %s, want at most %d decimals", mid, core.MaxPriceDecimals)
	}

	// Same seed reproduces the same fallback.
	again := NewCLOBFeed(&stubREST{err: core.ErrNoPrice, bidErr: core.ErrNoPrice, askErr: core.ErrNoPrice}, testMarket(t), nil, 42)
	other, err := again.MidPrice(context.Background())
	if err != nil {
		t.Fatalf("MidPrice() error = %v", err)
	}
	if !mid.Equal(other) {
		t.Fatalf("seeded fallback diverged: %s vs %s", mid, other)
	}
}

func TestMidPricePropagatesVenueErrors(t *testing.T) {
	boom := errors.New("venue down")
	feed := NewCLOBFeed(&stubREST{err: boom}, testMarket(t), nil, 1)

	if _, err := feed.MidPrice(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("MidPrice() error = %v, want %v", err, boom)
	}
}
