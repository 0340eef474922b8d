package clob

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	streamReadLimit    = 1 << 20
	streamReadDeadline = 60 * time.Second
	streamMaxBackoff   = 30 * time.Second
	streamHealthyAfter = time.Minute
	midFreshFor        = 10 * time.Second
)

// MarketStream subscribes to the venue's public market channel and keeps
// the latest midpoint per token. It is an optional accelerator: readers
// fall back to REST when a mid is missing or stale.
type MarketStream struct {
	wsURL    string
	tokenIDs []string

	mu   sync.RWMutex
	mids map[string]streamMid
	now  func() time.Time
}

type streamMid struct {
	price decimal.Decimal
	at    time.Time
}

type subscribeRequest struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

type marketEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Midpoint  string `json:"midpoint"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
}

func NewMarketStream(wsURL string, tokenIDs []string) *MarketStream {
	return &MarketStream{
		wsURL:    wsURL,
		tokenIDs: append([]string(nil), tokenIDs...),
		mids:     make(map[string]streamMid),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run maintains the subscription until ctx is done, reconnecting with
// exponential backoff after any failure. A connection that stayed up long
// enough counts as healthy and resets the backoff.
func (s *MarketStream) Run(ctx context.Context) {
	wait := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		connectedAt := s.now()
		if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("level=WARN event=market_stream_disconnected err=%q", err.Error())
		}
		connectedFor := s.now().Sub(connectedAt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
		wait = nextBackoff(wait, connectedFor)
	}
}

// nextBackoff doubles the reconnect delay up to the cap, starting over at
// one second once a connection has survived long enough to count as
// healthy.
func nextBackoff(prev, connectedFor time.Duration) time.Duration {
	if connectedFor >= streamHealthyAfter {
		return time.Second
	}
	next := prev * 2
	if next > streamMaxBackoff {
		next = streamMaxBackoff
	}
	return next
}

func (s *MarketStream) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetReadLimit(streamReadLimit)

	sub := subscribeRequest{Type: "market", AssetIDs: s.tokenIDs}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log.Printf("level=INFO event=market_stream_subscribed tokens=%d", len(s.tokenIDs))

	// Unblock the read loop when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(streamReadDeadline)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(data)
	}
}

func (s *MarketStream) handleMessage(data []byte) {
	var events []marketEvent
	if err := json.Unmarshal(data, &events); err != nil {
		var single marketEvent
		if err := json.Unmarshal(data, &single); err != nil {
			return
		}
		events = []marketEvent{single}
	}
	for _, ev := range events {
		s.applyEvent(ev)
	}
}

func (s *MarketStream) applyEvent(ev marketEvent) {
	if ev.AssetID == "" {
		return
	}
	mid, ok := eventMid(ev)
	if !ok {
		return
	}
	s.mu.Lock()
	s.mids[ev.AssetID] = streamMid{price: mid, at: s.now()}
	s.mu.Unlock()
}

func eventMid(ev marketEvent) (decimal.Decimal, bool) {
	if ev.Midpoint != "" {
		mid, err := decimal.NewFromString(ev.Midpoint)
		if err == nil && mid.Cmp(decimal.Zero) > 0 {
			return mid, true
		}
		return decimal.Zero, false
	}
	if ev.BestBid == "" || ev.BestAsk == "" {
		return decimal.Zero, false
	}
	bid, err := decimal.NewFromString(ev.BestBid)
	if err != nil {
		return decimal.Zero, false
	}
	ask, err := decimal.NewFromString(ev.BestAsk)
	if err != nil {
		return decimal.Zero, false
	}
	if bid.Cmp(decimal.Zero) <= 0 || ask.Cmp(bid) < 0 {
		return decimal.Zero, false
	}
	return bid.Add(ask).DivRound(decimal.NewFromInt(2), 4), true
}

// LastMid returns the most recent midpoint for a token if it is fresh
// enough to trust.
func (s *MarketStream) LastMid(tokenID string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mid, ok := s.mids[tokenID]
	if !ok || s.now().Sub(mid.at) > midFreshFor {
		return decimal.Zero, false
	}
	return mid.price, true
}
