// Package clob is the REST/ws client for the prediction-market CLOB venue.
package clob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"polymaker/internal/core"
	"polymaker/internal/metrics"
)

// PriceHistoryInterval is the fixed lookback window for price history
// requests. One explicit window, used everywhere volatility is computed.
const PriceHistoryInterval = "1w"

const maxResponseBytes = 4 << 20

type Credentials struct {
	Address    string
	APIKey     string
	Passphrase string
}

type Options struct {
	Host        string
	Credentials Credentials
	HTTPTimeout time.Duration
}

type Client struct {
	host       string
	creds      Credentials
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		host:       strings.TrimRight(opts.Host, "/"),
		creds:      opts.Credentials,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VerifyConnection probes the venue with exponential backoff. A keeper that
// cannot reach the venue at startup must not proceed to trading.
func (c *Client) VerifyConnection(ctx context.Context) error {
	probe := func() error {
		var out json.RawMessage
		return c.doJSON(ctx, http.MethodGet, "/ok", nil, nil, &out)
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(30*time.Second),
	), ctx)
	if err := backoff.Retry(probe, policy); err != nil {
		return fmt.Errorf("clob unreachable: %w", err)
	}
	log.Printf("level=INFO event=clob_connected host=%q", c.host)
	return nil
}

// Midpoint returns the venue's mid price for a token, or core.ErrNoPrice
// when the book is one-sided or empty.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	start := time.Now()
	var out struct {
		Mid string `json:"mid"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/midpoint", url.Values{"token_id": {tokenID}}, nil, &out)
	metrics.ObserveRequest("get_midpoint", start, err)
	if err != nil {
		return decimal.Zero, err
	}
	return parsePrice(out.Mid)
}

// Price returns the best price for a token on one side of the book.
func (c *Client) Price(ctx context.Context, tokenID string, side core.Side) (decimal.Decimal, error) {
	start := time.Now()
	var out struct {
		Price string `json:"price"`
	}
	query := url.Values{"token_id": {tokenID}, "side": {string(side)}}
	err := c.doJSON(ctx, http.MethodGet, "/price", query, nil, &out)
	metrics.ObserveRequest("get_price", start, err)
	if err != nil {
		return decimal.Zero, err
	}
	return parsePrice(out.Price)
}

func (c *Client) Book(ctx context.Context, tokenID string) (*Book, error) {
	start := time.Now()
	var out wireBook
	err := c.doJSON(ctx, http.MethodGet, "/book", url.Values{"token_id": {tokenID}}, nil, &out)
	metrics.ObserveRequest("get_book", start, err)
	if err != nil {
		return nil, err
	}
	book := &Book{}
	for _, lvl := range out.Bids {
		parsed, err := parseLevel(lvl)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, parsed)
	}
	for _, lvl := range out.Asks {
		parsed, err := parseLevel(lvl)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, parsed)
	}
	return book, nil
}

// PriceHistory returns the token's trade prices over the fixed lookback
// window.
func (c *Client) PriceHistory(ctx context.Context, tokenID string) ([]PricePoint, error) {
	start := time.Now()
	var out wireHistory
	query := url.Values{"market": {tokenID}, "interval": {PriceHistoryInterval}}
	err := c.doJSON(ctx, http.MethodGet, "/prices-history", query, nil, &out)
	metrics.ObserveRequest("get_price_history", start, err)
	if err != nil {
		return nil, err
	}
	points := make([]PricePoint, 0, len(out.History))
	for _, p := range out.History {
		price, err := decimal.NewFromString(p.P.String())
		if err != nil {
			return nil, fmt.Errorf("bad history price %q: %w", p.P.String(), err)
		}
		points = append(points, PricePoint{At: time.Unix(p.T, 0).UTC(), Price: price})
	}
	return points, nil
}

// OpenOrders returns the keeper's resting orders for a condition. The
// remaining size is original size minus the matched portion.
func (c *Client) OpenOrders(ctx context.Context, conditionID string) ([]OpenOrder, error) {
	start := time.Now()
	var out []wireOrder
	err := c.doJSON(ctx, http.MethodGet, "/data/orders", url.Values{"market": {conditionID}}, nil, &out)
	metrics.ObserveRequest("get_orders", start, err)
	if err != nil {
		return nil, err
	}
	orders := make([]OpenOrder, 0, len(out))
	for _, w := range out {
		order, err := parseOpenOrder(w)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// PlaceOrder submits a new limit order and returns the venue-assigned id.
func (c *Client) PlaceOrder(ctx context.Context, args PlaceArgs) (string, error) {
	start := time.Now()
	body := map[string]any{
		"token_id": args.TokenID,
		"side":     string(args.Side),
		"price":    args.Price.String(),
		"size":     args.Size.String(),
	}
	var out wirePlaceResponse
	err := c.doJSON(ctx, http.MethodPost, "/order", nil, body, &out)
	metrics.ObserveRequest("place_order", start, err)
	if err != nil {
		return "", err
	}
	if !out.Success || out.OrderID == "" {
		return "", classifyAPIError(http.StatusOK, out.ErrorMsg)
	}
	return out.OrderID, nil
}

// CancelOrder cancels one resting order. An order the venue no longer
// knows comes back as core.ErrOrderNotFound; callers treat that as done.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	start := time.Now()
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodDelete, "/order", nil, map[string]string{"orderID": orderID}, &out)
	metrics.ObserveRequest("cancel", start, err)
	return err
}

// CancelAll flattens every resting order owned by the keeper's API key.
func (c *Client) CancelAll(ctx context.Context) error {
	start := time.Now()
	var out json.RawMessage
	err := c.doJSON(ctx, http.MethodDelete, "/cancel-all", nil, nil, &out)
	metrics.ObserveRequest("cancel_all", start, err)
	return err
}

// Market returns the venue metadata for one condition, including the two
// outcome token ids.
func (c *Client) Market(ctx context.Context, conditionID string) (MarketInfo, error) {
	start := time.Now()
	var out wireMarket
	err := c.doJSON(ctx, http.MethodGet, "/markets/"+url.PathEscape(conditionID), nil, nil, &out)
	metrics.ObserveRequest("get_market", start, err)
	if err != nil {
		return MarketInfo{}, err
	}
	return marketInfoFromWire(out), nil
}

// Markets pages through the venue's market list from the given cursor. It
// returns the collected markets and the cursor to resume from next time;
// cursor state is owned by the caller, not this client.
func (c *Client) Markets(ctx context.Context, cursor string) ([]MarketInfo, string, error) {
	const endCursor = "LTE="
	var all []MarketInfo
	for {
		start := time.Now()
		var page wireMarketsPage
		err := c.doJSON(ctx, http.MethodGet, "/markets", url.Values{"next_cursor": {cursor}}, nil, &page)
		metrics.ObserveRequest("get_markets", start, err)
		if err != nil {
			return all, cursor, err
		}
		for _, w := range page.Data {
			all = append(all, marketInfoFromWire(w))
		}
		if page.NextCursor == "" || page.NextCursor == endCursor {
			return all, "", nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.host + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.APIKey != "" {
		req.Header.Set("POLY-ADDRESS", c.creds.Address)
		req.Header.Set("POLY-API-KEY", c.creds.APIKey)
		req.Header.Set("POLY-PASSPHRASE", c.creds.Passphrase)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", core.ErrTransient, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyAPIError(resp.StatusCode, extractErrorMsg(data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func extractErrorMsg(data []byte) string {
	var payload struct {
		Error    string `json:"error"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.ErrorMsg != "" {
			return payload.ErrorMsg
		}
	}
	return strings.TrimSpace(string(data))
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, core.ErrNoPrice
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad price %q: %w", raw, err)
	}
	if price.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, core.ErrNoPrice
	}
	return price, nil
}

func parseLevel(w wireLevel) (BookLevel, error) {
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return BookLevel{}, fmt.Errorf("bad level price %q: %w", w.Price, err)
	}
	size, err := decimal.NewFromString(w.Size)
	if err != nil {
		return BookLevel{}, fmt.Errorf("bad level size %q: %w", w.Size, err)
	}
	return BookLevel{Price: price, Size: size}, nil
}

func parseOpenOrder(w wireOrder) (OpenOrder, error) {
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return OpenOrder{}, fmt.Errorf("bad order price %q: %w", w.Price, err)
	}
	original, err := decimal.NewFromString(w.OriginalSize)
	if err != nil {
		return OpenOrder{}, fmt.Errorf("bad order size %q: %w", w.OriginalSize, err)
	}
	matched := decimal.Zero
	if w.SizeMatched != "" {
		matched, err = decimal.NewFromString(w.SizeMatched)
		if err != nil {
			return OpenOrder{}, fmt.Errorf("bad matched size %q: %w", w.SizeMatched, err)
		}
	}
	return OpenOrder{
		ID:      w.ID,
		TokenID: w.AssetID,
		Side:    core.Side(strings.ToUpper(w.Side)),
		Price:   price,
		Size:    original.Sub(matched),
	}, nil
}

func marketInfoFromWire(w wireMarket) MarketInfo {
	info := MarketInfo{
		ConditionID:     w.ConditionID,
		Question:        w.Question,
		Slug:            w.Slug,
		Active:          w.Active,
		Closed:          w.Closed,
		AcceptingOrders: w.AcceptingOrders,
	}
	for _, tok := range w.Tokens {
		info.TokenIDs = append(info.TokenIDs, tok.TokenID)
	}
	return info
}
