package clob

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"polymaker/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		Host: srv.URL,
		Credentials: Credentials{
			Address:    "0xkeeper",
			APIKey:     "key",
			Passphrase: "pass",
		},
	})
}

func TestOpenOrdersComputesRemainingSize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/orders" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("market") != "0xcond" {
			t.Errorf("market = %q", r.URL.Query().Get("market"))
		}
		if r.Header.Get("POLY-API-KEY") != "key" {
			t.Errorf("missing auth header")
		}
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{
				"id":            "o1",
				"asset_id":      "token-a",
				"side":          "buy",
				"price":         "0.48",
				"original_size": "10",
				"size_matched":  "3.5",
			},
		})
	})

	orders, err := c.OpenOrders(context.Background(), "0xcond")
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	got := orders[0]
	if got.ID != "o1" || got.TokenID != "token-a" || got.Side != core.Buy {
		t.Fatalf("order = %+v", got)
	}
	if !got.Size.Equal(decimal.RequireFromString("6.5")) {
		t.Fatalf("remaining size = %s, want 6.5", got.Size)
	}
}

func TestPlaceOrderReturnsVenueID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["token_id"] != "token-a" || body["side"] != "BUY" || body["price"] != "0.48" {
			t.Errorf("body = %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "orderID": "venue-1"})
	})

	id, err := c.PlaceOrder(context.Background(), PlaceArgs{
		TokenID: "token-a",
		Side:    core.Buy,
		Price:   decimal.RequireFromString("0.48"),
		Size:    decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if id != "venue-1" {
		t.Fatalf("id = %q, want %q", id, "venue-1")
	}
}

func TestPlaceOrderRejectionMapsErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  false,
			"errorMsg": "not enough balance/allowance",
		})
	})

	_, err := c.PlaceOrder(context.Background(), PlaceArgs{
		TokenID: "token-a",
		Side:    core.Buy,
		Price:   decimal.RequireFromString("0.48"),
		Size:    decimal.NewFromInt(10),
	})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("PlaceOrder() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestCancelOrderAlreadyGone(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "order not found"})
	})

	err := c.CancelOrder(context.Background(), "gone")
	if !errors.Is(err, core.ErrOrderNotFound) {
		t.Fatalf("CancelOrder() error = %v, want ErrOrderNotFound", err)
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, core.ErrRateLimited},
		{"bad gateway", http.StatusBadGateway, core.ErrTransient},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := c.Midpoint(context.Background(), "token-a")
			if !errors.Is(err, tc.want) {
				t.Fatalf("Midpoint() error = %v, want %v", err, tc.want)
			}
			if !errors.Is(err, core.ErrTransient) {
				t.Fatalf("Midpoint() error = %v, want transient", err)
			}
		})
	}
}

func TestMidpointEmptyBookIsNoPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"mid": ""})
	})

	_, err := c.Midpoint(context.Background(), "token-a")
	if !errors.Is(err, core.ErrNoPrice) {
		t.Fatalf("Midpoint() error = %v, want ErrNoPrice", err)
	}
}

func TestBookParsesLevels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bids": []map[string]string{{"price": "0.48", "size": "100"}},
			"asks": []map[string]string{{"price": "0.52", "size": "80"}},
		})
	})

	book, err := c.Book(context.Background(), "token-a")
	if err != nil {
		t.Fatalf("Book() error = %v", err)
	}
	if len(book.Bids) != 1 || len(book.Asks) != 1 {
		t.Fatalf("book = %+v", book)
	}
	if !book.Bids[0].Price.Equal(decimal.RequireFromString("0.48")) {
		t.Fatalf("bid price = %s", book.Bids[0].Price)
	}
}

func TestPriceHistoryParsesNumericPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") != PriceHistoryInterval {
			t.Errorf("interval = %q, want %q", r.URL.Query().Get("interval"), PriceHistoryInterval)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"history": []map[string]any{
				{"t": 1700000000, "p": 0.48},
				{"t": 1700003600, "p": 0.52},
			},
		})
	})

	points, err := c.PriceHistory(context.Background(), "token-a")
	if err != nil {
		t.Fatalf("PriceHistory() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if !points[1].Price.Equal(decimal.RequireFromString("0.52")) {
		t.Fatalf("price = %s, want 0.52", points[1].Price)
	}
}

func TestMarketsFollowsCursorUntilEnd(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("next_cursor") {
		case "":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":        []map[string]any{{"condition_id": "0xa"}},
				"next_cursor": "page2",
			})
		case "page2":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":        []map[string]any{{"condition_id": "0xb"}},
				"next_cursor": "LTE=",
			})
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("next_cursor"))
		}
	})

	markets, cursor, err := c.Markets(context.Background(), "")
	if err != nil {
		t.Fatalf("Markets() error = %v", err)
	}
	if len(markets) != 2 || markets[0].ConditionID != "0xa" || markets[1].ConditionID != "0xb" {
		t.Fatalf("markets = %+v", markets)
	}
	if cursor != "" {
		t.Fatalf("cursor = %q, want empty at end", cursor)
	}
}

func TestMarketParsesTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/0xcond" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"condition_id":     "0xcond",
			"active":           true,
			"accepting_orders": true,
			"tokens": []map[string]string{
				{"token_id": "token-a", "outcome": "Yes"},
				{"token_id": "token-b", "outcome": "No"},
			},
		})
	})

	info, err := c.Market(context.Background(), "0xcond")
	if err != nil {
		t.Fatalf("Market() error = %v", err)
	}
	if len(info.TokenIDs) != 2 || info.TokenIDs[0] != "token-a" {
		t.Fatalf("tokens = %v", info.TokenIDs)
	}
	if !info.Active || !info.AcceptingOrders {
		t.Fatalf("flags = %+v", info)
	}
}
