package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"polymaker/internal/clob"
	"polymaker/internal/core"
)

func TestNewRequiresDistinctTokens(t *testing.T) {
	if _, err := New("0xcond", "t1", "t1"); err == nil {
		t.Fatalf("New() error = nil, want duplicate token rejection")
	}
	if _, err := New("0xcond", "", "t2"); err == nil {
		t.Fatalf("New() error = nil, want missing token rejection")
	}
	if _, err := New("", "t1", "t2"); err == nil {
		t.Fatalf("New() error = nil, want missing condition rejection")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m, err := New("0xcond", "t1", "t2")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := m.TokenID(core.TokenA); got != "t1" {
		t.Fatalf("TokenID(A) = %q, want t1", got)
	}
	token, err := m.Token("t2")
	if err != nil || token != core.TokenB {
		t.Fatalf("Token(t2) = %v, %v", token, err)
	}
	if _, err := m.Token("unknown"); err == nil {
		t.Fatalf("Token(unknown) error = nil, want error")
	}
	ids := m.TokenIDs()
	if len(ids) != 2 || ids[0] != "t1" || ids[1] != "t2" {
		t.Fatalf("TokenIDs() = %v", ids)
	}
}

func TestDiscoverResolvesTokensFromVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/0xcond" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"condition_id": "0xcond",
			"tokens": []map[string]string{
				{"token_id": "t1", "outcome": "Yes"},
				{"token_id": "t2", "outcome": "No"},
			},
		})
	}))
	defer srv.Close()
	client := clob.NewClient(clob.Options{Host: srv.URL})

	m, err := Discover(context.Background(), client, "0xcond")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if m.TokenID(core.TokenA) != "t1" || m.TokenID(core.TokenB) != "t2" {
		t.Fatalf("token ids = %v", m.TokenIDs())
	}
}

func TestDiscoverRejectsSingleTokenMarket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"condition_id": "0xcond",
			"tokens":       []map[string]string{{"token_id": "t1"}},
		})
	}))
	defer srv.Close()
	client := clob.NewClient(clob.Options{Host: srv.URL})

	if _, err := Discover(context.Background(), client, "0xcond"); err == nil {
		t.Fatalf("Discover() error = nil, want error for one-token market")
	}
}
