package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestGammaVolumeAndLiquidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := r.URL.Query()["condition_ids"]
		if len(ids) != 2 {
			t.Errorf("condition_ids = %v", ids)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"condition_id": "0xa", "volumeNum": 1200.5, "liquidityNum": 300},
			{"condition_id": "0xb", "volumeNum": 10, "liquidityNum": 2},
		})
	}))
	defer srv.Close()
	g := NewGammaClient(srv.URL, 0)

	volumes, liquidity, err := g.VolumeAndLiquidity(context.Background(), []string{"0xa", "0xb"})
	if err != nil {
		t.Fatalf("VolumeAndLiquidity() error = %v", err)
	}
	if volumes["0xa"] != 1200.5 || liquidity["0xb"] != 2 {
		t.Fatalf("volumes = %v liquidity = %v", volumes, liquidity)
	}
}

func TestGammaInactiveConditionsMergesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("active") == "false":
			_ = json.NewEncoder(w).Encode([]map[string]any{{"condition_id": "0xinactive"}})
		case q.Get("closed") == "true":
			_ = json.NewEncoder(w).Encode([]map[string]any{{"condition_id": "0xclosed"}})
		case q.Get("accepting_orders") == "false":
			_ = json.NewEncoder(w).Encode([]map[string]any{{"condition_id": "0xpaused"}})
		default:
			t.Errorf("unexpected filter %q", q.Encode())
		}
	}))
	defer srv.Close()
	g := NewGammaClient(srv.URL, 0)

	inactive, err := g.InactiveConditions(context.Background(), []string{"0xinactive", "0xclosed", "0xpaused", "0xlive"})
	if err != nil {
		t.Fatalf("InactiveConditions() error = %v", err)
	}
	if len(inactive) != 3 {
		t.Fatalf("inactive = %v, want 3 entries", inactive)
	}
	if _, ok := inactive["0xlive"]; ok {
		t.Fatalf("live market flagged inactive")
	}
}

func TestChunkConditionIDsStaysUnderURLLimit(t *testing.T) {
	base := "https://gamma-api.polymarket.com/markets"
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("0x%064d", i)
	}

	chunks := chunkConditionIDs(base, ids, len("&accepting_orders=false"))
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want the ids split", len(chunks))
	}
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
		query := url.Values{"condition_ids": chunk}
		if got := len(base) + 1 + len(query.Encode()) + len("&accepting_orders=false"); got > maxGammaURLLen {
			t.Fatalf("chunk URL length = %d, want <= %d", got, maxGammaURLLen)
		}
	}
	if total != len(ids) {
		t.Fatalf("chunked ids = %d, want %d", total, len(ids))
	}
}
