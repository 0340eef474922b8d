package clob

import (
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
)

// maxGammaURLLen keeps chunked condition-id queries under the gateway's
// URL limit.
const maxGammaURLLen = 2000

// GammaClient reads market volume/liquidity and activity flags from the
// venue's metadata API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGammaClient(baseURL string, timeout time.Duration) *GammaClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GammaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type gammaMarket struct {
	ConditionID  string  `json:"condition_id"`
	VolumeNum    float64 `json:"volumeNum"`
	LiquidityNum float64 `json:"liquidityNum"`
}

// VolumeAndLiquidity returns per-condition volume and liquidity. Condition
// ids are chunked so each request URL stays under the length limit; a
// failed chunk is logged and skipped, so the result may be partial.
func (g *GammaClient) VolumeAndLiquidity(ctx context.Context, conditionIDs []string) (map[string]float64, map[string]float64, error) {
	volumes := make(map[string]float64)
	liquidity := make(map[string]float64)
	if len(conditionIDs) == 0 {
		return volumes, liquidity, nil
	}
	for _, chunk := range chunkConditionIDs(g.baseURL+"/markets", conditionIDs, 0) {
		markets, err := g.fetchMarkets(ctx, chunk, nil)
		if err != nil {
			log.Printf("level=WARN event=gamma_volume_fetch_failed chunk_size=%d err=%q", len(chunk), err.Error())
			continue
		}
		for _, m := range markets {
			volumes[m.ConditionID] = m.VolumeNum
			liquidity[m.ConditionID] = m.LiquidityNum
		}
	}
	if len(volumes) != len(conditionIDs) {
		log.Printf("level=WARN event=gamma_volume_incomplete want=%d got=%d", len(conditionIDs), len(volumes))
	}
	return volumes, liquidity, nil
}

// InactiveConditions returns the subset of condition ids that are inactive,
// closed, or no longer accepting orders.
func (g *GammaClient) InactiveConditions(ctx context.Context, conditionIDs []string) (map[string]struct{}, error) {
	toDelete := make(map[string]struct{})
	if len(conditionIDs) == 0 {
		return toDelete, nil
	}
	filters := []url.Values{
		{"active": {"false"}},
		{"closed": {"true"}},
		{"accepting_orders": {"false"}},
	}
	extraLen := len("&accepting_orders=false")
	for _, chunk := range chunkConditionIDs(g.baseURL+"/markets", conditionIDs, extraLen) {
		for _, filter := range filters {
			markets, err := g.fetchMarkets(ctx, chunk, filter)
			if err != nil {
				log.Printf("level=WARN event=gamma_activity_fetch_failed filter=%q err=%q", filter.Encode(), err.Error())
				continue
			}
			for _, m := range markets {
				if m.ConditionID != "" {
					toDelete[m.ConditionID] = struct{}{}
				}
			}
		}
	}
	return toDelete, nil
}

func (g *GammaClient) fetchMarkets(ctx context.Context, conditionIDs []string, extra url.Values) ([]gammaMarket, error) {
	query := url.Values{}
	for _, cid := range conditionIDs {
		query.Add("condition_ids", cid)
	}
	for k, vs := range extra {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	endpoint := g.baseURL + "/markets?" + query.Encode()

	var markets []gammaMarket
	fetch := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("gamma status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(data)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		markets = markets[:0]
		return json.Unmarshal(data, &markets)
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(20*time.Second),
	), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		return nil, err
	}
	return markets, nil
}

// chunkConditionIDs splits ids so that each encoded request URL, plus any
// extra filter parameter, stays under maxGammaURLLen.
func chunkConditionIDs(baseURL string, conditionIDs []string, extraLen int) [][]string {
	var chunks [][]string
	var current []string
	for _, cid := range conditionIDs {
		candidate := append(append([]string(nil), current...), cid)
		query := url.Values{"condition_ids": candidate}
		if len(baseURL)+1+len(query.Encode())+extraLen > maxGammaURLLen {
			if len(current) > 0 {
				chunks = append(chunks, current)
			}
			current = []string{cid}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
