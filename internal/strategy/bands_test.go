package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"polymaker/internal/core"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBandsSymmetricLadder(t *testing.T) {
	b := NewBands(BandsConfig{
		Spread: dec("0.02"),
		Size:   dec("10"),
		Levels: 2,
	})
	balances := core.Balances{
		core.Collateral: dec("1000"),
		core.AssetA:     dec("100"),
	}

	quotes := b.Quotes(nil, balances, dec("0.50"))
	if len(quotes) != 4 {
		t.Fatalf("quotes = %d, want 4", len(quotes))
	}

	wantPrices := map[core.Side][]string{
		core.Buy:  {"0.48", "0.46"},
		core.Sell: {"0.52", "0.54"},
	}
	got := map[core.Side][]string{}
	for _, q := range quotes {
		if q.Token != core.TokenA {
			t.Errorf("token = %v, want TokenA", q.Token)
		}
		if !q.Size.Equal(dec("10")) {
			t.Errorf("size = %s, want 10", q.Size)
		}
		got[q.Side] = append(got[q.Side], q.Price.StringFixed(2))
	}
	for side, want := range wantPrices {
		if len(got[side]) != len(want) {
			t.Fatalf("side %v: %v, want %v", side, got[side], want)
		}
		for i := range want {
			if got[side][i] != want[i] {
				t.Errorf("side %v level %d = %s, want %s", side, i, got[side][i], want[i])
			}
		}
	}
}

func TestBandsBuysCappedByCollateral(t *testing.T) {
	b := NewBands(BandsConfig{
		Spread: dec("0.02"),
		Size:   dec("10"),
		Levels: 3,
	})
	// Enough for the first band only: 0.48 * 10 = 4.8.
	balances := core.Balances{
		core.Collateral: dec("5"),
		core.AssetA:     dec("0"),
	}

	quotes := b.Quotes(nil, balances, dec("0.50"))
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(quotes))
	}
	if quotes[0].Side != core.Buy || quotes[0].Price.StringFixed(2) != "0.48" {
		t.Fatalf("unexpected quote %s", quotes[0])
	}
}

func TestBandsSellsCappedByInventory(t *testing.T) {
	b := NewBands(BandsConfig{
		Spread: dec("0.02"),
		Size:   dec("10"),
		Levels: 3,
	})
	balances := core.Balances{
		core.Collateral: dec("0"),
		core.AssetA:     dec("15"),
	}

	quotes := b.Quotes(nil, balances, dec("0.50"))
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(quotes))
	}
	if quotes[0].Side != core.Sell {
		t.Fatalf("side = %v, want Sell", quotes[0].Side)
	}
}

func TestBandsStaysInsidePriceRange(t *testing.T) {
	b := NewBands(BandsConfig{
		Spread: dec("0.10"),
		Size:   dec("1"),
		Levels: 10,
	})
	balances := core.Balances{
		core.Collateral: dec("1000"),
		core.AssetA:     dec("1000"),
	}

	for _, q := range b.Quotes(nil, balances, dec("0.50")) {
		if q.Price.Cmp(decimal.Zero) <= 0 || q.Price.Cmp(decimal.NewFromInt(1)) >= 0 {
			t.Errorf("price %s escaped (0,1)", q.Price)
		}
	}
}
