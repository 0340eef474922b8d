// Package strategy holds the pluggable quoting strategies. A strategy is a
// pure function from (open orders, balances, mid price) to the desired
// order set; it performs no I/O and issues no venue calls itself.
package strategy

import (
	"github.com/shopspring/decimal"

	"polymaker/internal/core"
)

// BandsConfig shapes the symmetric quote ladder around the mid price.
type BandsConfig struct {
	// Spread is the distance between adjacent bands and between the first
	// band and the mid.
	Spread decimal.Decimal
	// Size is the quantity quoted per band.
	Size decimal.Decimal
	// Levels is the number of bands per side.
	Levels int
}

// Bands quotes a ladder of buys below and sells above the mid for token A.
// Buys are capped by the collateral budget, sells by the token A balance,
// so the desired set never asks the venue for more than the keeper can
// fund.
type Bands struct {
	cfg BandsConfig
}

func NewBands(cfg BandsConfig) *Bands {
	if cfg.Levels < 1 {
		cfg.Levels = 1
	}
	return &Bands{cfg: cfg}
}

func (b *Bands) Quotes(_ []core.Order, balances core.Balances, mid decimal.Decimal) []core.Order {
	var desired []core.Order
	desired = append(desired, b.buyLadder(balances, mid)...)
	desired = append(desired, b.sellLadder(balances, mid)...)
	return desired
}

func (b *Bands) buyLadder(balances core.Balances, mid decimal.Decimal) []core.Order {
	budget := balances.Get(core.Collateral)
	var orders []core.Order
	for i := 1; i <= b.cfg.Levels; i++ {
		price := mid.Sub(b.cfg.Spread.Mul(decimal.NewFromInt(int64(i))))
		price = core.RoundDownTo(price, core.MaxPriceDecimals)
		if price.Cmp(decimal.Zero) <= 0 {
			break
		}
		cost := price.Mul(b.cfg.Size)
		if budget.Cmp(cost) < 0 {
			break
		}
		budget = budget.Sub(cost)
		orders = append(orders, core.Order{
			Side:  core.Buy,
			Token: core.TokenA,
			Price: price,
			Size:  b.cfg.Size,
		})
	}
	return orders
}

func (b *Bands) sellLadder(balances core.Balances, mid decimal.Decimal) []core.Order {
	inventory := balances.Get(core.AssetA)
	var orders []core.Order
	for i := 1; i <= b.cfg.Levels; i++ {
		price := mid.Add(b.cfg.Spread.Mul(decimal.NewFromInt(int64(i))))
		price = core.RoundUpTo(price, core.MaxPriceDecimals)
		if price.Cmp(decimal.NewFromInt(1)) >= 0 {
			break
		}
		if inventory.Cmp(b.cfg.Size) < 0 {
			break
		}
		inventory = inventory.Sub(b.cfg.Size)
		orders = append(orders, core.Order{
			Side:  core.Sell,
			Token: core.TokenA,
			Price: price,
			Size:  b.cfg.Size,
		})
	}
	return orders
}
