package keeper

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"polymaker/internal/clob"
	"polymaker/internal/core"
	"polymaker/internal/market"
	"polymaker/internal/metrics"
)

// OrderAPI is the slice of the venue REST client the keeper trades through.
type OrderAPI interface {
	OpenOrders(ctx context.Context, conditionID string) ([]clob.OpenOrder, error)
	PlaceOrder(ctx context.Context, args clob.PlaceArgs) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context) error
}

// BalanceReader reads the funder wallet's balances from the chain.
type BalanceReader interface {
	CollateralBalance(ctx context.Context) (decimal.Decimal, error)
	OutcomeBalance(ctx context.Context, tokenID string) (decimal.Decimal, error)
}

// Venue adapts the venue REST client and the chain reader onto the order
// book engine's view of the world, translating raw asset ids to the
// market's outcome tokens in both directions.
type Venue struct {
	orders   OrderAPI
	balances BalanceReader
	market   *market.Market
}

func NewVenue(orders OrderAPI, balances BalanceReader, mkt *market.Market) *Venue {
	return &Venue{orders: orders, balances: balances, market: mkt}
}

func (v *Venue) FetchOrders(ctx context.Context) ([]core.Order, error) {
	open, err := v.orders.OpenOrders(ctx, v.market.ConditionID)
	if err != nil {
		return nil, err
	}
	orders := make([]core.Order, 0, len(open))
	for _, o := range open {
		token, err := v.market.Token(o.TokenID)
		if err != nil {
			log.Printf("level=WARN event=foreign_order_skipped order_id=%q token_id=%q", o.ID, o.TokenID)
			continue
		}
		orders = append(orders, core.Order{
			ID:    o.ID,
			Side:  o.Side,
			Token: token,
			Price: o.Price,
			Size:  o.Size,
		})
	}
	return orders, nil
}

func (v *Venue) FetchBalances(ctx context.Context) (core.Balances, error) {
	collateral, err := v.balances.CollateralBalance(ctx)
	if err != nil {
		return nil, err
	}
	outcomeA, err := v.balances.OutcomeBalance(ctx, v.market.TokenID(core.TokenA))
	if err != nil {
		return nil, err
	}
	outcomeB, err := v.balances.OutcomeBalance(ctx, v.market.TokenID(core.TokenB))
	if err != nil {
		return nil, err
	}
	balances := core.Balances{
		core.Collateral: collateral,
		core.AssetA:     outcomeA,
		core.AssetB:     outcomeB,
	}
	for asset, amount := range balances {
		f, _ := amount.Float64()
		metrics.KeeperBalance.WithLabelValues(string(asset)).Set(f)
	}
	return balances, nil
}

func (v *Venue) PlaceOrder(ctx context.Context, order core.Order) (string, error) {
	return v.orders.PlaceOrder(ctx, clob.PlaceArgs{
		TokenID: v.market.TokenID(order.Token),
		Side:    order.Side,
		Price:   order.Price,
		Size:    order.Size,
	})
}

func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	return v.orders.CancelOrder(ctx, orderID)
}

func (v *Venue) CancelAll(ctx context.Context) error {
	return v.orders.CancelAll(ctx)
}
