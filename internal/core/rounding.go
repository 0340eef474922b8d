package core

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MaxPriceDecimals is the venue's price precision: probabilities are quoted
// in whole cents.
const MaxPriceDecimals = 2

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrPriceRange   = errors.New("price outside (0,1)")
)

var one = decimal.NewFromInt(1)

// RoundDownTo truncates d to the given number of decimal places.
func RoundDownTo(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundFloor(places)
}

// RoundUpTo rounds d up to the given number of decimal places.
func RoundUpTo(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundCeil(places)
}

// NormalizeOrder snaps the order price onto the venue tick grid and rejects
// orders the venue would refuse: zero size, or a price outside (0,1)
// exclusive. Buy prices round down, sell prices round up, so a normalized
// quote never crosses the side it was computed for.
func NormalizeOrder(order Order) (Order, error) {
	if order.Size.Cmp(decimal.Zero) <= 0 {
		return order, ErrInvalidOrder
	}
	switch order.Side {
	case Buy:
		order.Price = RoundDownTo(order.Price, MaxPriceDecimals)
	case Sell:
		order.Price = RoundUpTo(order.Price, MaxPriceDecimals)
	default:
		return order, ErrInvalidOrder
	}
	if order.Price.Cmp(decimal.Zero) <= 0 || order.Price.Cmp(one) >= 0 {
		return order, ErrPriceRange
	}
	return order, nil
}
