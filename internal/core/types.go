package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Token identifies one of the two outcome tokens of a binary market.
type Token string

const (
	TokenA Token = "A"
	TokenB Token = "B"
)

// Asset is anything the keeper holds a balance of: the collateral token or
// one of the two conditional outcome tokens.
type Asset string

const (
	Collateral Asset = "COLLATERAL"
	AssetA     Asset = "TOKEN_A"
	AssetB     Asset = "TOKEN_B"
)

func (t Token) Asset() Asset {
	if t == TokenA {
		return AssetA
	}
	return AssetB
}

type Balances map[Asset]decimal.Decimal

func (b Balances) Get(asset Asset) decimal.Decimal {
	if v, ok := b[asset]; ok {
		return v
	}
	return decimal.Zero
}

// Order is a resting or desired quote. A desired order has no ID; an order
// reported back by the venue always has one.
type Order struct {
	ID        string
	Side      Side
	Token     Token
	Price     decimal.Decimal
	Size      decimal.Decimal
	CreatedAt time.Time
}

func (o Order) String() string {
	return fmt.Sprintf("Order[id=%s side=%s token=%s price=%s size=%s]",
		o.ID, o.Side, o.Token, o.Price.String(), o.Size.String())
}
