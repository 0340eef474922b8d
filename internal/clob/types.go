package clob

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"polymaker/internal/core"
)

// OpenOrder is a resting keeper order as reported by the venue. TokenID is
// the raw venue asset id; mapping onto the market's Token A/B happens at
// the keeper layer.
type OpenOrder struct {
	ID      string
	TokenID string
	Side    core.Side
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// PlaceArgs are the fields of a new limit order.
type PlaceArgs struct {
	TokenID string
	Side    core.Side
	Price   decimal.Decimal
	Size    decimal.Decimal
}

type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type Book struct {
	Bids []BookLevel
	Asks []BookLevel
}

type PricePoint struct {
	At    time.Time
	Price decimal.Decimal
}

// MarketInfo is the venue's metadata for one condition.
type MarketInfo struct {
	ConditionID     string
	Question        string
	Slug            string
	Active          bool
	Closed          bool
	AcceptingOrders bool
	TokenIDs        []string
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireBook struct {
	Bids []wireLevel `json:"bids"`
	Asks []wireLevel `json:"asks"`
}

type wireOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

type wirePlaceResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderID"`
	ErrorMsg string `json:"errorMsg"`
}

type wireHistoryPoint struct {
	T int64       `json:"t"`
	P json.Number `json:"p"`
}

type wireHistory struct {
	History []wireHistoryPoint `json:"history"`
}

type wireToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

type wireMarket struct {
	ConditionID     string      `json:"condition_id"`
	Question        string      `json:"question"`
	Slug            string      `json:"market_slug"`
	Active          bool        `json:"active"`
	Closed          bool        `json:"closed"`
	AcceptingOrders bool        `json:"accepting_orders"`
	Tokens          []wireToken `json:"tokens"`
}

type wireMarketsPage struct {
	Data       []wireMarket `json:"data"`
	NextCursor string       `json:"next_cursor"`
}
