package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"

	"polymaker/internal/core"
)

func quote(id string, side core.Side, token core.Token, price, size string) core.Order {
	return core.Order{
		ID:    id,
		Side:  side,
		Token: token,
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func TestBuildPlanConvergedSetIsEmpty(t *testing.T) {
	live := []core.Order{
		quote("l1", core.Buy, core.TokenA, "0.48", "10"),
		quote("l2", core.Sell, core.TokenA, "0.52", "10"),
	}
	desired := []core.Order{
		quote("", core.Sell, core.TokenA, "0.52", "10"),
		quote("", core.Buy, core.TokenA, "0.48", "10"),
	}

	p := buildPlan(live, desired)
	if !p.empty() {
		t.Fatalf("plan not empty: cancels=%d places=%d", len(p.cancels), len(p.places))
	}
}

func TestBuildPlanMovedPriceReplacesOrder(t *testing.T) {
	live := []core.Order{quote("l1", core.Buy, core.TokenA, "0.48", "10")}
	desired := []core.Order{quote("", core.Buy, core.TokenA, "0.47", "10")}

	p := buildPlan(live, desired)
	if len(p.cancels) != 1 || p.cancels[0].ID != "l1" {
		t.Fatalf("cancels = %+v, want the stale order", p.cancels)
	}
	if len(p.places) != 1 || p.places[0].Price.StringFixed(2) != "0.47" {
		t.Fatalf("places = %+v, want the repriced order", p.places)
	}
}

func TestBuildPlanEmptyDesiredCancelsAll(t *testing.T) {
	live := []core.Order{
		quote("l1", core.Buy, core.TokenA, "0.48", "10"),
		quote("l2", core.Sell, core.TokenB, "0.52", "5"),
	}

	p := buildPlan(live, nil)
	if len(p.cancels) != 2 || len(p.places) != 0 {
		t.Fatalf("plan = cancels=%d places=%d, want 2/0", len(p.cancels), len(p.places))
	}
}

func TestBuildPlanEmptyLivePlacesAll(t *testing.T) {
	desired := []core.Order{
		quote("", core.Buy, core.TokenA, "0.48", "10"),
		quote("", core.Sell, core.TokenA, "0.52", "10"),
	}

	p := buildPlan(nil, desired)
	if len(p.places) != 2 || len(p.cancels) != 0 {
		t.Fatalf("plan = cancels=%d places=%d, want 0/2", len(p.cancels), len(p.places))
	}
}

func TestBuildPlanDuplicateQuotesConsumeDistinctLiveOrders(t *testing.T) {
	live := []core.Order{
		quote("l1", core.Buy, core.TokenA, "0.48", "10"),
		quote("l2", core.Buy, core.TokenA, "0.48", "10"),
	}
	desired := []core.Order{
		quote("", core.Buy, core.TokenA, "0.48", "10"),
		quote("", core.Buy, core.TokenA, "0.48", "10"),
	}

	p := buildPlan(live, desired)
	if !p.empty() {
		t.Fatalf("plan not empty for matching duplicates: cancels=%d places=%d", len(p.cancels), len(p.places))
	}

	p = buildPlan(live, desired[:1])
	if len(p.cancels) != 1 || len(p.places) != 0 {
		t.Fatalf("plan = cancels=%d places=%d, want 1/0", len(p.cancels), len(p.places))
	}
}

func TestBuildPlanSizeMismatchReplaces(t *testing.T) {
	live := []core.Order{quote("l1", core.Sell, core.TokenA, "0.52", "10")}
	desired := []core.Order{quote("", core.Sell, core.TokenA, "0.52", "12")}

	p := buildPlan(live, desired)
	if len(p.cancels) != 1 || len(p.places) != 1 {
		t.Fatalf("plan = cancels=%d places=%d, want 1/1", len(p.cancels), len(p.places))
	}
}

func TestQuotesEqualIgnoresDecimalRepresentation(t *testing.T) {
	a := quote("l1", core.Buy, core.TokenA, "0.40", "10")
	b := quote("", core.Buy, core.TokenA, "0.4", "10.0")

	if !quotesEqual(a, b) {
		t.Fatalf("quotesEqual() = false for numerically equal quotes")
	}
}
