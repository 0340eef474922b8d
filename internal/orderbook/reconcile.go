package orderbook

import (
	"polymaker/internal/core"
)

// plan is the ephemeral output of a single reconciliation diff: live orders
// to cancel and desired orders to place. Never persisted.
type plan struct {
	cancels []core.Order
	places  []core.Order
}

func (p plan) empty() bool {
	return len(p.cancels) == 0 && len(p.places) == 0
}

// buildPlan diffs the live order set against the desired one. A live order
// is kept only when some desired order matches it exactly on token, side,
// tick price and size; each desired order consumes at most one live order.
// Everything live but unmatched is cancelled, everything desired but
// unmatched is placed. A desired order at a new price therefore never
// reuses a live order resting at an old price for the same token and side.
func buildPlan(live, desired []core.Order) plan {
	used := make([]bool, len(live))
	var p plan
	for _, want := range desired {
		matched := false
		for i, have := range live {
			if used[i] {
				continue
			}
			if quotesEqual(have, want) {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			p.places = append(p.places, want)
		}
	}
	for i, have := range live {
		if !used[i] {
			p.cancels = append(p.cancels, have)
		}
	}
	return p
}

func quotesEqual(a, b core.Order) bool {
	return a.Token == b.Token &&
		a.Side == b.Side &&
		a.Price.Equal(b.Price) &&
		a.Size.Equal(b.Size)
}
