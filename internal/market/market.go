// Package market maps a binary market's condition id onto its two outcome
// tokens.
package market

import (
	"context"
	"fmt"
	"log"

	"polymaker/internal/clob"
	"polymaker/internal/core"
)

type Market struct {
	ConditionID string
	tokenIDs    map[core.Token]string
}

// New builds a market from explicit outcome token ids.
func New(conditionID, tokenAID, tokenBID string) (*Market, error) {
	if conditionID == "" {
		return nil, fmt.Errorf("condition id required")
	}
	if tokenAID == "" || tokenBID == "" || tokenAID == tokenBID {
		return nil, fmt.Errorf("market %s: two distinct token ids required", conditionID)
	}
	m := &Market{
		ConditionID: conditionID,
		tokenIDs: map[core.Token]string{
			core.TokenA: tokenAID,
			core.TokenB: tokenBID,
		},
	}
	log.Printf("level=DEBUG event=market_initialized condition_id=%q token_a=%q token_b=%q",
		conditionID, tokenAID, tokenBID)
	return m, nil
}

// Discover resolves the outcome token ids from the venue's market
// metadata.
func Discover(ctx context.Context, client *clob.Client, conditionID string) (*Market, error) {
	info, err := client.Market(ctx, conditionID)
	if err != nil {
		return nil, fmt.Errorf("discover market %s: %w", conditionID, err)
	}
	if len(info.TokenIDs) < 2 {
		return nil, fmt.Errorf("market %s: expected two outcome tokens, got %d", conditionID, len(info.TokenIDs))
	}
	return New(conditionID, info.TokenIDs[0], info.TokenIDs[1])
}

// TokenID returns the venue asset id for an outcome token.
func (m *Market) TokenID(token core.Token) string {
	return m.tokenIDs[token]
}

// Token resolves a venue asset id back onto Token A/B.
func (m *Market) Token(tokenID string) (core.Token, error) {
	for token, id := range m.tokenIDs {
		if id == tokenID {
			return token, nil
		}
	}
	return "", fmt.Errorf("unrecognized token id %q for market %s", tokenID, m.ConditionID)
}

// TokenIDs returns both outcome token ids, token A first.
func (m *Market) TokenIDs() []string {
	return []string{m.tokenIDs[core.TokenA], m.tokenIDs[core.TokenB]}
}
