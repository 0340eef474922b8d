// Package chain reads keeper balances and manages token approvals onchain.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"polymaker/internal/metrics"
)

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const erc1155ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"setApprovalForAll","type":"function","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]}
]`

// tokenDecimals is the fixed-point scale of the collateral and conditional
// tokens on the venue's chain.
const tokenDecimals = 6

type Options struct {
	RPCURL             string
	PrivateKeyHex      string
	CollateralAddress  string
	ConditionalAddress string
	ExchangeAddress    string
}

// Contracts wraps the onchain calls the keeper needs: balance reads for
// collateral/conditional tokens and the one-time max approvals that let
// the exchange move them.
type Contracts struct {
	eth         *ethclient.Client
	key         *ecdsa.PrivateKey
	address     common.Address
	chainID     *big.Int
	collateral  *bind.BoundContract
	conditional *bind.BoundContract
	exchange    common.Address
}

func Dial(ctx context.Context, opts Options) (*Contracts, error) {
	eth, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}
	erc1155, err := abi.JSON(strings.NewReader(erc1155ABI))
	if err != nil {
		return nil, err
	}
	collateralAddr := common.HexToAddress(opts.CollateralAddress)
	conditionalAddr := common.HexToAddress(opts.ConditionalAddress)
	c := &Contracts{
		eth:         eth,
		key:         key,
		address:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:     chainID,
		collateral:  bind.NewBoundContract(collateralAddr, erc20, eth, eth, eth),
		conditional: bind.NewBoundContract(conditionalAddr, erc1155, eth, eth, eth),
		exchange:    common.HexToAddress(opts.ExchangeAddress),
	}
	log.Printf("level=INFO event=chain_connected chain_id=%s keeper_address=%q", chainID.String(), c.address.Hex())
	return c, nil
}

func (c *Contracts) Address() common.Address {
	return c.address
}

func (c *Contracts) Close() {
	c.eth.Close()
}

// CollateralBalance returns the keeper's collateral token balance.
func (c *Contracts) CollateralBalance(ctx context.Context) (decimal.Decimal, error) {
	var out []interface{}
	err := c.collateral.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", c.address)
	c.observe("collateral_balance", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("collateral balanceOf: %w", err)
	}
	return scaledBalance(out)
}

// OutcomeBalance returns the keeper's balance of one conditional outcome
// token.
func (c *Contracts) OutcomeBalance(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("bad token id %q", tokenID)
	}
	var out []interface{}
	err := c.conditional.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", c.address, id)
	c.observe("outcome_balance", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("conditional balanceOf: %w", err)
	}
	return scaledBalance(out)
}

// GasBalance returns the keeper's native token balance.
func (c *Contracts) GasBalance(ctx context.Context) (decimal.Decimal, error) {
	wei, err := c.eth.BalanceAt(ctx, c.address, nil)
	c.observe("gas_balance", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("gas balance: %w", err)
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

// EnsureApprovals grants the exchange a max collateral allowance and
// conditional-token operator rights, skipping anything already in place.
func (c *Contracts) EnsureApprovals(ctx context.Context) error {
	if err := c.ensureCollateralAllowance(ctx); err != nil {
		return err
	}
	return c.ensureConditionalApproval(ctx)
}

func (c *Contracts) ensureCollateralAllowance(ctx context.Context) error {
	var out []interface{}
	if err := c.collateral.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", c.address, c.exchange); err != nil {
		return fmt.Errorf("collateral allowance: %w", err)
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("collateral allowance: unexpected output %T", out[0])
	}
	threshold := new(big.Int).Rsh(abi.MaxUint256, 1)
	if allowance.Cmp(threshold) > 0 {
		return nil
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := c.collateral.Transact(opts, "approve", c.exchange, abi.MaxUint256)
	c.observe("approve_collateral", err)
	if err != nil {
		return fmt.Errorf("approve collateral: %w", err)
	}
	if _, err := bind.WaitMined(ctx, c.eth, tx); err != nil {
		return fmt.Errorf("approve collateral mine: %w", err)
	}
	log.Printf("level=INFO event=collateral_approved exchange=%q tx=%q", c.exchange.Hex(), tx.Hash().Hex())
	return nil
}

func (c *Contracts) ensureConditionalApproval(ctx context.Context) error {
	var out []interface{}
	if err := c.conditional.Call(&bind.CallOpts{Context: ctx}, &out, "isApprovedForAll", c.address, c.exchange); err != nil {
		return fmt.Errorf("conditional isApprovedForAll: %w", err)
	}
	if approved, ok := out[0].(bool); ok && approved {
		return nil
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := c.conditional.Transact(opts, "setApprovalForAll", c.exchange, true)
	c.observe("approve_conditional", err)
	if err != nil {
		return fmt.Errorf("approve conditional: %w", err)
	}
	if _, err := bind.WaitMined(ctx, c.eth, tx); err != nil {
		return fmt.Errorf("approve conditional mine: %w", err)
	}
	log.Printf("level=INFO event=conditional_approved exchange=%q tx=%q", c.exchange.Hex(), tx.Hash().Hex())
	return nil
}

func (c *Contracts) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

func (c *Contracts) observe(method string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ChainRequests.WithLabelValues(method, status).Inc()
}

func scaledBalance(out []interface{}) (decimal.Decimal, error) {
	if len(out) == 0 {
		return decimal.Zero, fmt.Errorf("empty call output")
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected call output %T", out[0])
	}
	return decimal.NewFromBigInt(raw, -tokenDecimals), nil
}
