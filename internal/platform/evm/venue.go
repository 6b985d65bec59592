package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

const ammRouterABIJSON = `[
	{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
	{"name":"swapExactTokensForTokens","type":"function","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var (
	ammRouterABI = mustABI(ammRouterABIJSON)

	// Transfer(address,address,uint256)
	transferEventSig = ethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

const swapDeadline = 5 * time.Minute

// AMMVenue executes exact-input swaps of the deposit asset into the
// locked asset through a constant-product router contract.
type AMMVenue struct {
	client      *Client
	router      string
	depositAddr common.Address
	lockedAddr  common.Address
}

var _ domain.SwapVenue = (*AMMVenue)(nil)

// NewAMMVenue creates a venue swapping depositAsset into lockedAsset via
// the router contract at routerAddr.
func NewAMMVenue(client *Client, routerAddr, depositAsset, lockedAsset string) *AMMVenue {
	return &AMMVenue{
		client:      client,
		router:      strings.ToLower(routerAddr),
		depositAddr: parseAddr(depositAsset),
		lockedAddr:  parseAddr(lockedAsset),
	}
}

func (v *AMMVenue) Spender() string { return v.router }

// SwapExactInput quotes the swap first and rejects with
// ErrSlippageExceeded before committing a transaction that the router
// would revert anyway. The minimum is still passed on-chain: the quote
// gate is an early exit, not the enforcement point.
func (v *AMMVenue) SwapExactInput(ctx context.Context, inputAmount, minOutput *big.Int) (*big.Int, error) {
	path := []common.Address{v.depositAddr, v.lockedAddr}

	quote, err := v.quote(ctx, inputAmount, path)
	if err != nil {
		return nil, err
	}
	if minOutput != nil && quote.Cmp(minOutput) < 0 {
		return nil, fmt.Errorf("evm: quote %s below minimum %s: %w", quote, minOutput, domain.ErrSlippageExceeded)
	}

	min := minOutput
	if min == nil {
		min = new(big.Int)
	}
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	data, err := ammRouterABI.Pack("swapExactTokensForTokens",
		inputAmount, min, path, v.client.From(), deadline)
	if err != nil {
		return nil, fmt.Errorf("evm: pack swap: %w", err)
	}

	receipt, err := v.client.transact(ctx, parseAddr(v.router), data)
	if err != nil {
		return nil, fmt.Errorf("evm: swap %s: %w", inputAmount, err)
	}

	if out := v.outputFromLogs(receipt); out != nil {
		return out, nil
	}
	// No matching transfer log (non-standard pair contract): fall back to
	// the pre-trade quote, which the router held us to via amountOutMin.
	return quote, nil
}

func (v *AMMVenue) quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := ammRouterABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("evm: pack quote: %w", err)
	}
	out, err := v.client.call(ctx, parseAddr(v.router), data)
	if err != nil {
		return nil, fmt.Errorf("evm: quote: %w", err)
	}
	vals, err := ammRouterABI.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack quote: %w", err)
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("evm: quote returned %T", vals[0])
	}
	return amounts[len(amounts)-1], nil
}

// outputFromLogs extracts the locked-asset amount transferred to the
// vault account from the swap receipt, or nil when absent.
func (v *AMMVenue) outputFromLogs(receipt *types.Receipt) *big.Int {
	to := common.BytesToHash(common.LeftPadBytes(v.client.From().Bytes(), 32))
	for _, l := range receipt.Logs {
		if l.Address != v.lockedAddr || len(l.Topics) != 3 {
			continue
		}
		if l.Topics[0] != transferEventSig || l.Topics[2] != to {
			continue
		}
		return new(big.Int).SetBytes(l.Data)
	}
	return nil
}
