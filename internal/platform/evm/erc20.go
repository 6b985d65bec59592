package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

const erc20ABIJSON = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"balanceOf","type":"function","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

var erc20ABI = mustABI(erc20ABIJSON)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ERC20 adapts a standard fungible token contract to domain.Custody. The
// custody account is the client's signing account.
type ERC20 struct {
	client *Client
	token  string // contract address, lowercase hex
}

var _ domain.Custody = (*ERC20)(nil)

// NewERC20 creates a custody adapter over the token contract at addr.
func NewERC20(client *Client, addr string) *ERC20 {
	return &ERC20{client: client, token: strings.ToLower(addr)}
}

func (e *ERC20) Address() string {
	return addrString(e.client.From())
}

func (e *ERC20) Transfer(ctx context.Context, to string, amount *big.Int) error {
	data, err := erc20ABI.Pack("transfer", parseAddr(to), amount)
	if err != nil {
		return fmt.Errorf("evm: pack transfer: %w", err)
	}
	if _, err := e.client.transact(ctx, parseAddr(e.token), data); err != nil {
		return fmt.Errorf("evm: transfer %s to %s: %w", amount, to, err)
	}
	return nil
}

func (e *ERC20) TransferFrom(ctx context.Context, owner, to string, amount *big.Int) error {
	data, err := erc20ABI.Pack("transferFrom", parseAddr(owner), parseAddr(to), amount)
	if err != nil {
		return fmt.Errorf("evm: pack transferFrom: %w", err)
	}
	if _, err := e.client.transact(ctx, parseAddr(e.token), data); err != nil {
		return fmt.Errorf("evm: transferFrom %s of %s: %w", owner, amount, err)
	}
	return nil
}

func (e *ERC20) Approve(ctx context.Context, spender string, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", parseAddr(spender), amount)
	if err != nil {
		return fmt.Errorf("evm: pack approve: %w", err)
	}
	if _, err := e.client.transact(ctx, parseAddr(e.token), data); err != nil {
		return fmt.Errorf("evm: approve %s for %s: %w", spender, amount, err)
	}
	return nil
}

func (e *ERC20) BalanceOf(ctx context.Context, holder string) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", parseAddr(holder))
	if err != nil {
		return nil, fmt.Errorf("evm: pack balanceOf: %w", err)
	}
	out, err := e.client.call(ctx, parseAddr(e.token), data)
	if err != nil {
		return nil, fmt.Errorf("evm: balanceOf %s: %w", holder, err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack balanceOf: %w", err)
	}
	balance, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("evm: balanceOf returned %T", vals[0])
	}
	return balance, nil
}
