package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

const positionTokenABIJSON = `[
	{"name":"mint","type":"function","inputs":[{"name":"id","type":"uint256"},{"name":"to","type":"address"}],"outputs":[]},
	{"name":"burn","type":"function","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
]`

var positionTokenABI = mustABI(positionTokenABIJSON)

// PositionToken adapts the non-fungible position registry contract to
// domain.PositionToken.
type PositionToken struct {
	client *Client
	addr   string
}

var _ domain.PositionToken = (*PositionToken)(nil)

// NewPositionToken creates a registry adapter over the contract at addr.
func NewPositionToken(client *Client, addr string) *PositionToken {
	return &PositionToken{client: client, addr: strings.ToLower(addr)}
}

func (t *PositionToken) Mint(ctx context.Context, id uint64, owner string) error {
	data, err := positionTokenABI.Pack("mint", new(big.Int).SetUint64(id), parseAddr(owner))
	if err != nil {
		return fmt.Errorf("evm: pack mint: %w", err)
	}
	if _, err := t.client.transact(ctx, parseAddr(t.addr), data); err != nil {
		return fmt.Errorf("evm: mint token %d: %w", id, err)
	}
	return nil
}

func (t *PositionToken) Burn(ctx context.Context, id uint64) error {
	data, err := positionTokenABI.Pack("burn", new(big.Int).SetUint64(id))
	if err != nil {
		return fmt.Errorf("evm: pack burn: %w", err)
	}
	if _, err := t.client.transact(ctx, parseAddr(t.addr), data); err != nil {
		return fmt.Errorf("evm: burn token %d: %w", id, err)
	}
	return nil
}

// OwnerOf resolves the current holder. Registry contracts revert for an
// unknown or retired id; any call failure maps to ErrNotFound.
func (t *PositionToken) OwnerOf(ctx context.Context, id uint64) (string, error) {
	data, err := positionTokenABI.Pack("ownerOf", new(big.Int).SetUint64(id))
	if err != nil {
		return "", fmt.Errorf("evm: pack ownerOf: %w", err)
	}
	out, err := t.client.call(ctx, parseAddr(t.addr), data)
	if err != nil {
		return "", fmt.Errorf("evm: token %d: %w", id, domain.ErrNotFound)
	}
	vals, err := positionTokenABI.Unpack("ownerOf", out)
	if err != nil {
		return "", fmt.Errorf("evm: unpack ownerOf: %w", err)
	}
	owner, ok := vals[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("evm: ownerOf returned %T", vals[0])
	}
	if owner == (common.Address{}) {
		return "", fmt.Errorf("evm: token %d: %w", id, domain.ErrNotFound)
	}
	return addrString(owner), nil
}
