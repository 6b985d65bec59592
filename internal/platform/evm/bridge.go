package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

const bridgeABIJSON = `[
	{"name":"deliver","type":"function","inputs":[{"name":"networkId","type":"uint64"},{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"},{"name":"routeData","type":"bytes"}],"outputs":[]}
]`

var bridgeABI = mustABI(bridgeABIJSON)

// ContractBridge adapts a cross-network delivery contract to
// domain.Bridge. The contract pulls the locked asset from the vault
// account, so it must hold an allowance before Deliver.
type ContractBridge struct {
	client *Client
	addr   string
}

var _ domain.Bridge = (*ContractBridge)(nil)

// NewContractBridge creates a bridge adapter over the contract at addr.
func NewContractBridge(client *Client, addr string) *ContractBridge {
	return &ContractBridge{client: client, addr: strings.ToLower(addr)}
}

func (b *ContractBridge) Spender() string { return b.addr }

func (b *ContractBridge) Deliver(ctx context.Context, networkID uint64, amount *big.Int, recipient string, routeData []byte) error {
	data, err := bridgeABI.Pack("deliver", networkID, amount, parseAddr(recipient), routeData)
	if err != nil {
		return fmt.Errorf("evm: pack deliver: %w", err)
	}
	if _, err := b.client.transact(ctx, parseAddr(b.addr), data); err != nil {
		return fmt.Errorf("evm: bridge deliver %s to network %d: %w", amount, networkID, err)
	}
	return nil
}
