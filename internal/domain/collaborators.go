package domain

import (
	"context"
	"math/big"
)

// The vault's external collaborators. Production implementations live in
// internal/platform/evm; tests substitute deterministic fakes.

// Custody is the fungible locked-asset transfer primitive. All methods
// surface failure; nothing is silently ignored.
type Custody interface {
	// Transfer sends amount from the vault's custody account to `to`.
	Transfer(ctx context.Context, to string, amount *big.Int) error
	// TransferFrom pulls amount from owner into `to` (requires prior
	// allowance from owner).
	TransferFrom(ctx context.Context, owner, to string, amount *big.Int) error
	// Approve grants spender an allowance of exactly amount over the
	// vault's custody balance.
	Approve(ctx context.Context, spender string, amount *big.Int) error
	// BalanceOf returns the current balance of holder.
	BalanceOf(ctx context.Context, holder string) (*big.Int, error)
	// Address returns the vault's custody account address.
	Address() string
}

// SwapVenue converts deposit asset into locked asset with an exact-input
// order. The minimum-output guarantee is the single point where price
// risk enters the system.
type SwapVenue interface {
	// SwapExactInput executes an exact-input swap and returns the
	// locked-asset output. It returns ErrSlippageExceeded when the output
	// would be below minOutput.
	SwapExactInput(ctx context.Context, inputAmount, minOutput *big.Int) (*big.Int, error)
	// Spender returns the address that must be approved for the input.
	Spender() string
}

// Bridge delivers locked-asset value to a remote network. RouteData is
// opaque pass-through prepared off-system by a relayer.
type Bridge interface {
	Deliver(ctx context.Context, networkID uint64, amount *big.Int, recipient string, routeData []byte) error
	// Spender returns the address that must be approved before Deliver.
	Spender() string
}

// PositionToken is the position identity registry: exactly one active
// holder per open position, none for closed ones.
type PositionToken interface {
	Mint(ctx context.Context, id uint64, owner string) error
	Burn(ctx context.Context, id uint64) error
	// OwnerOf returns the current holder, or ErrNotFound for an unknown
	// or retired id.
	OwnerOf(ctx context.Context, id uint64) (string, error)
}
