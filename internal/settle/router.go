// Package settle routes final value delivery: locally on the issuing
// network, or across the bridge for remote destinations.
package settle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// Registry resolves destination names to network identifiers. Implemented
// by the position ledger.
type Registry interface {
	ResolveDestination(name string) (domain.Destination, error)
}

// Router decides between the local transfer path and the bridge path.
// The caller must treat its ledger debit as committed before invoking
// Deliver: a failed delivery is a stuck-funds condition, not a rollback.
type Router struct {
	registry Registry
	custody  domain.Custody
	logger   *slog.Logger

	mu     sync.RWMutex
	bridge domain.Bridge
}

// NewRouter creates a Router. The bridge may be nil until the
// administrator configures one; local deliveries work without it.
func NewRouter(registry Registry, custody domain.Custody, bridge domain.Bridge, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		custody:  custody,
		bridge:   bridge,
		logger:   logger.With(slog.String("component", "settle")),
	}
}

// SetBridge swaps the bridge collaborator (admin-settable at runtime).
func (r *Router) SetBridge(b domain.Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridge = b
}

// Deliver sends amount of the locked asset to recipient on the network
// the destination resolves to. routeData is opaque pass-through for the
// bridge; it is ignored on the local path. Spending authority over
// exactly amount is granted to the bridge immediately before the call.
func (r *Router) Deliver(ctx context.Context, amount *big.Int, destination string, routeData []byte, recipient string) error {
	dest, err := r.registry.ResolveDestination(destination)
	if err != nil {
		return fmt.Errorf("settle: resolve %q: %w", destination, err)
	}

	if dest.Local() {
		if err := r.custody.Transfer(ctx, recipient, amount); err != nil {
			return fmt.Errorf("settle: local transfer to %s: %v: %w", recipient, err, domain.ErrTransferFailed)
		}
		r.logger.InfoContext(ctx, "local delivery complete",
			slog.String("recipient", recipient),
			slog.String("amount", amount.String()),
		)
		return nil
	}

	r.mu.RLock()
	bridge := r.bridge
	r.mu.RUnlock()
	if bridge == nil {
		return fmt.Errorf("settle: no bridge configured for network %d: %w", dest.NetworkID, domain.ErrBridgeFailed)
	}

	if err := r.custody.Approve(ctx, bridge.Spender(), amount); err != nil {
		return fmt.Errorf("settle: approve bridge: %v: %w", err, domain.ErrBridgeFailed)
	}
	if err := bridge.Deliver(ctx, dest.NetworkID, amount, recipient, routeData); err != nil {
		return fmt.Errorf("settle: bridge to network %d: %v: %w", dest.NetworkID, err, domain.ErrBridgeFailed)
	}

	r.logger.InfoContext(ctx, "bridge delivery dispatched",
		slog.Uint64("network_id", dest.NetworkID),
		slog.String("recipient", recipient),
		slog.String("amount", amount.String()),
	)
	return nil
}
