// Package service hosts the vault orchestrator: the purchase, redeem, and
// claim-expired flows, the administrative entry points, and the stuck-
// delivery remediation path.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gasvaultlabs/gasvault/internal/domain"
	"github.com/gasvaultlabs/gasvault/internal/ledger"
	"github.com/gasvaultlabs/gasvault/internal/settle"
)

// Role identifies the privilege level required by a mutating entry point.
type Role int

const (
	RoleAdmin Role = iota + 1
	RoleOperator
)

// Stores bundles the persistence dependencies of the vault.
type Stores struct {
	Positions    domain.PositionStore
	Destinations domain.DestinationStore
	Fees         domain.FeeStore
	Records      domain.RecordStore
	Deliveries   domain.DeliveryStore
	Audit        domain.AuditStore
}

// Notifier is the minimal alerting interface the vault needs; implemented
// by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Vault composes the position ledger, the external collaborators, and the
// persistence layer into the three public flows. Every mutating flow runs
// under a single mutex: flows never interleave on the same ledger.
type Vault struct {
	mu sync.Mutex

	ledger *ledger.Ledger
	router *settle.Router

	custody domain.Custody // locked asset
	deposit domain.Custody // deposit asset, used only by the purchase flow
	token   domain.PositionToken
	venue   domain.SwapVenue // nil until configured
	bridge  domain.Bridge    // nil until configured

	admin    string
	operator string

	defaultTTL time.Duration

	stores   Stores
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger

	now func() time.Time
}

// Config carries the construction parameters for a Vault.
type Config struct {
	Admin      string
	Operator   string
	DefaultTTL time.Duration
}

// NewVault creates a Vault. custody moves the locked asset; deposit moves
// the deposit asset. venue and bridge may be nil; the purchase flow
// rejects with ErrVenueNotConfigured until an administrator sets a venue.
func NewVault(
	cfg Config,
	led *ledger.Ledger,
	custody domain.Custody,
	deposit domain.Custody,
	token domain.PositionToken,
	venue domain.SwapVenue,
	bridge domain.Bridge,
	stores Stores,
	bus domain.SignalBus,
	notifier Notifier,
	logger *slog.Logger,
) *Vault {
	v := &Vault{
		ledger:     led,
		custody:    custody,
		deposit:    deposit,
		token:      token,
		venue:      venue,
		bridge:     bridge,
		admin:      normalizeAddr(cfg.Admin),
		operator:   normalizeAddr(cfg.Operator),
		defaultTTL: cfg.DefaultTTL,
		stores:     stores,
		bus:        bus,
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "vault")),
		now:        func() time.Time { return time.Now().UTC() },
	}
	v.router = settle.NewRouter(led, custody, bridge, logger)
	return v
}

// Ledger exposes the underlying ledger for read-only wiring (the settle
// registry and startup replay).
func (v *Vault) Ledger() *ledger.Ledger { return v.ledger }

// normalizeAddr lowercases a hex address so identity comparison is
// case-insensitive.
func normalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// requireRole gates a mutating entry point on the caller's role. It is
// called at the top of every flow, before any external call or mutation.
func (v *Vault) requireRole(caller string, role Role) error {
	c := normalizeAddr(caller)
	switch role {
	case RoleAdmin:
		if c == "" || c != v.admin {
			return domain.ErrAccessDenied
		}
	case RoleOperator:
		if c == "" || c != v.operator {
			return domain.ErrAccessDenied
		}
	default:
		return domain.ErrAccessDenied
	}
	return nil
}

// ---------------------------------------------------------------------------
// Administrative entry points
// ---------------------------------------------------------------------------

// SetOperator designates the authorized operator identity.
func (v *Vault) SetOperator(ctx context.Context, caller, operator string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	v.operator = normalizeAddr(operator)
	v.audit(ctx, "operator_set", map[string]any{"operator": v.operator})
	return nil
}

// SetVenue installs the price-execution venue collaborator.
func (v *Vault) SetVenue(ctx context.Context, caller string, venue domain.SwapVenue) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	v.venue = venue
	v.audit(ctx, "venue_set", map[string]any{"spender": venue.Spender()})
	return nil
}

// SetBridge installs the bridge collaborator used for remote deliveries.
func (v *Vault) SetBridge(ctx context.Context, caller string, bridge domain.Bridge) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleAdmin); err != nil {
		return err
	}
	v.bridge = bridge
	v.router.SetBridge(bridge)
	v.audit(ctx, "bridge_set", map[string]any{"spender": bridge.Spender()})
	return nil
}

// RegisterDestination appends a destination to the registry.
func (v *Vault) RegisterDestination(ctx context.Context, caller, name string, networkID uint64) (domain.Destination, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleAdmin); err != nil {
		return domain.Destination{}, err
	}

	dest, err := v.ledger.RegisterDestination(name, networkID, v.now())
	if err != nil {
		return domain.Destination{}, err
	}
	if v.stores.Destinations != nil {
		if err := v.stores.Destinations.Insert(ctx, dest); err != nil {
			v.logger.WarnContext(ctx, "persist destination failed",
				slog.String("name", dest.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	v.audit(ctx, "destination_registered", map[string]any{
		"name":       dest.Name,
		"network_id": dest.NetworkID,
	})
	return dest, nil
}

// SweepFees transfers the accumulated protocol fees to recipient and
// zeroes the accumulator. On transfer failure the accumulator is restored
// so the fee-conservation invariant holds.
func (v *Vault) SweepFees(ctx context.Context, caller, recipient string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleAdmin); err != nil {
		return nil, err
	}

	swept := v.ledger.SweepFees()
	if swept.Sign() == 0 {
		return swept, nil
	}

	if err := v.custody.Transfer(ctx, recipient, swept); err != nil {
		v.ledger.AddFees(swept)
		return nil, fmt.Errorf("service: sweep fees: %v: %w", err, domain.ErrTransferFailed)
	}

	v.persistFees(ctx)
	v.audit(ctx, "fees_swept", map[string]any{
		"recipient": recipient,
		"amount":    swept.String(),
	})
	if v.notifier != nil {
		_ = v.notifier.Notify(ctx, "fees_swept", "Fees swept",
			fmt.Sprintf("Swept %s locked-asset units to %s", swept, recipient))
	}
	return swept, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// PositionView is a position record plus its derived available units.
type PositionView struct {
	domain.Position
	AvailableUnits *big.Int `json:"available_units"`
	Closed         bool     `json:"closed"`
}

// GetPosition returns the full position record and its derived unit count.
func (v *Vault) GetPosition(id uint64) (PositionView, error) {
	pos, err := v.ledger.Get(id)
	if err != nil {
		return PositionView{}, err
	}
	return PositionView{
		Position:       pos,
		AvailableUnits: pos.AvailableUnits(),
		Closed:         pos.Closed(),
	}, nil
}

// AccumulatedFees returns the current fee accumulator value.
func (v *Vault) AccumulatedFees() *big.Int {
	return v.ledger.AccumulatedFees()
}

// ListPendingDeliveries returns all stuck deliveries awaiting remediation.
func (v *Vault) ListPendingDeliveries(ctx context.Context) ([]domain.PendingDelivery, error) {
	if v.stores.Deliveries == nil {
		return nil, nil
	}
	return v.stores.Deliveries.ListPending(ctx)
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// audit best-effort writes an audit entry; failures are logged, never
// propagated into the flow result.
func (v *Vault) audit(ctx context.Context, event string, detail map[string]any) {
	if v.stores.Audit == nil {
		return
	}
	if err := v.stores.Audit.Log(ctx, event, detail); err != nil {
		v.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// publish best-effort broadcasts an event payload on the signal bus.
func (v *Vault) publish(ctx context.Context, channel string, payload any) {
	if v.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := v.bus.Publish(ctx, channel, data); err != nil {
		v.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// persistPosition write-through persists a position snapshot.
func (v *Vault) persistPosition(ctx context.Context, pos domain.Position) {
	if v.stores.Positions == nil {
		return
	}
	if err := v.stores.Positions.Upsert(ctx, pos); err != nil {
		v.logger.ErrorContext(ctx, "persist position failed",
			slog.Uint64("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

// persistFees write-through persists the fee accumulator.
func (v *Vault) persistFees(ctx context.Context) {
	if v.stores.Fees == nil {
		return
	}
	if err := v.stores.Fees.Set(ctx, v.ledger.AccumulatedFees()); err != nil {
		v.logger.ErrorContext(ctx, "persist fees failed",
			slog.String("error", err.Error()),
		)
	}
}
