package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// remediationLockKey fences the remediation worker across replicas.
const remediationLockKey = "remediation"

// registerStuckDelivery records value that was debited but not delivered.
// Called with the vault mutex held.
func (v *Vault) registerStuckDelivery(ctx context.Context, positionID uint64, amount *big.Int, destination, recipient string, routeData []byte, reason string, cause error) {
	now := v.now()
	d := domain.PendingDelivery{
		ID:          uuid.New().String(),
		PositionID:  positionID,
		Amount:      new(big.Int).Set(amount),
		Destination: destination,
		Recipient:   recipient,
		RouteData:   routeData,
		Reason:      reason,
		Attempts:    1,
		LastError:   cause.Error(),
		Status:      domain.DeliveryStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if v.stores.Deliveries != nil {
		if err := v.stores.Deliveries.Insert(ctx, d); err != nil {
			v.logger.ErrorContext(ctx, "persist stuck delivery failed",
				slog.Uint64("position_id", positionID),
				slog.String("error", err.Error()),
			)
		}
	}
	v.publish(ctx, "deliveries", d)
	if v.notifier != nil {
		_ = v.notifier.Notify(ctx, "delivery_stuck", "Delivery stuck",
			fmt.Sprintf("Position %d: %s locked-asset units owed to %s (%s): %v",
				positionID, amount, recipient, reason, cause))
	}

	v.logger.WarnContext(ctx, "delivery stuck, funds remain in custody",
		slog.Uint64("position_id", positionID),
		slog.String("amount", amount.String()),
		slog.String("recipient", recipient),
		slog.String("reason", reason),
	)
}

// RetryDelivery re-attempts a stuck delivery. Admin only. The ledger is
// never touched: only the delivery leg is repeated.
func (v *Vault) RetryDelivery(ctx context.Context, caller, deliveryID string) (domain.PendingDelivery, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleAdmin); err != nil {
		return domain.PendingDelivery{}, err
	}
	if v.stores.Deliveries == nil {
		return domain.PendingDelivery{}, domain.ErrNotFound
	}

	d, err := v.stores.Deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return domain.PendingDelivery{}, err
	}
	if d.Status != domain.DeliveryStatusPending {
		return d, nil
	}
	return v.retryDelivery(ctx, d)
}

// retryDelivery repeats the delivery leg for a pending row and updates
// its remediation state. Called with the vault mutex held.
func (v *Vault) retryDelivery(ctx context.Context, d domain.PendingDelivery) (domain.PendingDelivery, error) {
	var err error
	switch d.Reason {
	case "claim":
		// Claim refunds always use the direct local path, whatever the
		// position's destination was.
		if terr := v.custody.Transfer(ctx, d.Recipient, d.Amount); terr != nil {
			err = fmt.Errorf("service: retry refund to %s: %v: %w", d.Recipient, terr, domain.ErrTransferFailed)
		}
	case "refund":
		// Aborted-purchase refunds move the deposit asset, not the locked
		// asset.
		if terr := v.deposit.Transfer(ctx, d.Recipient, d.Amount); terr != nil {
			err = fmt.Errorf("service: retry deposit refund to %s: %v: %w", d.Recipient, terr, domain.ErrTransferFailed)
		}
	default:
		err = v.router.Deliver(ctx, d.Amount, d.Destination, d.RouteData, d.Recipient)
	}

	d.Attempts++
	d.UpdatedAt = v.now()
	if err != nil {
		d.LastError = err.Error()
	} else {
		d.LastError = ""
		d.Status = domain.DeliveryStatusDelivered
	}

	if uerr := v.stores.Deliveries.Update(ctx, d); uerr != nil {
		v.logger.ErrorContext(ctx, "update stuck delivery failed",
			slog.String("delivery_id", d.ID),
			slog.String("error", uerr.Error()),
		)
	}
	v.publish(ctx, "deliveries", d)

	if err != nil {
		return d, err
	}

	v.audit(ctx, "delivery_recovered", map[string]any{
		"delivery_id": d.ID,
		"position_id": d.PositionID,
		"amount":      d.Amount.String(),
	})
	if v.notifier != nil {
		_ = v.notifier.Notify(ctx, "delivery_recovered", "Delivery recovered",
			fmt.Sprintf("Position %d: %s locked-asset units delivered to %s after %d attempts",
				d.PositionID, d.Amount, d.Recipient, d.Attempts))
	}
	return d, nil
}

// RemediationWorker periodically retries all pending deliveries. A
// distributed lock ensures only one replica runs a pass at a time.
type RemediationWorker struct {
	vault    *Vault
	locks    domain.LockManager
	interval time.Duration
	logger   *slog.Logger
}

// NewRemediationWorker creates a worker retrying stuck deliveries every
// interval.
func NewRemediationWorker(vault *Vault, locks domain.LockManager, interval time.Duration, logger *slog.Logger) *RemediationWorker {
	return &RemediationWorker{
		vault:    vault,
		locks:    locks,
		interval: interval,
		logger:   logger.With(slog.String("component", "remediation")),
	}
}

// Run blocks until the context is cancelled, executing one retry pass per
// tick.
func (w *RemediationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "remediation pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce executes a single retry pass over all pending deliveries.
func (w *RemediationWorker) RunOnce(ctx context.Context) error {
	if w.locks != nil {
		unlock, err := w.locks.Acquire(ctx, remediationLockKey, w.interval)
		if err != nil {
			if err == domain.ErrLockHeld {
				return nil // another replica is on it
			}
			return fmt.Errorf("remediation: acquire lock: %w", err)
		}
		defer unlock()
	}

	pending, err := w.vault.ListPendingDeliveries(ctx)
	if err != nil {
		return fmt.Errorf("remediation: list pending: %w", err)
	}

	for _, d := range pending {
		w.vault.mu.Lock()
		_, rerr := w.vault.retryDelivery(ctx, d)
		w.vault.mu.Unlock()
		if rerr != nil {
			w.logger.InfoContext(ctx, "delivery still stuck",
				slog.String("delivery_id", d.ID),
				slog.Uint64("position_id", d.PositionID),
				slog.String("error", rerr.Error()),
			)
		}
	}
	return nil
}
