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

// unitScale expresses the unit price as deposit-asset wei per whole
// (1e18) unit of locked asset. Informational only.
var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PurchaseRequest carries the operator-supplied parameters of a purchase.
type PurchaseRequest struct {
	Buyer         string
	DepositAmount *big.Int
	MinOutput     *big.Int
	Destination   string
	// ExpiresAt is optional; the zero value selects now + the configured
	// default TTL.
	ExpiresAt time.Time
}

// Purchase converts a deposit into a new locked position owned by the
// buyer. Operator only. Validation happens before any external call;
// every abort after the deposit is pulled refunds it, and fees accrue
// only for purchases that complete.
func (v *Vault) Purchase(ctx context.Context, caller string, req PurchaseRequest) (domain.PurchaseRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleOperator); err != nil {
		return domain.PurchaseRecord{}, err
	}
	if req.DepositAmount == nil || req.DepositAmount.Sign() <= 0 {
		return domain.PurchaseRecord{}, domain.ErrZeroAmount
	}
	if _, err := v.ledger.ResolveDestination(req.Destination); err != nil {
		return domain.PurchaseRecord{}, err
	}
	if v.venue == nil {
		return domain.PurchaseRecord{}, domain.ErrVenueNotConfigured
	}

	now := v.now()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(v.defaultTTL)
	}
	if !expiresAt.After(now) {
		return domain.PurchaseRecord{}, domain.ErrInvalidExpiry
	}

	buyer := normalizeAddr(req.Buyer)

	// Pull the deposit into custody and grant the venue spending
	// authority over exactly that amount.
	if err := v.deposit.TransferFrom(ctx, buyer, v.deposit.Address(), req.DepositAmount); err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("service: pull deposit from %s: %w", buyer, err)
	}
	if err := v.deposit.Approve(ctx, v.venue.Spender(), req.DepositAmount); err != nil {
		v.refundDeposit(ctx, buyer, req.DepositAmount)
		return domain.PurchaseRecord{}, fmt.Errorf("service: approve venue: %w", err)
	}

	gross, err := v.venue.SwapExactInput(ctx, req.DepositAmount, req.MinOutput)
	if err != nil {
		v.refundDeposit(ctx, buyer, req.DepositAmount)
		return domain.PurchaseRecord{}, fmt.Errorf("service: swap: %w", err)
	}
	if gross == nil || gross.Sign() == 0 {
		v.refundDeposit(ctx, buyer, req.DepositAmount)
		return domain.PurchaseRecord{}, fmt.Errorf("service: swap returned nothing: %w", domain.ErrSlippageExceeded)
	}

	fee, net := domain.SplitFee(gross, domain.ProtocolFeeBps)
	unitPrice := new(big.Int).Mul(req.DepositAmount, unitScale)
	unitPrice.Div(unitPrice, gross)

	pos, err := v.ledger.Create(net, unitPrice, req.Destination, now, expiresAt)
	if err != nil {
		// Pre-validated above; only a zero net amount can trip here.
		v.refundDeposit(ctx, buyer, req.DepositAmount)
		return domain.PurchaseRecord{}, fmt.Errorf("service: create position: %w", err)
	}

	if err := v.token.Mint(ctx, pos.ID, buyer); err != nil {
		v.ledger.Discard(pos.ID)
		v.refundDeposit(ctx, buyer, req.DepositAmount)
		return domain.PurchaseRecord{}, fmt.Errorf("service: mint position token %d: %w", pos.ID, err)
	}

	// Fees accrue only once the purchase can no longer fail: the
	// accumulator must equal the sum over successful purchases.
	v.ledger.AddFees(fee)

	v.persistPosition(ctx, pos)
	v.persistFees(ctx)

	rec := domain.PurchaseRecord{
		ID:            uuid.New().String(),
		PositionID:    pos.ID,
		Buyer:         buyer,
		DepositAmount: new(big.Int).Set(req.DepositAmount),
		GrossOutput:   gross,
		LockedAmount:  net,
		Fee:           fee,
		UnitPrice:     unitPrice,
		Destination:   req.Destination,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	}
	if v.stores.Records != nil {
		if err := v.stores.Records.InsertPurchase(ctx, rec); err != nil {
			v.logger.WarnContext(ctx, "persist purchase record failed",
				slog.Uint64("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	v.publish(ctx, "purchases", rec)
	v.audit(ctx, "position_purchased", map[string]any{
		"position_id": pos.ID,
		"buyer":       buyer,
		"deposit":     req.DepositAmount.String(),
		"locked":      net.String(),
		"fee":         fee.String(),
		"destination": req.Destination,
	})

	v.logger.InfoContext(ctx, "position purchased",
		slog.Uint64("position_id", pos.ID),
		slog.String("buyer", buyer),
		slog.String("deposit", req.DepositAmount.String()),
		slog.String("locked", net.String()),
	)
	return rec, nil
}

// refundDeposit returns a pulled deposit to the buyer after an aborted
// purchase. A refund failure leaves the deposit in custody and registers
// a pending delivery so the admin API and the remediation worker can
// recover it.
func (v *Vault) refundDeposit(ctx context.Context, buyer string, amount *big.Int) {
	if err := v.deposit.Transfer(ctx, buyer, amount); err != nil {
		werr := fmt.Errorf("service: refund deposit to %s: %v: %w", buyer, err, domain.ErrTransferFailed)
		v.registerStuckDelivery(ctx, 0, amount, "", buyer, nil, "refund", werr)
		v.logger.ErrorContext(ctx, "deposit refund failed",
			slog.String("buyer", buyer),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()),
		)
	}
}

// RedeemRequest carries the operator-supplied parameters of a redemption.
type RedeemRequest struct {
	PositionID uint64
	Amount     *big.Int
	// Recipient defaults to the current holder when empty.
	Recipient string
	// RouteData is opaque bridge routing prepared by a relayer; ignored
	// for local destinations.
	RouteData []byte
}

// Redeem debits a position and delivers the debited amount to the
// recipient over the position's destination. Operator only. The ledger
// debit commits before delivery is attempted: a failed delivery returns
// ErrTransferFailed or ErrBridgeFailed together with the record, leaves
// the debit in place, and registers a pending delivery for remediation.
func (v *Vault) Redeem(ctx context.Context, caller string, req RedeemRequest) (domain.RedemptionRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireRole(caller, RoleOperator); err != nil {
		return domain.RedemptionRecord{}, err
	}

	holder, err := v.token.OwnerOf(ctx, req.PositionID)
	if err != nil {
		return domain.RedemptionRecord{}, fmt.Errorf("service: resolve holder of %d: %w", req.PositionID, err)
	}
	recipient := normalizeAddr(req.Recipient)
	if recipient == "" {
		recipient = normalizeAddr(holder)
	}

	now := v.now()
	closed, pos, err := v.ledger.Decrement(req.PositionID, req.Amount, now)
	if err != nil {
		return domain.RedemptionRecord{}, err
	}
	v.persistPosition(ctx, pos)

	if closed {
		if err := v.token.Burn(ctx, req.PositionID); err != nil {
			// The ledger state is committed; a failed burn only delays
			// token retirement and is surfaced for operator attention.
			v.logger.ErrorContext(ctx, "position token burn failed",
				slog.Uint64("position_id", req.PositionID),
				slog.String("error", err.Error()),
			)
		}
	}

	rec := domain.RedemptionRecord{
		ID:          uuid.New().String(),
		PositionID:  req.PositionID,
		Amount:      new(big.Int).Set(req.Amount),
		Destination: pos.Destination,
		Recipient:   recipient,
		Partial:     !closed,
		Delivered:   true,
		CreatedAt:   now,
	}

	deliverErr := v.router.Deliver(ctx, req.Amount, pos.Destination, req.RouteData, recipient)
	if deliverErr != nil {
		rec.Delivered = false
		v.registerStuckDelivery(ctx, req.PositionID, req.Amount, pos.Destination, recipient, req.RouteData, "redeem", deliverErr)
	}

	if v.stores.Records != nil {
		if err := v.stores.Records.InsertRedemption(ctx, rec); err != nil {
			v.logger.WarnContext(ctx, "persist redemption record failed",
				slog.Uint64("position_id", req.PositionID),
				slog.String("error", err.Error()),
			)
		}
	}
	v.publish(ctx, "redemptions", rec)
	v.audit(ctx, "position_redeemed", map[string]any{
		"position_id": req.PositionID,
		"amount":      req.Amount.String(),
		"recipient":   recipient,
		"partial":     rec.Partial,
		"delivered":   rec.Delivered,
	})

	if deliverErr != nil {
		return rec, deliverErr
	}

	v.logger.InfoContext(ctx, "position redeemed",
		slog.Uint64("position_id", req.PositionID),
		slog.String("amount", req.Amount.String()),
		slog.Bool("partial", rec.Partial),
	)
	return rec, nil
}

// ClaimExpired zeroes an expired position and refunds the remaining
// balance, minus the expiry fee, to the holder. Self-service: the caller
// must be the position's current holder.
func (v *Vault) ClaimExpired(ctx context.Context, caller string, positionID uint64) (domain.ClaimRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	holder, err := v.token.OwnerOf(ctx, positionID)
	if err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("service: resolve holder of %d: %w", positionID, err)
	}
	if normalizeAddr(caller) != normalizeAddr(holder) {
		return domain.ClaimRecord{}, domain.ErrAccessDenied
	}

	now := v.now()
	remaining, pos, err := v.ledger.CloseForExpiry(positionID, now)
	if err != nil {
		return domain.ClaimRecord{}, err
	}

	fee, refund := domain.SplitFee(remaining, domain.ExpiryRefundFeeBps)
	v.ledger.AddFees(fee)
	v.persistPosition(ctx, pos)
	v.persistFees(ctx)

	if err := v.token.Burn(ctx, positionID); err != nil {
		v.logger.ErrorContext(ctx, "position token burn failed",
			slog.Uint64("position_id", positionID),
			slog.String("error", err.Error()),
		)
	}

	rec := domain.ClaimRecord{
		ID:         uuid.New().String(),
		PositionID: positionID,
		Holder:     normalizeAddr(holder),
		Refund:     refund,
		Fee:        fee,
		Delivered:  true,
		CreatedAt:  now,
	}

	var deliverErr error
	if err := v.custody.Transfer(ctx, rec.Holder, refund); err != nil {
		deliverErr = fmt.Errorf("service: refund transfer to %s: %v: %w", rec.Holder, err, domain.ErrTransferFailed)
		rec.Delivered = false
		v.registerStuckDelivery(ctx, positionID, refund, pos.Destination, rec.Holder, nil, "claim", deliverErr)
	}

	if v.stores.Records != nil {
		if err := v.stores.Records.InsertClaim(ctx, rec); err != nil {
			v.logger.WarnContext(ctx, "persist claim record failed",
				slog.Uint64("position_id", positionID),
				slog.String("error", err.Error()),
			)
		}
	}
	v.publish(ctx, "claims", rec)
	v.audit(ctx, "position_claimed", map[string]any{
		"position_id": positionID,
		"holder":      rec.Holder,
		"refund":      refund.String(),
		"fee":         fee.String(),
		"delivered":   rec.Delivered,
	})

	if deliverErr != nil {
		return rec, deliverErr
	}

	v.logger.InfoContext(ctx, "expired position claimed",
		slog.Uint64("position_id", positionID),
		slog.String("refund", refund.String()),
		slog.String("fee", fee.String()),
	)
	return rec, nil
}
