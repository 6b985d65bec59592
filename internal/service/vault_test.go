package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasvaultlabs/gasvault/internal/domain"
	"github.com/gasvaultlabs/gasvault/internal/ledger"
)

const (
	adminAddr    = "0xadmin"
	operatorAddr = "0xoperator"
	buyerAddr    = "0xbuyer"
)

var (
	t0     = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry = t0.Add(90 * 24 * time.Hour)
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type transferCall struct {
	to     string
	amount *big.Int
}

type fakeCustody struct {
	transfers     []transferCall
	pulls         []transferCall
	approvals     []transferCall
	transferErr   error
	pullErr       error
	approveErr    error
	failTransfers int // fail this many Transfer calls, then succeed
}

func (c *fakeCustody) Transfer(_ context.Context, to string, amount *big.Int) error {
	if c.failTransfers > 0 {
		c.failTransfers--
		return errors.New("rpc down")
	}
	if c.transferErr != nil {
		return c.transferErr
	}
	c.transfers = append(c.transfers, transferCall{to, new(big.Int).Set(amount)})
	return nil
}

func (c *fakeCustody) TransferFrom(_ context.Context, owner, _ string, amount *big.Int) error {
	if c.pullErr != nil {
		return c.pullErr
	}
	c.pulls = append(c.pulls, transferCall{owner, new(big.Int).Set(amount)})
	return nil
}

func (c *fakeCustody) Approve(_ context.Context, spender string, amount *big.Int) error {
	if c.approveErr != nil {
		return c.approveErr
	}
	c.approvals = append(c.approvals, transferCall{spender, new(big.Int).Set(amount)})
	return nil
}

func (c *fakeCustody) BalanceOf(context.Context, string) (*big.Int, error) { return new(big.Int), nil }
func (c *fakeCustody) Address() string                                     { return "0xvault" }

type fakeVenue struct {
	output  *big.Int
	swapErr error
}

func (v *fakeVenue) SwapExactInput(_ context.Context, _, minOutput *big.Int) (*big.Int, error) {
	if v.swapErr != nil {
		return nil, v.swapErr
	}
	if minOutput != nil && v.output.Cmp(minOutput) < 0 {
		return nil, domain.ErrSlippageExceeded
	}
	return new(big.Int).Set(v.output), nil
}

func (v *fakeVenue) Spender() string { return "0xrouter" }

type fakeToken struct {
	owners  map[uint64]string
	mintErr error
}

func newFakeToken() *fakeToken { return &fakeToken{owners: make(map[uint64]string)} }

func (t *fakeToken) Mint(_ context.Context, id uint64, owner string) error {
	if t.mintErr != nil {
		return t.mintErr
	}
	t.owners[id] = owner
	return nil
}

func (t *fakeToken) Burn(_ context.Context, id uint64) error {
	delete(t.owners, id)
	return nil
}

func (t *fakeToken) OwnerOf(_ context.Context, id uint64) (string, error) {
	owner, ok := t.owners[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return owner, nil
}

type fakeDeliveryStore struct {
	rows map[string]domain.PendingDelivery
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{rows: make(map[string]domain.PendingDelivery)}
}

func (s *fakeDeliveryStore) Insert(_ context.Context, d domain.PendingDelivery) error {
	s.rows[d.ID] = d
	return nil
}

func (s *fakeDeliveryStore) Update(_ context.Context, d domain.PendingDelivery) error {
	if _, ok := s.rows[d.ID]; !ok {
		return domain.ErrNotFound
	}
	s.rows[d.ID] = d
	return nil
}

func (s *fakeDeliveryStore) GetByID(_ context.Context, id string) (domain.PendingDelivery, error) {
	d, ok := s.rows[id]
	if !ok {
		return domain.PendingDelivery{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *fakeDeliveryStore) ListPending(context.Context) ([]domain.PendingDelivery, error) {
	var out []domain.PendingDelivery
	for _, d := range s.rows {
		if d.Status == domain.DeliveryStatusPending {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeDeliveryStore) onlyRow(t *testing.T) domain.PendingDelivery {
	t.Helper()
	require.Len(t, s.rows, 1)
	for _, d := range s.rows {
		return d
	}
	panic("unreachable")
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	vault      *Vault
	custody    *fakeCustody // locked asset
	deposit    *fakeCustody // deposit asset
	token      *fakeToken
	venue      *fakeVenue
	deliveries *fakeDeliveryStore
	ledger     *ledger.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	led := ledger.New()
	_, err := led.RegisterDestination("local", domain.LocalNetworkID, t0)
	require.NoError(t, err)
	_, err = led.RegisterDestination("remote", 137, t0)
	require.NoError(t, err)

	h := &harness{
		custody:    &fakeCustody{},
		deposit:    &fakeCustody{},
		token:      newFakeToken(),
		venue:      &fakeVenue{output: big.NewInt(10_000)},
		deliveries: newFakeDeliveryStore(),
		ledger:     led,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.vault = NewVault(
		Config{Admin: adminAddr, Operator: operatorAddr, DefaultTTL: 90 * 24 * time.Hour},
		led,
		h.custody,
		h.deposit,
		h.token,
		h.venue,
		nil,
		Stores{Deliveries: h.deliveries},
		nil,
		nil,
		logger,
	)
	h.vault.now = func() time.Time { return t0 }
	return h
}

func (h *harness) purchase(t *testing.T, deposit int64) domain.PurchaseRecord {
	t.Helper()
	rec, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer:         buyerAddr,
		DepositAmount: big.NewInt(deposit),
		MinOutput:     big.NewInt(1),
		Destination:   "local",
	})
	require.NoError(t, err)
	return rec
}

// ---------------------------------------------------------------------------
// Purchase
// ---------------------------------------------------------------------------

func TestPurchaseSplitsFeeAndLocksNet(t *testing.T) {
	h := newHarness(t)
	h.venue.output = big.NewInt(10_000)

	rec := h.purchase(t, 5_000)

	// 50 bps of the gross output goes to fees, the rest is locked.
	assert.Equal(t, int64(50), rec.Fee.Int64())
	assert.Equal(t, int64(9_950), rec.LockedAmount.Int64())
	assert.Equal(t, int64(50), h.vault.AccumulatedFees().Int64())

	pos, err := h.ledger.Get(rec.PositionID)
	require.NoError(t, err)
	assert.Equal(t, int64(9_950), pos.RemainingAmount.Int64())
	assert.Equal(t, expiry, pos.ExpiresAt)

	// Deposit pulled from the buyer and approved to the venue, on the
	// deposit asset only.
	require.Len(t, h.deposit.pulls, 1)
	assert.Equal(t, buyerAddr, h.deposit.pulls[0].to)
	require.Len(t, h.deposit.approvals, 1)
	assert.Equal(t, "0xrouter", h.deposit.approvals[0].to)
	assert.Empty(t, h.custody.transfers)

	owner, err := h.token.OwnerOf(context.Background(), rec.PositionID)
	require.NoError(t, err)
	assert.Equal(t, buyerAddr, owner)
}

func TestPurchaseRoleMatrix(t *testing.T) {
	h := newHarness(t)
	req := PurchaseRequest{
		Buyer:         buyerAddr,
		DepositAmount: big.NewInt(100),
		MinOutput:     big.NewInt(1),
		Destination:   "local",
	}

	for _, caller := range []string{"", adminAddr, buyerAddr} {
		_, err := h.vault.Purchase(context.Background(), caller, req)
		assert.ErrorIs(t, err, domain.ErrAccessDenied, "caller %q", caller)
	}

	// Caller matching is case-insensitive.
	_, err := h.vault.Purchase(context.Background(), "0xOperator", req)
	assert.NoError(t, err)
}

func TestPurchaseValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer: buyerAddr, DepositAmount: big.NewInt(0), Destination: "local",
	})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer: buyerAddr, DepositAmount: big.NewInt(100), Destination: "nowhere",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDestination)

	_, err = h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer: buyerAddr, DepositAmount: big.NewInt(100), Destination: "local",
		ExpiresAt: t0.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidExpiry)

	// Nothing was pulled for any of the rejected requests.
	assert.Empty(t, h.deposit.pulls)
}

func TestPurchaseWithoutVenue(t *testing.T) {
	h := newHarness(t)
	h.vault.venue = nil

	_, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer: buyerAddr, DepositAmount: big.NewInt(100), Destination: "local",
	})
	assert.ErrorIs(t, err, domain.ErrVenueNotConfigured)
}

func TestPurchaseSlippageRefundsDeposit(t *testing.T) {
	h := newHarness(t)
	h.venue.output = big.NewInt(500)

	_, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer:         buyerAddr,
		DepositAmount: big.NewInt(1_000),
		MinOutput:     big.NewInt(600),
		Destination:   "local",
	})
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// The pulled deposit went back to the buyer; no position, no fees.
	require.Len(t, h.deposit.transfers, 1)
	assert.Equal(t, buyerAddr, h.deposit.transfers[0].to)
	assert.Equal(t, int64(1_000), h.deposit.transfers[0].amount.Int64())
	assert.Zero(t, h.vault.AccumulatedFees().Sign())
	_, err = h.ledger.Get(1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurchaseMintFailureDiscardsPosition(t *testing.T) {
	h := newHarness(t)
	h.token.mintErr = errors.New("mint reverted")

	_, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer:         buyerAddr,
		DepositAmount: big.NewInt(1_000),
		MinOutput:     big.NewInt(1),
		Destination:   "local",
	})
	require.Error(t, err)

	_, err = h.ledger.Get(1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The abort is atomic: no fee accrues for a failed purchase and the
	// pulled deposit goes back to the buyer.
	assert.Zero(t, h.vault.AccumulatedFees().Sign())
	require.Len(t, h.deposit.transfers, 1)
	assert.Equal(t, buyerAddr, h.deposit.transfers[0].to)
	assert.Equal(t, int64(1_000), h.deposit.transfers[0].amount.Int64())
}

func TestRefundFailureRegistersPendingDelivery(t *testing.T) {
	h := newHarness(t)
	h.venue.output = big.NewInt(500)
	h.deposit.failTransfers = 1

	_, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer:         buyerAddr,
		DepositAmount: big.NewInt(1_000),
		MinOutput:     big.NewInt(600),
		Destination:   "local",
	})
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// The stuck deposit is tracked for remediation.
	stuck := h.deliveries.onlyRow(t)
	assert.Equal(t, "refund", stuck.Reason)
	assert.Equal(t, buyerAddr, stuck.Recipient)
	assert.Equal(t, int64(1_000), stuck.Amount.Int64())
	assert.Zero(t, stuck.PositionID, "no position exists for an aborted purchase")

	// The retry moves the deposit asset, never the locked asset.
	d, err := h.vault.RetryDelivery(context.Background(), adminAddr, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusDelivered, d.Status)
	require.Len(t, h.deposit.transfers, 1)
	assert.Equal(t, buyerAddr, h.deposit.transfers[0].to)
	assert.Empty(t, h.custody.transfers)
}

// ---------------------------------------------------------------------------
// Redeem
// ---------------------------------------------------------------------------

func TestRedeemPartialThenFinal(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000) // locks 9_950

	r1, err := h.vault.Redeem(context.Background(), operatorAddr, RedeemRequest{
		PositionID: rec.PositionID, Amount: big.NewInt(4_000),
	})
	require.NoError(t, err)
	assert.True(t, r1.Partial)
	assert.True(t, r1.Delivered)
	assert.Equal(t, buyerAddr, r1.Recipient, "recipient defaults to the holder")

	// Token still live after a partial redemption.
	_, err = h.token.OwnerOf(context.Background(), rec.PositionID)
	require.NoError(t, err)

	r2, err := h.vault.Redeem(context.Background(), operatorAddr, RedeemRequest{
		PositionID: rec.PositionID, Amount: big.NewInt(5_950),
	})
	require.NoError(t, err)
	assert.False(t, r2.Partial)

	// Full redemption retires the token and closes the position.
	_, err = h.token.OwnerOf(context.Background(), rec.PositionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	pos, err := h.ledger.Get(rec.PositionID)
	require.NoError(t, err)
	assert.True(t, pos.Closed())

	// Both deliveries went out on the locked asset.
	require.Len(t, h.custody.transfers, 2)
	total := new(big.Int).Add(h.custody.transfers[0].amount, h.custody.transfers[1].amount)
	assert.Equal(t, int64(9_950), total.Int64())
}

func TestRedeemOverdraft(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)

	_, err := h.vault.Redeem(context.Background(), operatorAddr, RedeemRequest{
		PositionID: rec.PositionID, Amount: big.NewInt(10_000),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientRemaining)
	assert.Empty(t, h.custody.transfers)
}

func TestRedeemExpiredPosition(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)

	h.vault.now = func() time.Time { return expiry }
	_, err := h.vault.Redeem(context.Background(), operatorAddr, RedeemRequest{
		PositionID: rec.PositionID, Amount: big.NewInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestRedeemDeliveryFailureKeepsDebit(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)

	h.custody.transferErr = errors.New("rpc down")
	r, err := h.vault.Redeem(context.Background(), operatorAddr, RedeemRequest{
		PositionID: rec.PositionID, Amount: big.NewInt(4_000),
	})
	require.Error(t, err)
	assert.True(t, domain.IsDelivery(err))
	assert.False(t, r.Delivered)

	// The debit stands even though nothing was delivered.
	pos, err := h.ledger.Get(rec.PositionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_950), pos.RemainingAmount.Int64())

	d := h.deliveries.onlyRow(t)
	assert.Equal(t, "redeem", d.Reason)
	assert.Equal(t, domain.DeliveryStatusPending, d.Status)
	assert.Equal(t, int64(4_000), d.Amount.Int64())
	assert.Equal(t, 1, d.Attempts)
}

func TestRetryDeliveryRecovers(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)

	h.custody.failTransfers = 1
	_, err := h.vault.Redeem(context.Background(), operatorAddr, RedeemRequest{
		PositionID: rec.PositionID, Amount: big.NewInt(4_000),
	})
	require.Error(t, err)
	stuck := h.deliveries.onlyRow(t)

	// Only the admin may retry.
	_, err = h.vault.RetryDelivery(context.Background(), operatorAddr, stuck.ID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	d, err := h.vault.RetryDelivery(context.Background(), adminAddr, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusDelivered, d.Status)
	assert.Equal(t, 2, d.Attempts)
	assert.Empty(t, d.LastError)

	// The retry repeated only the delivery leg; the position was not
	// debited again.
	pos, err := h.ledger.Get(rec.PositionID)
	require.NoError(t, err)
	assert.Equal(t, int64(5_950), pos.RemainingAmount.Int64())
	require.Len(t, h.custody.transfers, 1)
	assert.Equal(t, int64(4_000), h.custody.transfers[0].amount.Int64())

	// Retrying a delivered row is a no-op.
	again, err := h.vault.RetryDelivery(context.Background(), adminAddr, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempts)
}

func TestRemediationWorkerRunOnce(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)

	h.custody.failTransfers = 1
	_, err := h.vault.Redeem(context.Background(), operatorAddr, RedeemRequest{
		PositionID: rec.PositionID, Amount: big.NewInt(4_000),
	})
	require.Error(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := NewRemediationWorker(h.vault, nil, time.Minute, logger)
	require.NoError(t, worker.RunOnce(context.Background()))

	d := h.deliveries.onlyRow(t)
	assert.Equal(t, domain.DeliveryStatusDelivered, d.Status)
}

// ---------------------------------------------------------------------------
// Claim expired
// ---------------------------------------------------------------------------

func TestClaimExpired(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000) // locks 9_950

	h.vault.now = func() time.Time { return expiry }
	c, err := h.vault.ClaimExpired(context.Background(), buyerAddr, rec.PositionID)
	require.NoError(t, err)

	// 200 bps expiry fee on the remaining 9_950.
	assert.Equal(t, int64(199), c.Fee.Int64())
	assert.Equal(t, int64(9_751), c.Refund.Int64())
	assert.Equal(t, int64(50+199), h.vault.AccumulatedFees().Int64())

	require.Len(t, h.custody.transfers, 1)
	assert.Equal(t, buyerAddr, h.custody.transfers[0].to)
	assert.Equal(t, int64(9_751), h.custody.transfers[0].amount.Int64())

	pos, err := h.ledger.Get(rec.PositionID)
	require.NoError(t, err)
	assert.True(t, pos.Closed())
	_, err = h.token.OwnerOf(context.Background(), rec.PositionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimRequiresHolder(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)
	h.vault.now = func() time.Time { return expiry }

	_, err := h.vault.ClaimExpired(context.Background(), operatorAddr, rec.PositionID)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestClaimBeforeExpiry(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)

	_, err := h.vault.ClaimExpired(context.Background(), buyerAddr, rec.PositionID)
	assert.ErrorIs(t, err, domain.ErrNotYetExpired)
}

func TestClaimRetryUsesLocalPathForRemoteDestination(t *testing.T) {
	h := newHarness(t)

	// A position routed to a remote destination still refunds locally on
	// expiry claims.
	rec, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer:         buyerAddr,
		DepositAmount: big.NewInt(5_000),
		MinOutput:     big.NewInt(1),
		Destination:   "remote",
	})
	require.NoError(t, err)

	h.vault.now = func() time.Time { return expiry }
	h.custody.failTransfers = 1
	_, err = h.vault.ClaimExpired(context.Background(), buyerAddr, rec.PositionID)
	require.Error(t, err)

	stuck := h.deliveries.onlyRow(t)
	assert.Equal(t, "claim", stuck.Reason)

	d, err := h.vault.RetryDelivery(context.Background(), adminAddr, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusDelivered, d.Status)

	// Delivered by direct transfer, not through any bridge.
	require.Len(t, h.custody.transfers, 1)
	assert.Equal(t, buyerAddr, h.custody.transfers[0].to)
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

func TestSweepFees(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, 5_000) // accumulates 50

	_, err := h.vault.SweepFees(context.Background(), operatorAddr, "0xtreasury")
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	swept, err := h.vault.SweepFees(context.Background(), adminAddr, "0xtreasury")
	require.NoError(t, err)
	assert.Equal(t, int64(50), swept.Int64())
	assert.Zero(t, h.vault.AccumulatedFees().Sign())

	// Sweeping again moves nothing.
	swept, err = h.vault.SweepFees(context.Background(), adminAddr, "0xtreasury")
	require.NoError(t, err)
	assert.Zero(t, swept.Sign())
}

func TestSweepFeesTransferFailureRestoresAccumulator(t *testing.T) {
	h := newHarness(t)
	h.purchase(t, 5_000)

	h.custody.transferErr = errors.New("rpc down")
	_, err := h.vault.SweepFees(context.Background(), adminAddr, "0xtreasury")
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
	assert.Equal(t, int64(50), h.vault.AccumulatedFees().Int64())
}

func TestRegisterDestination(t *testing.T) {
	h := newHarness(t)

	_, err := h.vault.RegisterDestination(context.Background(), operatorAddr, "l2", 42161)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	dest, err := h.vault.RegisterDestination(context.Background(), adminAddr, "l2", 42161)
	require.NoError(t, err)
	assert.Equal(t, uint64(42161), dest.NetworkID)

	_, err = h.vault.RegisterDestination(context.Background(), adminAddr, "l2", 1)
	assert.ErrorIs(t, err, domain.ErrDuplicateDestination)
}

func TestSetOperatorRotatesIdentity(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.vault.SetOperator(context.Background(), adminAddr, "0xnewop"))

	_, err := h.vault.Purchase(context.Background(), operatorAddr, PurchaseRequest{
		Buyer: buyerAddr, DepositAmount: big.NewInt(100), MinOutput: big.NewInt(1), Destination: "local",
	})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	_, err = h.vault.Purchase(context.Background(), "0xnewop", PurchaseRequest{
		Buyer: buyerAddr, DepositAmount: big.NewInt(100), MinOutput: big.NewInt(1), Destination: "local",
	})
	assert.NoError(t, err)
}

func TestGetPositionView(t *testing.T) {
	h := newHarness(t)
	rec := h.purchase(t, 5_000)

	view, err := h.vault.GetPosition(rec.PositionID)
	require.NoError(t, err)
	assert.False(t, view.Closed)
	assert.NotNil(t, view.AvailableUnits)

	_, err = h.vault.GetPosition(999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
