package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

var (
	t0     = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry = t0.Add(90 * 24 * time.Hour)
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	_, err := l.RegisterDestination("local", domain.LocalNetworkID, t0)
	require.NoError(t, err)
	_, err = l.RegisterDestination("remote", 137, t0)
	require.NoError(t, err)
	return l
}

func TestRegisterDestination(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.RegisterDestination("local", 5, t0)
	assert.ErrorIs(t, err, domain.ErrDuplicateDestination)

	_, err = l.RegisterDestination("", 5, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidDestination)

	dest, err := l.ResolveDestination("remote")
	require.NoError(t, err)
	assert.Equal(t, uint64(137), dest.NetworkID)
	assert.False(t, dest.Local())

	_, err = l.ResolveDestination("unknown")
	assert.ErrorIs(t, err, domain.ErrInvalidDestination)

	assert.Len(t, l.Destinations(), 2)
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	l := newTestLedger(t)

	p1, err := l.Create(big.NewInt(100), big.NewInt(2), "local", t0, expiry)
	require.NoError(t, err)
	p2, err := l.Create(big.NewInt(200), big.NewInt(2), "local", t0, expiry)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), p1.ID)
	assert.Equal(t, uint64(2), p2.ID)
	assert.Zero(t, p1.RemainingAmount.Cmp(p1.InitialLockedAmount))
}

func TestCreateValidation(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Create(big.NewInt(0), big.NewInt(1), "local", t0, expiry)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = l.Create(nil, big.NewInt(1), "local", t0, expiry)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = l.Create(big.NewInt(10), big.NewInt(1), "local", t0, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidExpiry)

	_, err = l.Create(big.NewInt(10), big.NewInt(1), "unknown", t0, expiry)
	assert.ErrorIs(t, err, domain.ErrInvalidDestination)
}

func TestDecrementConservation(t *testing.T) {
	l := newTestLedger(t)
	pos, err := l.Create(big.NewInt(100), big.NewInt(1), "local", t0, expiry)
	require.NoError(t, err)

	// Partial redemptions must sum to the initial amount exactly.
	closed, snap, err := l.Decrement(pos.ID, big.NewInt(40), t0)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, int64(60), snap.RemainingAmount.Int64())

	closed, snap, err = l.Decrement(pos.ID, big.NewInt(60), t0)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Zero(t, snap.RemainingAmount.Sign())

	// A closed position behaves as not found for further mutation.
	_, _, err = l.Decrement(pos.ID, big.NewInt(1), t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// But it stays readable for history.
	got, err := l.Get(pos.ID)
	require.NoError(t, err)
	assert.True(t, got.Closed())
}

func TestDecrementOverdraftLeavesStateUntouched(t *testing.T) {
	l := newTestLedger(t)
	pos, err := l.Create(big.NewInt(100), big.NewInt(1), "local", t0, expiry)
	require.NoError(t, err)

	_, _, err = l.Decrement(pos.ID, big.NewInt(101), t0)
	assert.ErrorIs(t, err, domain.ErrInsufficientRemaining)

	got, err := l.Get(pos.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.RemainingAmount.Int64())
}

func TestDecrementValidation(t *testing.T) {
	l := newTestLedger(t)
	pos, err := l.Create(big.NewInt(100), big.NewInt(1), "local", t0, expiry)
	require.NoError(t, err)

	_, _, err = l.Decrement(pos.ID, big.NewInt(0), t0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, _, err = l.Decrement(pos.ID, nil, t0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, _, err = l.Decrement(999, big.NewInt(1), t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = l.Decrement(pos.ID, big.NewInt(1), expiry)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestCloseForExpiry(t *testing.T) {
	l := newTestLedger(t)
	pos, err := l.Create(big.NewInt(100), big.NewInt(1), "local", t0, expiry)
	require.NoError(t, err)

	_, _, err = l.CloseForExpiry(pos.ID, t0)
	assert.ErrorIs(t, err, domain.ErrNotYetExpired)

	remaining, snap, err := l.CloseForExpiry(pos.ID, expiry)
	require.NoError(t, err)
	assert.Equal(t, int64(100), remaining.Int64())
	assert.True(t, snap.Closed())

	// A second claim finds nothing left.
	_, _, err = l.CloseForExpiry(pos.ID, expiry)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, _, err = l.CloseForExpiry(999, expiry)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDiscard(t *testing.T) {
	l := newTestLedger(t)
	pos, err := l.Create(big.NewInt(100), big.NewInt(1), "local", t0, expiry)
	require.NoError(t, err)

	l.Discard(pos.ID)
	_, err = l.Get(pos.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The id is not reused.
	next, err := l.Create(big.NewInt(100), big.NewInt(1), "local", t0, expiry)
	require.NoError(t, err)
	assert.Equal(t, pos.ID+1, next.ID)
}

func TestAvailableUnits(t *testing.T) {
	l := newTestLedger(t)
	pos, err := l.Create(big.NewInt(1000), big.NewInt(300), "local", t0, expiry)
	require.NoError(t, err)

	assert.Equal(t, int64(3), l.AvailableUnits(pos.ID).Int64())
	assert.Zero(t, l.AvailableUnits(999).Sign())
}

func TestFeeAccumulator(t *testing.T) {
	l := New()

	l.AddFees(big.NewInt(50))
	l.AddFees(big.NewInt(200))
	l.AddFees(nil) // ignored
	assert.Equal(t, int64(250), l.AccumulatedFees().Int64())

	swept := l.SweepFees()
	assert.Equal(t, int64(250), swept.Int64())
	assert.Zero(t, l.AccumulatedFees().Sign())

	// Sweeping an empty accumulator yields zero.
	assert.Zero(t, l.SweepFees().Sign())
}

func TestLoadResumesIDSequence(t *testing.T) {
	l := New()
	l.Load(
		[]domain.Position{
			{ID: 3, InitialLockedAmount: big.NewInt(10), RemainingAmount: big.NewInt(10), UnitPrice: big.NewInt(1), Destination: "local", CreatedAt: t0, ExpiresAt: expiry},
			{ID: 7, InitialLockedAmount: big.NewInt(20), RemainingAmount: big.NewInt(5), UnitPrice: big.NewInt(1), Destination: "local", CreatedAt: t0, ExpiresAt: expiry},
		},
		big.NewInt(42),
		[]domain.Destination{{Name: "local", NetworkID: domain.LocalNetworkID, RegisteredAt: t0}},
	)

	assert.Equal(t, int64(42), l.AccumulatedFees().Int64())

	got, err := l.Get(7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.RemainingAmount.Int64())

	pos, err := l.Create(big.NewInt(1), big.NewInt(1), "local", t0, expiry)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), pos.ID)
}
