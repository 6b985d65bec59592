package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPositionClosed(t *testing.T) {
	p := Position{RemainingAmount: big.NewInt(5)}
	assert.False(t, p.Closed())

	p.RemainingAmount.SetInt64(0)
	assert.True(t, p.Closed())

	var empty Position
	assert.True(t, empty.Closed())
}

func TestPositionExpired(t *testing.T) {
	expiry := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	p := Position{ExpiresAt: expiry}

	assert.False(t, p.Expired(expiry.Add(-time.Second)))
	// The expiry instant itself counts as expired.
	assert.True(t, p.Expired(expiry))
	assert.True(t, p.Expired(expiry.Add(time.Second)))
}

func TestPositionAvailableUnits(t *testing.T) {
	p := Position{
		RemainingAmount: big.NewInt(1000),
		UnitPrice:       big.NewInt(300),
	}
	assert.Equal(t, int64(3), p.AvailableUnits().Int64())

	p.UnitPrice.SetInt64(0)
	assert.Zero(t, p.AvailableUnits().Sign())

	var empty Position
	assert.Zero(t, empty.AvailableUnits().Sign())
}

func TestPositionCloneIsDeep(t *testing.T) {
	p := Position{
		ID:                  7,
		InitialLockedAmount: big.NewInt(100),
		RemainingAmount:     big.NewInt(60),
		UnitPrice:           big.NewInt(2),
	}
	c := p.Clone()
	c.RemainingAmount.SetInt64(0)

	assert.Equal(t, int64(60), p.RemainingAmount.Int64())
}

func TestDestinationLocal(t *testing.T) {
	assert.True(t, Destination{Name: "here", NetworkID: LocalNetworkID}.Local())
	assert.False(t, Destination{Name: "there", NetworkID: 137}.Local())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsValidation(ErrZeroAmount))
	assert.True(t, IsValidation(ErrNotYetExpired))
	assert.False(t, IsValidation(ErrTransferFailed))

	assert.True(t, IsDelivery(ErrTransferFailed))
	assert.True(t, IsDelivery(ErrBridgeFailed))
	assert.False(t, IsDelivery(ErrExpired))
}
