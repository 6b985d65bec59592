// Package domain defines the core entities of the gas vault: positions,
// destinations, settlement records, the error taxonomy, and the interfaces
// implemented by stores and external collaborators.
package domain

import (
	"math/big"
	"time"
)

// Position is a locked claim on future gas. InitialLockedAmount and
// UnitPrice are fixed at creation; RemainingAmount only ever decreases.
// A position with a zero RemainingAmount is closed: it stays readable for
// history queries but can no longer be mutated.
type Position struct {
	ID                  uint64    `json:"id"`
	InitialLockedAmount *big.Int  `json:"initial_locked_amount"`
	RemainingAmount     *big.Int  `json:"remaining_amount"`
	UnitPrice           *big.Int  `json:"unit_price"`
	Destination         string    `json:"destination"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Closed reports whether the position has been fully redeemed or claimed.
func (p *Position) Closed() bool {
	return p.RemainingAmount == nil || p.RemainingAmount.Sign() == 0
}

// Expired reports whether the position can no longer be redeemed at now.
func (p *Position) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// AvailableUnits returns RemainingAmount / UnitPrice using integer
// division. It returns zero when the unit price is zero; the value is
// informational only.
func (p *Position) AvailableUnits() *big.Int {
	if p.RemainingAmount == nil || p.UnitPrice == nil || p.UnitPrice.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Div(p.RemainingAmount, p.UnitPrice)
}

// Clone returns a deep copy so callers cannot mutate ledger-owned state.
func (p *Position) Clone() Position {
	out := *p
	if p.InitialLockedAmount != nil {
		out.InitialLockedAmount = new(big.Int).Set(p.InitialLockedAmount)
	}
	if p.RemainingAmount != nil {
		out.RemainingAmount = new(big.Int).Set(p.RemainingAmount)
	}
	if p.UnitPrice != nil {
		out.UnitPrice = new(big.Int).Set(p.UnitPrice)
	}
	return out
}
