// Package ledger owns all position records and the process-wide fee
// accumulator. It enforces the conservation, partial-redemption, and
// expiry invariants; flow-level sequencing (checks-effects-interactions)
// is the orchestrator's responsibility.
package ledger

import (
	"math/big"
	"sync"
	"time"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// Ledger is the in-memory authoritative position state. Individual
// operations are safe for concurrent use; multi-step flows must be
// serialized by the caller (one mutex per vault instance).
type Ledger struct {
	mu              sync.RWMutex
	positions       map[uint64]*domain.Position
	destinations    map[string]domain.Destination
	nextID          uint64
	accumulatedFees *big.Int
}

// New creates an empty Ledger. Position ids start at 1 and are never
// reused.
func New() *Ledger {
	return &Ledger{
		positions:       make(map[uint64]*domain.Position),
		destinations:    make(map[string]domain.Destination),
		nextID:          1,
		accumulatedFees: new(big.Int),
	}
}

// Load rebuilds ledger state from persisted snapshots. The next position
// id resumes after the highest stored id.
func (l *Ledger) Load(positions []domain.Position, fees *big.Int, destinations []domain.Destination) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range positions {
		pos := positions[i].Clone()
		l.positions[pos.ID] = &pos
		if pos.ID >= l.nextID {
			l.nextID = pos.ID + 1
		}
	}
	for _, d := range destinations {
		l.destinations[d.Name] = d
	}
	if fees != nil {
		l.accumulatedFees.Set(fees)
	}
}

// ---------------------------------------------------------------------------
// Destination registry
// ---------------------------------------------------------------------------

// RegisterDestination appends a destination to the registry. Names are
// unique; re-registering an existing name fails.
func (l *Ledger) RegisterDestination(name string, networkID uint64, now time.Time) (domain.Destination, error) {
	if name == "" {
		return domain.Destination{}, domain.ErrInvalidDestination
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.destinations[name]; ok {
		return domain.Destination{}, domain.ErrDuplicateDestination
	}
	dest := domain.Destination{Name: name, NetworkID: networkID, RegisteredAt: now}
	l.destinations[name] = dest
	return dest, nil
}

// ResolveDestination returns the registry entry for name, or
// ErrInvalidDestination when it is unknown.
func (l *Ledger) ResolveDestination(name string) (domain.Destination, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	dest, ok := l.destinations[name]
	if !ok {
		return domain.Destination{}, domain.ErrInvalidDestination
	}
	return dest, nil
}

// Destinations returns all registered destinations.
func (l *Ledger) Destinations() []domain.Destination {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Destination, 0, len(l.destinations))
	for _, d := range l.destinations {
		out = append(out, d)
	}
	return out
}

// ---------------------------------------------------------------------------
// Position lifecycle
// ---------------------------------------------------------------------------

// Create allocates a new position id and stores a position with
// RemainingAmount = initialLockedAmount.
func (l *Ledger) Create(initialLockedAmount, unitPrice *big.Int, destination string, createdAt, expiresAt time.Time) (domain.Position, error) {
	if initialLockedAmount == nil || initialLockedAmount.Sign() <= 0 {
		return domain.Position{}, domain.ErrZeroAmount
	}
	if !expiresAt.After(createdAt) {
		return domain.Position{}, domain.ErrInvalidExpiry
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.destinations[destination]; !ok {
		return domain.Position{}, domain.ErrInvalidDestination
	}

	pos := &domain.Position{
		ID:                  l.nextID,
		InitialLockedAmount: new(big.Int).Set(initialLockedAmount),
		RemainingAmount:     new(big.Int).Set(initialLockedAmount),
		UnitPrice:           new(big.Int),
		Destination:         destination,
		CreatedAt:           createdAt,
		ExpiresAt:           expiresAt,
	}
	if unitPrice != nil {
		pos.UnitPrice.Set(unitPrice)
	}
	l.nextID++
	l.positions[pos.ID] = pos

	return pos.Clone(), nil
}

// Discard removes a position created in the same flow whose identity
// token could not be minted. The id is not reused. It must not be called
// once the position has been observed outside the creating flow.
func (l *Ledger) Discard(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, id)
}

// Decrement reduces a position's remaining balance by amount and reports
// whether the position is now fully closed, signaling the caller to
// retire the identity token. Closed positions behave as not found.
func (l *Ledger) Decrement(id uint64, amount *big.Int, now time.Time) (closed bool, snapshot domain.Position, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[id]
	if !ok || pos.Closed() {
		return false, domain.Position{}, domain.ErrNotFound
	}
	if pos.Expired(now) {
		return false, domain.Position{}, domain.ErrExpired
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, domain.Position{}, domain.ErrZeroAmount
	}
	if amount.Cmp(pos.RemainingAmount) > 0 {
		return false, domain.Position{}, domain.ErrInsufficientRemaining
	}

	pos.RemainingAmount.Sub(pos.RemainingAmount, amount)
	return pos.Closed(), pos.Clone(), nil
}

// CloseForExpiry captures and zeroes the remaining balance of an expired
// position, returning the captured amount for fee-split processing by the
// caller.
func (l *Ledger) CloseForExpiry(id uint64, now time.Time) (remaining *big.Int, snapshot domain.Position, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[id]
	if !ok {
		return nil, domain.Position{}, domain.ErrNotFound
	}
	if !pos.Expired(now) {
		return nil, domain.Position{}, domain.ErrNotYetExpired
	}
	if pos.Closed() {
		return nil, domain.Position{}, domain.ErrZeroAmount
	}

	remaining = new(big.Int).Set(pos.RemainingAmount)
	pos.RemainingAmount.SetInt64(0)
	return remaining, pos.Clone(), nil
}

// Get returns a copy of the position, including closed ones (historical
// query).
func (l *Ledger) Get(id uint64) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos.Clone(), nil
}

// AvailableUnits returns remaining/unitPrice for the position, or zero
// when the position is absent or its unit price is zero.
func (l *Ledger) AvailableUnits(id uint64) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[id]
	if !ok {
		return new(big.Int)
	}
	return pos.AvailableUnits()
}

// ---------------------------------------------------------------------------
// Fee accumulator
// ---------------------------------------------------------------------------

// AddFees increments the accumulated-fees scalar.
func (l *Ledger) AddFees(fee *big.Int) {
	if fee == nil || fee.Sign() == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accumulatedFees.Add(l.accumulatedFees, fee)
}

// SweepFees zeroes the accumulator and returns the swept amount.
func (l *Ledger) SweepFees() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	swept := new(big.Int).Set(l.accumulatedFees)
	l.accumulatedFees.SetInt64(0)
	return swept
}

// AccumulatedFees returns a copy of the current accumulator value.
func (l *Ledger) AccumulatedFees() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.accumulatedFees)
}
