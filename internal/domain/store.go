package domain

import (
	"context"
	"io"
	"math/big"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists position snapshots. The in-memory ledger is
// authoritative at runtime; the store is written through on every
// mutation and replayed at startup.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id uint64) (Position, error)
	ListAll(ctx context.Context) ([]Position, error)
}

// DestinationStore persists the append-only destination registry.
type DestinationStore interface {
	Insert(ctx context.Context, dest Destination) error
	List(ctx context.Context) ([]Destination, error)
}

// FeeStore persists the accumulated-fees scalar (a single row).
type FeeStore interface {
	Set(ctx context.Context, accumulated *big.Int) error
	Get(ctx context.Context) (*big.Int, error)
}

// RecordStore persists purchase, redemption, and claim records.
type RecordStore interface {
	InsertPurchase(ctx context.Context, rec PurchaseRecord) error
	InsertRedemption(ctx context.Context, rec RedemptionRecord) error
	InsertClaim(ctx context.Context, rec ClaimRecord) error
	ListPurchasesBefore(ctx context.Context, before time.Time) ([]PurchaseRecord, error)
	ListRedemptionsBefore(ctx context.Context, before time.Time) ([]RedemptionRecord, error)
	ListClaimsBefore(ctx context.Context, before time.Time) ([]ClaimRecord, error)
}

// DeliveryStore persists stuck deliveries awaiting remediation.
type DeliveryStore interface {
	Insert(ctx context.Context, d PendingDelivery) error
	Update(ctx context.Context, d PendingDelivery) error
	GetByID(ctx context.Context, id string) (PendingDelivery, error)
	ListPending(ctx context.Context) ([]PendingDelivery, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// LockManager provides distributed locks, used to fence the remediation
// worker so two replicas never retry the same delivery concurrently.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// unlock function, or ErrLockHeld when another party holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles requests per key, used by the HTTP middleware.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under a
	// sliding window of `limit` requests per `window`, counting it when
	// permitted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is a lightweight pub/sub channel carrying ledger events to
// the WebSocket hub and any external subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
