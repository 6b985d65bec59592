package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// DestinationStore implements domain.DestinationStore using PostgreSQL.
// The registry is append-only; rows are never updated or deleted.
type DestinationStore struct {
	pool *pgxpool.Pool
}

var _ domain.DestinationStore = (*DestinationStore)(nil)

// NewDestinationStore creates a DestinationStore backed by the given pool.
func NewDestinationStore(pool *pgxpool.Pool) *DestinationStore {
	return &DestinationStore{pool: pool}
}

// Insert appends a destination row.
func (s *DestinationStore) Insert(ctx context.Context, dest domain.Destination) error {
	const query = `
		INSERT INTO destinations (name, network_id, registered_at)
		VALUES ($1, $2, $3)`

	_, err := s.pool.Exec(ctx, query, dest.Name, dest.NetworkID, dest.RegisteredAt)
	if err != nil {
		return fmt.Errorf("postgres: insert destination %s: %w", dest.Name, err)
	}
	return nil
}

// List returns all registered destinations in registration order.
func (s *DestinationStore) List(ctx context.Context) ([]domain.Destination, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, network_id, registered_at FROM destinations ORDER BY registered_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list destinations: %w", err)
	}
	defer rows.Close()

	var dests []domain.Destination
	for rows.Next() {
		var d domain.Destination
		if err := rows.Scan(&d.Name, &d.NetworkID, &d.RegisteredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan destination: %w", err)
		}
		dests = append(dests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list destinations rows: %w", err)
	}
	return dests, nil
}

// FeeStore implements domain.FeeStore as a single-row table holding the
// accumulated-fees scalar.
type FeeStore struct {
	pool *pgxpool.Pool
}

var _ domain.FeeStore = (*FeeStore)(nil)

// NewFeeStore creates a FeeStore backed by the given pool.
func NewFeeStore(pool *pgxpool.Pool) *FeeStore {
	return &FeeStore{pool: pool}
}

// Set writes the accumulator value, replacing the single row.
func (s *FeeStore) Set(ctx context.Context, accumulated *big.Int) error {
	const query = `
		INSERT INTO fee_ledger (id, accumulated, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			accumulated = EXCLUDED.accumulated,
			updated_at  = NOW()`

	if _, err := s.pool.Exec(ctx, query, bigText(accumulated)); err != nil {
		return fmt.Errorf("postgres: set accumulated fees: %w", err)
	}
	return nil
}

// Get returns the accumulator value, zero when never written.
func (s *FeeStore) Get(ctx context.Context) (*big.Int, error) {
	var text string
	err := s.pool.QueryRow(ctx,
		`SELECT accumulated FROM fee_ledger WHERE id = 1`).Scan(&text)
	if err != nil {
		if err == pgx.ErrNoRows {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: get accumulated fees: %w", err)
	}
	return parseBig(text)
}
