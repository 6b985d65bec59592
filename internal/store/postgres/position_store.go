package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, initial_locked_amount, remaining_amount,
	unit_price, destination, created_at, expires_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var initial, remaining, unitPrice string

	err := row.Scan(
		&p.ID, &initial, &remaining, &unitPrice,
		&p.Destination, &p.CreatedAt, &p.ExpiresAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	if p.InitialLockedAmount, err = parseBig(initial); err != nil {
		return domain.Position{}, err
	}
	if p.RemainingAmount, err = parseBig(remaining); err != nil {
		return domain.Position{}, err
	}
	if p.UnitPrice, err = parseBig(unitPrice); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

// Upsert writes the full position snapshot, inserting on first sight and
// replacing the mutable remaining balance afterwards.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, initial_locked_amount, remaining_amount, unit_price,
			destination, created_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			remaining_amount = EXCLUDED.remaining_amount,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, bigText(p.InitialLockedAmount), bigText(p.RemainingAmount),
		bigText(p.UnitPrice), p.Destination, p.CreatedAt, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %d: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position snapshot.
func (s *PositionStore) GetByID(ctx context.Context, id uint64) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

// ListAll returns every stored position, used for startup replay.
func (s *PositionStore) ListAll(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}
