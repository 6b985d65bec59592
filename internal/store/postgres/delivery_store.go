package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// DeliveryStore implements domain.DeliveryStore using PostgreSQL.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

var _ domain.DeliveryStore = (*DeliveryStore)(nil)

// NewDeliveryStore creates a DeliveryStore backed by the given pool.
func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

const deliverySelectCols = `id, position_id, amount, destination, recipient,
	route_data, reason, attempts, last_error, status, created_at, updated_at`

func scanDelivery(row pgx.Row) (domain.PendingDelivery, error) {
	var d domain.PendingDelivery
	var amount, status string

	err := row.Scan(
		&d.ID, &d.PositionID, &amount, &d.Destination, &d.Recipient,
		&d.RouteData, &d.Reason, &d.Attempts, &d.LastError,
		&status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.PendingDelivery{}, err
	}
	if d.Amount, err = parseBig(amount); err != nil {
		return domain.PendingDelivery{}, err
	}
	d.Status = domain.DeliveryStatus(status)
	return d, nil
}

// Insert appends a new stuck-delivery row.
func (s *DeliveryStore) Insert(ctx context.Context, d domain.PendingDelivery) error {
	const query = `
		INSERT INTO pending_deliveries (
			id, position_id, amount, destination, recipient, route_data,
			reason, attempts, last_error, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.PositionID, bigText(d.Amount), d.Destination, d.Recipient,
		d.RouteData, d.Reason, d.Attempts, d.LastError, string(d.Status),
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert delivery %s: %w", d.ID, err)
	}
	return nil
}

// Update replaces the remediation state of a delivery row.
func (s *DeliveryStore) Update(ctx context.Context, d domain.PendingDelivery) error {
	const query = `
		UPDATE pending_deliveries SET
			attempts   = $2,
			last_error = $3,
			status     = $4,
			updated_at = $5
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		d.ID, d.Attempts, d.LastError, string(d.Status), d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update delivery %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single delivery row.
func (s *DeliveryStore) GetByID(ctx context.Context, id string) (domain.PendingDelivery, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deliverySelectCols+` FROM pending_deliveries WHERE id = $1`, id)

	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PendingDelivery{}, domain.ErrNotFound
		}
		return domain.PendingDelivery{}, fmt.Errorf("postgres: get delivery %s: %w", id, err)
	}
	return d, nil
}

// ListPending returns all deliveries still awaiting remediation, oldest
// first.
func (s *DeliveryStore) ListPending(ctx context.Context) ([]domain.PendingDelivery, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deliverySelectCols+` FROM pending_deliveries
		 WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.PendingDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pending deliveries rows: %w", err)
	}
	return deliveries, nil
}
