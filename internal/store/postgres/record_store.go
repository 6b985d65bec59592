package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

// RecordStore implements domain.RecordStore using PostgreSQL. The three
// record tables are append-only; the Before queries feed the archiver.
type RecordStore struct {
	pool *pgxpool.Pool
}

var _ domain.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a RecordStore backed by the given pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// InsertPurchase appends a purchase record.
func (s *RecordStore) InsertPurchase(ctx context.Context, rec domain.PurchaseRecord) error {
	const query = `
		INSERT INTO purchases (
			id, position_id, buyer, deposit_amount, gross_output,
			locked_amount, fee, unit_price, destination, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.PositionID, rec.Buyer,
		bigText(rec.DepositAmount), bigText(rec.GrossOutput),
		bigText(rec.LockedAmount), bigText(rec.Fee), bigText(rec.UnitPrice),
		rec.Destination, rec.ExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert purchase %s: %w", rec.ID, err)
	}
	return nil
}

// InsertRedemption appends a redemption record.
func (s *RecordStore) InsertRedemption(ctx context.Context, rec domain.RedemptionRecord) error {
	const query = `
		INSERT INTO redemptions (
			id, position_id, amount, destination, recipient,
			partial, delivered, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.PositionID, bigText(rec.Amount),
		rec.Destination, rec.Recipient, rec.Partial, rec.Delivered, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert redemption %s: %w", rec.ID, err)
	}
	return nil
}

// InsertClaim appends an expiry-claim record.
func (s *RecordStore) InsertClaim(ctx context.Context, rec domain.ClaimRecord) error {
	const query = `
		INSERT INTO claims (
			id, position_id, holder, refund, fee, delivered, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.PositionID, rec.Holder,
		bigText(rec.Refund), bigText(rec.Fee), rec.Delivered, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert claim %s: %w", rec.ID, err)
	}
	return nil
}

// ListPurchasesBefore returns purchase records created before the cutoff.
func (s *RecordStore) ListPurchasesBefore(ctx context.Context, before time.Time) ([]domain.PurchaseRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, position_id, buyer, deposit_amount, gross_output,
		       locked_amount, fee, unit_price, destination, expires_at, created_at
		FROM purchases WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list purchases: %w", err)
	}
	defer rows.Close()

	var recs []domain.PurchaseRecord
	for rows.Next() {
		var r domain.PurchaseRecord
		var deposit, gross, locked, fee, unitPrice string
		if err := rows.Scan(
			&r.ID, &r.PositionID, &r.Buyer, &deposit, &gross,
			&locked, &fee, &unitPrice, &r.Destination, &r.ExpiresAt, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan purchase: %w", err)
		}
		if r.DepositAmount, err = parseBig(deposit); err != nil {
			return nil, err
		}
		if r.GrossOutput, err = parseBig(gross); err != nil {
			return nil, err
		}
		if r.LockedAmount, err = parseBig(locked); err != nil {
			return nil, err
		}
		if r.Fee, err = parseBig(fee); err != nil {
			return nil, err
		}
		if r.UnitPrice, err = parseBig(unitPrice); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list purchases rows: %w", err)
	}
	return recs, nil
}

// ListRedemptionsBefore returns redemption records created before the cutoff.
func (s *RecordStore) ListRedemptionsBefore(ctx context.Context, before time.Time) ([]domain.RedemptionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, position_id, amount, destination, recipient,
		       partial, delivered, created_at
		FROM redemptions WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list redemptions: %w", err)
	}
	defer rows.Close()

	var recs []domain.RedemptionRecord
	for rows.Next() {
		var r domain.RedemptionRecord
		var amount string
		if err := rows.Scan(
			&r.ID, &r.PositionID, &amount, &r.Destination, &r.Recipient,
			&r.Partial, &r.Delivered, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan redemption: %w", err)
		}
		if r.Amount, err = parseBig(amount); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list redemptions rows: %w", err)
	}
	return recs, nil
}

// ListClaimsBefore returns claim records created before the cutoff.
func (s *RecordStore) ListClaimsBefore(ctx context.Context, before time.Time) ([]domain.ClaimRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, position_id, holder, refund, fee, delivered, created_at
		FROM claims WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list claims: %w", err)
	}
	defer rows.Close()

	var recs []domain.ClaimRecord
	for rows.Next() {
		var r domain.ClaimRecord
		var refund, fee string
		if err := rows.Scan(
			&r.ID, &r.PositionID, &r.Holder, &refund, &fee,
			&r.Delivered, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan claim: %w", err)
		}
		if r.Refund, err = parseBig(refund); err != nil {
			return nil, err
		}
		if r.Fee, err = parseBig(fee); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list claims rows: %w", err)
	}
	return recs, nil
}
