package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akashbiswas0/Avenger/internal/models"
)

// Repository handles payout intent persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payouts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new payout intent.
func (r *Repository) Create(ctx context.Context, p *models.Payout) error {
	const query = `INSERT INTO payouts (id, rental_id, kind, recipient, amount, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, p.RentalID, p.Kind, p.Recipient, p.Amount, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID returns a payout intent by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	const query = `SELECT id, rental_id, kind, recipient, amount, status, COALESCE(tx_hash, ''), created_at, updated_at
		FROM payouts WHERE id = $1`
	var p models.Payout
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&p.ID, &p.RentalID, &p.Kind, &p.Recipient, &p.Amount, &p.Status, &p.TxHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkSettled records a settlement result. Only pending intents move;
// a retried job finding the intent already settled no-ops.
func (r *Repository) MarkSettled(ctx context.Context, id uuid.UUID, status, txHash string) error {
	const query = `UPDATE payouts SET status = $2, tx_hash = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = 'pending'`
	_, err := r.pool.Exec(ctx, query, id, status, txHash)
	return err
}

// ListByRental returns payout intents for a rental, newest first.
func (r *Repository) ListByRental(ctx context.Context, rentalID uuid.UUID) ([]models.Payout, error) {
	const query = `SELECT id, rental_id, kind, recipient, amount, status, COALESCE(tx_hash, ''), created_at, updated_at
		FROM payouts WHERE rental_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, rentalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Payout
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.ID, &p.RentalID, &p.Kind, &p.Recipient, &p.Amount, &p.Status, &p.TxHash, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
