package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akashbiswas0/Avenger/internal/models"
)

// Repository handles listing persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a listings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const listingColumns = `id, x_account_id, screen_name, wallet_address, price_per_day, min_days, pitch, active, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.XAccountID, &l.ScreenName, &l.WalletAddress,
		&l.PricePerDay, &l.MinDays, &l.Pitch, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new listing.
func (r *Repository) Create(ctx context.Context, l *models.Listing) error {
	const query = `INSERT INTO listings (id, x_account_id, screen_name, wallet_address, price_per_day, min_days, pitch, active)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, TRUE)
		RETURNING id, active, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, l.XAccountID, l.ScreenName, l.WalletAddress, l.PricePerDay, l.MinDays, l.Pitch).
		Scan(&l.ID, &l.Active, &l.CreatedAt, &l.UpdatedAt)
}

// GetByID returns a listing by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

// ListActive returns the marketplace: active listings, newest first.
func (r *Repository) ListActive(ctx context.Context) ([]models.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE active = TRUE ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// ListByAccount returns all listings owned by an account.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Listing, error) {
	const query = `SELECT ` + listingColumns + ` FROM listings WHERE x_account_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, accountID)
}

// Deactivate withdraws a listing. Listings referenced by rentals are never
// deleted, only flagged inactive.
func (r *Repository) Deactivate(ctx context.Context, id, accountID uuid.UUID) (bool, error) {
	const query = `UPDATE listings SET active = FALSE, updated_at = now()
		WHERE id = $1 AND x_account_id = $2 AND active = TRUE`
	tag, err := r.pool.Exec(ctx, query, id, accountID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeactivateByAccount withdraws every listing of an account, used when the
// X account disconnects.
func (r *Repository) DeactivateByAccount(ctx context.Context, accountID uuid.UUID) error {
	const query = `UPDATE listings SET active = FALSE, updated_at = now() WHERE x_account_id = $1 AND active = TRUE`
	_, err := r.pool.Exec(ctx, query, accountID)
	return err
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]models.Listing, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}
