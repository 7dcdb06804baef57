package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akashbiswas0/Avenger/internal/models"
)

// Repository handles connected X account persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an accounts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts or refreshes an account keyed by its X user ID. Reconnecting
// rotates the stored tokens in place.
func (r *Repository) Upsert(ctx context.Context, a *models.XAccount) error {
	const query = `INSERT INTO x_accounts (id, x_user_id, screen_name, encrypted_access_token, encrypted_token_secret)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (x_user_id) DO UPDATE SET
			screen_name = EXCLUDED.screen_name,
			encrypted_access_token = EXCLUDED.encrypted_access_token,
			encrypted_token_secret = EXCLUDED.encrypted_token_secret,
			updated_at = now()
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, a.XUserID, a.ScreenName, a.EncryptedAccessToken, a.EncryptedTokenSecret).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID returns an account by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.XAccount, error) {
	const query = `SELECT id, x_user_id, screen_name, encrypted_access_token, encrypted_token_secret, created_at, updated_at
		FROM x_accounts WHERE id = $1`
	var a models.XAccount
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.XUserID, &a.ScreenName,
		&a.EncryptedAccessToken, &a.EncryptedTokenSecret, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Delete removes an account and its tokens.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM x_accounts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
