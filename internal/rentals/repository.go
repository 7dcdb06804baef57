package rentals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akashbiswas0/Avenger/internal/models"
)

// Repository handles rental persistence. All lifecycle writes are
// conditional single-statement updates: a second writer that finds the
// precondition gone no-ops instead of corrupting state, which is what makes
// overlapping verification runs safe.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rentals repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rentalColumns = `id, listing_id, advertiser_wallet, ad_image_url, ad_fingerprint,
	duration_days, total_price, COALESCE(payment_tx_hash, ''), payment_status, approval_status, status,
	days_paid, verification_failed, refund_amount, last_verification_at,
	started_at, banner_published_at, start_date, end_date, created_at, updated_at`

func scanRental(row pgx.Row) (*models.Rental, error) {
	var r models.Rental
	err := row.Scan(&r.ID, &r.ListingID, &r.AdvertiserWallet, &r.AdImageURL, &r.AdFingerprint,
		&r.DurationDays, &r.TotalPrice, &r.PaymentTxHash, &r.PaymentStatus, &r.ApprovalStatus, &r.Status,
		&r.DaysPaid, &r.VerificationFailed, &r.RefundAmount, &r.LastVerificationAt,
		&r.StartedAt, &r.BannerPublishedAt, &r.StartDate, &r.EndDate, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a new rental in its initial state (paid, pending approval).
func (r *Repository) Create(ctx context.Context, rental *models.Rental) error {
	const query = `INSERT INTO rentals (id, listing_id, advertiser_wallet, ad_image_url,
			duration_days, total_price, payment_tx_hash, payment_status, approval_status, status,
			days_paid, verification_failed, start_date, end_date)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, 0, FALSE, $10, $11)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rental.ListingID, rental.AdvertiserWallet, rental.AdImageURL,
		rental.DurationDays, rental.TotalPrice, rental.PaymentTxHash,
		rental.PaymentStatus, rental.ApprovalStatus, rental.Status,
		rental.StartDate, rental.EndDate).
		Scan(&rental.ID, &rental.CreatedAt, &rental.UpdatedAt)
}

// GetByID returns a rental by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	const query = `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1`
	rental, err := scanRental(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rental, err
}

// Approve transitions a pending rental to approved/active, storing the ad
// fingerprint computed from the original creative. Returns false when the
// rental was already decided (the guard saw approval_status != pending).
func (r *Repository) Approve(ctx context.Context, id uuid.UUID, fp []byte, at time.Time) (bool, error) {
	const query = `UPDATE rentals
		SET approval_status = 'approved', status = 'active', ad_fingerprint = $2,
			started_at = $3, updated_at = now()
		WHERE id = $1 AND approval_status = 'pending' AND payment_status = 'paid'`
	tag, err := r.pool.Exec(ctx, query, id, fp, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Reject transitions a pending rental to rejected. Terminal.
func (r *Repository) Reject(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `UPDATE rentals
		SET approval_status = 'rejected', status = 'rejected', updated_at = now()
		WHERE id = $1 AND approval_status = 'pending'`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListEligible returns rentals due for an integrity check: active, approved,
// paid, and not yet failed. Listing fields the verifier needs ride along.
func (r *Repository) ListEligible(ctx context.Context) ([]models.VerificationCandidate, error) {
	const query = `SELECT r.id, r.listing_id, l.screen_name, l.wallet_address, r.advertiser_wallet,
			r.ad_fingerprint, r.days_paid, r.duration_days, l.price_per_day, r.last_verification_at
		FROM rentals r
		JOIN listings l ON l.id = r.listing_id
		WHERE r.status = 'active' AND r.approval_status = 'approved'
			AND r.payment_status = 'paid' AND r.verification_failed = FALSE`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.VerificationCandidate
	for rows.Next() {
		var c models.VerificationCandidate
		if err := rows.Scan(&c.RentalID, &c.ListingID, &c.ScreenName, &c.CreatorWallet, &c.AdvertiserWallet,
			&c.AdFingerprint, &c.DaysPaid, &c.DurationDays, &c.PricePerDay, &c.LastVerificationAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// StampVerification records that a verification attempt happened, match or
// not, gating the cooldown window.
func (r *Repository) StampVerification(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE rentals SET last_verification_at = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

// RecordSuccess credits one verified period. The guard re-derives
// eligibility and caps days_paid at duration_days, so a duplicate call
// within one period is a no-op (applied = false). Reaching the cap flips
// the rental to completed in the same statement.
func (r *Repository) RecordSuccess(ctx context.Context, id uuid.UUID) (daysPaid int, completed bool, applied bool, err error) {
	const query = `UPDATE rentals
		SET days_paid = days_paid + 1,
			status = CASE WHEN days_paid + 1 >= duration_days THEN 'completed' ELSE status END,
			updated_at = now()
		WHERE id = $1 AND status = 'active' AND approval_status = 'approved'
			AND payment_status = 'paid' AND verification_failed = FALSE
			AND days_paid < duration_days
		RETURNING days_paid, status`
	var status string
	err = r.pool.QueryRow(ctx, query, id).Scan(&daysPaid, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return daysPaid, status == models.RentalStatusCompleted, true, nil
}

// RecordFailure marks the rental failed and computes the refund for the
// unserved remainder in the same statement, freezing it against later
// recomputation. Returns applied = false if the rental had already failed
// or left the active state.
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID) (refund float64, applied bool, err error) {
	const query = `UPDATE rentals r
		SET verification_failed = TRUE, status = 'failed',
			refund_amount = (r.duration_days - r.days_paid) * l.price_per_day,
			updated_at = now()
		FROM listings l
		WHERE l.id = r.listing_id AND r.id = $1
			AND r.status = 'active' AND r.verification_failed = FALSE
		RETURNING r.refund_amount`
	err = r.pool.QueryRow(ctx, query, id).Scan(&refund)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return refund, true, nil
}

// StampBannerPublished records the successful banner publish. Failure to
// stamp is a non-critical side effect for the caller.
func (r *Repository) StampBannerPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE rentals SET banner_published_at = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

// ListByAdvertiser returns rentals created by a wallet, newest first.
func (r *Repository) ListByAdvertiser(ctx context.Context, wallet string) ([]models.Rental, error) {
	const query = `SELECT ` + rentalColumns + ` FROM rentals WHERE advertiser_wallet = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, wallet)
}

// ListByOwner returns rentals against any listing owned by the account,
// newest first.
func (r *Repository) ListByOwner(ctx context.Context, accountID uuid.UUID) ([]models.Rental, error) {
	const query = `SELECT r.id, r.listing_id, r.advertiser_wallet, r.ad_image_url, r.ad_fingerprint,
			r.duration_days, r.total_price, COALESCE(r.payment_tx_hash, ''), r.payment_status, r.approval_status, r.status,
			r.days_paid, r.verification_failed, r.refund_amount, r.last_verification_at,
			r.started_at, r.banner_published_at, r.start_date, r.end_date, r.created_at, r.updated_at
		FROM rentals r
		JOIN listings l ON l.id = r.listing_id
		WHERE l.x_account_id = $1
		ORDER BY r.created_at DESC`
	return r.list(ctx, query, accountID)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]models.Rental, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Rental
	for rows.Next() {
		rental, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rental)
	}
	return list, rows.Err()
}
