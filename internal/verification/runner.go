// Package verification implements the recurring ad-integrity job: re-render
// each active rental's profile, compare the banner region against the
// rental's stored fingerprint, and pay, complete, or fail the rental
// accordingly. Rentals are independent; one failure never aborts a run.
package verification

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // snapshot decode support
	_ "image/png"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/akashbiswas0/Avenger/config"
	"github.com/akashbiswas0/Avenger/internal/fingerprint"
	"github.com/akashbiswas0/Avenger/internal/metrics"
	"github.com/akashbiswas0/Avenger/internal/models"
)

// Store is the rental persistence slice the runner needs. All mutating
// calls are conditional on the rental's current state, so a retried or
// overlapping run no-ops instead of double-billing.
type Store interface {
	ListEligible(ctx context.Context) ([]models.VerificationCandidate, error)
	StampVerification(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordSuccess(ctx context.Context, id uuid.UUID) (daysPaid int, completed bool, applied bool, err error)
	RecordFailure(ctx context.Context, id uuid.UUID) (refund float64, applied bool, err error)
}

// Renderer turns a profile URL into a raster snapshot.
type Renderer interface {
	Snapshot(ctx context.Context, url string) ([]byte, error)
}

// PayoutTrigger receives pay/refund instructions computed by the run.
type PayoutTrigger interface {
	PayCreator(ctx context.Context, rentalID uuid.UUID, to string, amount float64) error
	RefundAdvertiser(ctx context.Context, rentalID uuid.UUID, to string, amount float64) error
}

// Summary aggregates one run for observability. It is not persisted;
// rental-level fields are the durable record.
type Summary struct {
	Eligible int `json:"total"`
	Skipped  int `json:"skipped"`
	Verified int `json:"verified"`
	Paid     int `json:"paid"`
	Failed   int `json:"failed"`
}

// Runner executes verification runs.
type Runner struct {
	store    Store
	renderer Renderer
	payouts  PayoutTrigger
	cfg      config.VerificationConfig
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewRunner creates a verification runner.
func NewRunner(store Store, renderer Renderer, payouts PayoutTrigger, cfg config.VerificationConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.CooldownHours <= 0 {
		cfg.CooldownHours = 20
	}
	if cfg.RenderTimeoutSec <= 0 {
		cfg.RenderTimeoutSec = 30
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = fingerprint.DefaultTolerance
	}
	if cfg.BannerTopFraction <= 0 {
		cfg.BannerTopFraction = 0.20
	}
	rps := cfg.RendersPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Runner{
		store:    store,
		renderer: renderer,
		payouts:  payouts,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		logger:   logger,
	}
}

// Run performs one verification pass over all eligible rentals. Candidates
// are processed by a bounded worker pool; each targets a disjoint rental
// row, so no cross-rental coordination is needed. Only candidate selection
// can fail the run as a whole.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		metrics.VerificationRunDuration.Observe(time.Since(start).Seconds())
	}()

	candidates, err := r.store.ListEligible(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list eligible rentals: %w", err)
	}
	sum := Summary{Eligible: len(candidates)}
	if len(candidates) == 0 {
		r.logger.Info("no active rentals to verify")
		return sum, nil
	}
	r.logger.Info("verification run started", zap.Int("eligible", len(candidates)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("verification panic",
						zap.Any("panic", p), zap.String("rental_id", cand.RentalID.String()))
					metrics.RentalsChecked.WithLabelValues(metrics.OutcomeError).Inc()
				}
			}()
			outcome := r.verify(gctx, cand)
			mu.Lock()
			switch outcome {
			case outcomeSkipped:
				sum.Skipped++
			case outcomePaid:
				sum.Verified++
				sum.Paid++
			case outcomeFailed:
				sum.Verified++
				sum.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("verification run completed",
		zap.Int("eligible", sum.Eligible), zap.Int("skipped", sum.Skipped),
		zap.Int("verified", sum.Verified), zap.Int("paid", sum.Paid), zap.Int("failed", sum.Failed))
	return sum, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePaid
	outcomeFailed
)

// verify runs the per-rental pipeline. Transient faults (render timeouts,
// repository hiccups) end in a skip: the rental stays eligible and is
// retried on the next run.
func (r *Runner) verify(ctx context.Context, c models.VerificationCandidate) outcome {
	log := r.logger.With(zap.String("rental_id", c.RentalID.String()), zap.String("screen_name", c.ScreenName))
	now := time.Now().UTC()

	cooldown := time.Duration(r.cfg.CooldownHours) * time.Hour
	if c.LastVerificationAt != nil {
		since := now.Sub(*c.LastVerificationAt)
		if since < cooldown {
			log.Debug("skipping, verified recently", zap.Duration("since", since))
			metrics.RentalsChecked.WithLabelValues(metrics.OutcomeSkipped).Inc()
			return outcomeSkipped
		}
	}

	if len(c.AdFingerprint) == 0 {
		log.Warn("no ad fingerprint stored, skipping verification")
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return outcomeSkipped
	}
	stored, err := fingerprint.FromBytes(c.AdFingerprint)
	if err != nil {
		log.Warn("corrupt ad fingerprint, skipping verification", zap.Error(err))
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return outcomeSkipped
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return outcomeSkipped
	}

	// Render failure is transient: no verification stamp, so the rental is
	// retried on the next run instead of burning a cooldown window.
	renderCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.RenderTimeoutSec)*time.Second)
	snapshot, err := r.renderer.Snapshot(renderCtx, profileURL(c.ScreenName))
	cancel()
	if err != nil {
		log.Warn("profile render failed", zap.Error(err))
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeError).Inc()
		return outcomeSkipped
	}

	// Past a successful render the policy is fail-open: an undecodable
	// snapshot counts as "ad still present" rather than penalizing the
	// advertiser for an infrastructure fault.
	matched := true
	if img, _, err := image.Decode(bytes.NewReader(snapshot)); err != nil {
		log.Warn("snapshot decode failed, assuming ad present", zap.Error(err))
	} else {
		banner := fingerprint.CropTop(img, r.cfg.BannerTopFraction)
		current := fingerprint.Compute(banner)
		dist := fingerprint.Distance(stored, current)
		matched = fingerprint.IsMatch(stored, current, r.cfg.Tolerance)
		log.Debug("banner compared",
			zap.Int("hamming_distance", dist), zap.Bool("matched", matched))
	}

	// The stamp lands before the outcome write so a crash between the two
	// leaves the rental cooling down, not double-countable.
	if err := r.store.StampVerification(ctx, c.RentalID, now); err != nil {
		log.Error("stamp verification failed", zap.Error(err))
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeError).Inc()
		return outcomeSkipped
	}

	if matched {
		return r.applySuccess(ctx, c, log)
	}
	return r.applyFailure(ctx, c, log)
}

func (r *Runner) applySuccess(ctx context.Context, c models.VerificationCandidate, log *zap.Logger) outcome {
	daysPaid, completed, applied, err := r.store.RecordSuccess(ctx, c.RentalID)
	if err != nil {
		log.Error("record verification success failed", zap.Error(err))
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeError).Inc()
		return outcomeSkipped
	}
	if !applied {
		// Another run got here first within this period.
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return outcomeSkipped
	}

	if err := r.payouts.PayCreator(ctx, c.RentalID, c.CreatorWallet, c.PricePerDay); err != nil {
		log.Error("daily payout trigger failed", zap.Error(err))
	} else {
		metrics.PayoutIntents.WithLabelValues(models.PayoutKindDaily).Inc()
	}

	if completed {
		log.Info("rental completed, reached duration limit", zap.Int("days_paid", daysPaid))
	} else {
		log.Info("ad verified, period credited", zap.Int("days_paid", daysPaid))
	}
	metrics.RentalsChecked.WithLabelValues(metrics.OutcomePaid).Inc()
	return outcomePaid
}

func (r *Runner) applyFailure(ctx context.Context, c models.VerificationCandidate, log *zap.Logger) outcome {
	refund, applied, err := r.store.RecordFailure(ctx, c.RentalID)
	if err != nil {
		log.Error("record verification failure failed", zap.Error(err))
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeError).Inc()
		return outcomeSkipped
	}
	if !applied {
		metrics.RentalsChecked.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return outcomeSkipped
	}

	if refund > 0 {
		if err := r.payouts.RefundAdvertiser(ctx, c.RentalID, c.AdvertiserWallet, refund); err != nil {
			log.Error("refund trigger failed", zap.Error(err))
		} else {
			metrics.PayoutIntents.WithLabelValues(models.PayoutKindRefund).Inc()
		}
	}

	log.Info("ad verification failed, rental stopped",
		zap.Float64("refund_amount", refund))
	metrics.RentalsChecked.WithLabelValues(metrics.OutcomeFailed).Inc()
	return outcomeFailed
}

func profileURL(screenName string) string {
	return "https://x.com/" + screenName
}
