package verification

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/akashbiswas0/Avenger/config"
	"github.com/akashbiswas0/Avenger/internal/fingerprint"
	"github.com/akashbiswas0/Avenger/internal/models"
)

// bannerImage draws a half-black half-white banner. Inverting the halves
// produces a pattern at maximal Hamming distance from the original.
func bannerImage(w, h int, inverted bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			left := x < w/2
			if inverted {
				left = !left
			}
			if left {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

// snapshotPNG builds a full profile snapshot whose top 20% carries the
// given banner pattern and whose remainder is mid gray.
func snapshotPNG(t *testing.T, inverted bool) []byte {
	t.Helper()
	const w, h = 600, 1000
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, gray)
		}
	}
	banner := bannerImage(w, h/5, inverted)
	for y := 0; y < h/5; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, banner.At(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func adFingerprint() []byte {
	return fingerprint.Compute(bannerImage(600, 120, false)).Bytes()
}

type rentalState struct {
	candidate models.VerificationCandidate
	failed    bool
	completed bool
	refund    float64
}

type fakeStore struct {
	mu      sync.Mutex
	rentals map[uuid.UUID]*rentalState
	listErr error
}

func newFakeStore(cands ...models.VerificationCandidate) *fakeStore {
	s := &fakeStore{rentals: make(map[uuid.UUID]*rentalState)}
	for _, c := range cands {
		c := c
		s.rentals[c.RentalID] = &rentalState{candidate: c}
	}
	return s
}

func (s *fakeStore) ListEligible(ctx context.Context) ([]models.VerificationCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.VerificationCandidate
	for _, st := range s.rentals {
		if st.failed || st.completed {
			continue
		}
		out = append(out, st.candidate)
	}
	return out, nil
}

func (s *fakeStore) StampVerification(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at = at.UTC()
	s.rentals[id].candidate.LastVerificationAt = &at
	return nil
}

func (s *fakeStore) RecordSuccess(ctx context.Context, id uuid.UUID) (int, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.rentals[id]
	if st.failed || st.completed || st.candidate.DaysPaid >= st.candidate.DurationDays {
		return 0, false, false, nil
	}
	st.candidate.DaysPaid++
	st.completed = st.candidate.DaysPaid >= st.candidate.DurationDays
	return st.candidate.DaysPaid, st.completed, true, nil
}

func (s *fakeStore) RecordFailure(ctx context.Context, id uuid.UUID) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.rentals[id]
	if st.failed || st.completed {
		return 0, false, nil
	}
	st.failed = true
	st.refund = float64(st.candidate.DurationDays-st.candidate.DaysPaid) * st.candidate.PricePerDay
	return st.refund, true, nil
}

func (s *fakeStore) state(id uuid.UUID) rentalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rentals[id]
}

type fakeRenderer struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	panics    map[string]bool
	calls     map[string]int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
		panics:    make(map[string]bool),
		calls:     make(map[string]int),
	}
}

func (r *fakeRenderer) Snapshot(ctx context.Context, url string) ([]byte, error) {
	r.mu.Lock()
	r.calls[url]++
	body := r.responses[url]
	err := r.errs[url]
	doPanic := r.panics[url]
	r.mu.Unlock()
	if doPanic {
		panic("renderer blew up")
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (r *fakeRenderer) callCount(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[url]
}

type payoutCall struct {
	rentalID uuid.UUID
	to       string
	amount   float64
}

type fakeTrigger struct {
	mu      sync.Mutex
	paid    []payoutCall
	refunds []payoutCall
}

func (t *fakeTrigger) PayCreator(ctx context.Context, rentalID uuid.UUID, to string, amount float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paid = append(t.paid, payoutCall{rentalID, to, amount})
	return nil
}

func (t *fakeTrigger) RefundAdvertiser(ctx context.Context, rentalID uuid.UUID, to string, amount float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refunds = append(t.refunds, payoutCall{rentalID, to, amount})
	return nil
}

func testConfig() config.VerificationConfig {
	return config.VerificationConfig{
		CooldownHours:     20,
		RenderTimeoutSec:  5,
		RendersPerSecond:  1000,
		Concurrency:       4,
		Tolerance:         0.10,
		BannerTopFraction: 0.20,
	}
}

func candidate(screenName string) models.VerificationCandidate {
	return models.VerificationCandidate{
		RentalID:         uuid.New(),
		ListingID:        uuid.New(),
		ScreenName:       screenName,
		CreatorWallet:    "0xcreator",
		AdvertiserWallet: "0xadvertiser",
		AdFingerprint:    adFingerprint(),
		DurationDays:     7,
		PricePerDay:      0.01,
	}
}

func hoursAgo(h int) *time.Time {
	t := time.Now().UTC().Add(-time.Duration(h) * time.Hour)
	return &t
}

func TestRunSkipsWithinCooldown(t *testing.T) {
	cand := candidate("alice")
	cand.LastVerificationAt = hoursAgo(10)
	store := newFakeStore(cand)
	renderer := newFakeRenderer()
	trigger := &fakeTrigger{}

	runner := NewRunner(store, renderer, trigger, testConfig(), nil)
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Eligible)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, 0, sum.Verified)
	require.Zero(t, renderer.callCount(profileURL("alice")))
	require.Equal(t, 0, store.state(cand.RentalID).candidate.DaysPaid)
}

func TestRunProcessesPastCooldown(t *testing.T) {
	cand := candidate("alice")
	cand.LastVerificationAt = hoursAgo(21)
	store := newFakeStore(cand)
	renderer := newFakeRenderer()
	renderer.responses[profileURL("alice")] = snapshotPNG(t, false)
	trigger := &fakeTrigger{}

	runner := NewRunner(store, renderer, trigger, testConfig(), nil)
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Paid)

	st := store.state(cand.RentalID)
	require.Equal(t, 1, st.candidate.DaysPaid)
	require.NotNil(t, st.candidate.LastVerificationAt)
	require.WithinDuration(t, time.Now(), *st.candidate.LastVerificationAt, time.Minute)
	require.Len(t, trigger.paid, 1)
	require.Equal(t, 0.01, trigger.paid[0].amount)
	require.Equal(t, "0xcreator", trigger.paid[0].to)
}

func TestRunFullRentalLifecycle(t *testing.T) {
	cand := candidate("alice")
	store := newFakeStore(cand)
	renderer := newFakeRenderer()
	renderer.responses[profileURL("alice")] = snapshotPNG(t, false)
	trigger := &fakeTrigger{}
	runner := NewRunner(store, renderer, trigger, testConfig(), nil)

	for day := 1; day <= 7; day++ {
		sum, err := runner.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, sum.Paid, "day %d", day)
		// Roll the clock past the cooldown for the next pass.
		store.mu.Lock()
		store.rentals[cand.RentalID].candidate.LastVerificationAt = hoursAgo(25)
		store.mu.Unlock()
	}

	st := store.state(cand.RentalID)
	require.Equal(t, 7, st.candidate.DaysPaid)
	require.True(t, st.completed)
	require.Len(t, trigger.paid, 7)

	// Completed rentals fall out of the eligible set.
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sum.Eligible)
}

func TestRunMismatchStopsRentalWithRefund(t *testing.T) {
	cand := candidate("alice")
	store := newFakeStore(cand)
	renderer := newFakeRenderer()
	renderer.responses[profileURL("alice")] = snapshotPNG(t, false)
	trigger := &fakeTrigger{}
	runner := NewRunner(store, renderer, trigger, testConfig(), nil)

	for day := 1; day <= 2; day++ {
		sum, err := runner.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, sum.Paid)
		store.mu.Lock()
		store.rentals[cand.RentalID].candidate.LastVerificationAt = hoursAgo(25)
		store.mu.Unlock()
	}

	// Day 3: the banner is replaced.
	renderer.responses[profileURL("alice")] = snapshotPNG(t, true)
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 0, sum.Paid)

	st := store.state(cand.RentalID)
	require.True(t, st.failed)
	require.Equal(t, 2, st.candidate.DaysPaid)
	require.InDelta(t, 0.05, st.refund, 1e-9)
	require.Len(t, trigger.refunds, 1)
	require.InDelta(t, 0.05, trigger.refunds[0].amount, 1e-9)
	require.Equal(t, "0xadvertiser", trigger.refunds[0].to)

	// Day 4: the failed rental is no longer eligible.
	sum, err = runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sum.Eligible)
	require.Len(t, trigger.paid, 2)
}

func TestRunRenderErrorLeavesRentalUntouched(t *testing.T) {
	cand := candidate("alice")
	store := newFakeStore(cand)
	renderer := newFakeRenderer()
	renderer.errs[profileURL("alice")] = context.DeadlineExceeded
	trigger := &fakeTrigger{}

	runner := NewRunner(store, renderer, trigger, testConfig(), nil)
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)

	// No stamp means the rental is immediately retriable next run.
	st := store.state(cand.RentalID)
	require.Nil(t, st.candidate.LastVerificationAt)
	require.Equal(t, 0, st.candidate.DaysPaid)
	require.False(t, st.failed)
	require.Empty(t, trigger.paid)
	require.Empty(t, trigger.refunds)
}

func TestRunUndecodableSnapshotFailsOpen(t *testing.T) {
	cand := candidate("alice")
	store := newFakeStore(cand)
	renderer := newFakeRenderer()
	renderer.responses[profileURL("alice")] = []byte("not an image at all")
	trigger := &fakeTrigger{}

	runner := NewRunner(store, renderer, trigger, testConfig(), nil)
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Paid)

	st := store.state(cand.RentalID)
	require.Equal(t, 1, st.candidate.DaysPaid)
	require.NotNil(t, st.candidate.LastVerificationAt)
	require.Len(t, trigger.paid, 1)
}

func TestRunSkipsMissingFingerprint(t *testing.T) {
	cand := candidate("alice")
	cand.AdFingerprint = nil
	store := newFakeStore(cand)
	renderer := newFakeRenderer()
	trigger := &fakeTrigger{}

	runner := NewRunner(store, renderer, trigger, testConfig(), nil)
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Skipped)
	require.Zero(t, renderer.callCount(profileURL("alice")))
	st := store.state(cand.RentalID)
	require.Nil(t, st.candidate.LastVerificationAt)
	require.Equal(t, 0, st.candidate.DaysPaid)
}

func TestRunIsolatesPanickingRental(t *testing.T) {
	bad := candidate("bad")
	good := candidate("good")
	store := newFakeStore(bad, good)
	renderer := newFakeRenderer()
	renderer.panics[profileURL("bad")] = true
	renderer.responses[profileURL("good")] = snapshotPNG(t, false)
	trigger := &fakeTrigger{}

	runner := NewRunner(store, renderer, trigger, testConfig(), nil)
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Eligible)
	require.Equal(t, 1, sum.Paid)

	require.Equal(t, 1, store.state(good.RentalID).candidate.DaysPaid)
	require.Equal(t, 0, store.state(bad.RentalID).candidate.DaysPaid)
	require.False(t, store.state(bad.RentalID).failed)
}

func TestRunPropagatesSelectionError(t *testing.T) {
	store := newFakeStore()
	store.listErr = context.DeadlineExceeded
	runner := NewRunner(store, newFakeRenderer(), &fakeTrigger{}, testConfig(), nil)
	_, err := runner.Run(context.Background())
	require.Error(t, err)
}
