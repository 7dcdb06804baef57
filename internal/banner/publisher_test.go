package banner

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/akashbiswas0/Avenger/internal/accounts"
	"github.com/akashbiswas0/Avenger/internal/models"
)

type fakeRentals struct {
	rental  *models.Rental
	stamped []uuid.UUID
}

func (f *fakeRentals) GetByID(ctx context.Context, id uuid.UUID) (*models.Rental, error) {
	if f.rental != nil && f.rental.ID == id {
		return f.rental, nil
	}
	return nil, nil
}

func (f *fakeRentals) StampBannerPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.stamped = append(f.stamped, id)
	return nil
}

type fakeListings struct{ listing *models.Listing }

func (f *fakeListings) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if f.listing != nil && f.listing.ID == id {
		return f.listing, nil
	}
	return nil, nil
}

type fakeAccounts struct{ account *models.XAccount }

func (f *fakeAccounts) GetByID(ctx context.Context, id uuid.UUID) (*models.XAccount, error) {
	if f.account != nil && f.account.ID == id {
		return f.account, nil
	}
	return nil, nil
}

type fakeAssets struct{ data []byte }

func (f *fakeAssets) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f.data, nil
}

func newCipher(t *testing.T) *accounts.TokenCipher {
	t.Helper()
	c, err := accounts.NewTokenCipher(strings.Repeat("cd", 32))
	require.NoError(t, err)
	return c
}

func fixture(t *testing.T, cipher *accounts.TokenCipher) (*fakeRentals, *fakeListings, *fakeAccounts) {
	t.Helper()
	encToken, err := cipher.Encrypt("access-token")
	require.NoError(t, err)
	encSecret, err := cipher.Encrypt("access-secret")
	require.NoError(t, err)

	account := &models.XAccount{ID: uuid.New(), ScreenName: "alice",
		EncryptedAccessToken: encToken, EncryptedTokenSecret: encSecret}
	listing := &models.Listing{ID: uuid.New(), XAccountID: account.ID, ScreenName: "alice"}
	rental := &models.Rental{
		ID:             uuid.New(),
		ListingID:      listing.ID,
		AdImageURL:     "data:image/png;base64,aWdub3JlZA==",
		ApprovalStatus: models.ApprovalStatusApproved,
		Status:         models.RentalStatusActive,
	}
	return &fakeRentals{rental: rental}, &fakeListings{listing: listing}, &fakeAccounts{account: account}
}

func TestPublishUploadsBannerAndStamps(t *testing.T) {
	cipher := newCipher(t)
	rentals, listings, accts := fixture(t, cipher)
	creative := []byte("png-bytes")

	var gotBanner string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotBanner = r.PostFormValue("banner")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := NewPublisher(rentals, listings, accts, &fakeAssets{data: creative}, cipher, "key", "secret", nil)
	p.endpoint = srv.URL

	require.NoError(t, p.Publish(context.Background(), rentals.rental.ID))
	require.Equal(t, base64.StdEncoding.EncodeToString(creative), gotBanner)
	require.Contains(t, gotAuth, `oauth_token="access-token"`)
	require.Equal(t, []uuid.UUID{rentals.rental.ID}, rentals.stamped)
}

func TestPublishSkipsInactiveRental(t *testing.T) {
	cipher := newCipher(t)
	rentals, listings, accts := fixture(t, cipher)
	rentals.rental.Status = models.RentalStatusFailed

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no upload expected")
	}))
	defer srv.Close()

	p := NewPublisher(rentals, listings, accts, &fakeAssets{}, cipher, "key", "secret", nil)
	p.endpoint = srv.URL

	require.NoError(t, p.Publish(context.Background(), rentals.rental.ID))
	require.Empty(t, rentals.stamped)
}

func TestPublishErrorsOnAPIFailure(t *testing.T) {
	cipher := newCipher(t)
	rentals, listings, accts := fixture(t, cipher)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"code":89}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewPublisher(rentals, listings, accts, &fakeAssets{data: []byte("x")}, cipher, "key", "secret", nil)
	p.endpoint = srv.URL

	err := p.Publish(context.Background(), rentals.rental.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Empty(t, rentals.stamped)
}

func TestPublishErrorsOnUnknownRental(t *testing.T) {
	cipher := newCipher(t)
	rentals, listings, accts := fixture(t, cipher)

	p := NewPublisher(rentals, listings, accts, &fakeAssets{}, cipher, "key", "secret", nil)
	err := p.Publish(context.Background(), uuid.New())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}
