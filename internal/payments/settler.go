package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/akashbiswas0/Avenger/config"
	"github.com/akashbiswas0/Avenger/internal/models"
)

// Settler executes a payout intent against whatever moves value. The
// returned status is one of the models.PayoutStatus* values.
type Settler interface {
	Settle(ctx context.Context, p *models.Payout) (status, txHash string, err error)
}

// FacilitatorSettler POSTs transfer instructions to an x402 facilitator.
// With no facilitator configured it only records the intent, mirroring
// systems where settlement is driven out-of-band.
type FacilitatorSettler struct {
	cfg        config.PaymentConfig
	httpClient *http.Client
}

// NewFacilitatorSettler creates a settler for the configured facilitator.
func NewFacilitatorSettler(cfg config.PaymentConfig) *FacilitatorSettler {
	return &FacilitatorSettler{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type transferRequest struct {
	To      string `json:"to"`
	Amount  string `json:"amount"` // atomic units
	Asset   string `json:"asset"`
	Network string `json:"network"`
	Memo    string `json:"memo"`
}

type transferResponse struct {
	TxHash string `json:"txHash"`
}

// Settle sends the transfer to the facilitator, or marks the intent
// recorded when none is configured.
func (s *FacilitatorSettler) Settle(ctx context.Context, p *models.Payout) (string, string, error) {
	if s.cfg.FacilitatorURL == "" {
		return models.PayoutStatusRecorded, "", nil
	}

	body, err := json.Marshal(transferRequest{
		To:      p.Recipient,
		Amount:  AtomicUSDC(p.Amount),
		Asset:   s.cfg.AssetContract,
		Network: s.cfg.Network,
		Memo:    fmt.Sprintf("%s for rental %s", p.Kind, p.RentalID),
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.FacilitatorURL, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("facilitator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("facilitator: status %d", resp.StatusCode)
	}

	var out transferResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode facilitator response: %w", err)
	}
	return models.PayoutStatusSent, out.TxHash, nil
}
