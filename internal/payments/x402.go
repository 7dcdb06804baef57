// Package payments implements the x402 payment challenge for rental creation
// and the payout/refund intent ledger driven by verification outcomes. The
// service computes amounts and records intent; moving value is external.
package payments

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/akashbiswas0/Avenger/config"
)

// X402Version is the protocol version advertised in challenges.
const X402Version = 1

// PaymentHeader is the request header carrying the opaque payment proof.
const PaymentHeader = "X-PAYMENT"

// Requirement is a single accepted payment option in an x402 challenge.
type Requirement struct {
	Scheme            string `json:"scheme"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Network           string `json:"network"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
}

// Challenge is the structured 402 response body: the caller obtains a proof
// matching one of the accepted requirements and retries with it attached.
type Challenge struct {
	X402Version int           `json:"x402Version"`
	Accepts     []Requirement `json:"accepts"`
}

// AtomicUSDC converts a USDC amount to atomic units (6 decimals), flooring.
func AtomicUSDC(amount float64) string {
	return fmt.Sprintf("%d", int64(math.Floor(amount*1_000_000)))
}

// NewChallenge builds the x402 challenge for a rental of durationDays at
// totalPrice, payable to the configured server wallet.
func NewChallenge(cfg config.PaymentConfig, resource string, totalPrice float64, durationDays int) Challenge {
	return Challenge{
		X402Version: X402Version,
		Accepts: []Requirement{{
			Scheme:            "exact",
			Asset:             cfg.AssetContract,
			PayTo:             cfg.ServerWallet,
			MaxAmountRequired: AtomicUSDC(totalPrice),
			Network:           cfg.Network,
			Resource:          resource,
			Description:       fmt.Sprintf("Payment for banner rental: %d days at %g USDC total", durationDays, totalPrice),
			MimeType:          "application/json",
			MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
		}},
	}
}

// ExtractTxHash pulls a transaction hash out of an opaque payment proof,
// best effort: JSON payloads are probed for common hash fields, anything
// else is truncated to a typical 66-character hash.
func ExtractTxHash(proof string) string {
	var payload struct {
		TxHash          string `json:"txHash"`
		TransactionHash string `json:"transactionHash"`
		Hash            string `json:"hash"`
	}
	if err := json.Unmarshal([]byte(proof), &payload); err == nil {
		switch {
		case payload.TxHash != "":
			return payload.TxHash
		case payload.TransactionHash != "":
			return payload.TransactionHash
		case payload.Hash != "":
			return payload.Hash
		}
	}
	if len(proof) > 66 {
		return proof[:66]
	}
	return proof
}
