package payments

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akashbiswas0/Avenger/config"
)

func TestAtomicUSDC(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0.01, "10000"},
		{0.07, "70000"},
		{1, "1000000"},
		{0.0000019, "1"}, // floors
		{0, "0"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, AtomicUSDC(tc.amount), "amount %v", tc.amount)
	}
}

func TestNewChallenge(t *testing.T) {
	cfg := config.PaymentConfig{
		ServerWallet:      "0xserver",
		Network:           "base-sepolia",
		AssetContract:     "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		MaxTimeoutSeconds: 300,
	}

	ch := NewChallenge(cfg, "https://api.example.com/rentals", 0.07, 7)

	require.Equal(t, 1, ch.X402Version)
	require.Len(t, ch.Accepts, 1)
	req := ch.Accepts[0]
	require.Equal(t, "exact", req.Scheme)
	require.Equal(t, cfg.AssetContract, req.Asset)
	require.Equal(t, "0xserver", req.PayTo)
	require.Equal(t, "70000", req.MaxAmountRequired)
	require.Equal(t, "base-sepolia", req.Network)
	require.Equal(t, "https://api.example.com/rentals", req.Resource)
	require.Equal(t, "application/json", req.MimeType)
	require.Equal(t, 300, req.MaxTimeoutSeconds)
}

func TestExtractTxHash(t *testing.T) {
	require.Equal(t, "0xabc", ExtractTxHash(`{"txHash":"0xabc"}`))
	require.Equal(t, "0xdef", ExtractTxHash(`{"transactionHash":"0xdef"}`))
	require.Equal(t, "0x123", ExtractTxHash(`{"hash":"0x123"}`))

	long := "0x" + string(make([]byte, 100))
	require.Len(t, ExtractTxHash(long), 66)

	require.Equal(t, "opaque-proof", ExtractTxHash("opaque-proof"))
}
