package accounts

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() string {
	return strings.Repeat("ab", 32)
}

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	require.NoError(t, err)

	enc, err := c.Encrypt("1234567890-secretaccesstoken")
	require.NoError(t, err)
	require.NotEqual(t, "1234567890-secretaccesstoken", enc)

	plain, err := c.Decrypt(enc)
	require.NoError(t, err)
	require.Equal(t, "1234567890-secretaccesstoken", plain)
}

func TestTokenCipherNonceVaries(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	require.NoError(t, err)

	a, err := c.Encrypt("token")
	require.NoError(t, err)
	b, err := c.Encrypt("token")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestTokenCipherRejectsTampering(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	require.NoError(t, err)

	enc, err := c.Encrypt("token")
	require.NoError(t, err)

	raw, err := hex.DecodeString(enc)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = c.Decrypt(hex.EncodeToString(raw))
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestTokenCipherRejectsBadKey(t *testing.T) {
	_, err := NewTokenCipher("not-hex")
	require.Error(t, err)

	_, err = NewTokenCipher("abcd")
	require.Error(t, err)
}

func TestTokenCipherRejectsShortCiphertext(t *testing.T) {
	c, err := NewTokenCipher(testKey())
	require.NoError(t, err)

	_, err = c.Decrypt("abcd")
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}
