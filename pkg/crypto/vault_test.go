package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestVault_RoundTrip(t *testing.T) {
	vault, err := NewVault(testKey())
	require.NoError(t, err)

	plaintexts := []string{"", "a", "ya29.some-access-token", strings.Repeat("x", 4096)}
	for _, p := range plaintexts {
		ciphertext, err := vault.Encrypt(p)
		require.NoError(t, err)

		decrypted, err := vault.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, p, decrypted)
	}
}

func TestVault_CiphertextDoesNotContainPlaintext(t *testing.T) {
	vault, err := NewVault(testKey())
	require.NoError(t, err)

	plaintext := "refresh-token-1//0abcdef"
	ciphertext, err := vault.Encrypt(plaintext)
	require.NoError(t, err)

	assert.NotContains(t, ciphertext, plaintext)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), plaintext)
}

func TestVault_NonDeterministicOutput(t *testing.T) {
	vault, err := NewVault(testKey())
	require.NoError(t, err)

	first, err := vault.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := vault.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestNewVault_RejectsBadKeyLength(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33, 64} {
		_, err := NewVault(make([]byte, size))
		assert.ErrorIs(t, err, ErrInvalidKey, "key size %d", size)
	}
}

func TestVault_MalformedCiphertext(t *testing.T) {
	vault, err := NewVault(testKey())
	require.NoError(t, err)

	// Not base64 at all.
	_, err = vault.Decrypt("%%%not-base64%%%")
	assert.ErrorIs(t, err, ErrMalformedCiphertext)

	// Valid base64 but shorter than a nonce.
	short := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	_, err = vault.Decrypt(short)
	assert.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestVault_TamperedCiphertextFails(t *testing.T) {
	vault, err := NewVault(testKey())
	require.NoError(t, err)

	ciphertext, err := vault.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = vault.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}
