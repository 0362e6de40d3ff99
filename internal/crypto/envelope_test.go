package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"datanexus-marketplace/internal/apperr"
)

func testMasterKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key, err := GenerateDataKey()
	require.NoError(t, err)

	plaintext := []byte("sensor readings 2026-08: 19.2, 19.4, 20.1")

	sealed, err := EncryptPayload(plaintext, key)
	require.NoError(t, err)
	require.NotEmpty(t, sealed.IV)
	require.NotEmpty(t, sealed.AuthTag)
	require.NotEqual(t, plaintext, sealed.Ciphertext)

	decrypted, err := DecryptPayload(sealed, key)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestFreshNonceEveryCall(t *testing.T) {
	key, err := GenerateDataKey()
	require.NoError(t, err)

	first, err := EncryptPayload([]byte("same message"), key)
	require.NoError(t, err)
	second, err := EncryptPayload([]byte("same message"), key)
	require.NoError(t, err)

	require.NotEqual(t, first.IV, second.IV)
	require.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestDecryptFailsClosedOnTamper(t *testing.T) {
	key, err := GenerateDataKey()
	require.NoError(t, err)

	sealed, err := EncryptPayload([]byte("payload"), key)
	require.NoError(t, err)

	flipBit := func(src []byte) []byte {
		out := append([]byte{}, src...)
		out[0] ^= 0x01
		return out
	}

	cases := map[string]*Sealed{
		"ciphertext": {Ciphertext: flipBit(sealed.Ciphertext), IV: sealed.IV, AuthTag: sealed.AuthTag},
		"iv":         {Ciphertext: sealed.Ciphertext, IV: flipBit(sealed.IV), AuthTag: sealed.AuthTag},
		"auth tag":   {Ciphertext: sealed.Ciphertext, IV: sealed.IV, AuthTag: flipBit(sealed.AuthTag)},
	}

	for name, tampered := range cases {
		t.Run(name, func(t *testing.T) {
			plaintext, err := DecryptPayload(tampered, key)
			require.Nil(t, plaintext)
			require.True(t, errors.Is(err, apperr.ErrCryptoAuth), "expected crypto auth failure, got %v", err)
		})
	}
}

func TestWrapUnwrapRoundtrip(t *testing.T) {
	envelope, err := NewEnvelope(testMasterKey(0xA1))
	require.NoError(t, err)

	dataKey, err := GenerateDataKey()
	require.NoError(t, err)

	wrapped, err := envelope.WrapKey(dataKey)
	require.NoError(t, err)
	require.NotEqual(t, dataKey, wrapped.Ciphertext)

	unwrapped, err := envelope.UnwrapKey(wrapped)
	require.NoError(t, err)
	require.Equal(t, dataKey, unwrapped)
}

func TestUnwrapWithWrongMasterKeyFailsClosed(t *testing.T) {
	right, err := NewEnvelope(testMasterKey(0x01))
	require.NoError(t, err)
	wrong, err := NewEnvelope(testMasterKey(0x02))
	require.NoError(t, err)

	dataKey, err := GenerateDataKey()
	require.NoError(t, err)

	wrapped, err := right.WrapKey(dataKey)
	require.NoError(t, err)

	unwrapped, err := wrong.UnwrapKey(wrapped)
	require.Nil(t, unwrapped)
	require.True(t, errors.Is(err, apperr.ErrCryptoAuth))
}

func TestGenerateDataKeyUnique(t *testing.T) {
	first, err := GenerateDataKey()
	require.NoError(t, err)
	second, err := GenerateDataKey()
	require.NoError(t, err)

	require.Len(t, first, KeySize)
	require.NotEqual(t, first, second)
}

func TestNewEnvelopeRejectsShortKey(t *testing.T) {
	_, err := NewEnvelope([]byte("short"))
	require.Error(t, err)
}
