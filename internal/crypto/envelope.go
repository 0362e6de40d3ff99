// Package crypto implements the envelope-encryption pipeline: every file
// gets a fresh data key, the payload is sealed with AES-256-GCM, and the
// data key is stored only wrapped under the process master key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"datanexus-marketplace/internal/apperr"
)

const KeySize = 32

// Envelope holds the process master key. The key is injected once at
// startup and is read-only afterwards; it must never be logged or
// included in error payloads.
type Envelope struct {
	masterKey []byte
}

func NewEnvelope(masterKey []byte) (*Envelope, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes", KeySize)
	}
	key := make([]byte, KeySize)
	copy(key, masterKey)
	return &Envelope{masterKey: key}, nil
}

// Sealed is the output of an authenticated encryption: ciphertext, nonce
// and GCM tag, kept separate so they can be stored and transported apart.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// GenerateDataKey returns a fresh random symmetric key. One per uploaded
// file, never reused.
func GenerateDataKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate data key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptPayload seals plaintext under key with a fresh random nonce.
// A new nonce is drawn on every call, even for the same key.
func EncryptPayload(plaintext, key []byte) (*Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(out) - gcm.Overhead()

	return &Sealed{
		Ciphertext: out[:tagStart],
		IV:         iv,
		AuthTag:    out[tagStart:],
	}, nil
}

// DecryptPayload opens a sealed payload. Any tag mismatch fails closed
// with CryptoAuthenticationFailure; no partial plaintext is returned.
func DecryptPayload(sealed *Sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed.IV) != gcm.NonceSize() {
		return nil, apperr.New(apperr.CodeCryptoAuth, "bad nonce length")
	}

	combined := append(append([]byte{}, sealed.Ciphertext...), sealed.AuthTag...)
	plaintext, err := gcm.Open(nil, sealed.IV, combined, nil)
	if err != nil {
		return nil, apperr.New(apperr.CodeCryptoAuth, "payload authentication failed")
	}
	return plaintext, nil
}

// WrapKey seals a data key under the master key.
func (e *Envelope) WrapKey(dataKey []byte) (*Sealed, error) {
	return EncryptPayload(dataKey, e.masterKey)
}

// UnwrapKey recovers a data key from its wrapped form. Fails closed on
// tag mismatch.
func (e *Envelope) UnwrapKey(wrapped *Sealed) ([]byte, error) {
	key, err := DecryptPayload(wrapped, e.masterKey)
	if err != nil {
		return nil, apperr.New(apperr.CodeCryptoAuth, "key unwrap failed")
	}
	if len(key) != KeySize {
		return nil, apperr.New(apperr.CodeCryptoAuth, "unwrapped key has wrong size")
	}
	return key, nil
}
