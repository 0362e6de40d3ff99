// Package pda derives deterministic escrow account addresses. The byte
// layout (seed tag, buyer public key, request id) must stay identical
// between the transaction builder and the payment verifier: both sides
// compute the address independently and verification compares the results.
package pda

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

const escrowSeed = "escrow"

// DeriveEscrowAddress computes the escrow account address for a buyer and
// request. The buyer key is the base58-decoded 32-byte public key.
func DeriveEscrowAddress(buyerPubkey string, requestID string) (string, error) {
	buyerBytes, err := base58.Decode(buyerPubkey)
	if err != nil {
		return "", fmt.Errorf("decode buyer pubkey: %w", err)
	}
	if len(buyerBytes) != 32 {
		return "", fmt.Errorf("buyer pubkey must be 32 bytes, got %d", len(buyerBytes))
	}

	h := sha256.New()
	h.Write([]byte(escrowSeed))
	h.Write(buyerBytes)
	h.Write([]byte(requestID))

	return base58.Encode(h.Sum(nil)), nil
}
