package pda

import (
	"bytes"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func testPubkey(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

func TestDeriveEscrowAddressDeterministic(t *testing.T) {
	buyer := testPubkey(0x11)

	first, err := DeriveEscrowAddress(buyer, "req-1")
	require.NoError(t, err)
	second, err := DeriveEscrowAddress(buyer, "req-1")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestDeriveEscrowAddressVariesWithInputs(t *testing.T) {
	buyer := testPubkey(0x11)
	other := testPubkey(0x22)

	base, err := DeriveEscrowAddress(buyer, "req-1")
	require.NoError(t, err)

	differentRequest, err := DeriveEscrowAddress(buyer, "req-2")
	require.NoError(t, err)
	require.NotEqual(t, base, differentRequest)

	differentBuyer, err := DeriveEscrowAddress(other, "req-1")
	require.NoError(t, err)
	require.NotEqual(t, base, differentBuyer)
}

func TestDeriveEscrowAddressRejectsBadKeys(t *testing.T) {
	_, err := DeriveEscrowAddress("not-base58-!!", "req-1")
	require.Error(t, err)

	// valid base58 but not 32 bytes
	short := base58.Encode([]byte{1, 2, 3})
	_, err = DeriveEscrowAddress(short, "req-1")
	require.Error(t, err)
}
