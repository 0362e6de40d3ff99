package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/repository"
)

func newAccessFixture(t *testing.T) (AccessService, OrderService, repository.ProductRepository) {
	db := newTestDB(t)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)

	access := NewAccessService(productRepo, orderRepo, escrowRepo)
	orders := NewOrderService(db, &stubVerifier{}, orderRepo, productRepo, "solana-devnet", testWallet(0xFE), testLogger())
	return access, orders, productRepo
}

func TestCapabilitiesOwner(t *testing.T) {
	access, _, productRepo := newAccessFixture(t)
	owner := testWallet(0x01)
	product := seedProduct(t, productRepo, owner, 1000)

	caps, err := access.Capabilities(context.Background(), product.ID, owner)
	require.NoError(t, err)
	require.True(t, caps.Has(CapRead))
	require.True(t, caps.Has(CapDownload))
	require.False(t, caps.Has(CapPurchase))

	require.NoError(t, access.Authorize(context.Background(), product.ID, owner))
}

func TestCapabilitiesStranger(t *testing.T) {
	access, _, productRepo := newAccessFixture(t)
	owner, stranger := testWallet(0x01), testWallet(0x02)
	product := seedProduct(t, productRepo, owner, 1000)

	caps, err := access.Capabilities(context.Background(), product.ID, stranger)
	require.NoError(t, err)
	require.True(t, caps.Has(CapRead))
	require.True(t, caps.Has(CapPurchase))
	require.False(t, caps.Has(CapDownload))

	err = access.Authorize(context.Background(), product.ID, stranger)
	require.True(t, errors.Is(err, apperr.ErrAuthorization))
}

// A pending order grants nothing; the grant appears the moment the order
// completes, with no caching in between.
func TestAuthorizeFollowsOrderCompletion(t *testing.T) {
	access, orders, productRepo := newAccessFixture(t)
	owner, buyer := testWallet(0x01), testWallet(0x02)
	product := seedProduct(t, productRepo, owner, 1000)

	order, err := orders.CreateOrder(context.Background(), product.ID, buyer, RailDirect)
	require.NoError(t, err)

	err = access.Authorize(context.Background(), product.ID, buyer)
	require.True(t, errors.Is(err, apperr.ErrAuthorization))

	_, err = orders.ConfirmOrder(context.Background(), order.ID, buyer, &PaymentProof{Signature: "sig-1"})
	require.NoError(t, err)

	require.NoError(t, access.Authorize(context.Background(), product.ID, buyer))

	caps, err := access.Capabilities(context.Background(), product.ID, buyer)
	require.NoError(t, err)
	require.True(t, caps.Has(CapDownload))
	require.False(t, caps.Has(CapPurchase))
}

// Escrow fulfilment grants the buyer decrypt access from delivery onward,
// with no order involved.
func TestAuthorizeFollowsEscrowDelivery(t *testing.T) {
	f := newEscrowFixture(t)
	productRepo := repository.NewProductRepository(f.db)
	orderRepo := repository.NewOrderRepository(f.db)
	access := NewAccessService(productRepo, orderRepo, f.escrowRepo)

	provider, buyer := testWallet(0x02), testWallet(0x01)
	product := seedProduct(t, productRepo, provider, 1000)

	escrow, _, _ := f.fund(t)

	// Funded but undelivered grants nothing.
	err := access.Authorize(context.Background(), product.ID, buyer)
	require.True(t, errors.Is(err, apperr.ErrAuthorization))

	_, err = f.svc.MarkDelivered(context.Background(), escrow.EscrowPDA, provider, product.ID, &PaymentProof{Signature: "deliver-sig"})
	require.NoError(t, err)

	require.NoError(t, access.Authorize(context.Background(), product.ID, buyer))
}

func TestCapabilitiesValidation(t *testing.T) {
	access, _, productRepo := newAccessFixture(t)
	owner := testWallet(0x01)
	product := seedProduct(t, productRepo, owner, 1000)

	_, err := access.Capabilities(context.Background(), product.ID, "")
	require.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = access.Capabilities(context.Background(), "missing", owner)
	require.True(t, errors.Is(err, apperr.ErrNotFound))
}
