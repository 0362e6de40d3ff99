package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/crypto"
	"datanexus-marketplace/internal/repository"
)

type productFixture struct {
	products ProductService
	orders   OrderService
	storage  *stubStorage
}

func newProductFixture(t *testing.T) *productFixture {
	db := newTestDB(t)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	access := NewAccessService(productRepo, orderRepo, repository.NewEscrowRepository(db))

	envelope, err := crypto.NewEnvelope(bytes.Repeat([]byte{0xA1}, crypto.KeySize))
	require.NoError(t, err)

	storage := newStubStorage()
	return &productFixture{
		products: NewProductService(productRepo, orderRepo, access, envelope, storage, testLogger()),
		orders:   NewOrderService(db, &stubVerifier{}, orderRepo, productRepo, "solana-devnet", testWallet(0xFE), testLogger()),
		storage:  storage,
	}
}

func TestUploadStoresOnlyCiphertext(t *testing.T) {
	f := newProductFixture(t)
	owner := testWallet(0x01)
	plaintext := []byte("lat,lon,temp\n52.5,13.4,19.2\n")

	product, err := f.products.Upload(context.Background(), owner, "weather", "hourly readings", "weather.csv", 1000, plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, product.StorageID)
	require.NotEmpty(t, product.WrappedKey)
	require.NotEmpty(t, product.PayloadIV)
	require.NotEmpty(t, product.PayloadTag)

	stored := f.storage.objects[product.StorageID]
	require.NotEmpty(t, stored)
	require.NotEqual(t, plaintext, stored)
	require.NotContains(t, string(stored), "lat,lon")
}

func TestDownloadRoundtrip(t *testing.T) {
	f := newProductFixture(t)
	owner, buyer := testWallet(0x01), testWallet(0x02)
	plaintext := []byte("sensor payload")

	product, err := f.products.Upload(context.Background(), owner, "sensors", "", "sensors.bin", 1000, plaintext)
	require.NoError(t, err)

	// Owner downloads without an order.
	got, filename, err := f.products.Download(context.Background(), product.ID, owner)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
	require.Equal(t, "sensors.bin", filename)

	// Buyer is rejected until the purchase completes.
	_, _, err = f.products.Download(context.Background(), product.ID, buyer)
	require.True(t, errors.Is(err, apperr.ErrAuthorization))

	order, err := f.orders.CreateOrder(context.Background(), product.ID, buyer, RailDirect)
	require.NoError(t, err)
	_, err = f.orders.ConfirmOrder(context.Background(), order.ID, buyer, &PaymentProof{Signature: "sig-1"})
	require.NoError(t, err)

	got, _, err = f.products.Download(context.Background(), product.ID, buyer)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDownloadFailsClosedOnTamperedCiphertext(t *testing.T) {
	f := newProductFixture(t)
	owner := testWallet(0x01)

	product, err := f.products.Upload(context.Background(), owner, "weather", "", "weather.csv", 1000, []byte("payload"))
	require.NoError(t, err)

	f.storage.objects[product.StorageID][0] ^= 0x01

	plaintext, _, err := f.products.Download(context.Background(), product.ID, owner)
	require.Nil(t, plaintext)
	require.True(t, errors.Is(err, apperr.ErrCryptoAuth))
}

func TestUploadValidation(t *testing.T) {
	f := newProductFixture(t)
	owner := testWallet(0x01)

	_, err := f.products.Upload(context.Background(), "", "weather", "", "w.csv", 1000, []byte("x"))
	require.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.products.Upload(context.Background(), owner, "weather", "", "w.csv", -1, []byte("x"))
	require.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.products.Upload(context.Background(), owner, "weather", "", "w.csv", 1000, nil)
	require.True(t, errors.Is(err, apperr.ErrValidation))
}
