package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/repository"
)

type disputeFixture struct {
	disputes DisputeService
	orders   OrderService
	verifier *stubVerifier
	products repository.ProductRepository
	refunds  repository.RefundRepository
	platform string
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	db := newTestDB(t)
	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	disputeRepo := repository.NewDisputeRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	recordRepo := repository.NewChainRecordRepository(db)

	verifier := &stubVerifier{}
	sync := NewChainSyncService(recordRepo, newStubStorage(), &stubChainClient{memoSig: "anchor"}, testLogger())

	platform := testWallet(0xFF)
	return &disputeFixture{
		disputes: NewDisputeService(db, verifier, disputeRepo, refundRepo, orderRepo, sync, platform, testLogger()),
		orders:   NewOrderService(db, verifier, orderRepo, productRepo, "solana-devnet", testWallet(0xFE), testLogger()),
		verifier: verifier,
		products: productRepo,
		refunds:  refundRepo,
		platform: platform,
	}
}

func (f *disputeFixture) completedOrder(t *testing.T) (*model.Order, string) {
	t.Helper()
	owner, buyer := testWallet(0x01), testWallet(0x02)
	product := seedProduct(t, f.products, owner, 1000)

	order, err := f.orders.CreateOrder(context.Background(), product.ID, buyer, RailDirect)
	require.NoError(t, err)
	order, err = f.orders.ConfirmOrder(context.Background(), order.ID, buyer, &PaymentProof{Signature: "pay-sig"})
	require.NoError(t, err)
	return order, buyer
}

func TestCreateDispute(t *testing.T) {
	f := newDisputeFixture(t)
	order, buyer := f.completedOrder(t)

	dispute, err := f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeDataQuality, "file is half empty", "row counts attached", 500)
	require.NoError(t, err)
	require.Equal(t, model.DisputeOpen, dispute.Status)
	require.Equal(t, int64(500), dispute.RequestedAmount)
}

func TestCreateDisputeValidation(t *testing.T) {
	f := newDisputeFixture(t)
	order, buyer := f.completedOrder(t)

	_, err := f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeReason("VIBES"), "", "", 500)
	require.True(t, errors.Is(err, apperr.ErrValidation))

	// More than the order amount.
	_, err = f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeDataQuality, "", "", order.Amount+1)
	require.True(t, errors.Is(err, apperr.ErrValidation))

	// Not the buyer.
	_, err = f.disputes.CreateDispute(context.Background(), order.ID, testWallet(0x0C),
		model.DisputeDataQuality, "", "", 500)
	require.True(t, errors.Is(err, apperr.ErrAuthorization))
}

func TestCreateDisputeRequiresCompletedOrder(t *testing.T) {
	f := newDisputeFixture(t)
	owner, buyer := testWallet(0x01), testWallet(0x02)
	product := seedProduct(t, f.products, owner, 1000)

	order, err := f.orders.CreateOrder(context.Background(), product.ID, buyer, RailDirect)
	require.NoError(t, err)

	_, err = f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeDataQuality, "", "", 500)
	require.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestResolveDisputeAcceptedCreatesRefund(t *testing.T) {
	f := newDisputeFixture(t)
	order, buyer := f.completedOrder(t)

	dispute, err := f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeDownloadFailed, "gateway 404", "", 1000)
	require.NoError(t, err)

	resolved, refund, err := f.disputes.ResolveDispute(context.Background(), dispute.ID, f.platform, true)
	require.NoError(t, err)
	require.Equal(t, model.DisputeResolved, resolved.Status)
	require.NotNil(t, refund)
	require.Equal(t, model.RefundPending, refund.Status)
	require.Equal(t, int64(1000), refund.Amount)
	require.Equal(t, order.ID, refund.OrderID)

	// Already closed.
	_, _, err = f.disputes.ResolveDispute(context.Background(), dispute.ID, f.platform, false)
	require.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

// Resolution mints refunds, so it is platform-only; neither party to the
// order may apply a verdict themselves.
func TestResolveDisputeRequiresPlatform(t *testing.T) {
	f := newDisputeFixture(t)
	order, buyer := f.completedOrder(t)

	dispute, err := f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeDataQuality, "bad rows", "", 1000)
	require.NoError(t, err)

	for _, caller := range []string{buyer, testWallet(0x01), testWallet(0x0C)} {
		_, _, err = f.disputes.ResolveDispute(context.Background(), dispute.ID, caller, true)
		require.True(t, errors.Is(err, apperr.ErrAuthorization))
	}

	// The dispute stays open and no refund was minted.
	resolved, refund, err := f.disputes.ResolveDispute(context.Background(), dispute.ID, f.platform, false)
	require.NoError(t, err)
	require.Equal(t, model.DisputeRejected, resolved.Status)
	require.Nil(t, refund)
}

func TestResolveDisputeRejectedCreatesNoRefund(t *testing.T) {
	f := newDisputeFixture(t)
	order, buyer := f.completedOrder(t)

	dispute, err := f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeOther, "buyer remorse", "", 1000)
	require.NoError(t, err)

	resolved, refund, err := f.disputes.ResolveDispute(context.Background(), dispute.ID, f.platform, false)
	require.NoError(t, err)
	require.Equal(t, model.DisputeRejected, resolved.Status)
	require.Nil(t, refund)
}

func TestConfirmRefund(t *testing.T) {
	f := newDisputeFixture(t)
	order, buyer := f.completedOrder(t)

	dispute, err := f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeFraud, "", "", 1000)
	require.NoError(t, err)
	_, refund, err := f.disputes.ResolveDispute(context.Background(), dispute.ID, f.platform, true)
	require.NoError(t, err)

	confirmed, err := f.disputes.ConfirmRefund(context.Background(), refund.ID, &PaymentProof{Signature: "refund-sig"})
	require.NoError(t, err)
	require.Equal(t, model.RefundConfirmed, confirmed.Status)
	require.Equal(t, "refund-sig", confirmed.TxHash)

	// Confirming again is a no-op and skips verification.
	calls := f.verifier.calls
	again, err := f.disputes.ConfirmRefund(context.Background(), refund.ID, &PaymentProof{Signature: "refund-sig"})
	require.NoError(t, err)
	require.Equal(t, model.RefundConfirmed, again.Status)
	require.Equal(t, calls, f.verifier.calls)
}

func TestConfirmRefundVerificationFailureLeavesPending(t *testing.T) {
	f := newDisputeFixture(t)
	order, buyer := f.completedOrder(t)

	dispute, err := f.disputes.CreateDispute(context.Background(), order.ID, buyer,
		model.DisputeFraud, "", "", 1000)
	require.NoError(t, err)
	_, refund, err := f.disputes.ResolveDispute(context.Background(), dispute.ID, f.platform, true)
	require.NoError(t, err)

	f.verifier.err = apperr.New(apperr.CodeExternalVerification, "rpc down")
	_, err = f.disputes.ConfirmRefund(context.Background(), refund.ID, &PaymentProof{Signature: "refund-sig"})
	require.True(t, errors.Is(err, apperr.ErrExternalVerification))

	stored, err := f.refunds.FindByID(context.Background(), refund.ID)
	require.NoError(t, err)
	require.Equal(t, model.RefundPending, stored.Status)
}
