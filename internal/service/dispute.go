package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/repository"
)

// DisputeService records buyer complaints and applies arbitration
// verdicts. The arbitration policy itself is external; resolution here is
// the bookkeeping it produces: the dispute closes, a refund row is
// created, and both records are mirrored to permanent storage by the
// detached sync worker.
type DisputeService interface {
	CreateDispute(ctx context.Context, orderID, callerID string, reason model.DisputeReason, description, evidence string, requestedAmount int64) (*model.Dispute, error)
	// ResolveDispute applies the external verdict. Only the platform wallet
	// may resolve; accepted=true creates a pending Refund for the requested
	// amount.
	ResolveDispute(ctx context.Context, disputeID, callerID string, accepted bool) (*model.Dispute, *model.Refund, error)
	// ConfirmRefund records the chain transaction that settled the refund;
	// the refund is terminal afterwards.
	ConfirmRefund(ctx context.Context, refundID string, proof *PaymentProof) (*model.Refund, error)
}

type disputeServiceImpl struct {
	db             *gorm.DB
	verifier       PaymentVerifier
	disputeRepo    repository.DisputeRepository
	refundRepo     repository.RefundRepository
	orderRepo      repository.OrderRepository
	sync           ChainSyncService
	platformWallet string
	logger         *zap.Logger
}

func NewDisputeService(
	db *gorm.DB,
	verifier PaymentVerifier,
	disputeRepo repository.DisputeRepository,
	refundRepo repository.RefundRepository,
	orderRepo repository.OrderRepository,
	sync ChainSyncService,
	platformWallet string,
	logger *zap.Logger,
) DisputeService {
	return &disputeServiceImpl{
		db:             db,
		verifier:       verifier,
		disputeRepo:    disputeRepo,
		refundRepo:     refundRepo,
		orderRepo:      orderRepo,
		sync:           sync,
		platformWallet: platformWallet,
		logger:         logger,
	}
}

func validReason(reason model.DisputeReason) bool {
	switch reason {
	case model.DisputeDataQuality, model.DisputeDownloadFailed, model.DisputeFraud, model.DisputeOther:
		return true
	}
	return false
}

func (s *disputeServiceImpl) CreateDispute(ctx context.Context, orderID, callerID string, reason model.DisputeReason, description, evidence string, requestedAmount int64) (*model.Dispute, error) {
	if !validReason(reason) {
		return nil, apperr.New(apperr.CodeValidation, "unknown dispute reason %q", reason)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != callerID {
		return nil, apperr.New(apperr.CodeAuthorization, "only the buyer can dispute an order")
	}
	if order.Status != model.OrderCompleted {
		return nil, apperr.New(apperr.CodeValidation, "only completed orders can be disputed")
	}
	if requestedAmount <= 0 || requestedAmount > order.Amount {
		return nil, apperr.New(apperr.CodeValidation, "requested amount must be within the order amount")
	}

	dispute := &model.Dispute{
		ID:              uuid.NewString(),
		OrderID:         orderID,
		RaisedBy:        callerID,
		Reason:          reason,
		Description:     description,
		Evidence:        evidence,
		RequestedAmount: requestedAmount,
		Status:          model.DisputeOpen,
	}
	if err := s.disputeRepo.Create(ctx, dispute); err != nil {
		return nil, fmt.Errorf("store dispute: %w", err)
	}

	// Mirror the dispute record off-process; the dispute is valid with or
	// without the sync.
	if _, err := s.sync.EnqueueSync("dispute", dispute.ID, dispute); err != nil {
		s.logger.Warn("enqueue dispute sync failed", zap.String("dispute_id", dispute.ID), zap.Error(err))
	}

	return dispute, nil
}

func (s *disputeServiceImpl) ResolveDispute(ctx context.Context, disputeID, callerID string, accepted bool) (*model.Dispute, *model.Refund, error) {
	if callerID != s.platformWallet {
		return nil, nil, apperr.New(apperr.CodeAuthorization, "only the platform can resolve disputes")
	}

	dispute, err := s.disputeRepo.FindByID(ctx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	if dispute.Status != model.DisputeOpen {
		return nil, nil, apperr.New(apperr.CodeInvalidTransition, "dispute %s already %s", disputeID, dispute.Status)
	}

	status := model.DisputeRejected
	if accepted {
		status = model.DisputeResolved
	}

	var refund *model.Refund
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closed, err := s.disputeRepo.Resolve(ctx, tx, disputeID, status)
		if err != nil {
			return fmt.Errorf("resolve dispute: %w", err)
		}
		if !closed {
			return apperr.New(apperr.CodeConcurrencyConflict, "dispute %s resolved concurrently", disputeID)
		}

		if accepted {
			refund = &model.Refund{
				ID:        uuid.NewString(),
				DisputeID: disputeID,
				OrderID:   dispute.OrderID,
				Amount:    dispute.RequestedAmount,
				Status:    model.RefundPending,
			}
			if err := s.refundRepo.Create(ctx, tx, refund); err != nil {
				return fmt.Errorf("store refund: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	dispute.Status = status
	if _, err := s.sync.EnqueueSync("dispute", dispute.ID, dispute); err != nil {
		s.logger.Warn("enqueue dispute sync failed", zap.String("dispute_id", dispute.ID), zap.Error(err))
	}

	return dispute, refund, nil
}

func (s *disputeServiceImpl) ConfirmRefund(ctx context.Context, refundID string, proof *PaymentProof) (*model.Refund, error) {
	refund, err := s.refundRepo.FindByID(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status == model.RefundConfirmed {
		return refund, nil
	}

	// The refund transaction must exist on chain and have executed
	// cleanly before the refund becomes terminal.
	verified, err := s.verifier.Verify(ctx, RailDirect, proof, nil)
	if err != nil {
		return nil, err
	}

	if err := s.refundRepo.MarkConfirmed(ctx, refundID, verified.TxHash); err != nil {
		return nil, err
	}
	refund.Status = model.RefundConfirmed
	refund.TxHash = verified.TxHash

	if _, err := s.sync.EnqueueSync("refund", refund.ID, refund); err != nil {
		s.logger.Warn("enqueue refund sync failed", zap.String("refund_id", refund.ID), zap.Error(err))
	}

	return refund, nil
}
