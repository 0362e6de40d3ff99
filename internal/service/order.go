package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/repository"
)

// OrderService is the order ledger: it owns every Order mutation and keeps
// completion exactly-once.
type OrderService interface {
	CreateOrder(ctx context.Context, productID, buyerID string, rail Rail) (*model.Order, error)
	// ConfirmOrder verifies the payment proof and completes the order.
	// Idempotent: a replay against a completed order returns it unchanged
	// and does not touch the purchase counter again.
	ConfirmOrder(ctx context.Context, orderID, callerID string, proof *PaymentProof) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	RecordDownload(ctx context.Context, orderID string) error
}

type orderServiceImpl struct {
	db          *gorm.DB
	verifier    PaymentVerifier
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	network     string
	recipient   string
	logger      *zap.Logger
}

func NewOrderService(
	db *gorm.DB,
	verifier PaymentVerifier,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	network string,
	recipient string,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		db:          db,
		verifier:    verifier,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		network:     network,
		recipient:   recipient,
		logger:      logger,
	}
}

func (s *orderServiceImpl) CreateOrder(ctx context.Context, productID, buyerID string, rail Rail) (*model.Order, error) {
	if productID == "" || buyerID == "" {
		return nil, apperr.New(apperr.CodeValidation, "product id and buyer id required")
	}
	if rail != RailDirect && rail != RailX402 {
		return nil, apperr.New(apperr.CodeValidation, "unsupported payment rail %q", rail)
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.OwnerID == buyerID {
		return nil, apperr.New(apperr.CodeValidation, "cannot purchase your own product")
	}

	purchased, err := s.orderRepo.HasCompleted(ctx, productID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("check existing purchase: %w", err)
	}
	if purchased {
		return nil, apperr.New(apperr.CodeConcurrencyConflict, "product already purchased")
	}

	order := &model.Order{
		ID:          uuid.NewString(),
		ProductID:   productID,
		BuyerID:     buyerID,
		Amount:      product.Price,
		Status:      model.OrderPending,
		PaymentRail: string(rail),
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	return order, nil
}

func (s *orderServiceImpl) ConfirmOrder(ctx context.Context, orderID, callerID string, proof *PaymentProof) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != callerID {
		return nil, apperr.New(apperr.CodeAuthorization, "order belongs to another buyer")
	}

	// Replay of an already-confirmed order: succeed without side effects.
	if order.Status == model.OrderCompleted {
		return order, nil
	}
	if order.Status == model.OrderFailed {
		return nil, apperr.New(apperr.CodeInvalidTransition, "order already failed")
	}

	product, err := s.productRepo.FindByID(ctx, order.ProductID)
	if err != nil {
		return nil, err
	}

	verified, err := s.verifier.Verify(ctx, Rail(order.PaymentRail), proof, &ExpectedCharge{
		Amount:      order.Amount,
		Network:     s.network,
		Recipient:   s.recipient,
		Description: describeCharge(product.Name),
	})
	if err != nil {
		// An ambiguous external failure leaves the order pending; only a
		// confirmed verification may flip it. A definitive rejection is
		// terminal and closes the order.
		if errors.Is(err, apperr.ErrPaymentRejected) {
			if failErr := s.orderRepo.MarkFailed(ctx, order.ID); failErr != nil {
				s.logger.Warn("mark order failed",
					zap.String("order_id", order.ID),
					zap.Error(failErr))
			}
		}
		return nil, err
	}

	// Status flip and counter increment commit together or not at all. The
	// buyer may hold several pending orders for the same product, so the
	// one-completed-purchase check repeats inside the transaction.
	var (
		flipped bool
		sibling *model.Order
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sibling, err = s.orderRepo.CompletedSibling(ctx, tx, order.ProductID, order.BuyerID, order.ID)
		if err != nil {
			return fmt.Errorf("check completed sibling: %w", err)
		}
		if sibling != nil {
			return nil
		}
		flipped, err = s.orderRepo.MarkCompleted(ctx, tx, order.ID, verified.TxHash, verified.Network)
		if err != nil {
			return fmt.Errorf("mark order completed: %w", err)
		}
		if !flipped {
			// Another confirmation won the race; nothing more to apply.
			return nil
		}
		if err := s.productRepo.IncrementPurchases(ctx, tx, order.ProductID); err != nil {
			return fmt.Errorf("increment purchase counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The purchase already settled through another order of this buyer;
	// hand that one back instead of completing a second time.
	if sibling != nil {
		return sibling, nil
	}

	if flipped {
		s.logger.Info("order completed",
			zap.String("order_id", order.ID),
			zap.String("product_id", order.ProductID),
			zap.String("tx_hash", verified.TxHash))
	}

	return s.orderRepo.FindByID(ctx, orderID)
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orderRepo.FindByID(ctx, orderID)
}

func (s *orderServiceImpl) RecordDownload(ctx context.Context, orderID string) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderCompleted {
		return apperr.New(apperr.CodeAuthorization, "order not completed")
	}
	return s.orderRepo.RecordDownload(ctx, orderID)
}
