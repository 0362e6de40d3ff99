package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, orderID string) (*model.Order, error)
	// HasCompleted reports whether a completed order exists for the
	// (product, buyer) pair.
	HasCompleted(ctx context.Context, productID, buyerID string) (bool, error)
	FindCompleted(ctx context.Context, productID, buyerID string) (*model.Order, error)
	// CompletedSibling returns the completed order for the (product, buyer)
	// pair other than orderID, or nil when none exists. Runs in the caller's
	// transaction so the completion check and flip see the same state.
	CompletedSibling(ctx context.Context, tx *gorm.DB, productID, buyerID, orderID string) (*model.Order, error)
	// MarkCompleted flips pending -> completed with a compare-and-set;
	// returns false when no pending row matched (already completed or
	// missing), so callers can distinguish first completion from replay.
	MarkCompleted(ctx context.Context, tx *gorm.DB, orderID, txHash, network string) (bool, error)
	// MarkFailed flips pending -> failed after a confirmed rejection.
	MarkFailed(ctx context.Context, orderID string) error
	RecordDownload(ctx context.Context, orderID string) error
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{db: db}
}

func (r *orderRepoImpl) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "order %s not found", orderID)
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) HasCompleted(ctx context.Context, productID, buyerID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("product_id = ?", productID).
		Where("buyer_id = ?", buyerID).
		Where("status = ?", model.OrderCompleted).
		Count(&count).Error

	return count > 0, err
}

func (r *orderRepoImpl) FindCompleted(ctx context.Context, productID, buyerID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Where("buyer_id = ?", buyerID).
		Where("status = ?", model.OrderCompleted).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "no completed order for product %s", productID)
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) CompletedSibling(ctx context.Context, tx *gorm.DB, productID, buyerID, orderID string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Where("product_id = ?", productID).
		Where("buyer_id = ?", buyerID).
		Where("status = ?", model.OrderCompleted).
		Where("id <> ?", orderID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) MarkCompleted(ctx context.Context, tx *gorm.DB, orderID, txHash, network string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Where("status = ?", model.OrderPending).
		Updates(map[string]interface{}{
			"status":          model.OrderCompleted,
			"payment_tx_hash": txHash,
			"payment_network": network,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *orderRepoImpl) MarkFailed(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Where("status = ?", model.OrderPending).
		Updates(map[string]interface{}{
			"status":     model.OrderFailed,
			"updated_at": time.Now(),
		}).Error
}

func (r *orderRepoImpl) RecordDownload(ctx context.Context, orderID string) error {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"download_count":   gorm.Expr("download_count + 1"),
			"last_download_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "order %s not found", orderID)
	}

	return nil
}
