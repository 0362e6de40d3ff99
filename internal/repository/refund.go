package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type RefundRepository interface {
	Create(ctx context.Context, tx *gorm.DB, refund *model.Refund) error
	FindByID(ctx context.Context, refundID string) (*model.Refund, error)
	// MarkConfirmed records the confirming chain transaction; terminal.
	MarkConfirmed(ctx context.Context, refundID, txHash string) error
}

type refundRepoImpl struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepoImpl{db: db}
}

func (r *refundRepoImpl) Create(ctx context.Context, tx *gorm.DB, refund *model.Refund) error {
	return tx.WithContext(ctx).Create(refund).Error
}

func (r *refundRepoImpl) FindByID(ctx context.Context, refundID string) (*model.Refund, error) {
	var refund model.Refund
	err := r.db.WithContext(ctx).
		Where("id = ?", refundID).
		First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "refund %s not found", refundID)
	}
	if err != nil {
		return nil, err
	}

	return &refund, nil
}

func (r *refundRepoImpl) MarkConfirmed(ctx context.Context, refundID, txHash string) error {
	result := r.db.WithContext(ctx).Model(&model.Refund{}).
		Where("id = ?", refundID).
		Where("status = ?", model.RefundPending).
		Updates(map[string]interface{}{
			"status":     model.RefundConfirmed,
			"tx_hash":    txHash,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "refund %s not pending", refundID)
	}

	return nil
}
