package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type EscrowRepository interface {
	Create(ctx context.Context, tx *gorm.DB, escrow *model.Escrow) error
	FindByPDA(ctx context.Context, escrowPDA string) (*model.Escrow, error)
	FindByRequest(ctx context.Context, requestID string) (*model.Escrow, error)
	// HasDeliveredForBuyer reports whether an escrow delivered or completed
	// the product to this buyer.
	HasDeliveredForBuyer(ctx context.Context, productID, buyerID string) (bool, error)
	// Transition flips the escrow from one of the given statuses to the
	// target status with a compare-and-set, applying updates in the same
	// statement. Returns false when no row in a source status matched.
	Transition(ctx context.Context, tx *gorm.DB, escrowPDA string, from []model.EscrowStatus, updates map[string]interface{}) (bool, error)
}

type escrowRepoImpl struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) EscrowRepository {
	return &escrowRepoImpl{db: db}
}

func (r *escrowRepoImpl) Create(ctx context.Context, tx *gorm.DB, escrow *model.Escrow) error {
	return tx.WithContext(ctx).Create(escrow).Error
}

func (r *escrowRepoImpl) FindByPDA(ctx context.Context, escrowPDA string) (*model.Escrow, error) {
	var escrow model.Escrow
	err := r.db.WithContext(ctx).
		Where("escrow_pda = ?", escrowPDA).
		First(&escrow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "escrow %s not found", escrowPDA)
	}
	if err != nil {
		return nil, err
	}

	return &escrow, nil
}

func (r *escrowRepoImpl) FindByRequest(ctx context.Context, requestID string) (*model.Escrow, error) {
	var escrow model.Escrow
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&escrow).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "no escrow for request %s", requestID)
	}
	if err != nil {
		return nil, err
	}

	return &escrow, nil
}

func (r *escrowRepoImpl) HasDeliveredForBuyer(ctx context.Context, productID, buyerID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Escrow{}).
		Where("product_id = ?", productID).
		Where("buyer = ?", buyerID).
		Where("status IN ?", []model.EscrowStatus{model.EscrowDelivered, model.EscrowCompleted}).
		Count(&count).Error

	return count > 0, err
}

func (r *escrowRepoImpl) Transition(ctx context.Context, tx *gorm.DB, escrowPDA string, from []model.EscrowStatus, updates map[string]interface{}) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Escrow{}).
		Where("escrow_pda = ?", escrowPDA).
		Where("status IN ?", from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
