package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type DisputeRepository interface {
	Create(ctx context.Context, dispute *model.Dispute) error
	FindByID(ctx context.Context, disputeID string) (*model.Dispute, error)
	Resolve(ctx context.Context, tx *gorm.DB, disputeID string, status model.DisputeStatus) (bool, error)
}

type disputeRepoImpl struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) DisputeRepository {
	return &disputeRepoImpl{db: db}
}

func (r *disputeRepoImpl) Create(ctx context.Context, dispute *model.Dispute) error {
	return r.db.WithContext(ctx).Create(dispute).Error
}

func (r *disputeRepoImpl) FindByID(ctx context.Context, disputeID string) (*model.Dispute, error) {
	var dispute model.Dispute
	err := r.db.WithContext(ctx).
		Where("id = ?", disputeID).
		First(&dispute).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "dispute %s not found", disputeID)
	}
	if err != nil {
		return nil, err
	}

	return &dispute, nil
}

func (r *disputeRepoImpl) Resolve(ctx context.Context, tx *gorm.DB, disputeID string, status model.DisputeStatus) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Dispute{}).
		Where("id = ?", disputeID).
		Where("status = ?", model.DisputeOpen).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}
