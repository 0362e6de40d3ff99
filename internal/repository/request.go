package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type RequestRepository interface {
	Create(ctx context.Context, request *model.DataRequest) error
	FindByID(ctx context.Context, requestID string) (*model.DataRequest, error)
	// MarkInProgress flips pending -> in_progress; false when the request
	// already left pending.
	MarkInProgress(ctx context.Context, tx *gorm.DB, requestID string) (bool, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, requestID string, status model.RequestStatus) error
}

type requestRepoImpl struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepoImpl{db: db}
}

func (r *requestRepoImpl) Create(ctx context.Context, request *model.DataRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *requestRepoImpl) FindByID(ctx context.Context, requestID string) (*model.DataRequest, error) {
	var request model.DataRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", requestID).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "request %s not found", requestID)
	}
	if err != nil {
		return nil, err
	}

	return &request, nil
}

func (r *requestRepoImpl) MarkInProgress(ctx context.Context, tx *gorm.DB, requestID string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.DataRequest{}).
		Where("id = ?", requestID).
		Where("status = ?", model.RequestPending).
		Updates(map[string]interface{}{
			"status":     model.RequestInProgress,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *requestRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, requestID string, status model.RequestStatus) error {
	result := tx.WithContext(ctx).Model(&model.DataRequest{}).
		Where("id = ?", requestID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "request %s not found", requestID)
	}

	return nil
}
