package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type ChainRecordRepository interface {
	Create(ctx context.Context, record *model.ChainRecord) error
	FindByID(ctx context.Context, recordID string) (*model.ChainRecord, error)
	// MarkSynced records both legs of a successful sync.
	MarkSynced(ctx context.Context, recordID, storageID, anchorSig string) error
	// MarkFailed leaves the record unsynced but keeps the partial progress
	// and the failure reason for the next attempt.
	MarkFailed(ctx context.Context, recordID, storageID, lastError string) error
}

type chainRecordRepoImpl struct {
	db *gorm.DB
}

func NewChainRecordRepository(db *gorm.DB) ChainRecordRepository {
	return &chainRecordRepoImpl{db: db}
}

func (r *chainRecordRepoImpl) Create(ctx context.Context, record *model.ChainRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *chainRecordRepoImpl) FindByID(ctx context.Context, recordID string) (*model.ChainRecord, error) {
	var record model.ChainRecord
	err := r.db.WithContext(ctx).
		Where("id = ?", recordID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "chain record %s not found", recordID)
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *chainRecordRepoImpl) MarkSynced(ctx context.Context, recordID, storageID, anchorSig string) error {
	return r.db.WithContext(ctx).Model(&model.ChainRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"status":        model.SyncSynced,
			"storage_id":    storageID,
			"anchor_tx_sig": anchorSig,
			"last_error":    "",
			"updated_at":    time.Now(),
		}).Error
}

func (r *chainRecordRepoImpl) MarkFailed(ctx context.Context, recordID, storageID, lastError string) error {
	updates := map[string]interface{}{
		"status":     model.SyncUnsynced,
		"last_error": lastError,
		"updated_at": time.Now(),
	}
	if storageID != "" {
		updates["storage_id"] = storageID
	}

	return r.db.WithContext(ctx).Model(&model.ChainRecord{}).
		Where("id = ?", recordID).
		Updates(updates).Error
}
