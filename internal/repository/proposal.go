package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
)

type ProposalRepository interface {
	Create(ctx context.Context, proposal *model.Proposal) error
	FindByID(ctx context.Context, proposalID string) (*model.Proposal, error)
	FindByRequest(ctx context.Context, requestID string) ([]*model.Proposal, error)
	// MarkAccepted flips pending -> accepted; false when the proposal
	// already left pending.
	MarkAccepted(ctx context.Context, tx *gorm.DB, proposalID string) (bool, error)
	// RejectSiblings marks every other pending proposal of the request
	// rejected. Runs inside the acceptance transaction.
	RejectSiblings(ctx context.Context, tx *gorm.DB, requestID, acceptedID string) error
}

type proposalRepoImpl struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) ProposalRepository {
	return &proposalRepoImpl{db: db}
}

func (r *proposalRepoImpl) Create(ctx context.Context, proposal *model.Proposal) error {
	return r.db.WithContext(ctx).Create(proposal).Error
}

func (r *proposalRepoImpl) FindByID(ctx context.Context, proposalID string) (*model.Proposal, error) {
	var proposal model.Proposal
	err := r.db.WithContext(ctx).
		Where("id = ?", proposalID).
		First(&proposal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "proposal %s not found", proposalID)
	}
	if err != nil {
		return nil, err
	}

	return &proposal, nil
}

func (r *proposalRepoImpl) FindByRequest(ctx context.Context, requestID string) ([]*model.Proposal, error) {
	var proposals []*model.Proposal
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Find(&proposals).Error
	if err != nil {
		return nil, err
	}

	return proposals, nil
}

func (r *proposalRepoImpl) MarkAccepted(ctx context.Context, tx *gorm.DB, proposalID string) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.Proposal{}).
		Where("id = ?", proposalID).
		Where("status = ?", model.ProposalPending).
		Updates(map[string]interface{}{
			"status":     model.ProposalAccepted,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *proposalRepoImpl) RejectSiblings(ctx context.Context, tx *gorm.DB, requestID, acceptedID string) error {
	return tx.WithContext(ctx).Model(&model.Proposal{}).
		Where("request_id = ?", requestID).
		Where("id <> ?", acceptedID).
		Where("status = ?", model.ProposalPending).
		Updates(map[string]interface{}{
			"status":     model.ProposalRejected,
			"updated_at": time.Now(),
		}).Error
}
