package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/repository"
)

// RequestService handles buyer data requests and provider proposals up to
// the point where the escrow coordinator takes over.
type RequestService interface {
	CreateRequest(ctx context.Context, buyerID, title string, budget int64, deadline *time.Time) (*model.DataRequest, error)
	SubmitProposal(ctx context.Context, requestID, providerID string, price int64) (*model.Proposal, error)
	GetRequest(ctx context.Context, requestID string) (*model.DataRequest, error)
	ListProposals(ctx context.Context, requestID string) ([]*model.Proposal, error)
}

type requestServiceImpl struct {
	requestRepo  repository.RequestRepository
	proposalRepo repository.ProposalRepository
}

func NewRequestService(requestRepo repository.RequestRepository, proposalRepo repository.ProposalRepository) RequestService {
	return &requestServiceImpl{
		requestRepo:  requestRepo,
		proposalRepo: proposalRepo,
	}
}

func (s *requestServiceImpl) CreateRequest(ctx context.Context, buyerID, title string, budget int64, deadline *time.Time) (*model.DataRequest, error) {
	if buyerID == "" || title == "" {
		return nil, apperr.New(apperr.CodeValidation, "buyer and title required")
	}
	if budget <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "budget must be positive")
	}

	request := &model.DataRequest{
		ID:       uuid.NewString(),
		BuyerID:  buyerID,
		Title:    title,
		Budget:   budget,
		Deadline: deadline,
		Status:   model.RequestPending,
	}
	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("store request: %w", err)
	}

	return request, nil
}

func (s *requestServiceImpl) SubmitProposal(ctx context.Context, requestID, providerID string, price int64) (*model.Proposal, error) {
	if providerID == "" {
		return nil, apperr.New(apperr.CodeValidation, "provider required")
	}
	if price <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "price must be positive")
	}

	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != model.RequestPending {
		return nil, apperr.New(apperr.CodeInvalidTransition, "request %s no longer accepts proposals", requestID)
	}
	if request.BuyerID == providerID {
		return nil, apperr.New(apperr.CodeValidation, "cannot propose on your own request")
	}

	proposal := &model.Proposal{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		ProviderID: providerID,
		Price:      price,
		Status:     model.ProposalPending,
	}
	if err := s.proposalRepo.Create(ctx, proposal); err != nil {
		return nil, fmt.Errorf("store proposal: %w", err)
	}

	return proposal, nil
}

func (s *requestServiceImpl) GetRequest(ctx context.Context, requestID string) (*model.DataRequest, error) {
	return s.requestRepo.FindByID(ctx, requestID)
}

func (s *requestServiceImpl) ListProposals(ctx context.Context, requestID string) ([]*model.Proposal, error) {
	if _, err := s.requestRepo.FindByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.proposalRepo.FindByRequest(ctx, requestID)
}
