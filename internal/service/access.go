package service

import (
	"context"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/repository"
)

// Capability is a closed set of product permissions. Membership checks go
// through the typed set, never ad hoc string matching.
type Capability string

const (
	CapRead     Capability = "read"
	CapPurchase Capability = "purchase"
	CapDownload Capability = "download"
)

// CapabilitySet is the effective permission set for one caller on one
// product.
type CapabilitySet map[Capability]struct{}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

func newCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// AccessService computes decrypt eligibility from the order ledger and
// product ownership. Authorize is called synchronously immediately before
// every decrypt; results are never cached, so a revoked or still-pending
// purchase cannot slip through a stale-grant window.
type AccessService interface {
	// Authorize returns nil when caller may decrypt the product, else an
	// AuthorizationError.
	Authorize(ctx context.Context, productID, callerID string) error
	Capabilities(ctx context.Context, productID, callerID string) (CapabilitySet, error)
}

type accessServiceImpl struct {
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	escrowRepo  repository.EscrowRepository
}

func NewAccessService(productRepo repository.ProductRepository, orderRepo repository.OrderRepository, escrowRepo repository.EscrowRepository) AccessService {
	return &accessServiceImpl{
		productRepo: productRepo,
		orderRepo:   orderRepo,
		escrowRepo:  escrowRepo,
	}
}

func (s *accessServiceImpl) Authorize(ctx context.Context, productID, callerID string) error {
	caps, err := s.Capabilities(ctx, productID, callerID)
	if err != nil {
		return err
	}
	if !caps.Has(CapDownload) {
		return apperr.New(apperr.CodeAuthorization, "no completed purchase for product %s", productID)
	}
	return nil
}

func (s *accessServiceImpl) Capabilities(ctx context.Context, productID, callerID string) (CapabilitySet, error) {
	if callerID == "" {
		return nil, apperr.New(apperr.CodeValidation, "caller required")
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if product.OwnerID == callerID {
		return newCapabilitySet(CapRead, CapDownload), nil
	}

	purchased, err := s.orderRepo.HasCompleted(ctx, productID, callerID)
	if err != nil {
		return nil, err
	}
	if purchased {
		return newCapabilitySet(CapRead, CapDownload), nil
	}

	// Escrow fulfilment: the buyer of an escrow that delivered this product
	// may decrypt it from delivery onward.
	delivered, err := s.escrowRepo.HasDeliveredForBuyer(ctx, productID, callerID)
	if err != nil {
		return nil, err
	}
	if delivered {
		return newCapabilitySet(CapRead, CapDownload), nil
	}

	return newCapabilitySet(CapRead, CapPurchase), nil
}
