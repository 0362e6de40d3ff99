package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/model"
	"datanexus-marketplace/internal/pda"
	"datanexus-marketplace/internal/repository"
)

// ResolveOutcome is the arbitration verdict applied to a disputed escrow.
// The policy that produces it is external; the coordinator only records
// the resulting transition.
type ResolveOutcome string

const (
	OutcomeRefund  ResolveOutcome = "refund"
	OutcomeRelease ResolveOutcome = "release"
)

// platformFeeBps is the platform's cut of a released escrow: 5%, the
// remaining 95% goes to the provider. Matches the on-chain program split.
const platformFeeBps = 500

// EscrowService drives the escrow state machine:
//
//	funded -> delivered -> {disputed, completed}
//	funded -> disputed
//	disputed -> {refunded, completed}
//
// completed and refunded are terminal. Every transition verifies the
// corresponding on-chain instruction before mutating, checks the current
// status first, and treats a replayed signature as a no-op.
type EscrowService interface {
	AcceptProposal(ctx context.Context, requestID, proposalID string, fundingProof *PaymentProof) (*model.Escrow, error)
	// MarkDelivered records the delivered product on the escrow; the buyer's
	// decrypt grant for that product starts here.
	MarkDelivered(ctx context.Context, escrowPDA, callerID, productID string, proof *PaymentProof) (*model.Escrow, error)
	RaiseDispute(ctx context.Context, escrowPDA, callerID string, proof *PaymentProof) (*model.Escrow, error)
	ResolveDispute(ctx context.Context, escrowPDA, callerID string, outcome ResolveOutcome, proof *PaymentProof) (*model.Escrow, error)
	// CancelEscrow returns the funds to the buyer before delivery.
	CancelEscrow(ctx context.Context, escrowPDA, callerID string, proof *PaymentProof) (*model.Escrow, error)
	GetEscrow(ctx context.Context, escrowPDA string) (*model.Escrow, error)
}

type escrowServiceImpl struct {
	db             *gorm.DB
	verifier       PaymentVerifier
	escrowRepo     repository.EscrowRepository
	proposalRepo   repository.ProposalRepository
	requestRepo    repository.RequestRepository
	platformWallet string
	logger         *zap.Logger
}

func NewEscrowService(
	db *gorm.DB,
	verifier PaymentVerifier,
	escrowRepo repository.EscrowRepository,
	proposalRepo repository.ProposalRepository,
	requestRepo repository.RequestRepository,
	platformWallet string,
	logger *zap.Logger,
) EscrowService {
	return &escrowServiceImpl{
		db:             db,
		verifier:       verifier,
		escrowRepo:     escrowRepo,
		proposalRepo:   proposalRepo,
		requestRepo:    requestRepo,
		platformWallet: platformWallet,
		logger:         logger,
	}
}

// AcceptProposal applies the four-part acceptance as one transaction:
// escrow row in funded state, proposal accepted, sibling pending proposals
// rejected, request moved to in_progress. The escrow funding transaction
// itself is the payment proof.
func (s *escrowServiceImpl) AcceptProposal(ctx context.Context, requestID, proposalID string, fundingProof *PaymentProof) (*model.Escrow, error) {
	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	proposal, err := s.proposalRepo.FindByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.RequestID != requestID {
		return nil, apperr.New(apperr.CodeValidation, "proposal %s does not belong to request %s", proposalID, requestID)
	}

	// Replayed acceptance: the escrow already exists for this proposal.
	if existing, err := s.escrowRepo.FindByRequest(ctx, requestID); err == nil {
		if existing.ProposalID == proposalID && fundingProof != nil && existing.Signature == fundingProof.Signature {
			return existing, nil
		}
		return nil, apperr.New(apperr.CodeInvalidTransition, "request %s already has an escrow", requestID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	if request.Status != model.RequestPending {
		return nil, apperr.New(apperr.CodeInvalidTransition, "request %s is %s, not pending", requestID, request.Status)
	}
	if proposal.Status != model.ProposalPending {
		return nil, apperr.New(apperr.CodeInvalidTransition, "proposal %s is %s, not pending", proposalID, proposal.Status)
	}

	verified, err := s.verifier.Verify(ctx, RailEscrow, fundingProof, &ExpectedCharge{
		Amount:      proposal.Price,
		BuyerPubkey: request.BuyerID,
		RequestID:   requestID,
	})
	if err != nil {
		return nil, err
	}

	escrowPDA, err := pda.DeriveEscrowAddress(request.BuyerID, requestID)
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, "derive escrow address: %v", err)
	}

	escrow := &model.Escrow{
		ID:         uuid.NewString(),
		EscrowPDA:  escrowPDA,
		Buyer:      request.BuyerID,
		Provider:   proposal.ProviderID,
		Platform:   s.platformWallet,
		Amount:     proposal.Price,
		RequestID:  requestID,
		ProposalID: proposalID,
		Status:     model.EscrowFunded,
		Signature:  verified.TxHash,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.escrowRepo.Create(ctx, tx, escrow); err != nil {
			return fmt.Errorf("store escrow: %w", err)
		}

		accepted, err := s.proposalRepo.MarkAccepted(ctx, tx, proposalID)
		if err != nil {
			return fmt.Errorf("accept proposal: %w", err)
		}
		if !accepted {
			return apperr.New(apperr.CodeConcurrencyConflict, "proposal %s no longer pending", proposalID)
		}

		if err := s.proposalRepo.RejectSiblings(ctx, tx, requestID, proposalID); err != nil {
			return fmt.Errorf("reject sibling proposals: %w", err)
		}

		moved, err := s.requestRepo.MarkInProgress(ctx, tx, requestID)
		if err != nil {
			return fmt.Errorf("mark request in progress: %w", err)
		}
		if !moved {
			return apperr.New(apperr.CodeConcurrencyConflict, "request %s no longer pending", requestID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("proposal accepted",
		zap.String("request_id", requestID),
		zap.String("proposal_id", proposalID),
		zap.String("escrow_pda", escrowPDA),
		zap.Int64("amount", proposal.Price))

	return escrow, nil
}

func (s *escrowServiceImpl) MarkDelivered(ctx context.Context, escrowPDA, callerID, productID string, proof *PaymentProof) (*model.Escrow, error) {
	escrow, err := s.escrowRepo.FindByPDA(ctx, escrowPDA)
	if err != nil {
		return nil, err
	}
	if escrow.Provider != callerID {
		return nil, apperr.New(apperr.CodeAuthorization, "only the provider can mark delivery")
	}

	if replayed, done := s.isReplay(escrow, proof, model.EscrowDelivered); done {
		return replayed, nil
	}
	if escrow.Status != model.EscrowFunded {
		return nil, apperr.New(apperr.CodeInvalidTransition, "cannot deliver from %s", escrow.Status)
	}

	verified, err := s.verifyAgainstPDA(ctx, proof, escrow)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       model.EscrowDelivered,
		"signature":    verified.TxHash,
		"delivered_at": now,
		"updated_at":   now,
	}
	if productID != "" {
		updates["product_id"] = productID
	}
	return s.transition(ctx, escrowPDA, []model.EscrowStatus{model.EscrowFunded}, updates)
}

func (s *escrowServiceImpl) RaiseDispute(ctx context.Context, escrowPDA, callerID string, proof *PaymentProof) (*model.Escrow, error) {
	escrow, err := s.escrowRepo.FindByPDA(ctx, escrowPDA)
	if err != nil {
		return nil, err
	}
	if escrow.Buyer != callerID {
		return nil, apperr.New(apperr.CodeAuthorization, "only the buyer can raise a dispute")
	}

	if replayed, done := s.isReplay(escrow, proof, model.EscrowDisputed); done {
		return replayed, nil
	}
	if escrow.Status != model.EscrowFunded && escrow.Status != model.EscrowDelivered {
		return nil, apperr.New(apperr.CodeInvalidTransition, "cannot dispute from %s", escrow.Status)
	}

	verified, err := s.verifyAgainstPDA(ctx, proof, escrow)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return s.transition(ctx, escrowPDA, []model.EscrowStatus{model.EscrowFunded, model.EscrowDelivered}, map[string]interface{}{
		"status":      model.EscrowDisputed,
		"signature":   verified.TxHash,
		"disputed_at": now,
		"updated_at":  now,
	})
}

func (s *escrowServiceImpl) ResolveDispute(ctx context.Context, escrowPDA, callerID string, outcome ResolveOutcome, proof *PaymentProof) (*model.Escrow, error) {
	escrow, err := s.escrowRepo.FindByPDA(ctx, escrowPDA)
	if err != nil {
		return nil, err
	}
	if escrow.Platform != callerID {
		return nil, apperr.New(apperr.CodeAuthorization, "only the platform can resolve a dispute")
	}

	var target model.EscrowStatus
	switch outcome {
	case OutcomeRefund:
		target = model.EscrowRefunded
	case OutcomeRelease:
		target = model.EscrowCompleted
	default:
		return nil, apperr.New(apperr.CodeValidation, "unknown resolve outcome %q", outcome)
	}

	if replayed, done := s.isReplay(escrow, proof, target); done {
		return replayed, nil
	}
	if escrow.Status != model.EscrowDisputed {
		return nil, apperr.New(apperr.CodeInvalidTransition, "cannot resolve from %s", escrow.Status)
	}

	verified, err := s.verifyAgainstPDA(ctx, proof, escrow)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      target,
		"signature":   verified.TxHash,
		"resolved_at": now,
		"updated_at":  now,
	}
	if target == model.EscrowCompleted {
		fee := escrow.Amount * platformFeeBps / 10000
		updates["platform_fee"] = fee
		updates["provider_amount"] = escrow.Amount - fee
	}

	return s.transition(ctx, escrowPDA, []model.EscrowStatus{model.EscrowDisputed}, updates)
}

func (s *escrowServiceImpl) CancelEscrow(ctx context.Context, escrowPDA, callerID string, proof *PaymentProof) (*model.Escrow, error) {
	escrow, err := s.escrowRepo.FindByPDA(ctx, escrowPDA)
	if err != nil {
		return nil, err
	}
	if escrow.Buyer != callerID {
		return nil, apperr.New(apperr.CodeAuthorization, "only the buyer can cancel")
	}

	if replayed, done := s.isReplay(escrow, proof, model.EscrowRefunded); done {
		return replayed, nil
	}
	if escrow.Status != model.EscrowFunded {
		return nil, apperr.New(apperr.CodeInvalidTransition, "cannot cancel from %s", escrow.Status)
	}

	verified, err := s.verifyAgainstPDA(ctx, proof, escrow)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return s.transition(ctx, escrowPDA, []model.EscrowStatus{model.EscrowFunded}, map[string]interface{}{
		"status":      model.EscrowRefunded,
		"signature":   verified.TxHash,
		"resolved_at": now,
		"updated_at":  now,
	})
}

func (s *escrowServiceImpl) GetEscrow(ctx context.Context, escrowPDA string) (*model.Escrow, error) {
	return s.escrowRepo.FindByPDA(ctx, escrowPDA)
}

// isReplay reports whether the proof's signature was already applied and
// the escrow already sits in the target state; the current row is returned
// as-is so the replay has no side effects.
func (s *escrowServiceImpl) isReplay(escrow *model.Escrow, proof *PaymentProof, target model.EscrowStatus) (*model.Escrow, bool) {
	if proof == nil || proof.Signature == "" {
		return nil, false
	}
	if escrow.Status == target && escrow.Signature == proof.Signature {
		return escrow, true
	}
	return nil, false
}

// verifyAgainstPDA checks the submitted instruction on chain against this
// escrow's derived address.
func (s *escrowServiceImpl) verifyAgainstPDA(ctx context.Context, proof *PaymentProof, escrow *model.Escrow) (*VerifiedPayment, error) {
	return s.verifier.Verify(ctx, RailEscrow, proof, &ExpectedCharge{
		Amount:      escrow.Amount,
		BuyerPubkey: escrow.Buyer,
		RequestID:   escrow.RequestID,
	})
}

func (s *escrowServiceImpl) transition(ctx context.Context, escrowPDA string, from []model.EscrowStatus, updates map[string]interface{}) (*model.Escrow, error) {
	moved, err := s.escrowRepo.Transition(ctx, s.db, escrowPDA, from, updates)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost a race after the status check; report the conflict unless
		// the row already reached the target state.
		current, err := s.escrowRepo.FindByPDA(ctx, escrowPDA)
		if err != nil {
			return nil, err
		}
		if current.Status == updates["status"] {
			return current, nil
		}
		return nil, apperr.New(apperr.CodeConcurrencyConflict, "escrow %s moved to %s concurrently", escrowPDA, current.Status)
	}

	return s.escrowRepo.FindByPDA(ctx, escrowPDA)
}
