package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"datanexus-marketplace/internal/apperr"
	"datanexus-marketplace/internal/client"
	"datanexus-marketplace/internal/pda"
)

// Rail identifies how a payment settles.
type Rail string

const (
	RailDirect Rail = "direct"
	RailX402   Rail = "x402"
	RailEscrow Rail = "escrow"
)

// PaymentProof is the caller-submitted evidence for a rail: a transaction
// signature (direct, escrow) or an opaque facilitator token (x402).
type PaymentProof struct {
	Signature string `json:"signature,omitempty"`
	Token     string `json:"token,omitempty"`
	EscrowPDA string `json:"escrow_pda,omitempty"`
}

// ExpectedCharge is what a valid proof must settle.
type ExpectedCharge struct {
	Amount      int64
	Network     string
	Recipient   string
	Description string
	// BuyerPubkey and RequestID feed the escrow address derivation on the
	// escrow rail.
	BuyerPubkey string
	RequestID   string
}

// VerifiedPayment is the verifier's positive result.
type VerifiedPayment struct {
	TxHash  string
	Network string
	Payer   string
}

type PaymentVerifier interface {
	Verify(ctx context.Context, rail Rail, proof *PaymentProof, expected *ExpectedCharge) (*VerifiedPayment, error)
}

type paymentVerifierImpl struct {
	chainClient       client.ChainClient
	facilitatorClient client.FacilitatorClient
	escrowProgramID   string
	network           string
	logger            *zap.Logger
}

func NewPaymentVerifier(
	chainClient client.ChainClient,
	facilitatorClient client.FacilitatorClient,
	escrowProgramID string,
	network string,
	logger *zap.Logger,
) PaymentVerifier {
	return &paymentVerifierImpl{
		chainClient:       chainClient,
		facilitatorClient: facilitatorClient,
		escrowProgramID:   escrowProgramID,
		network:           network,
		logger:            logger,
	}
}

func (v *paymentVerifierImpl) Verify(ctx context.Context, rail Rail, proof *PaymentProof, expected *ExpectedCharge) (*VerifiedPayment, error) {
	if proof == nil {
		return nil, apperr.New(apperr.CodeValidation, "payment proof required")
	}

	switch rail {
	case RailDirect:
		return v.verifyDirect(ctx, proof.Signature)
	case RailX402:
		return v.verifyToken(ctx, proof.Token, expected)
	case RailEscrow:
		return v.verifyEscrowRelease(ctx, proof.Signature, expected)
	default:
		return nil, apperr.New(apperr.CodeValidation, "unknown payment rail %q", rail)
	}
}

// verifyDirect requires the transaction to exist on chain AND to have
// executed without error. Both checks are mandatory.
func (v *paymentVerifierImpl) verifyDirect(ctx context.Context, signature string) (*VerifiedPayment, error) {
	if signature == "" {
		return nil, apperr.New(apperr.CodeValidation, "transaction signature required")
	}

	tx, err := v.chainClient.GetTransaction(ctx, signature)
	if err != nil {
		// RPC unreachable: the transaction may well exist, so this is
		// retryable, not a rejection.
		return nil, apperr.New(apperr.CodeExternalVerification, "chain rpc: %v", err)
	}
	if tx == nil {
		return nil, apperr.New(apperr.CodeNotFound, "transaction %s not found", signature)
	}
	if tx.Err != nil {
		return nil, apperr.New(apperr.CodePaymentRejected, "transaction %s failed on chain", signature)
	}

	return &VerifiedPayment{TxHash: signature, Network: v.network}, nil
}

func (v *paymentVerifierImpl) verifyToken(ctx context.Context, token string, expected *ExpectedCharge) (*VerifiedPayment, error) {
	if token == "" {
		return nil, apperr.New(apperr.CodeValidation, "payment token required")
	}
	if expected == nil {
		return nil, apperr.New(apperr.CodeValidation, "expected charge required")
	}

	result, err := v.facilitatorClient.VerifyToken(ctx, token, &client.ExpectedPayment{
		Price:       expected.Amount,
		Network:     expected.Network,
		Recipient:   expected.Recipient,
		Description: expected.Description,
	})
	if err != nil {
		// Facilitator down or timed out: indeterminate and retryable.
		// Never reported as a definite payment failure.
		v.logger.Warn("facilitator unavailable", zap.Error(err))
		return nil, apperr.New(apperr.CodeExternalVerification, "facilitator: %v", err)
	}
	if !result.Valid {
		return nil, apperr.New(apperr.CodePaymentRejected, "token rejected: %s", result.Reason)
	}

	return &VerifiedPayment{TxHash: result.TxHash, Network: expected.Network, Payer: result.Payer}, nil
}

// verifyEscrowRelease re-derives the escrow address from the buyer key and
// request id, then requires the submitted transaction to reference that
// address and to invoke the escrow program.
func (v *paymentVerifierImpl) verifyEscrowRelease(ctx context.Context, signature string, expected *ExpectedCharge) (*VerifiedPayment, error) {
	if signature == "" {
		return nil, apperr.New(apperr.CodeValidation, "transaction signature required")
	}
	if expected == nil || expected.BuyerPubkey == "" || expected.RequestID == "" {
		return nil, apperr.New(apperr.CodeValidation, "buyer pubkey and request id required for escrow verification")
	}

	derived, err := pda.DeriveEscrowAddress(expected.BuyerPubkey, expected.RequestID)
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, "derive escrow address: %v", err)
	}

	tx, err := v.chainClient.GetTransaction(ctx, signature)
	if err != nil {
		return nil, apperr.New(apperr.CodeExternalVerification, "chain rpc: %v", err)
	}
	if tx == nil {
		return nil, apperr.New(apperr.CodeNotFound, "transaction %s not found", signature)
	}
	if tx.Err != nil {
		return nil, apperr.New(apperr.CodePaymentRejected, "transaction %s failed on chain", signature)
	}

	if !contains(tx.AccountKeys, derived) {
		return nil, apperr.New(apperr.CodePaymentRejected, "transaction does not reference escrow account %s", derived)
	}
	if !contains(tx.ProgramIDs, v.escrowProgramID) {
		return nil, apperr.New(apperr.CodePaymentRejected, "transaction does not invoke the escrow program")
	}

	return &VerifiedPayment{TxHash: signature, Network: v.network}, nil
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

// describeCharge builds the facilitator description for a product purchase.
func describeCharge(productName string) string {
	return fmt.Sprintf("DataNexus dataset: %s", productName)
}
