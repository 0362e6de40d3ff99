package dto

import "time"

type CreateOrderRequest struct {
	ProductID string `json:"product_id"`
	Rail      string `json:"rail"`
}

type ConfirmOrderRequest struct {
	Signature string `json:"signature,omitempty"`
	Token     string `json:"token,omitempty"`
	EscrowPDA string `json:"escrow_pda,omitempty"`
}

type UploadProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	Price       int64  `json:"price"`
	// Content is the raw file, base64-encoded.
	Content string `json:"content"`
}

type CreateRequestRequest struct {
	Title    string     `json:"title"`
	Budget   int64      `json:"budget"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type SubmitProposalRequest struct {
	Price int64 `json:"price"`
}

type AcceptProposalRequest struct {
	RequestID  string `json:"request_id"`
	ProposalID string `json:"proposal_id"`
	Signature  string `json:"signature"`
}

type EscrowTransitionRequest struct {
	Signature string `json:"signature"`
	// ProductID is only read by deliver: the delivered data product.
	ProductID string `json:"product_id,omitempty"`
	// Outcome is only read by resolve: "refund" or "release".
	Outcome string `json:"outcome,omitempty"`
}

type CreateDisputeRequest struct {
	OrderID         string `json:"order_id"`
	Reason          string `json:"reason"`
	Description     string `json:"description"`
	Evidence        string `json:"evidence"`
	RequestedAmount int64  `json:"requested_amount"`
}

type ResolveDisputeRequest struct {
	Accepted bool `json:"accepted"`
}

type ConfirmRefundRequest struct {
	Signature string `json:"signature"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
