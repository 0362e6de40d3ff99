package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FacilitatorClient verifies x402 micropayment tokens against the external
// facilitator. The marketplace never custodies buyer funds; it only asks
// the facilitator whether a token settles the expected payment.
type FacilitatorClient interface {
	VerifyToken(ctx context.Context, token string, expected *ExpectedPayment) (*TokenVerification, error)
}

// ExpectedPayment is what the token must settle: at least Price, to
// Recipient, on Network.
type ExpectedPayment struct {
	Price       int64  `json:"price"`
	Network     string `json:"network"`
	Recipient   string `json:"recipient"`
	Description string `json:"description"`
}

// TokenVerification is the facilitator's definitive answer. A reachable
// facilitator always produces one; transport failures surface as errors
// instead, so callers can tell "rejected" from "unknown".
type TokenVerification struct {
	Valid  bool   `json:"valid"`
	TxHash string `json:"tx_hash"`
	Payer  string `json:"payer"`
	Reason string `json:"reason,omitempty"`
}

type facilitatorClientImpl struct {
	httpClient *http.Client
	baseURL    string
}

func NewFacilitatorClient(baseURL string) FacilitatorClient {
	return &facilitatorClientImpl{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

func (c *facilitatorClientImpl) VerifyToken(ctx context.Context, token string, expected *ExpectedPayment) (*TokenVerification, error) {
	payload := map[string]interface{}{
		"token":    token,
		"expected": expected,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal verify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facilitator request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read facilitator response: %w", err)
	}

	// 5xx means the facilitator itself is unhealthy; the token's fate is
	// unknown and the caller must treat it as retryable.
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("facilitator unavailable: status=%d body=%s", resp.StatusCode, string(respBody))
	}
	// 4xx is an explicit, terminal rejection of the token.
	if resp.StatusCode >= 400 {
		return &TokenVerification{Valid: false, Reason: fmt.Sprintf("facilitator rejected token: %s", string(respBody))}, nil
	}

	var result TokenVerification
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode facilitator response: %w", err)
	}

	return &result, nil
}
