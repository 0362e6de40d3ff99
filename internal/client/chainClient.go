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

// ChainClient talks to a Solana JSON-RPC node. Used by the payment
// verifier to check finalized transactions and by the sync worker to
// anchor record hashes.
type ChainClient interface {
	// GetTransaction fetches a finalized transaction by signature.
	// Returns (nil, nil) when the transaction does not exist.
	GetTransaction(ctx context.Context, signature string) (*ChainTransaction, error)
	// SendMemo submits a memo transaction carrying data and returns its
	// signature. The RPC endpoint is the platform's signing proxy, which
	// wraps the payload in a memo instruction signed with the platform key.
	SendMemo(ctx context.Context, data string) (string, error)
}

// ChainTransaction is the subset of getTransaction output the verifier
// inspects.
type ChainTransaction struct {
	Slot        uint64
	Err         interface{} // non-nil when the transaction executed with an error
	AccountKeys []string
	ProgramIDs  []string // program ids invoked by the transaction's instructions
}

type chainClientImpl struct {
	httpClient *http.Client
	rpcURL     string
}

func NewChainClient(rpcURL string) ChainClient {
	return &chainClientImpl{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		rpcURL:     rpcURL,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *chainClientImpl) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read rpc response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

func (c *chainClientImpl) GetTransaction(ctx context.Context, signature string) (*ChainTransaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"commitment":                     "finalized",
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}
	resultRaw, err := c.call(ctx, "getTransaction", params)
	if err != nil {
		return nil, err
	}
	if string(resultRaw) == "null" {
		return nil, nil
	}

	var tx struct {
		Slot uint64 `json:"slot"`
		Meta struct {
			Err interface{} `json:"err"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys  []string `json:"accountKeys"`
				Instructions []struct {
					ProgramIDIndex int `json:"programIdIndex"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(resultRaw, &tx); err != nil {
		return nil, fmt.Errorf("parse transaction: %w", err)
	}

	keys := tx.Transaction.Message.AccountKeys
	programIDs := make([]string, 0, len(tx.Transaction.Message.Instructions))
	for _, ins := range tx.Transaction.Message.Instructions {
		if ins.ProgramIDIndex >= 0 && ins.ProgramIDIndex < len(keys) {
			programIDs = append(programIDs, keys[ins.ProgramIDIndex])
		}
	}

	return &ChainTransaction{
		Slot:        tx.Slot,
		Err:         tx.Meta.Err,
		AccountKeys: keys,
		ProgramIDs:  programIDs,
	}, nil
}

func (c *chainClientImpl) SendMemo(ctx context.Context, data string) (string, error) {
	resultRaw, err := c.call(ctx, "sendMemo", []interface{}{data})
	if err != nil {
		return "", err
	}

	var signature string
	if err := json.Unmarshal(resultRaw, &signature); err != nil {
		return "", fmt.Errorf("parse memo signature: %w", err)
	}
	return signature, nil
}
