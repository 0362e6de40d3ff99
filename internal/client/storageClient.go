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

// StorageClient talks to the permanent-storage gateway (append-only;
// objects are immutable once written). Uploads attach sidecar tags to the
// storage transaction; fetches return the raw stored bytes.
type StorageClient interface {
	Upload(ctx context.Context, data []byte, tags map[string]string) (string, error)
	Fetch(ctx context.Context, storageID string) ([]byte, error)
}

// Sidecar tag names for encrypted file uploads.
const (
	TagEncryptionMethod  = "Encryption-Method"
	TagEncryptionVersion = "Encryption-Version"
	TagEncryptionIV      = "Encryption-IV"
	TagEncryptionAuthTag = "Encryption-AuthTag"
	TagProvider          = "Provider"
	TagOriginalFilename  = "Original-Filename"
)

type storageClientImpl struct {
	httpClient *http.Client
	gatewayURL string
}

func NewStorageClient(gatewayURL string) StorageClient {
	return &storageClientImpl{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		gatewayURL: gatewayURL,
	}
}

func (c *storageClientImpl) Upload(ctx context.Context, data []byte, tags map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+"/tx", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	for name, value := range tags {
		req.Header.Set("X-Tag-"+name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage upload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage upload error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("storage upload returned empty id")
	}

	return result.ID, nil
}

func (c *storageClientImpl) Fetch(ctx context.Context, storageID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayURL+"/tx/"+storageID, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("storage object %s not found", storageID)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("storage fetch error %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 256<<20))
	if err != nil {
		return nil, fmt.Errorf("read stored object: %w", err)
	}

	return data, nil
}
