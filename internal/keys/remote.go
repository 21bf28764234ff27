package keys

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docvault/internal/config"
	"docvault/internal/domain"
)

// RemoteCustodian delegates root-key custody to an external service. The
// raw root key never enters this process: KEK blobs travel to the
// custodian for wrapping and unwrapping.
//
// Transport failures and 5xx responses map to KeyProviderUnavailableError
// (retryable with backoff); 4xx responses mean the blob or credentials are
// wrong and map to a hard error.
type RemoteCustodian struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemoteCustodian creates a custodian client with the configured
// request timeout.
func NewRemoteCustodian(cfg config.KeysConfig) (*RemoteCustodian, error) {
	if cfg.CustodianURL == "" {
		return nil, fmt.Errorf("remote custodian requires a url")
	}
	return &RemoteCustodian{
		baseURL: cfg.CustodianURL,
		token:   cfg.CustodianToken,
		client:  &http.Client{Timeout: cfg.CustodianTimeout},
	}, nil
}

func (c *RemoteCustodian) Name() string { return "remote" }

func (c *RemoteCustodian) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	return c.call(ctx, "/v1/wrap", plaintext)
}

func (c *RemoteCustodian) Unwrap(ctx context.Context, blob []byte) ([]byte, error) {
	return c.call(ctx, "/v1/unwrap", blob)
}

type custodianRequest struct {
	Blob string `json:"blob"`
}

type custodianResponse struct {
	Blob  string `json:"blob"`
	Error string `json:"error,omitempty"`
}

func (c *RemoteCustodian) call(ctx context.Context, path string, payload []byte) ([]byte, error) {
	body, err := json.Marshal(custodianRequest{Blob: base64.StdEncoding.EncodeToString(payload)})
	if err != nil {
		return nil, fmt.Errorf("encode custodian request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build custodian request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.KeyProviderUnavailableError{Backend: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.KeyProviderUnavailableError{Backend: c.Name(), Err: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &domain.KeyProviderUnavailableError{
			Backend: c.Name(),
			Err:     fmt.Errorf("custodian returned %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("custodian rejected request: %d: %s", resp.StatusCode, respBody)
	}

	var parsed custodianResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode custodian response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("custodian error: %s", parsed.Error)
	}

	out, err := base64.StdEncoding.DecodeString(parsed.Blob)
	if err != nil {
		return nil, fmt.Errorf("decode custodian blob: %w", err)
	}
	return out, nil
}
