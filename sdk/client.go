package sdk

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// VerifyResponse is returned by POST /v1/verify.
type VerifyResponse struct {
	Verified    bool   `json:"verified"`
	Decision    string `json:"decision"` // verified, replayed, stale, invalid_signature, ...
	RequestID   string `json:"request_id"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Digest      string `json:"digest,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DNSResponse is returned by POST /v1/dns/encode.
type DNSResponse struct {
	Domain string `json:"domain"`
	Hex    string `json:"hex"`
	Length int    `json:"length"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// RejectedError is returned when the server does not accept a result.
type RejectedError struct {
	StatusCode int
	Response   VerifyResponse
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("signdata: %s (HTTP %d, id=%s)", e.Response.Decision, e.StatusCode, e.Response.RequestID)
}

// Client talks to a signdata verification server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type verifyRequest struct {
	Result    *Result `json:"result"`
	PublicKey string  `json:"public_key,omitempty"`
}

// Verify asks the server to verify res against the key it has on file for
// res.Address. Returns a RejectedError for any decision other than verified.
func (c *Client) Verify(ctx context.Context, res *Result) (*VerifyResponse, error) {
	return c.verify(ctx, verifyRequest{Result: res})
}

// VerifyWithKey verifies res against an explicit public key.
func (c *Client) VerifyWithKey(ctx context.Context, res *Result, pub ed25519.PublicKey) (*VerifyResponse, error) {
	return c.verify(ctx, verifyRequest{Result: res, PublicKey: base64.StdEncoding.EncodeToString(pub)})
}

func (c *Client) verify(ctx context.Context, req verifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	status, err := c.post(ctx, "/v1/verify", req, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &resp, &RejectedError{StatusCode: status, Response: resp}
	}
	return &resp, nil
}

// EncodeDNS returns the server's wire form of domain.
func (c *Client) EncodeDNS(ctx context.Context, domain string) (*DNSResponse, error) {
	var resp DNSResponse
	status, err := c.post(ctx, "/v1/dns/encode", map[string]string{"domain": domain}, &resp)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("encoding %q: HTTP %d", domain, status)
	}
	return &resp, nil
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer httpResp.Body.Close()

	var resp HealthResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	return &resp, nil
}

// post sends body as JSON and decodes the reply into out whatever the status.
func (c *Client) post(ctx context.Context, path string, body, out any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return httpResp.StatusCode, fmt.Errorf("decoding response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	return httpResp.StatusCode, nil
}
