package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

const logPrefix = "facilitator:client"

// VerifyTimeout bounds a single verification roundtrip, per spec.md §5.
const VerifyTimeout = 10 * time.Second

// Client talks to one external facilitator instance over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client against baseURL (e.g. "https://facilitator.example.com").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newTimeoutClient(VerifyTimeout),
	}
}

// newTimeoutClient returns cleanhttp's pooled transport (no shared
// http.DefaultTransport state, connection reuse across calls) bounded by
// timeout.
func newTimeoutClient(timeout time.Duration) *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = timeout
	return c
}

type verifyRequest struct {
	PaymentProof string               `json:"paymentProof"`
	Requirements PaymentRequirements  `json:"paymentRequirements"`
}

// Verify asks the facilitator whether proof satisfies requirements. Any
// error here (transport failure, non-2xx status, undecodable body) is
// surfaced by the caller as verification_unavailable; a decoded
// IsValid:false is invalid_payment.
func (c *Client) Verify(ctx context.Context, proof string, requirements PaymentRequirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "/verify", verifyRequest{PaymentProof: proof, Requirements: requirements}, &out); err != nil {
		return nil, fmt.Errorf("%s - verify: %w", logPrefix, err)
	}
	return &out, nil
}

// Settle notifies the facilitator that a backend call completed
// successfully for a verified proof. Called fire-and-forget by the
// payment gate's settlement worker pool; its result is logged, never
// surfaced to the caller.
func (c *Client) Settle(ctx context.Context, proof string, requirements PaymentRequirements) (*SettleResponse, error) {
	var out SettleResponse
	if err := c.post(ctx, "/settle", verifyRequest{PaymentProof: proof, Requirements: requirements}, &out); err != nil {
		return nil, fmt.Errorf("%s - settle: %w", logPrefix, err)
	}
	return &out, nil
}

// Supported queries the facilitator's accepted payment schemes/networks.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("%s - supported: %w", logPrefix, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s - supported: %w", logPrefix, err)
	}
	defer resp.Body.Close()

	var out SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s - supported: decode: %w", logPrefix, err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("facilitator returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
