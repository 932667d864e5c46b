// Package backend forwards a dispatched call's parameters to a capability's
// upstream endpoint and normalizes the response, per spec.md §4.7.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"github.com/morezero/capability-gateway/pkg/registry"
)

const logPrefix = "backend:client"

// AttemptTimeout bounds a single HTTP attempt, per spec.md §4.4/§5.
const AttemptTimeout = 60 * time.Second

// Client forwards params to a capability's endpoint. One Client, backed by
// one shared *http.Client, is constructed once and threaded through the
// gateway the way the teacher threads one *pgxpool.Pool through its handlers.
type Client struct {
	http            *http.Client
	bypassCredential string
}

// New creates a Client. bypassCredential is sent as X-Gateway-Bypass for
// native/partner capabilities only; discovered capabilities never receive it.
func New(bypassCredential string) *Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = AttemptTimeout
	return &Client{
		http:             c,
		bypassCredential: bypassCredential,
	}
}

// Response is the normalized result of one backend call.
type Response struct {
	StatusCode  int
	ContentType string
	// Body is shaped by the capability's declared OutputType: the
	// JSON-decoded value for json, a
	// map[string]interface{}{"data": base64, "contentType": ..., "sizeBytes": ...}
	// for image/PDF, or the trimmed raw string for anything else.
	Body interface{}
}

// Call invokes cap's endpoint with params and returns the normalized response.
// GET methods URL-encode params into the query string; POST methods send
// params as a JSON object body. The gateway's bypass credential is attached
// for native/partner capabilities, never for discovered ones.
func (c *Client) Call(ctx context.Context, cap registry.Capability, params map[string]interface{}) (*Response, error) {
	var req *http.Request
	var err error

	switch cap.Method {
	case registry.MethodGET:
		req, err = c.buildGET(ctx, cap.Endpoint, params)
	case registry.MethodPOST:
		req, err = c.buildPOST(ctx, cap.Endpoint, params)
	default:
		return nil, fmt.Errorf("%s - unsupported method %q", logPrefix, cap.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - build request: %w", logPrefix, err)
	}

	if cap.SourceTier != registry.Discovered && c.bypassCredential != "" {
		req.Header.Set("X-Gateway-Bypass", c.bypassCredential)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s - transport error calling %s: %w", logPrefix, cap.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s - read response from %s: %w", logPrefix, cap.ID, err)
	}

	slog.Debug(fmt.Sprintf("%s - capability=%s status=%d elapsed=%s", logPrefix, cap.ID, resp.StatusCode, time.Since(start)))

	normalized, err := classify(cap.OutputType, resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, fmt.Errorf("%s - classify response from %s: %w", logPrefix, cap.ID, err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        normalized,
	}, nil
}

func (c *Client) buildGET(ctx context.Context, endpoint string, params map[string]interface{}) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, v := range params {
		if v == nil {
			continue
		}
		q.Set(k, stringifyParam(v))
	}
	u.RawQuery = q.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

func (c *Client) buildPOST(ctx context.Context, endpoint string, params map[string]interface{}) (*http.Request, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func stringifyParam(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
