package bazaar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/google/go-querystring/query"
)

const logPrefix = "bazaar:client"

// SearchTimeout bounds one marketplace lookup, per spec.md §5.
const SearchTimeout = 10 * time.Second

// Client talks to one external marketplace instance over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client against baseURL.
func New(baseURL string) *Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = SearchTimeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    c,
	}
}

// Search queries the marketplace's discovery catalog for resources matching
// opts.Query, per spec.md §4.6.
func (c *Client) Search(ctx context.Context, opts SearchOptions) ([]Resource, error) {
	q, err := query.Values(opts)
	if err != nil {
		return nil, fmt.Errorf("%s - encode query: %w", logPrefix, err)
	}

	reqURL := c.baseURL + "/x402/discovery/resources"
	if encoded := q.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - build request: %w", logPrefix, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s - transport: %w", logPrefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s - marketplace returned status %d", logPrefix, resp.StatusCode)
	}

	var out ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s - decode response: %w", logPrefix, err)
	}
	return out.Items, nil
}
