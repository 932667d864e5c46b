// Package planner is an HTTP client to the external large-language model
// used solely by the Orchestrator to plan multi-step chains, per spec.md
// §4.8. It speaks the OpenAI-compatible chat completions shape.
package planner

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

const logPrefix = "planner:client"

// PlanTimeout bounds the chain-planning roundtrip, per spec.md §5.
const PlanTimeout = 60 * time.Second

// Client talks to one OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// New creates a Client. apiKey is never logged; baseURL is the provider's
// chat-completions base (e.g. "https://api.openai.com/v1").
func New(baseURL, apiKey, model string) *Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = PlanTimeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    c,
	}
}

// Configured reports whether a planner API key was provided. /do/chain
// fails closed with orchestration_failed when this is false, rather than
// silently degrading.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// PlanRaw submits systemPrompt + userPrompt to the chat completions
// endpoint and returns the assistant's raw text content — the Orchestrator
// is responsible for parsing and validating that text as a chain plan.
func (c *Client) PlanRaw(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("%s - no planner api key configured", logPrefix)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s - encode request: %w", logPrefix, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s - build request: %w", logPrefix, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s - transport: %w", logPrefix, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s - read response: %w", logPrefix, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s - planner returned status %d (%d bytes)", logPrefix, resp.StatusCode, len(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%s - decode response: %w", logPrefix, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s - planner returned no choices", logPrefix)
	}
	return out.Choices[0].Message.Content, nil
}
