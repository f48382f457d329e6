// Package agent implements the client for the remote completion service.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned for any failure talking to the remote agent:
// timeout, network failure, non-success status, or malformed body. The
// caller's remedy is the same in every case, so they are not distinguished.
var ErrUnavailable = errors.New("agent: service unavailable")

// DefaultTimeout bounds the single round trip to the agent service.
const DefaultTimeout = 60 * time.Second

// Message is one role-tagged entry of conversational context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply is the agent's answer to one completion request.
type Reply struct {
	Text       string
	TokensUsed int
}

// Completer sends an ordered conversation to a completion service and
// returns one reply. Implementations must not retry.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (*Reply, error)
}

// Client calls the remote agent over its OpenAI-style completions endpoint.
type Client struct {
	apiBase    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client for the given base URL and credential.
func NewClient(apiBase, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiBase: strings.TrimSuffix(apiBase, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type completionRequest struct {
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the full ordered context in a single blocking round trip.
// Any failure surfaces as ErrUnavailable; there is no partial result.
func (c *Client) Complete(ctx context.Context, messages []Message) (*Reply, error) {
	body, err := json.Marshal(completionRequest{Messages: messages, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var apiResp completionResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrUnavailable, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrUnavailable)
	}

	// Usage is optional; a service that omits it reports zero tokens.
	return &Reply{
		Text:       apiResp.Choices[0].Message.Content,
		TokensUsed: apiResp.Usage.TotalTokens,
	}, nil
}
