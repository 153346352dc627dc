// Package upstream owns the connection to the streaming completion
// provider and translates its native events into the relay's token stream.
// The provider speaks an OpenAI-compatible SSE chat-completions API.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is the completion provider client. One Client is shared by all
// sessions; each request carries its own context and stream.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a provider client. No client-level timeout is set:
// streams are long-lived and cancellation flows through the request
// context instead.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// ChatMessage is one turn in the provider request payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-native streaming request.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// Choice carries the incremental payload of one stream chunk.
type Choice struct {
	Index        int          `json:"index"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// WireCitation is the provider's citation shape, attached to the final
// chunk by retrieval-augmented deployments.
type WireCitation struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Reference string         `json:"reference"`
	Snippet   string         `json:"snippet,omitempty"`
	Page      int            `json:"page,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StreamChunk is a single SSE data event from the provider.
type StreamChunk struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	Model     string         `json:"model"`
	Choices   []Choice       `json:"choices"`
	Citations []WireCitation `json:"citations,omitempty"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// StreamCallback is invoked for each chunk in receipt order. Returning an
// error stops the stream.
type StreamCallback func(chunk *StreamChunk) error

// StreamCompletion opens a streaming completion and feeds each SSE chunk
// to the callback until the provider sends its terminator or the context
// is canceled. Malformed chunks are skipped.
func (c *Client) StreamCompletion(ctx context.Context, req *CompletionRequest, callback StreamCallback) error {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("upstream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upstream: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("upstream: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("upstream: provider error [%d]: %s (type: %s)", resp.StatusCode, errResp.Error.Message, errResp.Error.Type)
		}
		return fmt.Errorf("upstream: provider error [%d]: %s", resp.StatusCode, string(respBody))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Stream ended without the [DONE] terminator: the
				// provider dropped mid-stream.
				return fmt.Errorf("upstream: stream ended prematurely")
			}
			return fmt.Errorf("upstream: read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if err := callback(&chunk); err != nil {
			return err
		}
	}
}
