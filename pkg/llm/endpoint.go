package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EndpointProvider implements the Provider interface for OpenAI-compatible
// chat-completions endpoints, such as managed model serving.
type EndpointProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewEndpoint creates a new EndpointProvider. baseURL is the full
// chat-completions URL; token, if non-empty, is sent as a bearer credential.
func NewEndpoint(baseURL, token string) *EndpointProvider {
	return &EndpointProvider{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type endpointRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type endpointResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Chat sends a chat request to the endpoint and maps the response.
func (p *EndpointProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	eReq := endpointRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(eReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal endpoint request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("endpoint api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("endpoint api returned status %d: %s", resp.StatusCode, detail)
	}

	var eResp endpointResponse
	if err := json.NewDecoder(resp.Body).Decode(&eResp); err != nil {
		return nil, fmt.Errorf("failed to decode endpoint response: %w", err)
	}
	if len(eResp.Choices) == 0 {
		return nil, fmt.Errorf("endpoint response contained no choices")
	}

	choice := eResp.Choices[0]
	return &ChatResponse{
		Content:   choice.Message.Content,
		ToolCalls: choice.Message.ToolCalls,
		Usage:     eResp.Usage,
	}, nil
}
