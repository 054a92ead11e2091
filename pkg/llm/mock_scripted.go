package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedMockProvider is a mock provider that returns a pre-defined sequence
// of responses, including tool calls. Useful for testing multi-round routing.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []*ChatResponse
	Err       error
	// CallCount tracks how many times Chat has been called
	CallCount int
	// Requests records each request for assertions
	Requests []ChatRequest
}

// NewScriptedMockProvider creates a new ScriptedMockProvider.
func NewScriptedMockProvider(responses ...*ChatResponse) *ScriptedMockProvider {
	return &ScriptedMockProvider{
		Responses: responses,
	}
}

// TextResponse builds a plain-content scripted response.
func TextResponse(content string) *ChatResponse {
	return &ChatResponse{
		Content: content,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// ToolCallResponse builds a scripted response requesting the given tool calls.
func ToolCallResponse(calls ...ToolCall) *ChatResponse {
	return &ChatResponse{
		ToolCalls: calls,
		Usage:     Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New("scripted mock: no more responses available")
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	return resp, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedMockProvider) AddResponse(resp *ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, resp)
}
