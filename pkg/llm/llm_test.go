package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "hello"}
	resp, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("expected 'hello', got %q", resp.Content)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider(
		ToolCallResponse(ToolCall{
			ID:   "call-1",
			Type: ToolTypeFunction,
			Function: FunctionCall{
				Name:      "genie__query",
				Arguments: `{"query":"claims by month"}`,
			},
		}),
		TextResponse("done"),
	)

	first, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Function.Name != "genie__query" {
		t.Fatalf("expected scripted tool call, got %+v", first.ToolCalls)
	}

	second, err := mock.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if second.Content != "done" {
		t.Errorf("expected 'done', got %q", second.Content)
	}

	if _, err := mock.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Errorf("expected error when script is exhausted")
	}
	if mock.CallCount != 3 {
		t.Errorf("expected 3 calls recorded, got %d", mock.CallCount)
	}
}

func TestEndpointProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer credential, got %q", got)
		}
		var req endpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
			t.Errorf("unexpected request messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"content": "hello there",
					"tool_calls": []map[string]any{
						{
							"id":   "call-1",
							"type": "function",
							"function": map[string]any{
								"name":      "knowledge__query_knowledge",
								"arguments": `{"query":"deductible"}`,
							},
						},
					},
				}},
			},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12},
		})
	}))
	defer server.Close()

	p := NewEndpoint(server.URL, "secret")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "hello there" {
		t.Errorf("expected content, got %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "knowledge__query_knowledge" {
		t.Errorf("expected tool call parsed, got %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("expected usage mapped, got %+v", resp.Usage)
	}
}

func TestEndpointProviderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewEndpoint(server.URL, "")
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
