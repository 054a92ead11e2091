package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
)

func newServingBackend(t *testing.T, handler http.HandlerFunc) *ServingClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewServing(core.Descriptor{
		ID:       "knowledge",
		Category: core.CategoryDocumentQA,
		Endpoint: server.URL,
	})
	if err != nil {
		t.Fatalf("creating serving client: %v", err)
	}
	return c
}

func TestServingInvoke(t *testing.T) {
	c := newServingBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "What is my deductible?" {
			t.Errorf("unexpected question: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Your deductible is $500 per plan year."}},
			},
			"citations": []map[string]string{
				{"title": "Gold Plan Summary", "source": "plans/gold-2026.pdf"},
			},
		})
	})

	result, err := c.Invoke(context.Background(), QueryKnowledgeOperation,
		map[string]any{"query": "What is my deductible?"})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if result.Text != "Your deductible is $500 per plan year." {
		t.Errorf("unexpected answer text: %q", result.Text)
	}
	if len(result.Citations) != 1 || result.Citations[0].Title != "Gold Plan Summary" {
		t.Errorf("expected citation, got %+v", result.Citations)
	}
}

func TestServingInvokeValidation(t *testing.T) {
	c := newServingBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the backend for invalid args")
	})

	_, err := c.Invoke(context.Background(), QueryKnowledgeOperation, map[string]any{})
	if errors.CodeOf(err) != errors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}

	_, err = c.Invoke(context.Background(), "summarize", map[string]any{"query": "x"})
	if errors.CodeOf(err) != errors.CodeToolNotFound {
		t.Fatalf("expected TOOL_NOT_FOUND, got %v", err)
	}
}

func TestServingInvokeBackendError(t *testing.T) {
	c := newServingBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.Invoke(context.Background(), QueryKnowledgeOperation,
		map[string]any{"query": "anything"})
	if errors.CodeOf(err) != errors.CodeBackend {
		t.Fatalf("expected BACKEND_ERROR, got %v", err)
	}
}

func TestServingHealthCheck(t *testing.T) {
	c := newServingBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	})

	result := c.HealthCheck(context.Background())
	if result.State != core.HealthHealthy {
		t.Fatalf("reachable endpoint should be healthy, got %+v", result)
	}
}

func TestServingHealthCheckUnreachable(t *testing.T) {
	c, err := NewServing(core.Descriptor{
		ID:       "knowledge",
		Category: core.CategoryDocumentQA,
		Endpoint: "http://127.0.0.1:1", // nothing listens here
	})
	if err != nil {
		t.Fatalf("creating serving client: %v", err)
	}

	result := c.HealthCheck(context.Background())
	if result.State != core.HealthUnhealthy {
		t.Fatalf("expected UNHEALTHY, got %+v", result)
	}
	if result.Message == "" {
		t.Errorf("expected a reason string")
	}
}
