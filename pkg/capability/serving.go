package capability

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
)

// QueryKnowledgeOperation is the single operation a serving-backed
// document-QA capability exposes.
const QueryKnowledgeOperation = "query_knowledge"

// ServingClient is a core.Client over an OpenAI-compatible serving endpoint,
// used for document-QA backends that answer in free text with citations.
type ServingClient struct {
	desc       core.Descriptor
	token      string
	httpClient *http.Client
}

// NewServing creates a serving-endpoint capability client. The bearer
// credential is read from the environment variable the descriptor names.
func NewServing(desc core.Descriptor) (*ServingClient, error) {
	token := ""
	if desc.CredentialEnv != "" {
		token = strings.TrimSpace(os.Getenv(desc.CredentialEnv))
		if token == "" {
			return nil, errors.New(errors.CodeConfiguration, "credential environment variable is empty", nil).
				WithContext("capability_id", desc.ID).
				WithContext("credential_env", desc.CredentialEnv)
		}
	}
	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ServingClient{
		desc:       desc,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Descriptor returns the static capability descriptor.
func (c *ServingClient) Descriptor() core.Descriptor {
	return c.desc
}

// Connect probes the endpoint. Any HTTP response counts as reachable; the
// serving surface only answers POSTs, so status codes are not inspected.
func (c *ServingClient) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.desc.Endpoint, nil)
	if err != nil {
		return errors.New(errors.CodeConnection, "building probe request", err).
			WithContext("capability_id", c.desc.ID)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(errors.CodeConnection, "endpoint unreachable", err).
			WithContext("capability_id", c.desc.ID)
	}
	resp.Body.Close()
	return nil
}

// ListOperations returns the static document-QA operation.
func (c *ServingClient) ListOperations(ctx context.Context) ([]core.OperationDescriptor, error) {
	return []core.OperationDescriptor{
		{
			Name:        QueryKnowledgeOperation,
			Description: "Search plan documents, policies and coverage guidelines and answer the question with citations.",
			InputSchema: core.Schema{
				Parameters: []core.Parameter{
					{Name: "query", Type: "string", Description: "Question to answer from the document corpus", Required: true},
				},
			},
		},
	}, nil
}

type servingResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []struct {
		Title  string `json:"title"`
		Source string `json:"source"`
	} `json:"citations"`
}

// Invoke sends the query as a single-turn chat completion and normalizes the
// answer into text plus citation metadata.
func (c *ServingClient) Invoke(ctx context.Context, operation string, args map[string]any) (*core.Result, error) {
	ops, _ := c.ListOperations(ctx)
	if operation != QueryKnowledgeOperation {
		return nil, errors.New(errors.CodeToolNotFound, "operation not exposed by capability", nil).
			WithContext("capability_id", c.desc.ID).
			WithContext("operation", operation)
	}
	if err := ValidateArgs(ops[0], args); err != nil {
		return nil, err
	}
	query, _ := args["query"].(string)

	payload, err := json.Marshal(map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": query},
		},
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "marshaling request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.desc.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, errors.New(errors.CodeTimeout, "knowledge query exceeded deadline", err).
				WithContext("capability_id", c.desc.ID)
		}
		return nil, errors.New(errors.CodeBackend, "knowledge query failed", err).
			WithContext("capability_id", c.desc.ID).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.CodeBackend,
			fmt.Sprintf("knowledge endpoint returned status %d", resp.StatusCode), nil).
			WithContext("capability_id", c.desc.ID).
			WithContext("detail", string(detail)).
			WithRecoverable(true)
	}

	var sResp servingResponse
	if err := json.NewDecoder(resp.Body).Decode(&sResp); err != nil {
		return nil, errors.New(errors.CodeBackend, "malformed knowledge response", err).
			WithContext("capability_id", c.desc.ID)
	}
	if len(sResp.Choices) == 0 || sResp.Choices[0].Message.Content == "" {
		return nil, errors.New(errors.CodeBackend, "knowledge response contained no answer", nil).
			WithContext("capability_id", c.desc.ID)
	}

	result := &core.Result{Text: sResp.Choices[0].Message.Content}
	for _, cit := range sResp.Citations {
		result.Citations = append(result.Citations, core.Citation{
			Title:  cit.Title,
			Source: cit.Source,
		})
	}
	return result, nil
}

// HealthCheck probes the endpoint with a short deadline. Never returns an error.
func (c *ServingClient) HealthCheck(ctx context.Context) core.HealthResult {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return core.HealthResult{
			State:     core.HealthUnhealthy,
			Component: c.desc.ID,
			Message:   err.Error(),
			LastCheck: time.Now(),
			Error:     err,
		}
	}
	return core.HealthResult{
		State:     core.HealthHealthy,
		Component: c.desc.ID,
		ToolCount: 1,
		LastCheck: time.Now(),
	}
}

// Close is a no-op; the serving client keeps no session state.
func (c *ServingClient) Close() error {
	return nil
}

func (c *ServingClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

var _ core.Client = (*ServingClient)(nil)
