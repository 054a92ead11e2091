// Package capability wraps backend capabilities behind the uniform
// core.Client surface, regardless of the backend's native protocol.
package capability

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
	"github.com/carebridge/concierge/pkg/resilience"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultOpsCacheTTL = 30 * time.Second
	healthTimeout      = 5 * time.Second
)

// MCPOption customizes the MCP capability client.
type MCPOption func(*MCPClient)

// WithRetry overrides the invoke retry policy.
func WithRetry(cfg resilience.RetryConfig) MCPOption {
	return func(c *MCPClient) {
		c.retry = cfg
	}
}

// WithOpsCacheTTL sets the operation discovery cache TTL. Use 0 to disable.
func WithOpsCacheTTL(ttl time.Duration) MCPOption {
	return func(c *MCPClient) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// MCPClient is a core.Client backed by an MCP server reached over
// streamable HTTP. It serves the structured-query and function-execution
// capabilities, and document-QA when that backend speaks MCP.
type MCPClient struct {
	desc      core.Descriptor
	mcpClient client.MCPClient
	starter   func(ctx context.Context) error
	timeout   time.Duration
	retry     resilience.RetryConfig
	cacheTTL  time.Duration

	mu          sync.Mutex
	connected   bool
	opsCache    []core.OperationDescriptor
	cacheExpiry time.Time
}

// NewMCP creates an MCP capability client for the descriptor. The bearer
// credential is read from the environment variable the descriptor names;
// no network traffic happens until Connect.
func NewMCP(desc core.Descriptor, opts ...MCPOption) (*MCPClient, error) {
	headers := map[string]string{}
	if desc.CredentialEnv != "" {
		token := strings.TrimSpace(os.Getenv(desc.CredentialEnv))
		if token == "" {
			return nil, errors.New(errors.CodeConfiguration, "credential environment variable is empty", nil).
				WithContext("capability_id", desc.ID).
				WithContext("credential_env", desc.CredentialEnv)
		}
		headers["Authorization"] = "Bearer " + token
	}

	httpClient, err := client.NewStreamableHttpClient(desc.Endpoint,
		transport.WithHTTPHeaders(headers))
	if err != nil {
		return nil, errors.New(errors.CodeConnection, "creating mcp client", err).
			WithContext("capability_id", desc.ID)
	}

	return newMCP(desc, httpClient, opts...), nil
}

// NewMCPWithClient wires an existing MCP client implementation, used by
// tests and in-process backends.
func NewMCPWithClient(desc core.Descriptor, mcpClient client.MCPClient, opts ...MCPOption) *MCPClient {
	return newMCP(desc, mcpClient, opts...)
}

func newMCP(desc core.Descriptor, mcpClient client.MCPClient, opts ...MCPOption) *MCPClient {
	c := &MCPClient{
		desc:      desc,
		mcpClient: mcpClient,
		timeout:   desc.Timeout,
		retry:     resilience.DefaultRetryConfig(),
		cacheTTL:  defaultOpsCacheTTL,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if concrete, ok := mcpClient.(*client.Client); ok {
		c.starter = concrete.Start
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Descriptor returns the static capability descriptor.
func (c *MCPClient) Descriptor() core.Descriptor {
	return c.desc
}

// Connect starts the transport and performs the MCP initialize handshake.
// Does not retry internally; callers decide retry policy.
func (c *MCPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.starter != nil {
		if err := c.starter(ctx); err != nil {
			return errors.New(errors.CodeConnection, "starting mcp transport", err).
				WithContext("capability_id", c.desc.ID)
		}
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "concierge",
		Version: "0.1.0",
	}
	if _, err := c.mcpClient.Initialize(ctx, initRequest); err != nil {
		return errors.New(errors.CodeConnection, "mcp initialize failed", err).
			WithContext("capability_id", c.desc.ID)
	}
	c.connected = true
	return nil
}

// ListOperations enumerates the server's tools as operation descriptors.
// Results are cached briefly; property order is made deterministic.
func (c *MCPClient) ListOperations(ctx context.Context) ([]core.OperationDescriptor, error) {
	if cached := c.cachedOps(); cached != nil {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, translateCallError(err, c.desc.ID, "list operations")
	}

	ops := make([]core.OperationDescriptor, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		ops = append(ops, core.OperationDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaFromMCP(tool.InputSchema),
		})
	}
	c.storeOps(ops)
	return ops, nil
}

// Invoke validates args against the operation schema and executes the call
// under the per-call deadline with bounded retry on backend failures.
func (c *MCPClient) Invoke(ctx context.Context, operation string, args map[string]any) (*core.Result, error) {
	ops, err := c.ListOperations(ctx)
	if err != nil {
		return nil, err
	}
	var op *core.OperationDescriptor
	for i := range ops {
		if ops[i].Name == operation {
			op = &ops[i]
			break
		}
	}
	if op == nil {
		return nil, errors.New(errors.CodeToolNotFound, "operation not exposed by capability", nil).
			WithContext("capability_id", c.desc.ID).
			WithContext("operation", operation)
	}
	if err := ValidateArgs(*op, args); err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = operation
	req.Params.Arguments = args

	var callResult *mcp.CallToolResult
	err = c.retry.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		c.mu.Lock()
		res, callErr := c.mcpClient.CallTool(callCtx, req)
		c.mu.Unlock()
		if callErr != nil {
			return translateCallError(callErr, c.desc.ID, operation)
		}
		callResult = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return normalizeResult(callResult, c.desc)
}

// HealthCheck performs a lightweight tool listing. Never returns an error.
func (c *MCPClient) HealthCheck(ctx context.Context) core.HealthResult {
	resp, err := resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: healthTimeout},
		func(ctx context.Context) (*mcp.ListToolsResult, error) {
			return c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		})
	if err != nil {
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
		ToolCount: len(resp.Tools),
		LastCheck: time.Now(),
	}
}

// Close closes the underlying MCP session.
func (c *MCPClient) Close() error {
	return c.mcpClient.Close()
}

func (c *MCPClient) cachedOps() []core.OperationDescriptor {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.opsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]core.OperationDescriptor, len(c.opsCache))
	copy(out, c.opsCache)
	return out
}

func (c *MCPClient) storeOps(ops []core.OperationDescriptor) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opsCache = make([]core.OperationDescriptor, len(ops))
	copy(c.opsCache, ops)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

// translateCallError maps transport failures onto the error taxonomy.
func translateCallError(err error, capabilityID, operation string) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, "capability call exceeded deadline", err).
			WithContext("capability_id", capabilityID).
			WithContext("operation", operation)
	}
	if stderrors.Is(err, context.Canceled) {
		return errors.New(errors.CodeTimeout, "capability call canceled", err).
			WithContext("capability_id", capabilityID).
			WithContext("operation", operation)
	}
	return errors.New(errors.CodeBackend, "capability call failed", err).
		WithContext("capability_id", capabilityID).
		WithContext("operation", operation).
		WithRecoverable(true)
}

// schemaFromMCP converts an MCP input schema into the ordered parameter
// model. Property names are sorted so tool prompts are reproducible.
func schemaFromMCP(in mcp.ToolInputSchema) core.Schema {
	names := make([]string, 0, len(in.Properties))
	for name := range in.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	required := make(map[string]bool, len(in.Required))
	for _, name := range in.Required {
		required[name] = true
	}

	schema := core.Schema{}
	for _, name := range names {
		param := core.Parameter{Name: name, Required: required[name]}
		if prop, ok := in.Properties[name].(map[string]any); ok {
			if t, ok := prop["type"].(string); ok {
				param.Type = t
			}
			if d, ok := prop["description"].(string); ok {
				param.Description = d
			}
		}
		schema.Parameters = append(schema.Parameters, param)
	}
	return schema
}

// normalizeResult converts a CallToolResult into the variant Result shape:
// structured payload when the server returned one, text otherwise. Text that
// parses as JSON is promoted to a structured payload for non-document
// capabilities, matching how function catalogs return rows as JSON text.
func normalizeResult(result *mcp.CallToolResult, desc core.Descriptor) (*core.Result, error) {
	if result == nil {
		return nil, errors.New(errors.CodeBackend, "capability returned empty result", nil).
			WithContext("capability_id", desc.ID)
	}

	text := extractTextContent(result.Content)
	if result.IsError {
		return nil, errors.New(errors.CodeBackend, "capability reported an error", nil).
			WithContext("capability_id", desc.ID).
			WithContext("detail", text)
	}

	if result.StructuredContent != nil {
		return &core.Result{Structured: result.StructuredContent}, nil
	}

	if desc.Category != core.CategoryDocumentQA {
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var decoded any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return &core.Result{Structured: decoded}, nil
			}
		}
	}

	if text == "" {
		return nil, errors.New(errors.CodeBackend, "capability returned no content", nil).
			WithContext("capability_id", desc.ID)
	}
	return &core.Result{Text: text}, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Client = (*MCPClient)(nil)
