package agent_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carebridge/concierge/pkg/agent"
	"github.com/carebridge/concierge/pkg/composer"
	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
	"github.com/carebridge/concierge/pkg/llm"
	"github.com/carebridge/concierge/pkg/registry"
)

// memberClient is a fake function-execution capability with a single member
// record, mirroring the demo dataset.
type memberClient struct {
	mu        sync.Mutex
	invoked   []map[string]any
	failWith  error
	sleepsFor time.Duration
}

func (m *memberClient) Descriptor() core.Descriptor {
	return core.Descriptor{ID: "uc-functions", Category: core.CategoryFunctionExecution}
}
func (m *memberClient) Connect(ctx context.Context) error { return nil }
func (m *memberClient) ListOperations(ctx context.Context) ([]core.OperationDescriptor, error) {
	return []core.OperationDescriptor{{
		Name:        "lookup_member",
		Description: "Look up a member by ID",
		InputSchema: core.Schema{Parameters: []core.Parameter{
			{Name: "input_id", Type: "string", Description: "Member ID", Required: true},
		}},
	}}, nil
}
func (m *memberClient) Invoke(ctx context.Context, operation string, args map[string]any) (*core.Result, error) {
	m.mu.Lock()
	m.invoked = append(m.invoked, args)
	m.mu.Unlock()
	if m.sleepsFor > 0 {
		select {
		case <-time.After(m.sleepsFor):
		case <-ctx.Done():
			return nil, errors.New(errors.CodeTimeout, "tool call timed out", ctx.Err())
		}
	}
	if m.failWith != nil {
		return nil, m.failWith
	}
	return &core.Result{Structured: map[string]any{"member_id": "1001", "name": "John Doe"}}, nil
}
func (m *memberClient) HealthCheck(ctx context.Context) core.HealthResult {
	return core.HealthResult{State: core.HealthHealthy, Component: "uc-functions"}
}
func (m *memberClient) Close() error { return nil }

func newRouter(t *testing.T, client core.Client, provider llm.Provider, opts ...agent.Option) (*agent.Router, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	if client != nil {
		if _, err := reg.Register(context.Background(), client); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	proc := agent.NewLLMProcedure(provider, "test-model")
	return agent.NewRouter(proc, reg, composer.New(), opts...), reg
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:   id,
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

func TestHandleDirectAnswer(t *testing.T) {
	provider := llm.NewScriptedMockProvider(
		llm.TextResponse("Hello! I can help with members, claims, providers, and policy documents."),
	)
	router, _ := newRouter(t, &memberClient{}, provider)

	answer, turn, err := router.Handle(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if answer.PartialFailure {
		t.Error("greeting must not be a partial failure")
	}
	if len(answer.Sources) != 0 {
		t.Errorf("no tools ran, expected no sources, got %v", answer.Sources)
	}
	if turn.Rounds != 1 || len(turn.Invocations) != 0 {
		t.Errorf("expected 1 round and 0 invocations, got %d/%d", turn.Rounds, len(turn.Invocations))
	}
}

func TestHandleSingleToolTurn(t *testing.T) {
	client := &memberClient{}
	provider := llm.NewScriptedMockProvider(
		llm.ToolCallResponse(toolCall("call_1", "uc-functions__lookup_member", `{"input_id":"1001"}`)),
		llm.TextResponse("Member 1001 is John Doe."),
	)
	router, _ := newRouter(t, client, provider)

	answer, turn, err := router.Handle(context.Background(), "Who is member 1001?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if answer.PartialFailure {
		t.Error("expected a clean turn")
	}
	if !strings.Contains(answer.Text, "John Doe") {
		t.Errorf("answer missing model text: %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].CapabilityID != "uc-functions" || answer.Sources[0].ToolName != "lookup_member" {
		t.Errorf("unexpected sources %v", answer.Sources)
	}
	if len(client.invoked) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(client.invoked))
	}
	if client.invoked[0]["input_id"] != "1001" {
		t.Errorf("arguments not forwarded: %v", client.invoked[0])
	}
	if turn.Rounds != 2 {
		t.Errorf("expected 2 rounds, got %d", turn.Rounds)
	}

	// The tool result must have been fed back to the model.
	last := provider.Requests[1].Messages
	found := false
	for _, msg := range last {
		if msg.Role == llm.RoleTool && msg.ToolCallID == "call_1" {
			found = true
			if !strings.Contains(msg.Content, "John Doe") {
				t.Errorf("tool transcript entry missing result: %q", msg.Content)
			}
		}
	}
	if !found {
		t.Error("no tool result message in the second-round transcript")
	}
}

func TestHandleBackendFailureDegrades(t *testing.T) {
	client := &memberClient{failWith: errors.New(errors.CodeBackend, "backend exploded", nil)}
	provider := llm.NewScriptedMockProvider(
		llm.ToolCallResponse(toolCall("call_1", "uc-functions__lookup_member", `{"input_id":"1001"}`)),
		llm.TextResponse("I could not retrieve the member record."),
	)
	router, _ := newRouter(t, client, provider)

	answer, turn, err := router.Handle(context.Background(), "Who is member 1001?")
	if err != nil {
		t.Fatalf("handle must not fail on backend errors: %v", err)
	}
	if !answer.PartialFailure {
		t.Error("expected partial failure")
	}
	if len(answer.Sources) != 0 {
		t.Errorf("failed call must not be attributed, got %v", answer.Sources)
	}
	if len(turn.Failures()) != 1 {
		t.Errorf("expected 1 failed invocation, got %d", len(turn.Failures()))
	}

	// The model saw the error in the transcript.
	msgs := provider.Requests[1].Messages
	sawError := false
	for _, msg := range msgs {
		if msg.Role == llm.RoleTool && strings.Contains(msg.Content, "error:") {
			sawError = true
		}
	}
	if !sawError {
		t.Error("tool failure not reported back to the model")
	}
}

func TestHandleRoundBound(t *testing.T) {
	call := llm.ToolCallResponse(toolCall("call_1", "uc-functions__lookup_member", `{"input_id":"1001"}`))
	provider := llm.NewScriptedMockProvider(call, call, call, call, call)
	router, _ := newRouter(t, &memberClient{}, provider, agent.WithMaxRounds(3))

	answer, turn, err := router.Handle(context.Background(), "keep looking things up forever")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if turn.Rounds != 3 {
		t.Errorf("expected exactly 3 rounds, got %d", turn.Rounds)
	}
	if !turn.Incomplete {
		t.Error("round-bounded turn must be marked incomplete")
	}
	if !answer.PartialFailure {
		t.Error("incomplete turn is a partial failure")
	}
	if answer.Text == "" {
		t.Error("answer must still be produced from partial results")
	}
}

func TestHandleUnknownToolDropped(t *testing.T) {
	provider := llm.NewScriptedMockProvider(
		llm.ToolCallResponse(toolCall("call_1", "uc-functions__lookup_plans", `{}`)),
		llm.TextResponse("That information is not available to me."),
	)
	router, _ := newRouter(t, &memberClient{}, provider)

	answer, turn, err := router.Handle(context.Background(), "What plans exist?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(turn.Failures()) != 1 {
		t.Fatalf("expected the unknown tool recorded as a failure, got %d", len(turn.Failures()))
	}
	if errors.CodeOf(turn.Failures()[0].Err) != errors.CodeToolNotFound {
		t.Errorf("expected TOOL_NOT_FOUND, got %v", turn.Failures()[0].Err)
	}
	if !answer.PartialFailure {
		t.Error("expected partial failure")
	}
}

func TestHandleMalformedArguments(t *testing.T) {
	client := &memberClient{}
	provider := llm.NewScriptedMockProvider(
		llm.ToolCallResponse(toolCall("call_1", "uc-functions__lookup_member", `{"input_id": `)),
		llm.TextResponse("I could not look that up."),
	)
	router, _ := newRouter(t, client, provider)

	_, turn, err := router.Handle(context.Background(), "Who is member 1001?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(client.invoked) != 0 {
		t.Error("malformed arguments must not reach the capability")
	}
	if len(turn.Failures()) != 1 || errors.CodeOf(turn.Failures()[0].Err) != errors.CodeInvalidArgument {
		t.Errorf("expected one INVALID_ARGUMENT failure, got %v", turn.Failures())
	}
}

func TestHandleInvocationTimeout(t *testing.T) {
	client := &memberClient{sleepsFor: 2 * time.Second}
	provider := llm.NewScriptedMockProvider(
		llm.ToolCallResponse(toolCall("call_1", "uc-functions__lookup_member", `{"input_id":"1001"}`)),
		llm.TextResponse("The member system is slow right now."),
	)
	router, _ := newRouter(t, client, provider, agent.WithInvocationTimeout(50*time.Millisecond))

	start := time.Now()
	answer, turn, err := router.Handle(context.Background(), "Who is member 1001?")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("turn did not respect the invocation timeout, took %v", elapsed)
	}
	if len(turn.Failures()) != 1 {
		t.Errorf("expected the slow call to fail, got %v", turn.Invocations)
	}
	if !answer.PartialFailure {
		t.Error("expected partial failure")
	}
}

func TestHandleDecisionFailure(t *testing.T) {
	provider := llm.NewScriptedMockProvider()
	provider.Err = errors.New(errors.CodeBackend, "provider unreachable", nil)
	router, _ := newRouter(t, &memberClient{}, provider)

	answer, turn, err := router.Handle(context.Background(), "Who is member 1001?")
	if err != nil {
		t.Fatalf("a failed selection must still produce an answer: %v", err)
	}
	if turn.DecisionErr == nil {
		t.Error("decision error not recorded")
	}
	if answer.Text == "" || !answer.PartialFailure {
		t.Errorf("expected degraded fallback answer, got %+v", answer)
	}
}

func TestHandleEmptyUtterance(t *testing.T) {
	router, _ := newRouter(t, &memberClient{}, llm.NewScriptedMockProvider())

	_, _, err := router.Handle(context.Background(), "   ")
	if errors.CodeOf(err) != errors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestHandleConcurrentSelections(t *testing.T) {
	client := &memberClient{sleepsFor: 100 * time.Millisecond}
	provider := llm.NewScriptedMockProvider(
		llm.ToolCallResponse(
			toolCall("call_1", "uc-functions__lookup_member", `{"input_id":"1001"}`),
			toolCall("call_2", "uc-functions__lookup_member", `{"input_id":"1002"}`),
			toolCall("call_3", "uc-functions__lookup_member", `{"input_id":"1003"}`),
		),
		llm.TextResponse("Found three members."),
	)
	router, _ := newRouter(t, client, provider)

	start := time.Now()
	_, turn, err := router.Handle(context.Background(), "Look up members 1001, 1002 and 1003")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(turn.Invocations) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(turn.Invocations))
	}
	// Three 100ms calls running concurrently finish well under 300ms.
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("selections did not run concurrently, took %v", elapsed)
	}
	// Invocation order follows selection order regardless of completion.
	if turn.Invocations[0].CallID != "call_1" || turn.Invocations[2].CallID != "call_3" {
		t.Errorf("invocation order does not follow selection order: %v", turn.Invocations)
	}
}

// scriptedProcedure replays canned decisions, for exercising dependency
// ordering that LLM providers cannot express.
type scriptedProcedure struct {
	decisions []agent.Decision
}

func (s *scriptedProcedure) Decide(ctx context.Context, transcript []llm.Message, tools []llm.Tool) (agent.Decision, error) {
	if len(s.decisions) == 0 {
		return agent.Decision{FinalAnswer: "done"}, nil
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

func TestDependentSelectionsRunInOrder(t *testing.T) {
	client := &memberClient{sleepsFor: 50 * time.Millisecond}
	proc := &scriptedProcedure{decisions: []agent.Decision{{
		Selections: []agent.Selection{
			{ToolName: "uc-functions__lookup_member", Arguments: map[string]any{"input_id": "1001"}, CallID: "call_1"},
			{ToolName: "uc-functions__lookup_member", Arguments: map[string]any{"input_id": "1002"}, CallID: "call_2", After: []string{"call_1"}},
		},
	}}}

	reg := registry.New()
	if _, err := reg.Register(context.Background(), client); err != nil {
		t.Fatalf("register: %v", err)
	}
	router := agent.NewRouter(proc, reg, composer.New())

	_, turn, err := router.Handle(context.Background(), "look up 1001 then 1002")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(turn.Invocations) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(turn.Invocations))
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.invoked) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(client.invoked))
	}
	if client.invoked[0]["input_id"] != "1001" || client.invoked[1]["input_id"] != "1002" {
		t.Errorf("dependent call ran out of order: %v", client.invoked)
	}
}

