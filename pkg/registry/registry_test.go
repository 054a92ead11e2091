package registry

import (
	"context"
	"testing"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
)

// fakeClient is a stub capability for registry tests.
type fakeClient struct {
	desc core.Descriptor
	ops  []core.OperationDescriptor
}

func (f *fakeClient) Descriptor() core.Descriptor { return f.desc }
func (f *fakeClient) Connect(ctx context.Context) error {
	return nil
}
func (f *fakeClient) ListOperations(ctx context.Context) ([]core.OperationDescriptor, error) {
	return f.ops, nil
}
func (f *fakeClient) Invoke(ctx context.Context, operation string, args map[string]any) (*core.Result, error) {
	return &core.Result{Text: "ok"}, nil
}
func (f *fakeClient) HealthCheck(ctx context.Context) core.HealthResult {
	return core.HealthResult{State: core.HealthHealthy}
}
func (f *fakeClient) Close() error { return nil }

func newFunctionsClient() *fakeClient {
	return &fakeClient{
		desc: core.Descriptor{ID: "uc-functions", Category: core.CategoryFunctionExecution},
		ops: []core.OperationDescriptor{
			{Name: "lookup_member", Description: "Look up a member"},
			{Name: "lookup_claims", Description: "Look up claims"},
		},
	}
}

func TestRegisterNamespacesTools(t *testing.T) {
	r := New()
	tools, err := r.Register(context.Background(), newFunctionsClient())
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Name != "uc-functions__lookup_member" {
		t.Errorf("expected namespaced name, got %q", tools[0].Name)
	}
	if tools[0].Operation != "lookup_member" {
		t.Errorf("expected bare operation preserved, got %q", tools[0].Operation)
	}
}

func TestRegisterDetectsDuplicates(t *testing.T) {
	r := New()
	if _, err := r.Register(context.Background(), newFunctionsClient()); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := r.Register(context.Background(), newFunctionsClient())
	if errors.CodeOf(err) != errors.CodeDuplicateTool {
		t.Fatalf("expected DUPLICATE_TOOL, got %v", err)
	}
}

func TestAllIsStableAndOrdered(t *testing.T) {
	r := New()
	if _, err := r.Register(context.Background(), newFunctionsClient()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	genie := &fakeClient{
		desc: core.Descriptor{ID: "genie", Category: core.CategoryStructuredQuery},
		ops:  []core.OperationDescriptor{{Name: "query", Description: "NL data query"}},
	}
	if _, err := r.Register(context.Background(), genie); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	first := r.All()
	second := r.All()
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 tools, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name {
			t.Fatalf("tool order not stable at %d: %q vs %q", i, first[i].Name, second[i].Name)
		}
	}
	if first[2].Name != "genie__query" {
		t.Errorf("expected registration order, got %q last", first[2].Name)
	}

	// The returned slice is a copy.
	first[0] = nil
	if r.All()[0] == nil {
		t.Error("All must return a copy")
	}
}

func TestGet(t *testing.T) {
	r := New()
	if _, err := r.Register(context.Background(), newFunctionsClient()); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	tool, err := r.Get("uc-functions__lookup_member")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if tool.CapabilityID != "uc-functions" {
		t.Errorf("unexpected capability id %q", tool.CapabilityID)
	}

	_, err = r.Get("uc-functions__lookup_plans")
	if errors.CodeOf(err) != errors.CodeToolNotFound {
		t.Fatalf("expected TOOL_NOT_FOUND, got %v", err)
	}
}

func TestDefinitions(t *testing.T) {
	r := New()
	ops := []core.OperationDescriptor{{
		Name:        "lookup_member",
		Description: "Look up a member",
		InputSchema: core.Schema{Parameters: []core.Parameter{
			{Name: "input_id", Type: "string", Description: "Member ID", Required: true},
		}},
	}}
	client := &fakeClient{
		desc: core.Descriptor{ID: "uc-functions", Category: core.CategoryFunctionExecution},
		ops:  ops,
	}
	if _, err := r.Register(context.Background(), client); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	defs := r.Definitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Function.Name != "uc-functions__lookup_member" {
		t.Errorf("unexpected function name %q", defs[0].Function.Name)
	}
	params, ok := defs[0].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("expected JSON schema map, got %T", defs[0].Function.Parameters)
	}
	required, _ := params["required"].([]string)
	if len(required) != 1 || required[0] != "input_id" {
		t.Errorf("expected required [input_id], got %v", params["required"])
	}
}

func TestCategories(t *testing.T) {
	r := New()
	r.Register(context.Background(), newFunctionsClient())
	r.Register(context.Background(), &fakeClient{
		desc: core.Descriptor{ID: "genie", Category: core.CategoryStructuredQuery},
		ops:  []core.OperationDescriptor{{Name: "query"}},
	})

	cats := r.Categories()
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %v", cats)
	}
	if cats[0] != core.CategoryFunctionExecution || cats[1] != core.CategoryStructuredQuery {
		t.Errorf("expected first-seen order, got %v", cats)
	}
}
