package registry

import (
	"context"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/llm"
)

// Tool is a named, schema-described handle to one operation of one
// capability. Tools are created once at startup and immutable thereafter.
type Tool struct {
	// Name is globally unique: "<capability-id>__<operation>".
	Name         string
	Description  string
	InputSchema  core.Schema
	CapabilityID string
	Category     core.Category
	// Operation is the bare operation name on the owning capability.
	Operation string

	client core.Client
}

// Call invokes the underlying capability operation.
func (t *Tool) Call(ctx context.Context, args map[string]any) (*core.Result, error) {
	return t.client.Invoke(ctx, t.Operation, args)
}

// Definition returns the LLM function definition for this tool.
func (t *Tool) Definition() llm.Tool {
	properties := make(map[string]any, len(t.InputSchema.Parameters))
	for _, p := range t.InputSchema.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Type == "" {
			prop["type"] = "string"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
	}
	required := t.InputSchema.Required()
	if required == nil {
		required = []string{}
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}
