// Package registry maintains the authoritative set of tools available to the
// routing agent for the process lifetime. The registry is populated once at
// startup and read-only afterwards, so unsynchronized concurrent reads are
// safe.
package registry

import (
	"context"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
	"github.com/carebridge/concierge/pkg/llm"
)

// Registry holds the registered tools in registration order.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*Tool),
	}
}

// Register introspects a capability and materializes one tool per operation.
// Tool names are namespaced "<capability-id>__<operation>"; a collision is a
// configuration bug and fails with DUPLICATE_TOOL rather than overwriting.
func (r *Registry) Register(ctx context.Context, c core.Client) ([]*Tool, error) {
	desc := c.Descriptor()
	ops, err := c.ListOperations(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeConnection, "listing capability operations", err).
			WithContext("capability_id", desc.ID)
	}

	registered := make([]*Tool, 0, len(ops))
	for _, op := range ops {
		name := desc.ID + "__" + op.Name
		if _, exists := r.byName[name]; exists {
			return nil, errors.New(errors.CodeDuplicateTool, "tool name already registered", nil).
				WithContext("tool", name).
				WithContext("capability_id", desc.ID)
		}
		tool := &Tool{
			Name:         name,
			Description:  op.Description,
			InputSchema:  op.InputSchema,
			CapabilityID: desc.ID,
			Category:     desc.Category,
			Operation:    op.Name,
			client:       c,
		}
		r.tools = append(r.tools, tool)
		r.byName[name] = tool
		registered = append(registered, tool)
	}
	return registered, nil
}

// All returns the current tool set in registration order. The returned slice
// is a copy; successive calls return identical sequences.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (*Tool, error) {
	tool, ok := r.byName[name]
	if !ok {
		return nil, errors.New(errors.CodeToolNotFound, "tool not registered", nil).
			WithContext("tool", name)
	}
	return tool, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Definitions returns LLM function definitions for every tool, in
// registration order, so selection prompts are reproducible.
func (r *Registry) Definitions() []llm.Tool {
	defs := make([]llm.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	return defs
}

// Categories returns the distinct capability categories present in the
// registry, in first-seen order.
func (r *Registry) Categories() []core.Category {
	var out []core.Category
	seen := make(map[core.Category]bool)
	for _, tool := range r.tools {
		if !seen[tool.Category] {
			seen[tool.Category] = true
			out = append(out, tool.Category)
		}
	}
	return out
}
