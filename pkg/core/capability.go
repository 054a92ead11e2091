package core

import (
	"context"
	"time"
)

// Category classifies what kind of backend a capability is.
type Category string

const (
	// CategoryStructuredQuery is a natural-language-to-data-query backend.
	CategoryStructuredQuery Category = "structured-query"

	// CategoryFunctionExecution is a governed function-catalog backend.
	CategoryFunctionExecution Category = "function-execution"

	// CategoryDocumentQA is a document question-answering backend.
	CategoryDocumentQA Category = "document-qa"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryStructuredQuery, CategoryFunctionExecution, CategoryDocumentQA:
		return true
	}
	return false
}

// Descriptor identifies one external backend capability and how to reach it.
// Credentials are referenced by environment variable name, never embedded.
type Descriptor struct {
	ID            string
	Category      Category
	Endpoint      string
	CredentialEnv string
	Timeout       time.Duration
}

// Parameter describes one input parameter of an operation.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Schema is the ordered input schema of an operation. Ordering is stable so
// tool-selection prompts are reproducible.
type Schema struct {
	Parameters []Parameter
}

// Required returns the names of the required parameters, in schema order.
func (s Schema) Required() []string {
	var names []string
	for _, p := range s.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Lookup returns the parameter with the given name.
func (s Schema) Lookup(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// OperationDescriptor describes one callable operation of a capability.
type OperationDescriptor struct {
	Name        string
	Description string
	InputSchema Schema
}

// Citation identifies a source document backing a document-QA answer.
type Citation struct {
	Title  string
	Source string
}

// Result is the normalized outcome of one capability invocation. Exactly one
// of Structured or Text is meaningful: structured-query and function-execution
// backends yield Structured, document-QA backends yield Text plus Citations.
type Result struct {
	Structured any
	Text       string
	Citations  []Citation
}

// Client provides a uniform call surface over one backend capability,
// regardless of that capability's native protocol.
type Client interface {
	// Descriptor returns the static capability descriptor.
	Descriptor() Descriptor

	// Connect establishes whatever session/auth state the backend requires.
	// Fails with CONNECTION_ERROR; does not retry internally.
	Connect(ctx context.Context) error

	// ListOperations enumerates the callable operations. Idempotent and
	// side-effect-free.
	ListOperations(ctx context.Context) ([]OperationDescriptor, error)

	// Invoke calls a named operation with arguments validated against the
	// operation's input schema before sending.
	Invoke(ctx context.Context, operation string, args map[string]any) (*Result, error)

	// HealthCheck performs a lightweight round-trip. Never returns an error;
	// failures are reported as an unhealthy result with a reason.
	HealthCheck(ctx context.Context) HealthResult

	// Close releases the connection/session handle.
	Close() error
}
