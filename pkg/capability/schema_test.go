package capability

import (
	"testing"

	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
)

func lookupMemberOp() core.OperationDescriptor {
	return core.OperationDescriptor{
		Name: "lookup_member",
		InputSchema: core.Schema{
			Parameters: []core.Parameter{
				{Name: "input_id", Type: "string", Required: true},
				{Name: "include_history", Type: "boolean"},
			},
		},
	}
}

func TestValidateArgsOK(t *testing.T) {
	err := ValidateArgs(lookupMemberOp(), map[string]any{
		"input_id":        "1001",
		"include_history": true,
	})
	if err != nil {
		t.Fatalf("expected valid args, got %v", err)
	}
}

func TestValidateArgsMissingRequired(t *testing.T) {
	err := ValidateArgs(lookupMemberOp(), map[string]any{})
	if errors.CodeOf(err) != errors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestValidateArgsUnknownField(t *testing.T) {
	err := ValidateArgs(lookupMemberOp(), map[string]any{
		"input_id": "1001",
		"plan":     "gold",
	})
	if errors.CodeOf(err) != errors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for unknown field, got %v", err)
	}
}

func TestValidateArgsWrongType(t *testing.T) {
	err := ValidateArgs(lookupMemberOp(), map[string]any{
		"input_id": 1001,
	})
	if errors.CodeOf(err) != errors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for wrong type, got %v", err)
	}
}

func TestMatchesTypeNumbers(t *testing.T) {
	// JSON decoding yields float64 for every number.
	if !matchesType("integer", float64(3)) {
		t.Errorf("whole float64 should satisfy integer")
	}
	if matchesType("integer", 3.5) {
		t.Errorf("fractional float64 should not satisfy integer")
	}
	if !matchesType("number", 3.5) {
		t.Errorf("float64 should satisfy number")
	}
}
