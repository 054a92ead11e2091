package capability

import (
	"github.com/carebridge/concierge/pkg/core"
	"github.com/carebridge/concierge/pkg/errors"
)

// ValidateArgs checks args against the operation's declared input schema
// before anything is sent to the backend. Missing required parameters,
// parameters not present in the schema, and type mismatches all fail with
// INVALID_ARGUMENT.
func ValidateArgs(op core.OperationDescriptor, args map[string]any) error {
	for _, name := range op.InputSchema.Required() {
		if _, ok := args[name]; !ok {
			return errors.New(errors.CodeInvalidArgument, "missing required argument", nil).
				WithContext("operation", op.Name).
				WithContext("argument", name)
		}
	}
	for name, value := range args {
		param, ok := op.InputSchema.Lookup(name)
		if !ok {
			return errors.New(errors.CodeInvalidArgument, "argument not in schema", nil).
				WithContext("operation", op.Name).
				WithContext("argument", name)
		}
		if !matchesType(param.Type, value) {
			return errors.New(errors.CodeInvalidArgument, "argument has wrong type", nil).
				WithContext("operation", op.Name).
				WithContext("argument", name).
				WithContext("expected", param.Type)
		}
	}
	return nil
}

// matchesType checks a JSON-decoded value against a schema type name.
// Arguments arrive from JSON, so numbers are float64.
func matchesType(typ string, value any) bool {
	if value == nil {
		return true
	}
	switch typ {
	case "", "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		// Unrecognized semantic types pass through; the backend validates.
		return true
	}
}
