package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldError is one leaf validation failure, qualified by the instance path
// that failed (e.g. "/arguments/count").
type FieldError struct {
	Path    string
	Message string
}

// ValidationError collects every leaf failure from a jsonschema.ValidationError
// tree, rather than inventing a parallel message format on top of the
// library's own.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Path, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(verr *jsonschema.ValidationError) *ValidationError {
	out := &ValidationError{}
	collectLeaves(verr, out)
	return out
}

func collectLeaves(verr *jsonschema.ValidationError, out *ValidationError) {
	if len(verr.Causes) == 0 {
		out.Fields = append(out.Fields, FieldError{
			Path:    verr.InstanceLocation,
			Message: verr.Message,
		})
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, out)
	}
}
