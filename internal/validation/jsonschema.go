package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/flowplan/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const workflowSchemaURL = "https://flowplan.dev/schemas/workflow.json"

// workflowSchemaJSON is the JSON Schema for editor-produced workflow documents.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowplan.dev/schemas/workflow.json",
  "type": "object",
  "required": ["nodes", "edges", "entryPoint"],
  "properties": {
    "name": { "type": "string" },
    "entryPoint": {
      "type": "string",
      "minLength": 1
    },
    "nodes": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "minLength": 1
        },
        "name": { "type": "string" },
        "config": { "type": "object" },
        "position": {
          "type": "object",
          "properties": {
            "x": { "type": "number" },
            "y": { "type": "number" }
          }
        },
        "onError": { "$ref": "#/$defs/on_error" }
      }
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "source": {
          "type": "string",
          "minLength": 1
        },
        "target": {
          "type": "string",
          "minLength": 1
        },
        "sourceHandle": { "type": ["string", "null"] },
        "targetHandle": { "type": ["string", "null"] }
      }
    },
    "on_error": {
      "type": "object",
      "required": ["strategy"],
      "properties": {
        "strategy": {
          "type": "string",
          "enum": ["fail", "continue", "goto"]
        },
        "targetNodeId": { "type": "string" }
      }
    }
  }
}`

// DocumentValidator checks raw workflow documents against the structural
// workflow schema before they are decoded. It is safe for concurrent use.
type DocumentValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewDocumentValidator compiles the embedded workflow schema.
func NewDocumentValidator() (*DocumentValidator, error) {
	c := newCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource(workflowSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}
	compiled, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &DocumentValidator{workflowSchema: compiled}, nil
}

// ValidateJSON validates a JSON-encoded workflow document.
func (v *DocumentValidator) ValidateJSON(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidDocument, "workflow document is not valid JSON").WithCause(err)
	}
	return v.validate(doc)
}

// ValidateValue validates an already decoded document (for example one read
// from YAML). The value is normalized through JSON first.
func (v *DocumentValidator) ValidateValue(value any) error {
	doc, err := toJSONValue(value)
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidDocument, "workflow document cannot be represented as JSON").WithCause(err)
	}
	return v.validate(doc)
}

func (v *DocumentValidator) validate(doc any) error {
	if err := v.workflowSchema.Validate(doc); err != nil {
		return toBuildError(err)
	}
	return nil
}

// newCompiler creates a Compiler with format assertions enabled.
func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toBuildError converts a jsonschema.ValidationError into a BuildError that
// lists every violation with its instance location.
func toBuildError(err error) *schema.BuildError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
