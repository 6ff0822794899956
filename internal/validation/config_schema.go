package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/diagramflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const configSchemaURL = "https://diagramflow.dev/schemas/settings.json"

// configSchemaJSON is the JSON Schema for the settings file.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://diagramflow.dev/schemas/settings.json",
  "type": "object",
  "properties": {
    "listen_addr": { "type": "string", "minLength": 1 },
    "log_level": {
      "type": "string",
      "enum": ["debug", "info", "warn", "warning", "error"]
    },
    "pool_size": { "type": "integer", "minimum": 1, "maximum": 256 },
    "backend": { "type": "string", "enum": ["graphviz", "cli"] },
    "cli": {
      "type": "object",
      "properties": {
        "bin": { "type": "string", "minLength": 1 },
        "args": { "type": "array", "items": { "type": "string" } }
      },
      "additionalProperties": false
    },
    "engine": { "$ref": "#/$defs/engine" },
    "rules": {
      "type": "array",
      "items": { "$ref": "#/$defs/rule" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "color": {
      "type": "string",
      "pattern": "^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$"
    },
    "engine": {
      "type": "object",
      "properties": {
        "theme": {
          "type": "string",
          "enum": ["dark", "base", "default", "forest", "neutral"]
        },
        "font_family": { "type": "string" },
        "font_size": { "type": "number", "exclusiveMinimum": 0 },
        "direction": {
          "type": "string",
          "enum": ["TB", "TD", "BT", "RL", "LR"]
        },
        "curve": { "type": "string" },
        "node_spacing": { "type": "integer", "minimum": 0 },
        "rank_spacing": { "type": "integer", "minimum": 0 },
        "background": { "$ref": "#/$defs/color" },
        "primary_color": { "$ref": "#/$defs/color" },
        "primary_text_color": { "$ref": "#/$defs/color" },
        "primary_border_color": { "$ref": "#/$defs/color" },
        "secondary_color": { "$ref": "#/$defs/color" },
        "secondary_text_color": { "$ref": "#/$defs/color" },
        "line_color": { "$ref": "#/$defs/color" },
        "note_color": { "$ref": "#/$defs/color" }
      },
      "additionalProperties": false
    },
    "rule": {
      "type": "object",
      "required": ["name", "when", "declaration"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "when": { "type": "string", "minLength": 1 },
        "declaration": { "type": "string", "minLength": 1 },
        "rationale": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// ConfigValidator checks decoded settings documents against the settings
// schema. It is safe for concurrent use.
type ConfigValidator struct {
	schema *jsonschema.Schema
}

// NewConfigValidator compiles the settings schema.
func NewConfigValidator() (*ConfigValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal settings schema: %w", err)
	}
	if err := c.AddResource(configSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add settings schema resource: %w", err)
	}
	compiled, err := c.Compile(configSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	return &ConfigValidator{schema: compiled}, nil
}

// Validate checks a settings document, typically a map decoded from YAML.
// A nil document is valid (no settings file).
func (v *ConfigValidator) Validate(settings any) error {
	if settings == nil {
		return nil
	}
	doc, err := toJSONValue(settings)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize settings").WithCause(err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return toPipelineError(err)
	}
	return nil
}

// ValidateConfig compiles the settings schema and validates settings.
func ValidateConfig(settings any) error {
	v, err := NewConfigValidator()
	if err != nil {
		return err
	}
	return v.Validate(settings)
}

// toJSONValue round-trips a Go value through JSON so that numbers become
// json.Number, as the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toPipelineError converts a jsonschema.ValidationError into a
// PipelineError listing every leaf violation.
func toPipelineError(err error) *schema.PipelineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, "invalid settings: "+violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid settings: %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
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
