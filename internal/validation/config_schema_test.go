package validation

import (
	"testing"

	"github.com/rendis/diagramflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeYAML(t *testing.T, src string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	return doc
}

func TestNewConfigValidator(t *testing.T) {
	v, err := NewConfigValidator()
	require.NoError(t, err)
	assert.NotNil(t, v.schema)
}

func TestValidateConfig_Valid(t *testing.T) {
	doc := decodeYAML(t, `
listen_addr: ":4800"
log_level: debug
pool_size: 4
backend: cli
cli:
  bin: mmdc
  args: ["-i", "-", "-o", "-", "-e", "svg", "-t", "{theme}"]
engine:
  theme: forest
  font_size: 12.5
  direction: LR
  node_spacing: 40
  primary_color: "#fbbf24"
  line_color: "#fff"
rules:
  - name: thick
    when: 'text contains "==>"'
    declaration: graph LR
`)
	assert.NoError(t, ValidateConfig(doc))
}

func TestValidateConfig_Nil(t *testing.T) {
	assert.NoError(t, ValidateConfig(nil))
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		loc  string
	}{
		{"unknown backend", "backend: canvas", "/backend"},
		{"pool too small", "pool_size: 0", "/pool_size"},
		{"bad theme", "engine:\n  theme: neon", "/engine/theme"},
		{"bad color", "engine:\n  background: black", "/engine/background"},
		{"unknown key", "listen: ':1'", "/"},
		{"rule without when", "rules:\n  - name: x\n    declaration: graph TD", "/rules/0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(decodeYAML(t, tt.src))
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

			pe := err.(*schema.PipelineError)
			violations, ok := pe.Details["violations"].([]string)
			require.True(t, ok)
			require.NotEmpty(t, violations)
			assert.Contains(t, violations[0], tt.loc)
		})
	}
}

func TestValidateConfig_MultipleViolations(t *testing.T) {
	err := ValidateConfig(decodeYAML(t, "backend: canvas\npool_size: -1"))
	require.Error(t, err)

	pe := err.(*schema.PipelineError)
	assert.Equal(t, "invalid settings: 2 errors", pe.Message)
	assert.Len(t, pe.Details["violations"], 2)
}
