package validation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/engine"
	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/pkg/schema"
)

const (
	emptyInputError      = "Empty or missing Mermaid text"
	emptyInputSuggestion = "Provide valid Mermaid diagram syntax"
)

// ValidatorDeps holds the collaborators of a Validator.
type ValidatorDeps struct {
	Parser     engine.Parser
	Normalizer *diagram.Normalizer // nil uses the built-in rule table
	Logger     *slog.Logger
}

// Validator normalizes diagram text and checks it with the parse
// capability. It never returns an error: every failure ends up in the
// ValidationResult.
type Validator struct {
	parser     engine.Parser
	normalizer *diagram.Normalizer
	logger     *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(deps ValidatorDeps) *Validator {
	n := deps.Normalizer
	if n == nil {
		n = diagram.NewNormalizer()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Validator{parser: deps.Parser, normalizer: n, logger: logger}
}

// Normalizer returns the normalizer the validator applies.
func (v *Validator) Normalizer() *diagram.Normalizer {
	return v.normalizer
}

// Validate normalizes text and submits it to the parse capability.
func (v *Validator) Validate(ctx context.Context, text string) schema.ValidationResult {
	if strings.TrimSpace(text) == "" {
		return schema.ValidationResult{
			Error:       emptyInputError,
			Suggestions: []string{emptyInputSuggestion},
		}
	}

	class := v.normalizer.Classify(text)
	fixed := v.normalizer.Normalize(text)
	log := logging.LogWith(ctx, v.logger)

	if err := v.parse(ctx, fixed); err != nil {
		cause := err.Error()
		log.Warn("diagram failed to parse",
			slog.String("rule", class.Rule),
			slog.String("error", cause),
		)

		var suggestions []string
		if !class.Declared && class.Rationale != "" {
			suggestions = append(suggestions, class.Rationale)
		}
		suggestions = append(suggestions, diagram.Advise(cause))

		return schema.ValidationResult{
			Error:       fmt.Sprintf("Invalid Mermaid syntax: %s. Please check your diagram syntax.", cause),
			FixedText:   fixed,
			Suggestions: suggestions,
		}
	}

	result := schema.ValidationResult{IsValid: true, FixedText: fixed}
	if !class.Declared {
		result.AddedDeclaration = class.Declaration
		log.Debug("declaration added", slog.String("rule", class.Rule), slog.String("declaration", class.Declaration))
	}
	return result
}

func (v *Validator) parse(ctx context.Context, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panicked: %v", r)
		}
	}()
	if v.parser == nil {
		return schema.NewError(schema.ErrCodeInit, "no parser configured")
	}
	return v.parser.Parse(ctx, text)
}
