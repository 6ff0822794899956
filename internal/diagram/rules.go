package diagram

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/diagramflow/pkg/schema"
)

// RuleConfig is an operator-supplied classification rule. When is an
// expr-lang boolean expression evaluated against the variables `text` (the
// trimmed input) and `lines` (text split on newlines).
type RuleConfig struct {
	Name        string `json:"name" yaml:"name"`
	When        string `json:"when" yaml:"when"`
	Declaration string `json:"declaration" yaml:"declaration"`
	Rationale   string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

type ruleEnv struct {
	Text  string   `expr:"text"`
	Lines []string `expr:"lines"`
}

// CompileRule compiles cfg into a Rule. The declaration must start with a
// recognized keyword so that normalizing twice is a no-op.
func CompileRule(cfg RuleConfig) (Rule, error) {
	if strings.TrimSpace(cfg.When) == "" {
		return Rule{}, schema.NewErrorf(schema.ErrCodeValidation, "rule %q: empty expression", cfg.Name)
	}
	if _, ok := DeclarationKeyword(cfg.Declaration); !ok {
		return Rule{}, schema.NewErrorf(schema.ErrCodeValidation,
			"rule %q: declaration %q does not start with a known diagram type", cfg.Name, cfg.Declaration)
	}

	prg, err := expr.Compile(cfg.When, expr.Env(ruleEnv{}), expr.AsBool())
	if err != nil {
		return Rule{}, schema.NewErrorf(schema.ErrCodeValidation,
			"rule %q: compile %q: %s", cfg.Name, cfg.When, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": cfg.When})
	}

	rationale := cfg.Rationale
	if rationale == "" {
		rationale = "Added " + cfg.Declaration + " declaration (rule " + cfg.Name + ")"
	}

	return Rule{
		Name:        cfg.Name,
		Declaration: cfg.Declaration,
		Rationale:   rationale,
		Match:       exprMatcher(prg),
	}, nil
}

// CompileRules compiles every config in order, stopping at the first error.
func CompileRules(cfgs []RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	for _, c := range cfgs {
		r, err := CompileRule(c)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// exprMatcher wraps a compiled program. Runtime errors count as no match.
func exprMatcher(prg *vm.Program) func(string) bool {
	return func(text string) bool {
		out, err := vm.Run(prg, ruleEnv{Text: text, Lines: strings.Split(text, "\n")})
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}
}
