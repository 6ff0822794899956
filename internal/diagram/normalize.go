package diagram

import "strings"

// Declarations lists the recognized diagram-type keywords. Text whose trimmed
// form starts with one of them is considered declared.
var Declarations = []string{
	"graph",
	"flowchart",
	"sequenceDiagram",
	"classDiagram",
	"stateDiagram",
	"erDiagram",
	"journey",
	"gantt",
	"pie",
	"quadrantChart",
	"requirement",
	"gitgraph",
	"C4Context",
	"mindmap",
}

var declarationKinds = map[string]DiagramKind{
	"graph":           KindFlowchart,
	"flowchart":       KindFlowchart,
	"sequenceDiagram": KindSequence,
	"classDiagram":    KindClass,
	"stateDiagram":    KindState,
	"erDiagram":       KindER,
	"journey":         KindJourney,
	"gantt":           KindGantt,
	"pie":             KindPie,
	"quadrantChart":   KindQuadrant,
	"requirement":     KindRequirement,
	"gitgraph":        KindGitGraph,
	"C4Context":       KindC4Context,
	"mindmap":         KindMindmap,
}

// Rule maps a text pattern to the declaration injected when it matches.
type Rule struct {
	Name        string
	Declaration string
	Rationale   string
	Match       func(text string) bool
}

// DefaultRules is the built-in classification table, in priority order.
// The first matching rule wins; FallbackRule applies when none match.
var DefaultRules = []Rule{
	{
		Name:        "connector",
		Declaration: "flowchart TD",
		Rationale:   "Added flowchart TD declaration for arrow-based diagram",
		Match:       containsAny("-->", "---", "==>"),
	},
	{
		Name:        "participant",
		Declaration: "sequenceDiagram",
		Rationale:   "Added sequenceDiagram declaration for sequence-based diagram",
		Match:       containsAny("participant", "->"),
	},
	{
		Name:        "class-member",
		Declaration: "classDiagram",
		Rationale:   "Added classDiagram declaration for class-based diagram",
		Match:       containsAny("class", "+", "-"),
	},
}

// FallbackRule is applied when no rule in the table matches.
var FallbackRule = Rule{
	Name:        "fallback",
	Declaration: "flowchart TD",
	Rationale:   "Added flowchart TD declaration as default diagram type",
	Match:       func(string) bool { return true },
}

func containsAny(needles ...string) func(string) bool {
	return func(text string) bool {
		for _, n := range needles {
			if strings.Contains(text, n) {
				return true
			}
		}
		return false
	}
}

// Classification describes how a piece of diagram text was classified.
type Classification struct {
	// Declared is true when the text already starts with a declaration.
	Declared bool
	// Keyword is the leading declaration keyword (declared or injected).
	Keyword string
	// Rule names the rule that matched; empty when Declared.
	Rule        string
	Declaration string
	Rationale   string
}

// Kind returns the diagram kind implied by the classification.
func (c Classification) Kind() DiagramKind {
	return declarationKinds[c.Keyword]
}

// Normalizer classifies diagram text and injects a missing declaration.
// It is safe for concurrent use.
type Normalizer struct {
	rules []Rule
}

// NewNormalizer builds a Normalizer whose table is extra followed by
// DefaultRules, then FallbackRule.
func NewNormalizer(extra ...Rule) *Normalizer {
	rules := make([]Rule, 0, len(extra)+len(DefaultRules)+1)
	rules = append(rules, extra...)
	rules = append(rules, DefaultRules...)
	rules = append(rules, FallbackRule)
	return &Normalizer{rules: rules}
}

// Rules returns the classification table in evaluation order.
func (n *Normalizer) Rules() []Rule {
	return append([]Rule(nil), n.rules...)
}

// Classify reports how text would be normalized. Empty text yields the zero
// Classification.
func (n *Normalizer) Classify(text string) Classification {
	text = strings.TrimSpace(text)
	if text == "" {
		return Classification{}
	}
	if kw, ok := DeclarationKeyword(text); ok {
		return Classification{Declared: true, Keyword: kw}
	}
	for _, r := range n.rules {
		if r.Match != nil && r.Match(text) {
			kw, _ := DeclarationKeyword(r.Declaration)
			return Classification{
				Keyword:     kw,
				Rule:        r.Name,
				Declaration: r.Declaration,
				Rationale:   r.Rationale,
			}
		}
	}
	return Classification{}
}

// Normalize trims text and prepends a declaration line when it has none.
// It is pure and idempotent.
func (n *Normalizer) Normalize(text string) string {
	text = strings.TrimSpace(text)
	c := n.Classify(text)
	if c.Declared || c.Declaration == "" {
		return text
	}
	return c.Declaration + "\n" + text
}

var defaultNormalizer = NewNormalizer()

// Classify classifies text with the built-in rule table.
func Classify(text string) Classification {
	return defaultNormalizer.Classify(text)
}

// Normalize normalizes text with the built-in rule table.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

// DeclarationKeyword returns the recognized keyword text starts with.
func DeclarationKeyword(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, kw := range Declarations {
		if strings.HasPrefix(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// KindOf returns the diagram kind of declared text.
func KindOf(text string) (DiagramKind, bool) {
	kw, ok := DeclarationKeyword(text)
	if !ok {
		return "", false
	}
	return declarationKinds[kw], true
}
