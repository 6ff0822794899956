package diagram

import "strings"

// Advice categories, in the order Advise evaluates them.
const (
	AdviceSyntax  = "syntax"
	AdviceParse   = "parse"
	AdviceRender  = "render"
	AdviceGeneric = "generic"
)

type adviceEntry struct {
	category string
	keyword  string
	message  string
}

// adviceTable is matched top to bottom against the lower-cased error text.
var adviceTable = []adviceEntry{
	{
		category: AdviceSyntax,
		keyword:  "syntax",
		message:  "Check your diagram syntax. Make sure to start with a diagram type (e.g., flowchart TD, sequenceDiagram)",
	},
	{
		category: AdviceParse,
		keyword:  "parse",
		message:  "Unable to parse the diagram. Verify all nodes and connections are properly formatted.",
	},
	{
		category: AdviceRender,
		keyword:  "render",
		message:  "Failed to render the diagram. This might be due to invalid syntax or unsupported features.",
	},
}

const genericAdvice = "An unexpected error occurred while rendering the diagram."

// AdviceCategory returns the category a raw error falls into.
func AdviceCategory(rawError string) string {
	lower := strings.ToLower(rawError)
	for _, e := range adviceTable {
		if strings.Contains(lower, e.keyword) {
			return e.category
		}
	}
	return AdviceGeneric
}

// Advise maps a raw validation or render error to a human-readable hint.
func Advise(rawError string) string {
	cat := AdviceCategory(rawError)
	for _, e := range adviceTable {
		if e.category == cat {
			return e.message
		}
	}
	return genericAdvice
}

var examples = map[DiagramKind]string{
	KindFlowchart: `flowchart TD
    A[Start] --> B{Decision?}
    B -->|Yes| C[Process]
    B -->|No| D[End]
    C --> D`,

	KindSequence: `sequenceDiagram
    participant User
    participant System
    User->>System: Request
    System->>User: Response`,

	KindClass: `classDiagram
    class Animal {
      +name: string
      +age: int
      +makeSound()
    }`,

	KindState: `stateDiagram-v2
    [*] --> Idle
    Idle --> Processing: Start
    Processing --> Idle: Complete`,
}

// ExampleKinds lists the kinds that have a canonical snippet, in display order.
var ExampleKinds = []DiagramKind{KindFlowchart, KindSequence, KindClass, KindState}

// Examples returns a copy of every canonical snippet keyed by kind.
func Examples() map[DiagramKind]string {
	out := make(map[DiagramKind]string, len(examples))
	for k, v := range examples {
		out[k] = v
	}
	return out
}

// Example returns the canonical snippet for kind.
func Example(kind DiagramKind) (string, bool) {
	s, ok := examples[kind]
	return s, ok
}
