package diagram

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Flowchart ---

func TestParseFlowchart(t *testing.T) {
	model, err := Parse(`flowchart LR
    A[Start] --> B{Ok?}
    B -->|Yes| C((Done))
    B -- No --> D`)
	require.NoError(t, err)

	assert.Equal(t, KindFlowchart, model.Kind)
	assert.Equal(t, "LR", model.Direction)

	wantNodes := []*Node{
		{ID: "A", Label: "Start", Shape: ShapeRect},
		{ID: "B", Label: "Ok?", Shape: ShapeDiamond},
		{ID: "C", Label: "Done", Shape: ShapeCircle},
		{ID: "D", Label: "D", Shape: ShapeRect},
	}
	if diff := cmp.Diff(wantNodes, model.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}

	wantEdges := []Edge{
		{From: "A", To: "B", Style: EdgeSolid, Directed: true},
		{From: "B", To: "C", Label: "Yes", Style: EdgeSolid, Directed: true},
		{From: "B", To: "D", Label: "No", Style: EdgeSolid, Directed: true},
	}
	if diff := cmp.Diff(wantEdges, model.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlowchartGraphKeywordDefaultsDirection(t *testing.T) {
	model, err := Parse("graph\nA --> B")
	require.NoError(t, err)
	assert.Equal(t, "TD", model.Direction)
	assert.Len(t, model.Edges, 1)
}

func TestParseFlowchartSemicolonsAndGroups(t *testing.T) {
	model, err := Parse("graph TD;A & B --> C;C --> D")
	require.NoError(t, err)

	got := make([][2]string, 0, len(model.Edges))
	for _, e := range model.Edges {
		got = append(got, [2]string{e.From, e.To})
	}
	assert.Equal(t, [][2]string{{"A", "C"}, {"B", "C"}, {"C", "D"}}, got)
}

func TestParseFlowchartLinkStyles(t *testing.T) {
	model, err := Parse("graph LR\nA -.-> B\nB ==> C\nC --- D\nD <--> E")
	require.NoError(t, err)
	require.Len(t, model.Edges, 4)

	assert.Equal(t, EdgeDotted, model.Edges[0].Style)
	assert.True(t, model.Edges[0].Directed)
	assert.Equal(t, EdgeThick, model.Edges[1].Style)
	assert.True(t, model.Edges[1].Directed)
	assert.Equal(t, EdgeSolid, model.Edges[2].Style)
	assert.False(t, model.Edges[2].Directed)
	assert.True(t, model.Edges[3].Bidirectional)
}

func TestParseFlowchartShapes(t *testing.T) {
	model, err := Parse(`flowchart TD
    a([stadium]) --> b[[sub]]
    c[(db)] --> d{{hex}}
    e>flag] --> f[/lean/]
    g(round) --> h((("double")))`)
	require.NoError(t, err)

	shapes := make(map[string]NodeShape)
	for _, n := range model.Nodes {
		shapes[n.ID] = n.Shape
	}
	assert.Equal(t, map[string]NodeShape{
		"a": ShapeStadium,
		"b": ShapeSubroutine,
		"c": ShapeCylinder,
		"d": ShapeHexagon,
		"e": ShapeAsymmetric,
		"f": ShapeParallelogram,
		"g": ShapeRound,
		"h": ShapeDoubleCircle,
	}, shapes)
	assert.Equal(t, "double", model.node("h").Label)
}

func TestParseFlowchartSubgraph(t *testing.T) {
	model, err := Parse(`flowchart TB
    subgraph one [First]
        A --> B
    end
    C --> A`)
	require.NoError(t, err)

	require.Len(t, model.Subgraphs, 1)
	assert.Equal(t, &SubGraph{ID: "one", Label: "First", NodeIDs: []string{"A", "B"}}, model.Subgraphs[0])
	assert.Len(t, model.Nodes, 3)
}

func TestParseFlowchartIgnoresDirectives(t *testing.T) {
	model, err := Parse(`flowchart TD
    %% a comment
    A:::hot --> B
    classDef hot fill:#f00
    class A hot
    style B fill:#0f0`)
	require.NoError(t, err)
	assert.Len(t, model.Nodes, 2)
	assert.Len(t, model.Edges, 1)
}

func TestParseFlowchartErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
		msg  string
	}{
		{"prose", "flowchart TD\ntotally not a diagram !!", 2, "expecting a link"},
		{"direction", "flowchart XY\nA --> B", 1, "unknown direction"},
		{"dangling link", "flowchart TD\nA -->", 2, "expecting a node"},
		{"unclosed shape", "flowchart TD\nA[open --> B", 2, `unclosed "["`},
		{"stray end", "flowchart TD\nA --> B\nend", 3, "unexpected end"},
		{"unclosed subgraph", "flowchart TD\nsubgraph S\nA --> B", 3, "unclosed subgraph"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.line, pe.Line)
			assert.Contains(t, pe.Msg, tt.msg)
			assert.Contains(t, err.Error(), "parse error on line")
		})
	}
}

// --- Sequence ---

func TestParseSequence(t *testing.T) {
	model, err := Parse(`sequenceDiagram
    title Greeting
    participant A as Alice
    actor B
    A->>B: Hello
    B-->>A: Hi
    Note over A,B: chatting
    loop Every minute
        A->B: ping
    end`)
	require.NoError(t, err)

	assert.Equal(t, KindSequence, model.Kind)
	assert.Equal(t, "Greeting", model.Title)

	wantNodes := []*Node{
		{ID: "A", Label: "Alice", Shape: ShapeParticipant},
		{ID: "B", Label: "B", Shape: ShapeActor},
	}
	if diff := cmp.Diff(wantNodes, model.Nodes); diff != "" {
		t.Errorf("participants mismatch (-want +got):\n%s", diff)
	}

	wantEdges := []Edge{
		{From: "A", To: "B", Label: "Hello", Style: EdgeSolid, Directed: true},
		{From: "B", To: "A", Label: "Hi", Style: EdgeDotted, Directed: true},
		{From: "A", To: "B", Label: "ping", Style: EdgeSolid},
	}
	if diff := cmp.Diff(wantEdges, model.Edges); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, model.Notes, 1)
	assert.Equal(t, Note{Placement: "over", Targets: []string{"A", "B"}, Text: "chatting"}, model.Notes[0])
}

func TestParseSequenceImplicitParticipants(t *testing.T) {
	model, err := Parse("sequenceDiagram\nUser->>System: Request\nSystem--xUser: Boom")
	require.NoError(t, err)
	require.Len(t, model.Nodes, 2)
	assert.Equal(t, "User", model.Nodes[0].ID)
	assert.Equal(t, EdgeDotted, model.Edges[1].Style)
}

func TestParseSequenceErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"prose", "sequenceDiagram\nthis is not a message", 2},
		{"unclosed block", "sequenceDiagram\nloop forever\nA->>B: hi", 3},
		{"stray end", "sequenceDiagram\nA->>B: hi\nend", 3},
		{"else outside block", "sequenceDiagram\nelse nope", 2},
		{"junk after header", "sequenceDiagram LR\nA->>B: hi", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

// --- Structural ---

func TestParseStructural(t *testing.T) {
	valid := []string{
		"classDiagram\nclass Animal {\n  +name: string\n}\nAnimal <|-- Dog",
		"stateDiagram-v2\n[*] --> Idle\nIdle --> [*]",
		"erDiagram\nCUSTOMER ||--o{ ORDER : places\nORDER }|..|{ LINE-ITEM : contains",
		"pie title Pets\n\"Dogs\" : 386\n\"Cats\" : 85",
		"mindmap\n  root((mindmap))\n    Origins",
	}
	for _, text := range valid {
		model, err := Parse(text)
		require.NoError(t, err, text)
		assert.NotEmpty(t, model.Body, text)
	}

	model, err := Parse("pie title Pets\n\"Dogs\" : 386")
	require.NoError(t, err)
	assert.Equal(t, KindPie, model.Kind)
	assert.Equal(t, "pie title Pets", model.Header)
}

func TestParseStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"unclosed brace", "classDiagram\nclass Animal {\n  +name: string", 2},
		{"mismatched", "stateDiagram\nstate A {\n]", 3},
		{"unterminated string", "pie\n\"Dogs : 3", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestParseRequiresDeclaration(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
	assert.Equal(t, "parse error: empty diagram", err.Error())

	_, err = Parse("A --> B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing diagram type declaration")
}
