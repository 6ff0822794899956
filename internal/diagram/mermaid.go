package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid writes a parsed model back as canonical Mermaid text: one
// statement per line, four-space indentation, explicit node declarations
// before edges. Grammars without a statement parser are echoed from
// Header and Body.
func RenderMermaid(model *DiagramModel) string {
	switch model.Kind {
	case KindFlowchart:
		return renderFlowchartMermaid(model)
	case KindSequence:
		return renderSequenceMermaid(model)
	default:
		var b strings.Builder
		b.WriteString(model.Header)
		b.WriteString("\n")
		for _, stmt := range model.Body {
			fmt.Fprintf(&b, "    %s\n", stmt)
		}
		return b.String()
	}
}

func renderFlowchartMermaid(model *DiagramModel) string {
	var b strings.Builder
	dir := model.Direction
	if dir == "" {
		dir = "TD"
	}
	fmt.Fprintf(&b, "flowchart %s\n", dir)

	inSubgraph := make(map[string]bool)
	for _, sg := range model.Subgraphs {
		for _, id := range sg.NodeIDs {
			inSubgraph[id] = true
		}
	}

	for _, node := range model.Nodes {
		if !inSubgraph[node.ID] {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}

	// A node listed in several subgraphs is declared in the first one.
	declared := make(map[string]bool)
	for _, sg := range model.Subgraphs {
		fmt.Fprintf(&b, "    subgraph %s [\"%s\"]\n", mermaidSafeID(sg.ID), mermaidEscapeLabel(sg.Label))
		for _, id := range sg.NodeIDs {
			if declared[id] {
				continue
			}
			declared[id] = true
			if node := model.node(id); node != nil {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(node))
			}
		}
		b.WriteString("    end\n")
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n",
			mermaidSafeID(edge.From), mermaidLink(edge), label, mermaidSafeID(edge.To))
	}
	return b.String()
}

func renderSequenceMermaid(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("sequenceDiagram\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    title %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		keyword := "participant"
		if node.Shape == ShapeActor {
			keyword = "actor"
		}
		if node.Label != "" && node.Label != node.ID {
			fmt.Fprintf(&b, "    %s %s as %s\n", keyword, node.ID, node.Label)
			continue
		}
		fmt.Fprintf(&b, "    %s %s\n", keyword, node.ID)
	}

	for _, edge := range model.Edges {
		arrow := "->"
		if edge.Directed {
			arrow = "->>"
		}
		if edge.Style == EdgeDotted {
			arrow = "-" + arrow
		}
		fmt.Fprintf(&b, "    %s%s%s: %s\n", edge.From, arrow, edge.To, edge.Label)
	}

	// Notes lose their position relative to messages.
	for _, note := range model.Notes {
		fmt.Fprintf(&b, "    Note %s %s: %s\n", note.Placement, strings.Join(note.Targets, ","), note.Text)
	}
	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the node's shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	if node.Label == "" || node.Label == node.ID {
		if node.Shape == ShapeRect || node.Shape == "" {
			return id
		}
	}
	label := `"` + mermaidEscapeLabel(firstLine(node.Label)) + `"`

	switch node.Shape {
	case ShapeRound:
		return fmt.Sprintf("%s(%s)", id, label)
	case ShapeStadium:
		return fmt.Sprintf("%s([%s])", id, label)
	case ShapeSubroutine:
		return fmt.Sprintf("%s[[%s]]", id, label)
	case ShapeCylinder:
		return fmt.Sprintf("%s[(%s)]", id, label)
	case ShapeCircle:
		return fmt.Sprintf("%s((%s))", id, label)
	case ShapeDoubleCircle:
		return fmt.Sprintf("%s(((%s)))", id, label)
	case ShapeDiamond:
		return fmt.Sprintf("%s{%s}", id, label)
	case ShapeHexagon:
		return fmt.Sprintf("%s{{%s}}", id, label)
	case ShapeAsymmetric:
		return fmt.Sprintf("%s>%s]", id, label)
	case ShapeParallelogram:
		return fmt.Sprintf("%s[/%s/]", id, label)
	default:
		return fmt.Sprintf("%s[%s]", id, label)
	}
}

// mermaidLink returns the connector for an edge.
func mermaidLink(edge Edge) string {
	var body string
	switch edge.Style {
	case EdgeThick:
		body = "=="
	case EdgeDotted:
		body = "-.-"
	default:
		body = "--"
	}

	head := ""
	if edge.Bidirectional {
		head = "<"
	}
	switch {
	case edge.Directed && edge.Style == EdgeDotted:
		return head + "-.->"
	case edge.Directed:
		return head + body + ">"
	case edge.Style == EdgeDotted:
		return head + body
	default:
		return head + body + body[:1]
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces characters that would end a quoted label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// firstLine returns s up to its first newline.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
