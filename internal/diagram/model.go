package diagram

// DiagramKind identifies the grammar a diagram is written in.
type DiagramKind string

const (
	KindFlowchart   DiagramKind = "flowchart"
	KindSequence    DiagramKind = "sequence"
	KindClass       DiagramKind = "class"
	KindState       DiagramKind = "state"
	KindER          DiagramKind = "er"
	KindJourney     DiagramKind = "journey"
	KindGantt       DiagramKind = "gantt"
	KindPie         DiagramKind = "pie"
	KindQuadrant    DiagramKind = "quadrant"
	KindRequirement DiagramKind = "requirement"
	KindGitGraph    DiagramKind = "gitgraph"
	KindC4Context   DiagramKind = "c4context"
	KindMindmap     DiagramKind = "mindmap"
)

// NodeShape is the visual shape a node was declared with.
type NodeShape string

const (
	ShapeRect          NodeShape = "rect"
	ShapeRound         NodeShape = "round"
	ShapeStadium       NodeShape = "stadium"
	ShapeSubroutine    NodeShape = "subroutine"
	ShapeCylinder      NodeShape = "cylinder"
	ShapeCircle        NodeShape = "circle"
	ShapeDoubleCircle  NodeShape = "double_circle"
	ShapeDiamond       NodeShape = "diamond"
	ShapeHexagon       NodeShape = "hexagon"
	ShapeAsymmetric    NodeShape = "asymmetric"
	ShapeParallelogram NodeShape = "parallelogram"
	ShapeParticipant   NodeShape = "participant"
	ShapeActor         NodeShape = "actor"
)

// EdgeStyle is the line style of a connection.
type EdgeStyle string

const (
	EdgeSolid  EdgeStyle = "solid"
	EdgeDotted EdgeStyle = "dotted"
	EdgeThick  EdgeStyle = "thick"
)

// DiagramModel is the intermediate representation produced by Parse and
// consumed by the renderers.
type DiagramModel struct {
	Kind      DiagramKind
	Direction string
	Title     string
	Nodes     []*Node
	Edges     []Edge
	Notes     []Note
	Subgraphs []*SubGraph
	// Header and Body hold the declaration line and statements of grammars
	// that are only checked structurally.
	Header string
	Body   []string
}

// Node is a flowchart vertex or a sequence participant.
type Node struct {
	ID    string
	Label string
	Shape NodeShape
}

// SubGraph groups flowchart nodes under a titled cluster.
type SubGraph struct {
	ID      string
	Label   string
	NodeIDs []string
}

// Edge connects two nodes. For sequence diagrams edges are messages and keep
// their declaration order.
type Edge struct {
	From          string
	To            string
	Label         string
	Style         EdgeStyle
	Directed      bool
	Bidirectional bool
}

// Note is a sequence diagram note attached to one or two participants.
type Note struct {
	Placement string // "left of", "right of", "over"
	Targets   []string
	Text      string
}

// node returns the node with the given ID, or nil.
func (m *DiagramModel) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// ensureNode returns the node with the given ID, creating a plain one when
// it does not exist yet.
func (m *DiagramModel) ensureNode(id string, shape NodeShape) *Node {
	if n := m.node(id); n != nil {
		return n
	}
	n := &Node{ID: id, Label: id, Shape: shape}
	m.Nodes = append(m.Nodes, n)
	return n
}
