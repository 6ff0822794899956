package diagram

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rendis/diagramflow/pkg/schema"
)

// labelPolicy strips markup from labels before they reach graphviz.
var labelPolicy = bluemonday.StrictPolicy()

var lineBreaks = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n")

// sanitizeLabel turns a Mermaid label into plain text. Graphviz escapes the
// result again when writing SVG, so entities are decoded here.
func sanitizeLabel(s string) string {
	s = lineBreaks.Replace(s)
	return html.UnescapeString(labelPolicy.Sanitize(s))
}

// SupportsSVG reports whether RenderSVG can lay out diagrams of kind.
func SupportsSVG(kind DiagramKind) bool {
	return kind == KindFlowchart || kind == KindSequence
}

// RenderSVG lays out a parsed model with graphviz and returns the SVG
// document, styled from cfg.
func RenderSVG(ctx context.Context, model *DiagramModel, cfg schema.EngineConfig) ([]byte, error) {
	if !SupportsSVG(model.Kind) {
		return nil, schema.NewErrorf(schema.ErrCodeUnsupported,
			"cannot render %s diagrams: no layout available for this diagram type", model.Kind)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	applyGraphStyle(graph, model, cfg)

	switch model.Kind {
	case KindSequence:
		err = buildSequenceGraph(graph, model, cfg)
	default:
		err = buildFlowchartGraph(graph, model, cfg)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render SVG: %w", err)
	}
	return buf.Bytes(), nil
}

func applyGraphStyle(graph *cgraph.Graph, model *DiagramModel, cfg schema.EngineConfig) {
	dir := model.Direction
	if dir == "" {
		dir = cfg.Direction
	}
	graph.SetRankDir(rankDir(dir))
	if model.Title != "" {
		graph.SetLabel(sanitizeLabel(model.Title))
	}
	if cfg.Background != "" {
		graph.SetBackgroundColor(cfg.Background)
	}
	if cfg.SecondaryTextColor != "" {
		graph.SetFontColor(cfg.SecondaryTextColor)
	}
	graph.SetFontName(fontName(cfg))
	if cfg.FontSize > 0 {
		graph.SetFontSize(cfg.FontSize)
	}
	// EngineConfig spacing is in pixels, graphviz wants inches.
	if cfg.NodeSpacing > 0 {
		graph.SetNodeSeparator(float64(cfg.NodeSpacing) / 72)
	}
	if cfg.RankSpacing > 0 {
		graph.SetRankSeparator(float64(cfg.RankSpacing) / 72)
	}
}

func buildFlowchartGraph(graph *cgraph.Graph, model *DiagramModel, cfg schema.EngineConfig) error {
	// Nodes go into the first subgraph that lists them, as clusters.
	owner := make(map[string]*cgraph.Graph)
	for i, sg := range model.Subgraphs {
		cluster, err := graph.CreateSubGraphByName(fmt.Sprintf("cluster_%d", i))
		if err != nil {
			return fmt.Errorf("diagram: create subgraph %s: %w", sg.ID, err)
		}
		cluster.SetLabel(sanitizeLabel(sg.Label))
		cluster.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range sg.NodeIDs {
			if _, ok := owner[id]; !ok {
				owner[id] = cluster
			}
		}
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		parent := graph
		if cluster, ok := owner[node.ID]; ok {
			parent = cluster
		}
		gvNode, err := parent.CreateNodeByName(node.ID)
		if err != nil {
			return fmt.Errorf("diagram: create node %s: %w", node.ID, err)
		}
		gvNode.SetLabel(sanitizeLabel(node.Label))
		applyNodeStyle(gvNode, node.Shape, cfg)
		gvNodes[node.ID] = gvNode
	}

	for i, edge := range model.Edges {
		from, to := gvNodes[edge.From], gvNodes[edge.To]
		if from == nil || to == nil {
			continue
		}
		e, err := graph.CreateEdgeByName(fmt.Sprintf("e%d", i), from, to)
		if err != nil {
			return fmt.Errorf("diagram: create edge %s -> %s: %w", edge.From, edge.To, err)
		}
		applyEdgeStyle(e, edge, cfg)
	}
	return nil
}

// buildSequenceGraph draws participants left to right and numbers messages
// so their order survives the layout.
func buildSequenceGraph(graph *cgraph.Graph, model *DiagramModel, cfg schema.EngineConfig) error {
	graph.SetRankDir(cgraph.LRRank)

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, err := graph.CreateNodeByName(node.ID)
		if err != nil {
			return fmt.Errorf("diagram: create participant %s: %w", node.ID, err)
		}
		gvNode.SetLabel(sanitizeLabel(node.Label))
		applyNodeStyle(gvNode, node.Shape, cfg)
		gvNodes[node.ID] = gvNode
	}

	for i, edge := range model.Edges {
		from, to := gvNodes[edge.From], gvNodes[edge.To]
		if from == nil || to == nil {
			continue
		}
		e, err := graph.CreateEdgeByName(fmt.Sprintf("m%d", i), from, to)
		if err != nil {
			return fmt.Errorf("diagram: create message %s -> %s: %w", edge.From, edge.To, err)
		}
		edge.Label = fmt.Sprintf("%d. %s", i+1, edge.Label)
		applyEdgeStyle(e, edge, cfg)
	}

	for i, note := range model.Notes {
		n, err := graph.CreateNodeByName(fmt.Sprintf("note_%d", i))
		if err != nil {
			return fmt.Errorf("diagram: create note: %w", err)
		}
		n.SetLabel(sanitizeLabel(note.Text))
		n.SetShape(cgraph.NoteShape)
		n.SetStyle(cgraph.FilledNodeStyle)
		n.SetFillColor(cfg.NoteColor)
		n.SetFontColor(cfg.PrimaryTextColor)
		n.SetFontName(fontName(cfg))
		for j, target := range note.Targets {
			if t := gvNodes[target]; t != nil {
				link, err := graph.CreateEdgeByName(fmt.Sprintf("note_%d_%d", i, j), n, t)
				if err != nil {
					return fmt.Errorf("diagram: attach note: %w", err)
				}
				link.SetStyle(cgraph.DottedEdgeStyle)
				link.SetArrowHead(cgraph.NoneArrow)
				link.SetColor(cfg.LineColor)
			}
		}
	}
	return nil
}

// applyNodeStyle sets graphviz attributes from the declared shape and theme.
func applyNodeStyle(gvNode *cgraph.Node, shape NodeShape, cfg schema.EngineConfig) {
	style := cgraph.FilledNodeStyle
	switch shape {
	case ShapeRound, ShapeStadium:
		gvNode.SetShape(cgraph.BoxShape)
		style = "filled,rounded"
	case ShapeSubroutine:
		gvNode.SetShape(cgraph.BoxShape)
		gvNode.SetPeripheries(2)
	case ShapeCylinder:
		gvNode.SetShape(cgraph.CylinderShape)
	case ShapeCircle:
		gvNode.SetShape(cgraph.CircleShape)
	case ShapeDoubleCircle:
		gvNode.SetShape(cgraph.DoubleCircleShape)
	case ShapeDiamond:
		gvNode.SetShape(cgraph.DiamondShape)
	case ShapeHexagon:
		gvNode.SetShape(cgraph.HexagonShape)
	case ShapeAsymmetric:
		gvNode.SetShape(cgraph.CdsShape)
	case ShapeParallelogram:
		gvNode.SetShape(cgraph.ParallelogramShape)
	case ShapeActor:
		gvNode.SetShape(cgraph.EllipseShape)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	gvNode.SetStyle(style)
	gvNode.SetFillColor(cfg.PrimaryColor)
	gvNode.SetColor(cfg.PrimaryBorderColor)
	gvNode.SetFontColor(cfg.PrimaryTextColor)
	gvNode.SetFontName(fontName(cfg))
	if cfg.FontSize > 0 {
		gvNode.SetFontSize(cfg.FontSize)
	}
}

func applyEdgeStyle(e *cgraph.Edge, edge Edge, cfg schema.EngineConfig) {
	if edge.Label != "" {
		e.SetLabel(sanitizeLabel(edge.Label))
	}
	e.SetColor(cfg.LineColor)
	e.SetFontColor(cfg.SecondaryTextColor)
	e.SetFontName(fontName(cfg))

	switch edge.Style {
	case EdgeDotted:
		e.SetStyle(cgraph.DashedEdgeStyle)
	case EdgeThick:
		e.SetStyle(cgraph.BoldEdgeStyle)
	}

	switch {
	case edge.Bidirectional:
		e.SetDir(cgraph.BothDir)
	case !edge.Directed:
		e.SetArrowHead(cgraph.NoneArrow)
	}
}

func rankDir(dir string) cgraph.RankDir {
	switch strings.ToUpper(dir) {
	case "LR":
		return cgraph.LRRank
	case "RL":
		return cgraph.RLRank
	case "BT":
		return cgraph.BTRank
	default:
		return cgraph.TBRank
	}
}

// fontName returns the first family of a CSS font stack.
func fontName(cfg schema.EngineConfig) string {
	name, _, _ := strings.Cut(cfg.FontFamily, ",")
	name = strings.Trim(strings.TrimSpace(name), `"'`)
	if name == "" {
		return "Helvetica"
	}
	return name
}
