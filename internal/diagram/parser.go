package diagram

import (
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports the first offending line of diagram text.
type ParseError struct {
	Line int // 1-based; 0 when the whole text is at fault
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "parse error: " + e.Msg
	}
	return fmt.Sprintf("parse error on line %d: %s", e.Line, e.Msg)
}

func parseErrorf(line int, text, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Text: text, Msg: fmt.Sprintf(format, args...)}
}

// Parse parses declared diagram text into a DiagramModel. Flowcharts and
// sequence diagrams are parsed statement by statement; the remaining grammars
// only get a structural check (balanced brackets and quotes).
func Parse(text string) (*DiagramModel, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, parseErrorf(0, "", "empty diagram")
	}

	lines := strings.Split(text, "\n")
	kind, ok := KindOf(lines[0])
	if !ok {
		return nil, parseErrorf(1, lines[0], "missing diagram type declaration")
	}

	switch kind {
	case KindFlowchart:
		return parseFlowchart(lines)
	case KindSequence:
		return parseSequence(lines)
	default:
		return parseStructural(kind, lines)
	}
}

// --- Flowchart ---

var (
	flowDirections = map[string]bool{"TB": true, "TD": true, "BT": true, "RL": true, "LR": true}

	nodeIDRe      = regexp.MustCompile(`^[\p{L}\p{N}_]+`)
	classSuffixRe = regexp.MustCompile(`^:::[\w-]+`)
	linkRe        = regexp.MustCompile(`^(<?)(-{2,}|={2,}|-\.+-|~{3})([>ox]?)`)
	inlineLinkRe  = regexp.MustCompile(`^(<?)(--|==|-\.)\s+([^|]+?)\s+(-{2,}>|={2,}>|\.-+>|-{3,}|={3,}|\.-+)`)
	subgraphRe    = regexp.MustCompile(`^([\p{L}\p{N}_-]+)\s*\[(.*)\]$`)
)

// flowDirectives are statements accepted and ignored by the flowchart parser.
var flowDirectives = []string{"classDef ", "class ", "style ", "linkStyle ", "click ", "direction "}

type shapeDelim struct {
	open, close string
	shape       NodeShape
}

// shapeDelims is ordered so longer openers are tried first.
var shapeDelims = []shapeDelim{
	{"(((", ")))", ShapeDoubleCircle},
	{"((", "))", ShapeCircle},
	{"([", "])", ShapeStadium},
	{"[[", "]]", ShapeSubroutine},
	{"[(", ")]", ShapeCylinder},
	{"{{", "}}", ShapeHexagon},
	{"[/", "/]", ShapeParallelogram},
	{"[\\", "\\]", ShapeParallelogram},
	{"[", "]", ShapeRect},
	{"(", ")", ShapeRound},
	{"{", "}", ShapeDiamond},
	{">", "]", ShapeAsymmetric},
}

type flowParser struct {
	model    *DiagramModel
	stack    []*SubGraph
	line     int
	lineText string
}

func parseFlowchart(lines []string) (*DiagramModel, error) {
	p := &flowParser{model: &DiagramModel{Kind: KindFlowchart, Direction: "TD"}}

	headerStmts := splitStatements(lines[0])
	fields := strings.Fields(headerStmts[0])
	if fields[0] != "graph" && fields[0] != "flowchart" {
		return nil, parseErrorf(1, lines[0], "unknown diagram type %q", fields[0])
	}
	if len(fields) > 1 {
		dir := strings.ToUpper(fields[1])
		if !flowDirections[dir] {
			return nil, parseErrorf(1, lines[0], "unknown direction %q, expecting one of TB, TD, BT, RL, LR", fields[1])
		}
		p.model.Direction = dir
	}
	if len(fields) > 2 {
		return nil, parseErrorf(1, lines[0], "unexpected %q after direction", strings.Join(fields[2:], " "))
	}

	p.line, p.lineText = 1, lines[0]
	for _, stmt := range headerStmts[1:] {
		if err := p.statement(stmt); err != nil {
			return nil, err
		}
	}

	for i, raw := range lines[1:] {
		p.line, p.lineText = i+2, raw
		for _, stmt := range splitStatements(raw) {
			if err := p.statement(stmt); err != nil {
				return nil, err
			}
		}
	}

	if len(p.stack) > 0 {
		open := p.stack[len(p.stack)-1]
		return nil, parseErrorf(len(lines), lines[len(lines)-1], "unclosed subgraph %q, expecting end", open.Label)
	}
	return p.model, nil
}

func (p *flowParser) statement(stmt string) error {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" || strings.HasPrefix(stmt, "%%") {
		return nil
	}
	for _, d := range flowDirectives {
		if strings.HasPrefix(stmt, d) {
			return nil
		}
	}

	switch {
	case stmt == "end":
		if len(p.stack) == 0 {
			return p.errorf("unexpected end outside of a subgraph")
		}
		p.stack = p.stack[:len(p.stack)-1]
		return nil
	case stmt == "subgraph" || strings.HasPrefix(stmt, "subgraph "):
		p.openSubgraph(strings.TrimSpace(strings.TrimPrefix(stmt, "subgraph")))
		return nil
	}

	return p.chain(stmt)
}

func (p *flowParser) openSubgraph(rest string) {
	sg := &SubGraph{}
	switch m := subgraphRe.FindStringSubmatch(rest); {
	case m != nil:
		sg.ID, sg.Label = m[1], unquote(m[2])
	case rest == "":
		sg.ID = fmt.Sprintf("subgraph_%d", len(p.model.Subgraphs)+1)
		sg.Label = sg.ID
	default:
		sg.Label = unquote(rest)
		sg.ID = strings.Map(func(r rune) rune {
			if r == ' ' || r == '"' {
				return '_'
			}
			return r
		}, sg.Label)
	}
	p.model.Subgraphs = append(p.model.Subgraphs, sg)
	p.stack = append(p.stack, sg)
}

// chain parses `group (link group)*` where group is `node (& node)*`.
func (p *flowParser) chain(stmt string) error {
	pos := 0
	from, err := p.group(stmt, &pos)
	if err != nil {
		return err
	}

	for {
		pos = skipSpaces(stmt, pos)
		if pos >= len(stmt) {
			return nil
		}

		edge, n, ok := matchLink(stmt[pos:])
		if !ok {
			return p.errorf("unexpected %q, expecting a link such as --> or ---", stmt[pos:])
		}
		pos += n

		to, err := p.group(stmt, &pos)
		if err != nil {
			return err
		}
		for _, f := range from {
			for _, t := range to {
				e := edge
				e.From, e.To = f, t
				p.model.Edges = append(p.model.Edges, e)
			}
		}
		from = to
	}
}

func (p *flowParser) group(stmt string, pos *int) ([]string, error) {
	var ids []string
	for {
		id, err := p.nodeRef(stmt, pos)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)

		next := skipSpaces(stmt, *pos)
		if next < len(stmt) && stmt[next] == '&' {
			*pos = next + 1
			continue
		}
		return ids, nil
	}
}

func (p *flowParser) nodeRef(stmt string, pos *int) (string, error) {
	*pos = skipSpaces(stmt, *pos)
	rest := stmt[*pos:]
	id := nodeIDRe.FindString(rest)
	if id == "" {
		if rest == "" {
			return "", p.errorf("unexpected end of statement, expecting a node")
		}
		return "", p.errorf("unexpected %q, expecting a node id", rest)
	}
	*pos += len(id)
	rest = stmt[*pos:]

	node := p.model.ensureNode(id, ShapeRect)
	p.track(id)

	var shapeErr error
	for _, d := range shapeDelims {
		if !strings.HasPrefix(rest, d.open) {
			continue
		}
		label, n, err := delimited(rest, d)
		if err != nil {
			if shapeErr == nil {
				shapeErr = err
			}
			continue
		}
		node.Label, node.Shape = label, d.shape
		*pos += n
		rest = stmt[*pos:]
		shapeErr = nil
		break
	}
	if shapeErr != nil {
		return "", p.errorf("%s in node %s", shapeErr.Error(), id)
	}

	if cls := classSuffixRe.FindString(rest); cls != "" {
		*pos += len(cls)
	}
	return id, nil
}

func (p *flowParser) track(id string) {
	if len(p.stack) == 0 {
		return
	}
	sg := p.stack[len(p.stack)-1]
	for _, existing := range sg.NodeIDs {
		if existing == id {
			return
		}
	}
	sg.NodeIDs = append(sg.NodeIDs, id)
}

func (p *flowParser) errorf(format string, args ...any) error {
	return parseErrorf(p.line, p.lineText, format, args...)
}

// delimited extracts the label enclosed by d from s, which starts with
// d.open. It returns the label and the number of bytes consumed.
func delimited(s string, d shapeDelim) (string, int, error) {
	inner := s[len(d.open):]
	if strings.HasPrefix(inner, `"`) {
		end := strings.Index(inner[1:], `"`)
		if end < 0 {
			return "", 0, fmt.Errorf("unterminated string")
		}
		label := inner[1 : end+1]
		after := inner[end+2:]
		if !strings.HasPrefix(after, d.close) {
			return "", 0, fmt.Errorf("expecting %q after quoted label", d.close)
		}
		return label, len(d.open) + end + 2 + len(d.close), nil
	}

	end := strings.Index(inner, d.close)
	if end < 0 {
		return "", 0, fmt.Errorf("unclosed %q", d.open)
	}
	return strings.TrimSpace(inner[:end]), len(d.open) + end + len(d.close), nil
}

// matchLink recognizes a link at the start of s, including an optional
// |label| or inline `-- label -->` text.
func matchLink(s string) (Edge, int, bool) {
	if m := inlineLinkRe.FindStringSubmatch(s); m != nil {
		e := linkEdge(m[1], m[2]+m[4], m[4][len(m[4])-1:])
		e.Label = strings.TrimSpace(m[3])
		return e, len(m[0]), true
	}

	m := linkRe.FindStringSubmatch(s)
	if m == nil {
		return Edge{}, 0, false
	}
	e := linkEdge(m[1], m[2], m[3])
	n := len(m[0])

	rest := s[n:]
	trimmed := strings.TrimLeft(rest, " \t")
	if strings.HasPrefix(trimmed, "|") {
		end := strings.Index(trimmed[1:], "|")
		if end >= 0 {
			e.Label = strings.TrimSpace(trimmed[1 : end+1])
			n += len(rest) - len(trimmed) + end + 2
		}
	}
	return e, n, true
}

func linkEdge(head, body, tail string) Edge {
	e := Edge{Style: EdgeSolid}
	switch {
	case strings.Contains(body, "="):
		e.Style = EdgeThick
	case strings.Contains(body, "."):
		e.Style = EdgeDotted
	}
	e.Directed = tail == ">" || tail == "o" || tail == "x"
	e.Bidirectional = head == "<"
	return e
}

// splitStatements splits a line on semicolons outside quotes and brackets.
func splitStatements(line string) []string {
	var (
		out   []string
		depth int
		quote bool
		start int
	)
	for i, r := range line {
		switch {
		case r == '"':
			quote = !quote
		case quote:
		case r == '[' || r == '(' || r == '{':
			depth++
		case r == ']' || r == ')' || r == '}':
			if depth > 0 {
				depth--
			}
		case r == ';' && depth == 0:
			out = append(out, line[start:i])
			start = i + 1
		}
	}
	out = append(out, line[start:])
	return out
}

func skipSpaces(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t') {
		pos++
	}
	return pos
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// --- Sequence ---

var (
	participantRe = regexp.MustCompile(`^(participant|actor)\s+(.+?)(?:\s+as\s+(.+))?$`)
	messageRe     = regexp.MustCompile(`^(.+?)\s*(-->>|->>|-->|->|--x|-x|--\)|-\))\s*([+-]?)\s*(.+?)\s*:\s*(.*)$`)
	noteRe        = regexp.MustCompile(`^[Nn]ote\s+(left of|right of|over)\s+([^:]+?)\s*:\s*(.*)$`)
)

var (
	sequenceBlockOpeners = []string{"loop", "alt", "opt", "par", "critical", "break", "rect", "box"}
	sequenceBlockMiddles = []string{"else", "and", "option"}
	sequenceDirectives   = []string{"autonumber", "activate", "deactivate", "create", "destroy", "links", "link"}
)

func parseSequence(lines []string) (*DiagramModel, error) {
	model := &DiagramModel{Kind: KindSequence, Direction: "LR"}
	if strings.TrimSpace(lines[0]) != "sequenceDiagram" {
		return nil, parseErrorf(1, lines[0], "unexpected %q after sequenceDiagram",
			strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "sequenceDiagram")))
	}

	depth := 0
	for i, raw := range lines[1:] {
		lineNo := i + 2
		stmt := strings.TrimSpace(raw)
		if stmt == "" || strings.HasPrefix(stmt, "%%") {
			continue
		}

		if m := participantRe.FindStringSubmatch(stmt); m != nil {
			shape := ShapeParticipant
			if m[1] == "actor" {
				shape = ShapeActor
			}
			n := model.ensureNode(strings.TrimSpace(m[2]), shape)
			n.Shape = shape
			if m[3] != "" {
				n.Label = strings.TrimSpace(m[3])
			}
			continue
		}

		if m := noteRe.FindStringSubmatch(stmt); m != nil {
			targets := strings.Split(m[2], ",")
			for j := range targets {
				targets[j] = strings.TrimSpace(targets[j])
				model.ensureNode(targets[j], ShapeParticipant)
			}
			model.Notes = append(model.Notes, Note{Placement: m[1], Targets: targets, Text: m[3]})
			continue
		}

		switch word := firstWord(stmt); {
		case stmt == "end":
			if depth == 0 {
				return nil, parseErrorf(lineNo, raw, "unexpected end outside of a block")
			}
			depth--
			continue
		case hasWord(sequenceBlockOpeners, word):
			depth++
			continue
		case hasWord(sequenceBlockMiddles, word):
			if depth == 0 {
				return nil, parseErrorf(lineNo, raw, "unexpected %q outside of a block", word)
			}
			continue
		case word == "title":
			model.Title = strings.TrimSpace(strings.TrimPrefix(stmt, "title"))
			continue
		case hasWord(sequenceDirectives, word):
			continue
		}

		m := messageRe.FindStringSubmatch(stmt)
		if m == nil {
			return nil, parseErrorf(lineNo, raw, "unexpected statement %q, expecting a participant, note or message", stmt)
		}
		from, arrow, to := strings.TrimSpace(m[1]), m[2], strings.TrimSpace(m[4])
		model.ensureNode(from, ShapeParticipant)
		model.ensureNode(to, ShapeParticipant)

		// -> and --> are plain lines; every other arrow has a head.
		e := Edge{From: from, To: to, Label: strings.TrimSpace(m[5]), Style: EdgeSolid, Directed: arrow != "->" && arrow != "-->"}
		if strings.HasPrefix(arrow, "--") {
			e.Style = EdgeDotted
		}
		model.Edges = append(model.Edges, e)
	}

	if depth > 0 {
		return nil, parseErrorf(len(lines), lines[len(lines)-1], "unclosed block, expecting end")
	}
	return model, nil
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

// --- Structural ---

var (
	closers      = map[rune]rune{')': '(', ']': '[', '}': '{'}
	erRelationRe = regexp.MustCompile(`[|}o][|o](--|\.\.)[|o][|{o]`)
)

func parseStructural(kind DiagramKind, lines []string) (*DiagramModel, error) {
	model := &DiagramModel{Kind: kind, Header: strings.TrimSpace(lines[0])}

	var (
		stack    []rune
		openLine []int
	)
	for i, raw := range lines[1:] {
		lineNo := i + 2
		stmt := strings.TrimSpace(raw)
		if stmt == "" || strings.HasPrefix(stmt, "%%") {
			continue
		}
		model.Body = append(model.Body, stmt)
		if kind == KindER && erRelationRe.MatchString(stmt) {
			// cardinality markers such as ||--o{ are not brackets
			continue
		}

		quote := false
		for _, r := range stmt {
			switch {
			case r == '"':
				quote = !quote
			case quote:
			case r == '(' || r == '[' || r == '{':
				stack = append(stack, r)
				openLine = append(openLine, lineNo)
			case closers[r] != 0:
				if len(stack) == 0 || stack[len(stack)-1] != closers[r] {
					return nil, parseErrorf(lineNo, raw, "unexpected %q", string(r))
				}
				stack = stack[:len(stack)-1]
				openLine = openLine[:len(openLine)-1]
			}
		}
		if quote {
			return nil, parseErrorf(lineNo, raw, "unterminated string")
		}
	}

	if len(stack) > 0 {
		line := openLine[len(openLine)-1]
		return nil, parseErrorf(line, lines[line-1], "unclosed %q", string(stack[len(stack)-1]))
	}
	return model, nil
}
