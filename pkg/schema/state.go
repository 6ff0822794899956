package schema

// RenderToken identifies a single render invocation. Tokens are only ever
// compared for equality; the empty token never matches a live call.
type RenderToken string

// RenderOutcome is the result of one call to the render capability.
// On completion exactly one of SVG and Error is set.
type RenderOutcome struct {
	Token RenderToken `json:"render_token"`
	SVG   string      `json:"svg,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Succeeded reports whether the outcome carries output.
func (o RenderOutcome) Succeeded() bool {
	return o.Error == "" && o.SVG != ""
}

// PipelineState is the observable state of one diagram view.
type PipelineState struct {
	Phase       Phase       `json:"phase"`
	IsLoading   bool        `json:"is_loading"`
	Error       string      `json:"error,omitempty"`
	Output      string      `json:"output"`
	Token       RenderToken `json:"render_token,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
	FixedText   string      `json:"fixed_text,omitempty"`
}

// Clone returns a copy that shares no slices with s.
func (s PipelineState) Clone() PipelineState {
	out := s
	if s.Suggestions != nil {
		out.Suggestions = append([]string(nil), s.Suggestions...)
	}
	return out
}
