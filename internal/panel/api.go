package panel

import (
	"net/http"

	"github.com/rendis/diagramflow/internal/diagram"
	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/pkg/schema"
)

type renderRequest struct {
	Text string `json:"text"`
	Wait bool   `json:"wait"`
}

type viewResponse struct {
	ViewID string               `json:"view_id"`
	Token  schema.RenderToken   `json:"render_token,omitempty"`
	State  schema.PipelineState `json:"state"`
}

// handleListViews lists the open views.
func (s *PanelServer) handleListViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"views": s.deps.Registry.Views()})
}

// handleGetView returns the current state of a view.
func (s *PanelServer) handleGetView(w http.ResponseWriter, r *http.Request) {
	viewID := r.PathValue("id")
	c, err := s.deps.Registry.Get(viewID)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{ViewID: viewID, State: c.State()})
}

// handleRenderView opens the view if needed and starts a render. With
// "wait" set it responds once the view has settled.
func (s *PanelServer) handleRenderView(w http.ResponseWriter, r *http.Request) {
	viewID := r.PathValue("id")
	ctx := logging.WithViewID(r.Context(), viewID)

	var body renderRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.deps.Registry.Open(viewID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	token := c.RenderDiagram(ctx, body.Text)
	if !body.Wait || token == "" {
		writeJSON(w, http.StatusAccepted, viewResponse{ViewID: viewID, Token: token, State: c.State()})
		return
	}

	state, err := c.WaitSettled(ctx)
	if err != nil {
		// Client went away; the render keeps going for other observers.
		logging.LogWith(ctx, s.deps.Logger).Debug("render wait aborted", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{ViewID: viewID, Token: token, State: state})
}

// handleResetView clears a view and invalidates its in-flight render.
func (s *PanelServer) handleResetView(w http.ResponseWriter, r *http.Request) {
	viewID := r.PathValue("id")
	c, err := s.deps.Registry.Get(viewID)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	c.Reset(r.Context())
	writeJSON(w, http.StatusOK, viewResponse{ViewID: viewID, State: c.State()})
}

// handleCloseView closes a view.
func (s *PanelServer) handleCloseView(w http.ResponseWriter, r *http.Request) {
	viewID := r.PathValue("id")
	if err := s.deps.Registry.Close(r.Context(), viewID); err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ok":      "true",
		"view_id": viewID,
	})
}

// handleValidate normalizes and validates text without rendering it.
func (s *PanelServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Validator.Validate(r.Context(), body.Text))
}

// handleNormalize reports how text would be normalized.
func (s *PanelServer) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n := s.deps.Validator.Normalizer()
	class := n.Classify(body.Text)
	writeJSON(w, http.StatusOK, map[string]any{
		"text":        n.Normalize(body.Text),
		"declared":    class.Declared,
		"rule":        class.Rule,
		"declaration": class.Declaration,
		"rationale":   class.Rationale,
	})
}

// handleAdvise maps a raw error message to a hint.
func (s *PanelServer) handleAdvise(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Error string `json:"error"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Error == "" {
		writeError(w, http.StatusBadRequest, "error is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"category": diagram.AdviceCategory(body.Error),
		"advice":   diagram.Advise(body.Error),
	})
}

// handleExamples returns every canonical snippet keyed by kind.
func (s *PanelServer) handleExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, diagram.Examples())
}

// handleExample returns the snippet for one kind.
func (s *PanelServer) handleExample(w http.ResponseWriter, r *http.Request) {
	kind := diagram.DiagramKind(r.PathValue("kind"))
	snippet, ok := diagram.Example(kind)
	if !ok {
		writePipelineError(w, schema.NewErrorf(schema.ErrCodeNotFound, "no example for %q", kind))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"kind": string(kind), "example": snippet})
}
