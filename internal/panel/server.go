package panel

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/diagramflow/internal/coordinator"
	"github.com/rendis/diagramflow/internal/logging"
	"github.com/rendis/diagramflow/internal/streaming"
	"github.com/rendis/diagramflow/internal/validation"
)

// maxBodyBytes bounds request bodies; diagram text is small.
const maxBodyBytes = 1 << 20

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Registry  *coordinator.Registry
	Validator *validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// PanelServer serves the diagram preview API.
type PanelServer struct {
	deps  PanelDeps
	pages map[string]*template.Template
}

// NewPanelServer creates a new PanelServer with parsed templates.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	pages := map[string]*template.Template{
		"index.html": template.Must(template.New("index").Parse(indexTemplate)),
	}

	return &PanelServer{
		deps:  deps,
		pages: pages,
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleIndex)

	// Views.
	mux.HandleFunc("GET /api/views", s.handleListViews)
	mux.HandleFunc("GET /api/views/{id}", s.handleGetView)
	mux.HandleFunc("POST /api/views/{id}/render", s.handleRenderView)
	mux.HandleFunc("POST /api/views/{id}/reset", s.handleResetView)
	mux.HandleFunc("DELETE /api/views/{id}", s.handleCloseView)

	// Stateless helpers.
	mux.HandleFunc("POST /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/normalize", s.handleNormalize)
	mux.HandleFunc("POST /api/advise", s.handleAdvise)
	mux.HandleFunc("GET /api/examples", s.handleExamples)
	mux.HandleFunc("GET /api/examples/{kind}", s.handleExample)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/views/{id}", s.handleSSEView)

	return withSurface(mux)
}

// withSurface tags request contexts so log records name the panel.
func withSurface(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.WithSurface(r.Context(), "panel")))
	})
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.Error("template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.deps.Logger.Error("template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

type indexData struct {
	Title string
	Views []string
}

func (s *PanelServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "index.html", indexData{
		Title: "diagramflow",
		Views: s.deps.Registry.Views(),
	})
}

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<h2>Open views</h2>
{{if .Views}}<ul>{{range .Views}}
<li><a href="/api/views/{{.}}">{{.}}</a> (<a href="/sse/views/{{.}}">stream</a>)</li>{{end}}
</ul>{{else}}<p>No open views.</p>{{end}}
<p>POST diagram text to <code>/api/views/{id}/render</code> to open one.</p>
</body>
</html>
`
