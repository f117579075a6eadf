package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cors-demo/internal/middleware"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// DemoEndpoint is one row of the index page.
type DemoEndpoint struct {
	Method string
	Path   string
	Body   string
}

// DemoEndpoints lists the requests offered on the index page.
var DemoEndpoints = []DemoEndpoint{
	{Method: http.MethodGet, Path: "/api/items"},
	{Method: http.MethodGet, Path: "/api/items/1"},
	{Method: http.MethodPost, Path: "/api/items", Body: `{"name":"New Item","description":"This is a new item"}`},
	{Method: http.MethodPut, Path: "/api/items/1", Body: `{"name":"Updated Item","description":"This item was updated"}`},
	{Method: http.MethodDelete, Path: "/api/items/1"},
	{Method: http.MethodGet, Path: "/api/cors-test"},
	{Method: http.MethodPost, Path: "/api/cors-test", Body: `{"hello":"world"}`},
	{Method: http.MethodGet, Path: "/api/echo-headers?demo=1"},
}

type indexData struct {
	Title     string
	Version   string
	Endpoints []DemoEndpoint
}

// IndexHandler renders the demo page.
type IndexHandler struct {
	cors   *middleware.CORSPolicy
	logger *zap.Logger
}

// NewIndexHandler creates a new IndexHandler instance.
func NewIndexHandler(cors *middleware.CORSPolicy, logger *zap.Logger) *IndexHandler {
	return &IndexHandler{
		cors:   cors,
		logger: logger,
	}
}

// RegisterRoutes registers the index route with the router.
func (h *IndexHandler) RegisterRoutes(router *mux.Router) {
	registerResource(router, h.cors, PathIndex, endpoint{http.MethodGet, h.Index})
}

// Index handles GET / requests.
func (h *IndexHandler) Index(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexData{
		Title:     "CORS Header Demo",
		Version:   Version,
		Endpoints: DemoEndpoints,
	})
	if err != nil {
		h.logger.Error("failed to render index", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("failed to write index", zap.Error(err))
	}
}
