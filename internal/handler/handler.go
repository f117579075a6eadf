// Package handler provides HTTP request handlers for the item service.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cors-demo/internal/middleware"
	"github.com/vyrodovalexey/cors-demo/internal/model"
)

// Version is the application version.
const Version = "1.0.0"

// maxBodyBytes limits request bodies read by the handlers.
const maxBodyBytes = 1 << 20

// Route paths.
const (
	PathIndex       = "/"
	PathItems       = "/api/items"
	PathItem        = "/api/items/{id:[0-9]+}"
	PathCORSTest    = "/api/cors-test"
	PathEchoHeaders = "/api/echo-headers"
	PathItemEvents  = "/ws/items"
	PathHealth      = "/health"
	PathReady       = "/ready"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}

// endpoint is one method of a path.
type endpoint struct {
	method  string
	handler http.HandlerFunc
}

// registerResource registers every endpoint of path behind one CORS
// middleware advertising all of their methods, plus the OPTIONS preflight.
func registerResource(router *mux.Router, cors *middleware.CORSPolicy, path string, endpoints ...endpoint) {
	methods := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		methods = append(methods, e.method)
	}

	wrap := cors.Route(methods...)
	for _, e := range endpoints {
		router.Handle(path, wrap(e.handler)).Methods(e.method)
	}
	// Answered by the CORS middleware, the inner handler never runs.
	router.Handle(path, wrap(http.NotFoundHandler())).Methods(http.MethodOptions)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// RegisterRoutes registers the probe routes with the router.
func (h *HealthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(PathHealth, h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc(PathReady, h.ReadyCheck).Methods(http.MethodGet)
}

// HealthCheck handles GET /health requests.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
	})
}

// ReadyCheck handles GET /ready requests.
func (h *HealthHandler) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, ReadyResponse{Status: "ready"})
}

// NotFound returns the router's handler for unknown paths.
func NotFound(logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, logger, http.StatusNotFound, model.MsgNotFound)
	})
}

// MethodNotAllowed returns the router's handler for known paths hit with
// an unregistered method.
func MethodNotAllowed(logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, logger, http.StatusMethodNotAllowed, model.MsgMethodNotAllow)
	})
}

// readBody reads the whole request body up to maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("request body exceeds %d bytes: %w", maxErr.Limit, err)
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return data, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an {"error": message} response.
func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	writeJSON(w, logger, status, model.ErrorResponse{Error: message})
}
