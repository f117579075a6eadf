package handler

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/cors-demo/internal/middleware"
	"github.com/vyrodovalexey/cors-demo/internal/model"
)

// maxFormMemory is the in-memory limit for multipart forms on the echo endpoint.
const maxFormMemory = 10 << 20

// diagnosticMethods are the methods accepted by the CORS test and echo endpoints.
var diagnosticMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

// DiagnosticsHandler serves the endpoints used to inspect CORS behaviour
// from a browser.
type DiagnosticsHandler struct {
	cors   *middleware.CORSPolicy
	logger *zap.Logger
}

// NewDiagnosticsHandler creates a new DiagnosticsHandler instance.
func NewDiagnosticsHandler(cors *middleware.CORSPolicy, logger *zap.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		cors:   cors,
		logger: logger,
	}
}

// RegisterRoutes registers the diagnostic routes with the router.
func (h *DiagnosticsHandler) RegisterRoutes(router *mux.Router) {
	corsTest := make([]endpoint, 0, len(diagnosticMethods))
	echo := make([]endpoint, 0, len(diagnosticMethods))
	for _, m := range diagnosticMethods {
		corsTest = append(corsTest, endpoint{m, h.CORSTest})
		echo = append(echo, endpoint{m, h.EchoHeaders})
	}

	registerResource(router, h.cors, PathCORSTest, corsTest...)
	registerResource(router, h.cors, PathEchoHeaders, echo...)
}

// CORSTest handles /api/cors-test. POST and PUT echo the submitted JSON.
func (h *DiagnosticsHandler) CORSTest(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("cors test request", zap.String("method", r.Method))

	resp := model.CORSTestResponse{
		Message: "CORS " + r.Method + " request successful",
		Method:  r.Method,
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err := readBody(w, r)
		if err != nil {
			h.logger.Warn("invalid request body", zap.Error(err))
			writeError(w, h.logger, http.StatusBadRequest, model.MsgInvalidJSONBody)
			return
		}

		body = bytes.TrimSpace(body)
		switch {
		case len(body) == 0:
			resp.Body = json.RawMessage("null")
		case json.Valid(body):
			resp.Body = json.RawMessage(body)
		default:
			writeError(w, h.logger, http.StatusBadRequest, model.MsgInvalidJSONBody)
			return
		}
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// EchoHeaders handles /api/echo-headers and describes the received request.
func (h *DiagnosticsHandler) EchoHeaders(w http.ResponseWriter, r *http.Request) {
	resp := model.EchoResponse{
		RequestHeaders: flattenHeaders(r),
		Method:         r.Method,
		URL:            requestURL(r),
		Args:           firstValues(r.URL.Query()),
		Form:           map[string]string{},
	}

	if isJSON(r) {
		body, err := readBody(w, r)
		if err != nil {
			h.logger.Debug("failed to read echo body", zap.Error(err))
		}
		body = bytes.TrimSpace(body)
		if len(body) > 0 && json.Valid(body) {
			resp.JSON = json.RawMessage(body)
		}
	} else {
		resp.Form = h.formValues(r)
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// formValues returns body form fields only, never query parameters.
func (h *DiagnosticsHandler) formValues(r *http.Request) map[string]string {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			h.logger.Debug("failed to parse multipart form", zap.Error(err))
			return map[string]string{}
		}
		return firstValues(r.MultipartForm.Value)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			h.logger.Debug("failed to parse form", zap.Error(err))
			return map[string]string{}
		}
		return firstValues(r.PostForm)
	default:
		return map[string]string{}
	}
}

// flattenHeaders joins repeated headers with ", " and restores Host,
// which net/http moves out of the header map.
func flattenHeaders(r *http.Request) map[string]string {
	headers := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		headers[name] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	return headers
}

// requestURL rebuilds the absolute URL the client requested.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func firstValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// isJSON reports whether the request declares a JSON body, including
// structured suffixes such as application/problem+json.
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
