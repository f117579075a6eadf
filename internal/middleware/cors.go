package middleware

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/cors-demo/internal/model"
)

// CORS response header names.
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
)

// DefaultAllowHeaders is the Access-Control-Allow-Headers value used when
// no other is configured.
var DefaultAllowHeaders = []string{"Content-Type", "Authorization"}

var corsPreflightTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cors_preflight_requests_total",
		Help: "Number of OPTIONS preflight requests answered",
	},
	[]string{"path"},
)

// CORSConfig holds the settings shared by every route.
type CORSConfig struct {
	AllowHeaders []string
}

// CORSPolicy builds per-route CORS middlewares from one shared config.
type CORSPolicy struct {
	allowHeaders string
}

// NewCORSPolicy creates a CORSPolicy. Empty AllowHeaders falls back to
// DefaultAllowHeaders.
func NewCORSPolicy(cfg CORSConfig) *CORSPolicy {
	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = DefaultAllowHeaders
	}

	return &CORSPolicy{
		allowHeaders: strings.Join(headers, ","),
	}
}

// Route returns a middleware for a route serving methods. OPTIONS is
// always advertised and always answered here without calling next.
func (p *CORSPolicy) Route(methods ...string) Middleware {
	allowMethods := JoinMethods(methods)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.setHeaders(w, r, allowMethods)

			if r.Method == http.MethodOptions {
				corsPreflightTotal.WithLabelValues(normalizeRequestPath(r)).Inc()
				writeJSON(w, http.StatusOK, model.MessageResponse{Message: model.MsgPreflightOK})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Handler wraps h so that its responses carry the CORS headers for
// methods. Unlike Route, OPTIONS requests reach h.
func (p *CORSPolicy) Handler(h http.Handler, methods ...string) http.Handler {
	allowMethods := JoinMethods(methods)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.setHeaders(w, r, allowMethods)
		h.ServeHTTP(w, r)
	})
}

func (p *CORSPolicy) setHeaders(w http.ResponseWriter, r *http.Request, allowMethods string) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}

	h := w.Header()
	h.Set(HeaderAllowOrigin, origin)
	h.Set(HeaderAllowHeaders, p.allowHeaders)
	h.Set(HeaderAllowMethods, allowMethods)
	h.Set(HeaderAllowCredentials, "true")
	h.Add("Vary", "Origin")
}

// JoinMethods joins methods with "," dropping duplicates and moving
// OPTIONS to the end.
func JoinMethods(methods []string) string {
	seen := make(map[string]bool, len(methods)+1)
	out := make([]string, 0, len(methods)+1)

	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" || m == http.MethodOptions || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	out = append(out, http.MethodOptions)

	return strings.Join(out, ",")
}
