// Package httpapi is the thin HTTP/SSE transport adapter the spec scopes
// out of the core (spec.md §1): it frames events for the wire, decodes
// requests into the core's Publish/Connect calls, and carries the ambient
// concerns (request id, panic recovery, timeouts, auth) the core never
// sees.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/mdarapour/sse-realtime-demo/internal/httpapi/auth"
	"github.com/mdarapour/sse-realtime-demo/internal/service"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

const (
	defaultRequestTimeout = 30 * time.Second
	// connect is a long-lived stream; it gets no server-side timeout of
	// its own — the client's disconnect (or server shutdown) is what ends
	// it.
)

// Server wires the core Service to net/http. It has no state of its own
// beyond the Service reference and an optional auth gate.
type Server struct {
	service *service.Service
	authN   *auth.Authenticator
	logger  *slog.Logger
	mux     *http.ServeMux

	// now is overridable for deterministic tests.
	now func() time.Time
}

// New builds a Server. authN may be nil to run without an API-key check
// (e.g. local development).
func New(svc *service.Service, authN *auth.Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service: svc,
		authN:   authN,
		logger:  logger.With("component", "httpapi"),
		mux:     http.NewServeMux(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// connect is a long-lived stream; it gets no per-request timeout —
	// its lifetime is governed by the Dispatcher-linked context instead
	// (client disconnect or server shutdown), not by this middleware.
	s.mux.HandleFunc("GET /api/sse/connect", s.chain(s.handleConnect, 0, true))

	s.mux.HandleFunc("POST /api/sse/broadcast", s.chain(s.handleBroadcast, defaultRequestTimeout, true))
	s.mux.HandleFunc("POST /api/sse/send/{clientId}", s.chain(s.handleSend, defaultRequestTimeout, true))

	s.mux.HandleFunc("POST /api/sse/notification", s.chain(s.handleNotification, defaultRequestTimeout, true))
	s.mux.HandleFunc("POST /api/sse/notification/{clientId}", s.chain(s.handleNotification, defaultRequestTimeout, true))

	s.mux.HandleFunc("POST /api/sse/alert", s.chain(s.handleAlert, defaultRequestTimeout, true))
	s.mux.HandleFunc("POST /api/sse/alert/{clientId}", s.chain(s.handleAlert, defaultRequestTimeout, true))

	s.mux.HandleFunc("POST /api/sse/data-update", s.chain(s.handleDataUpdate, defaultRequestTimeout, true))
	s.mux.HandleFunc("POST /api/sse/data-update/{clientId}", s.chain(s.handleDataUpdate, defaultRequestTimeout, true))

	s.mux.HandleFunc("GET /healthz", s.chain(s.handleHealthz, 5*time.Second, false))
}

// chain composes the standard middleware stack, optionally requiring
// auth, mirroring the teacher's withRequestID(withRecover(withTimeout(...)))
// nesting in internal/api/rest/handler.go.
func (s *Server) chain(next http.HandlerFunc, timeout time.Duration, requireAuth bool) http.HandlerFunc {
	h := next
	if requireAuth && s.authN != nil {
		h = s.authN.Middleware(h)
	}
	if timeout > 0 {
		h = withTimeout(h, timeout)
	}
	h = s.withRecover(h)
	h = withRequestID(h)
	return h
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next(w, r.WithContext(ctx))
	}
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func (s *Server) withRecover(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
					"stack", string(debug.Stack()),
					"requestId", getRequestID(r.Context()),
				)
				writeError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			}
		}()
		next(w, r)
	}
}

// withTimeout applies a context deadline to the request.
func withTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
