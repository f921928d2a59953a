package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/redbco/redb-sqlgateway/pkg/health"
	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

// HTTPServer serves the MCP protocol over HTTP. JSON-RPC messages are
// POSTed to /mcp; /health reports the gateway's connection health.
type HTTPServer struct {
	handler *Handler
	checker *health.Checker
	logger  *logger.Logger
	router  *mux.Router
	server  *http.Server
}

// NewHTTPServer creates an HTTP transport listening on addr.
func NewHTTPServer(addr string, handler *Handler, checker *health.Checker, log *logger.Logger) *HTTPServer {
	s := &HTTPServer{
		handler: handler,
		checker: checker,
		logger:  log,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	s.setupMiddleware()
	s.server = &http.Server{Addr: addr, Handler: s}
	return s
}

func (s *HTTPServer) setupMiddleware() {
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})
}

func (s *HTTPServer) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/mcp", s.handler).Methods(http.MethodPost)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.StatusHealthy
	var checks []*health.Check
	if s.checker != nil {
		status = s.checker.GetOverallStatus()
		checks = s.checker.GetAllChecks()
	}

	checkDetails := make(map[string]string, len(checks))
	for _, check := range checks {
		checkDetails[check.Name] = string(check.Status)
	}

	response := map[string]interface{}{
		"status":    status,
		"service":   s.handler.serverInfo.Name,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checkDetails,
	}

	w.Header().Set("Content-Type", "application/json")
	if status == health.StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(response)
}

// ServeHTTP implements http.Handler.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start runs the server until Shutdown is called. It blocks.
func (s *HTTPServer) Start() error {
	if s.logger != nil {
		s.logger.Infof("HTTP transport listening on %s", s.server.Addr)
	}
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
