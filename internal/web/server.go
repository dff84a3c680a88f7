// Package web serves the JSON API and the WebSocket event stream.
package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"gree-ir-home/internal/automation"
	"gree-ir-home/internal/climate"
	"gree-ir-home/internal/store"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithHistory enables the command history endpoint backed by st.
func WithHistory(st store.Store) ServerOption {
	return func(s *Server) {
		s.history = st
	}
}

// WithAutomation sets the automation engine and script manager.
func WithAutomation(engine *automation.Engine, mgr *automation.Manager) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
		s.scriptMgr = mgr
	}
}

// WithVersion sets the application version string reported by the API.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP server for the JSON API.
type Server struct {
	units          map[string]*climate.Controller
	order          []string // unit IDs in configuration order
	events         *climate.EventBus
	history        store.Store
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	scriptMgr      *automation.Manager
	autoEngine     *automation.Engine
	version        string
	wg             sync.WaitGroup
	unsubEvents    func()
}

// NewServer creates a new web server.
func NewServer(units []*climate.Controller, events *climate.EventBus, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	s := &Server{
		units:  make(map[string]*climate.Controller, len(units)),
		events: events,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}
	for _, c := range units {
		s.units[c.ID()] = c
		s.order = append(s.order, c.ID())
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	// Broadcast every climate event to WebSocket clients.
	s.unsubEvents = events.OnAll(func(event climate.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	return s, nil
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	// REST API
	s.mux.HandleFunc("GET /api/units", s.handleAPIListUnits)
	s.mux.HandleFunc("GET /api/units/{id}", s.handleAPIGetUnit)
	s.mux.HandleFunc("POST /api/units/{id}/temperature", s.handleAPISetTemperature)
	s.mux.HandleFunc("POST /api/units/{id}/mode", s.handleAPISetMode)
	s.mux.HandleFunc("POST /api/units/{id}/fan", s.handleAPISetFan)
	s.mux.HandleFunc("POST /api/units/{id}/swing", s.handleAPISetSwing)
	s.mux.HandleFunc("POST /api/units/{id}/power", s.handleAPISetPower)
	s.mux.HandleFunc("GET /api/units/{id}/history", s.handleAPIHistory)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// Automations
	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations", s.handleAPICreateAutomation)
	s.mux.HandleFunc("PUT /api/automations/{id}", s.handleAPIUpdateAutomation)
	s.mux.HandleFunc("DELETE /api/automations/{id}", s.handleAPIDeleteAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/toggle", s.handleAPIToggleAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/run", s.handleAPIRunAutomation)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	if s.apiKey != "" {
		// Only require API key for /api/ endpoints. The WebSocket upgrade is
		// not API-key-protected because browsers cannot send custom headers
		// on the upgrade request.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
