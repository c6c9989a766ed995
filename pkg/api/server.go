// Taskpulse HTTP gateway.
// Serves the task CRUD REST endpoints, the import trigger, and the
// WebSocket live-event channel.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"taskpulse/pkg/bus"
	"taskpulse/pkg/config"
	"taskpulse/pkg/importer"
	"taskpulse/pkg/logger"
	"taskpulse/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	config    *config.Config
	store     *store.Store
	bus       *bus.EventBus
	scheduler *importer.Scheduler
	startTime time.Time
	server    *http.Server
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, st *store.Store, evbus *bus.EventBus, sched *importer.Scheduler) *Server {
	return &Server{
		config:    cfg,
		store:     st,
		bus:       evbus,
		scheduler: sched,
		startTime: time.Now(),
	}
}

// Handler returns the fully routed HTTP handler. Exposed so tests can drive
// the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Task CRUD
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks/stats", s.handleTaskStats)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)

	// Background import
	mux.HandleFunc("POST /import/run", s.handleImportRun)
	mux.HandleFunc("GET /import/status", s.handleImportStatus)

	// WebSocket for live task events
	mux.HandleFunc("GET /ws/tasks", s.handleWebSocket)

	return corsMiddleware(mux)
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.ListenAddr(),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	// No WriteTimeout: WebSocket sessions outlive any fixed deadline; the
	// session write path enforces its own per-message deadlines.

	logger.InfoCF("api", "Gateway starting", map[string]interface{}{
		"addr": s.server.Addr,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Health(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"listeners":      s.bus.SubscriberCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
