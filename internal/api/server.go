// Package api provides the read-only HTTP and WebSocket monitoring surface
// for the core trading loop (SPEC_FULL.md §A, §D.3, §D.4). It never accepts
// an order, cancel, or override request; every write path into the core
// stays on the operator console / gateway boundary, not here.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atlas-desktop/futures-core/internal/orchestrator"
	"github.com/atlas-desktop/futures-core/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Provider is the subset of the orchestrator Loop the monitoring surface
// reads from. Narrowing to an interface keeps this package testable without
// a live Loop, the way the data.Store injection point once did.
type Provider interface {
	GuardianMode() types.GuardianMode
	MarginLevel() types.MarginLevel
	Portfolio() types.PortfolioSnapshot
	RecentRejections() []orchestrator.RejectionRecord
	LastHalt() *orchestrator.HaltCause
}

// Server is the HTTP/WebSocket monitoring server.
type Server struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	config     types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	provider   Provider
	hub        *Hub
	metrics    *Metrics
}

// NewServer creates a new monitoring API server bound to provider.
func NewServer(logger *zap.Logger, config types.ServerConfig, provider Provider) *Server {
	server := &Server{
		logger:   logger.Named("api"),
		config:   config,
		router:   mux.NewRouter(),
		provider: provider,
		hub:      NewHub(logger),
		metrics:  NewMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	server.setupRoutes()
	return server
}

// Hub exposes the WebSocket broadcast hub so the core loop can push
// domain events as they happen (SPEC_FULL.md §D.3).
func (s *Server) Hub() *Hub { return s.hub }

// Metrics exposes the Prometheus collectors the core loop updates on every
// tick (SPEC_FULL.md §D.4).
func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/guardian", s.handleGuardian).Methods("GET")
	s.router.HandleFunc("/api/v1/margin", s.handleMargin).Methods("GET")
	s.router.HandleFunc("/api/v1/portfolio", s.handlePortfolio).Methods("GET")
	s.router.HandleFunc("/api/v1/rejections", s.handleRejections).Methods("GET")
	s.router.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
}

// Run starts the hub's broadcast loop and blocks serving HTTP until Stop is
// called or the listener errors.
func (s *Server) Run() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var handler http.Handler = s.router
	if s.config.EnableCORS {
		handler = cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET"},
			AllowedHeaders: []string{"*"},
		}).Handler(s.router)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	s.mu.Unlock()

	s.logger.Info("starting monitoring API server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the hub's run loop and gracefully shuts the HTTP server down.
// ctx bounds how long in-flight requests get to finish. Upgraded WebSocket
// connections are not closed by it.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()
	if httpServer == nil {
		return nil
	}
	s.hub.Close()
	return httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGuardian(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"mode": s.provider.GuardianMode(),
	}
	if halt := s.provider.LastHalt(); halt != nil {
		resp["last_halt"] = map[string]interface{}{
			"trigger":   halt.Trigger,
			"reason":    halt.Reason,
			"exit_code": halt.ExitCode(),
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleMargin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"level": s.provider.MarginLevel(),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.provider.Portfolio())
}

func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"rejections": s.provider.RecentRejections(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), s.hub, conn)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
