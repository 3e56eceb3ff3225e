// Package server exposes the extraction orchestrator over HTTP and pushes
// lifecycle events to websocket clients.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hirewire/scout/config"
	"github.com/hirewire/scout/errors"
	"github.com/hirewire/scout/extract"
)

// Server ties the orchestrator, run history and event stream to an HTTP
// listener.
type Server struct {
	cfg   atomic.Pointer[config.Config]
	log   *zap.SugaredLogger
	orch  *extract.Orchestrator
	store *extract.Store

	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}

	unsubscribe func()
}

// New creates a server around an orchestrator. store may be nil when run
// history is disabled.
func New(cfg *config.Config, orch *extract.Orchestrator, store *extract.Store, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		log:     log.Named("server"),
		orch:    orch,
		store:   store,
		clients: make(map[*Client]struct{}),
	}
	s.cfg.Store(cfg)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/extract/start", s.handleStart)
	mux.HandleFunc("/api/extract/pause", s.handlePause)
	mux.HandleFunc("/api/extract/resume", s.handleResume)
	mux.HandleFunc("/api/extract/cancel", s.handleCancel)
	mux.HandleFunc("/api/extract/status", s.handleStatus)
	mux.HandleFunc("/api/extract/export", s.handleExport)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return mux
}

// Start begins serving and forwarding events. Blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start() error {
	s.unsubscribe = s.orch.Events().SubscribeAll(s.broadcastEvent)

	s.log.Infow("Server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Shutdown stops the listener and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	s.mu.Lock()
	for client := range s.clients {
		close(client.send)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	return errors.Wrap(s.httpServer.Shutdown(ctx), "server shutdown failed")
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Config returns the active configuration. Callers must treat it as
// read-only; publish changes through UpdateConfig.
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// UpdateConfig swaps in a new configuration. Handlers load the pointer per
// request, so the passed config must not be mutated afterwards. Listener
// settings (port, timeouts) are fixed at construction and ignored here.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	origins := s.cfg.Load().Server.AllowedOrigins
	if origin == "" || len(origins) == 0 {
		return true
	}
	for _, allowed := range origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// broadcastEvent fans one orchestrator event out to every connected client.
// Runs on the orchestration goroutine, so it must never block: full client
// buffers drop the event for that client.
func (s *Server) broadcastEvent(ev extract.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- ev:
		default:
			// Channel full - skip
		}
	}
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("Websocket upgrade failed", "error", err)
		return
	}

	client := &Client{server: s, conn: conn, send: make(chan interface{}, sendBufferSize)}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	s.log.Debugw("Websocket client connected", "remote", r.RemoteAddr)
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"phase":  s.orch.Phase(),
	})
}
