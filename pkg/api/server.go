// Package api exposes the engine over HTTP with WebSocket and SSE state streams.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/r3labs/sse/v2"

	"github.com/tcmartin/dagrunner/pkg/config"
	"github.com/tcmartin/dagrunner/pkg/loader"
	"github.com/tcmartin/dagrunner/pkg/logging"
	"github.com/tcmartin/dagrunner/pkg/models"
	"github.com/tcmartin/dagrunner/pkg/runtime"
)

// StateStream is the SSE stream id carrying execution state snapshots
const StateStream = "state"

// Server represents the HTTP API server
type Server struct {
	config *config.Config
	router *mux.Router
	server *http.Server
	engine *runtime.Engine
	loader loader.PipelineLoader
	logger logging.Logger

	websockets  *WebSocketManager
	events      *sse.Server
	unsubscribe func()
}

// NewServer creates a new API server and subscribes it to engine state changes
func NewServer(cfg *config.Config, engine *runtime.Engine, pipelineLoader loader.PipelineLoader, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(StateStream)

	s := &Server{
		config:     cfg,
		router:     mux.NewRouter(),
		engine:     engine,
		loader:     pipelineLoader,
		logger:     logger,
		websockets: NewWebSocketManager(engine, logger),
		events:     events,
	}

	s.unsubscribe = engine.Subscribe(s.publish)
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.LogSystemEvent("server_started", map[string]interface{}{"addr": addr})

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop detaches from the engine, closes the streams and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.unsubscribe()
	s.websockets.Close()
	s.events.Close()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/state", s.handleGetState).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/start", s.handleStart).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/resume", s.handleResume).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/cancel", s.handleCancel).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/pipeline", s.handleGetPipeline).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pipeline", s.handlePutPipeline).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/ws", s.websockets.HandleWebSocket).Methods(http.MethodGet)
	api.HandleFunc("/events", s.events.ServeHTTP).Methods(http.MethodGet)

	s.router.Use(s.requestLogger)
	s.router.Use(cors)
}

// publish fans a state snapshot out to both streams
func (s *Server) publish(state *models.ExecutionState) {
	s.websockets.Broadcast(state)

	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("failed to encode state event", logging.Err(err))
		return
	}
	s.events.Publish(StateStream, &sse.Event{Event: []byte("state"), Data: data})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", logging.F("method", r.Method), logging.F("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
