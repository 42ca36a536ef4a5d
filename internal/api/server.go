package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/fingerprint-bridge/internal/bridges/fingerprint"
	"github.com/nerrad567/fingerprint-bridge/internal/history"
	"github.com/nerrad567/fingerprint-bridge/internal/hub"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/config"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/database"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/fingerprint-bridge/internal/infrastructure/serialport"
	"github.com/nerrad567/fingerprint-bridge/internal/registry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the controller surface the server drives.
// Satisfied by *fingerprint.Controller.
type Bridge interface {
	Connect(s hub.Session)
	Disconnect(s hub.Session)
	HandleCommand(s hub.Session, text string)
	GetMetrics() fingerprint.Metrics
	Users() []registry.UserRecord
}

// LinkStats reports serial link counters. Satisfied by *serialport.Link.
type LinkStats interface {
	Stats() serialport.Stats
}

// Connectivity is implemented by optional backends (MQTT, InfluxDB).
type Connectivity interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger
	Bridge Bridge

	// Optional collaborators; nil disables the matching feature.
	Link      LinkStats
	History   history.Repository
	DB        *database.DB
	MQTT      Connectivity
	Influx    Connectivity
	ListPorts func() ([]string, error)

	Version string
}

// Server is the HTTP and WebSocket server.
//
// It is created with New and started with Start. Close shuts down the
// listener and every open WebSocket session.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	bridge    Bridge
	link      LinkStats
	history   history.Repository
	db        *database.DB
	mqtt      Connectivity
	influx    Connectivity
	listPorts func() ([]string, error)
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener

	sessions   map[*wsSession]struct{}
	sessionsMu sync.Mutex
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	listPorts := deps.ListPorts
	if listPorts == nil {
		listPorts = serialport.ListPorts
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		link:      deps.Link,
		history:   deps.History,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		listPorts: listPorts,
		version:   deps.Version,
		startTime: time.Now(),
		sessions:  make(map[*wsSession]struct{}),
	}, nil
}

// Start binds the listener and serves in the background.
//
// Binding is done synchronously so that a port already in use is reported
// to the caller; this is the one failure that stops the process.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}
	// Hijacked WebSocket connections are not closed by Shutdown.
	s.server.RegisterOnShutdown(s.closeSessions)

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String(), "websocket_path", s.wsPath())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/"
	}
	return s.wsCfg.Path
}

func (s *Server) trackSession(ws *wsSession) {
	s.sessionsMu.Lock()
	s.sessions[ws] = struct{}{}
	s.sessionsMu.Unlock()
}

func (s *Server) untrackSession(ws *wsSession) {
	s.sessionsMu.Lock()
	delete(s.sessions, ws)
	s.sessionsMu.Unlock()
}

// closeSessions closes every open WebSocket; their read pumps then
// disconnect them from the bridge.
func (s *Server) closeSessions() {
	s.sessionsMu.Lock()
	open := make([]*wsSession, 0, len(s.sessions))
	for ws := range s.sessions {
		open = append(open, ws)
	}
	s.sessionsMu.Unlock()

	for _, ws := range open {
		ws.close()
	}
}
