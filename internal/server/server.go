// Package server implements a mock MODIM websocket server.
//
// It accepts panel connections on the MODIM endpoint, broadcasts display
// frames to every connected panel and reports the button ids panels send
// back as clicks.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/eachlabs/modimui/internal/channel"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	clickBuffer     = 64
)

// Config holds server settings.
type Config struct {
	Listen string
	Path   string
}

// Click is a button id sent by a panel.
type Click struct {
	ClientID string
	ID       string
	At       time.Time
}

type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) write(msgType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(msgType, data)
}

// Server is a mock MODIM server.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closing bool
	joined  chan struct{} // closed and replaced whenever a client connects

	clicks chan Click
	wg     sync.WaitGroup
}

// New creates a server. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		cfg.Path = channel.DefaultPath
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		clients: make(map[*client]struct{}),
		joined:  make(chan struct{}),
		clicks:  make(chan Click, clickBuffer),
	}
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWS)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("mock MODIM server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.cfg.Path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.isClosing() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &client{id: uuid.New().String(), conn: conn}

	// Add happens under the same lock Close takes to set closing, so Close
	// never waits on a handler it did not see.
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = c.write(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		conn.Close()
		return
	}
	s.wg.Add(1)
	s.clients[c] = struct{}{}
	close(s.joined)
	s.joined = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("panel connected", zap.String("client", c.id), zap.String("remote", r.RemoteAddr))

	defer s.wg.Done()
	defer s.remove(c)

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		click := Click{ClientID: c.id, ID: string(data), At: time.Now()}
		s.logger.Info("button clicked", zap.String("client", c.id), zap.String("id", click.ID))

		select {
		case s.clicks <- click:
		default:
			s.logger.Warn("click dropped, nobody is reading", zap.String("id", click.ID))
		}
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.conn.Close()
	s.logger.Info("panel disconnected", zap.String("client", c.id))
}

// Broadcast sends frame to every connected panel and returns how many
// received it.
func (s *Server) Broadcast(frame string) int {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if err := c.write(websocket.TextMessage, []byte(frame)); err != nil {
			s.logger.Warn("broadcast failed", zap.String("client", c.id), zap.Error(err))
			continue
		}
		sent++
	}
	s.logger.Debug("broadcast", zap.String("frame", frame), zap.Int("clients", sent))
	return sent
}

// Clicks returns button ids received from panels.
func (s *Server) Clicks() <-chan Click {
	return s.clicks
}

// Clients returns the number of connected panels.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// WaitForClient blocks until at least one panel is connected.
func (s *Server) WaitForClient(ctx context.Context) error {
	for {
		s.mu.RLock()
		n := len(s.clients)
		joined := s.joined
		s.mu.RUnlock()

		if n > 0 {
			return nil
		}
		select {
		case <-joined:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) isClosing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closing
}

// Close sends a going-away close frame to every panel and waits for their
// handlers to exit. Later connection attempts are refused.
func (s *Server) Close() {
	s.mu.Lock()
	s.closing = true
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.write(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		c.conn.Close()
	}
	s.wg.Wait()
}
