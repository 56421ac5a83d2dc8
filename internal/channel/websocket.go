package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGracePeriod = time.Second
	eventBuffer      = 64
)

// ErrStopped is returned by Start once the channel has been stopped.
var ErrStopped = errors.New("channel stopped")

// WebSocket is a Channel backed by a gorilla websocket client connection.
// Callers must drain Events until it is closed.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger

	events chan Event

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	stopped bool

	writeMu sync.Mutex
}

// WebSocketOption configures a WebSocket.
type WebSocketOption func(*WebSocket)

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(logger *zap.Logger) WebSocketOption {
	return func(w *WebSocket) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDialer replaces the default dialer.
func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(w *WebSocket) {
		if d != nil {
			w.dialer = d
		}
	}
}

// NewWebSocket creates a channel that will connect to url when started.
func NewWebSocket(url string, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: zap.NewNop(),
		events: make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("url", url))
	return w
}

func (w *WebSocket) Name() string {
	return "websocket"
}

// URL returns the address the channel connects to.
func (w *WebSocket) URL() string {
	return w.url
}

func (w *WebSocket) Events() <-chan Event {
	return w.events
}

func (w *WebSocket) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

func (w *WebSocket) run(ctx context.Context) {
	defer close(w.events)

	w.logger.Debug("dialing")
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		w.mu.Lock()
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			w.events <- Event{Kind: EventClose}
			return
		}
		err = fmt.Errorf("failed to connect: %w", err)
		w.events <- Event{Kind: EventError, Err: err}
		w.events <- Event{Kind: EventClose, Err: err}
		return
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		conn.Close()
		w.events <- Event{Kind: EventClose}
		return
	}
	w.conn = conn
	w.mu.Unlock()

	// Cancelling ctx tears the connection down like Stop.
	stopWatch := context.AfterFunc(ctx, func() {
		w.Stop()
	})
	defer stopWatch()

	w.events <- Event{Kind: EventOpen}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.conn = nil
			stopped := w.stopped
			w.mu.Unlock()
			conn.Close()

			if stopped || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.events <- Event{Kind: EventClose}
				return
			}
			w.events <- Event{Kind: EventError, Err: err}
			w.events <- Event{Kind: EventClose, Err: err}
			return
		}

		if typ != websocket.TextMessage {
			w.logger.Debug("ignoring non-text message", zap.Int("type", typ))
			continue
		}

		w.events <- Event{
			Kind: EventMessage,
			Frame: &Frame{
				ID:         uuid.New().String(),
				Content:    string(data),
				ReceivedAt: time.Now(),
			},
		}
	}
}

func (w *WebSocket) Send(ctx context.Context, frame string) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

func (w *WebSocket) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	conn := w.conn
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	w.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		w.logger.Debug("close frame not sent", zap.Error(err))
	}

	return conn.Close()
}
