// Package dispatch connects a MODIM channel to a UI.
//
// The Dispatcher owns the single channel to the server. Inbound frames are
// decoded with the protocol package and applied to a UISink; button clicks
// are sent back as raw frames containing the button id.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eachlabs/modimui/internal/channel"
	"github.com/eachlabs/modimui/internal/protocol"
	"go.uber.org/zap"
)

var (
	// ErrNotInitialized is returned by Reconnect before the first Initialize.
	ErrNotInitialized = errors.New("dispatcher not initialized")
	// ErrElementNotFound is returned by a UISink when a text element does
	// not exist. The dispatcher ignores it.
	ErrElementNotFound = errors.New("element not found")
)

// Status is the connection indicator shown in the status element.
type Status int

const (
	StatusUnknown Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "OK"
	case StatusDisconnected:
		return "NOT CONNECTED"
	}
	return "-"
}

// UISink receives the UI mutations decoded from frames.
type UISink interface {
	SetText(id, value string) error
	SetImageSource(src string) error
	AddButton(b protocol.Button) error
	ClearButtons() error
	SetStatus(s Status) error
}

// AttentionHook receives attention score updates.
type AttentionHook func(score int)

// ChannelFactory creates the channel for a server address.
type ChannelFactory func(url string) channel.Channel

// ClickEvent is a user interaction with a created button.
type ClickEvent struct {
	Target protocol.Button
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAttentionHook registers the attention score hook.
func WithAttentionHook(hook AttentionHook) Option {
	return func(d *Dispatcher) {
		d.attention = hook
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithChannelFactory replaces the websocket channel factory.
func WithChannelFactory(f ChannelFactory) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.factory = f
		}
	}
}

// WithPath overrides the server endpoint path.
func WithPath(path string) Option {
	return func(d *Dispatcher) {
		d.path = path
	}
}

// Dispatcher decodes frames from its channel and applies them to a UISink.
type Dispatcher struct {
	sink      UISink
	attention AttentionHook
	factory   ChannelFactory
	path      string
	logger    *zap.Logger

	mu   sync.Mutex
	ch   channel.Channel
	gen  uint64
	host string
	port int

	wg sync.WaitGroup
}

// New creates a Dispatcher writing to sink.
func New(sink UISink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		path:   channel.DefaultPath,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.factory == nil {
		logger := d.logger
		d.factory = func(url string) channel.Channel {
			return channel.NewWebSocket(url, channel.WithLogger(logger))
		}
	}
	return d
}

// Initialize connects to ws://host:port/modimwebsocketserver, replacing any
// previous channel. Connection failures are reported through the error
// handler, not returned.
func (d *Dispatcher) Initialize(ctx context.Context, host string, port int) error {
	url := channel.URL(host, port, d.path)
	ch := d.factory(url)

	d.mu.Lock()
	prev := d.ch
	d.gen++
	gen := d.gen
	d.ch = ch
	d.host, d.port = host, port
	d.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			d.logger.Debug("failed to stop previous channel", zap.Error(err))
		}
	}

	d.logger.Info("connecting", zap.String("url", url))
	if err := ch.Start(ctx); err != nil {
		d.mu.Lock()
		if d.gen == gen {
			d.ch = nil
		}
		d.mu.Unlock()
		return fmt.Errorf("failed to start channel: %w", err)
	}

	d.wg.Add(1)
	go d.pump(ch, gen)
	return nil
}

// Reconnect initializes a new channel to the last address.
func (d *Dispatcher) Reconnect(ctx context.Context) error {
	d.mu.Lock()
	host, port := d.host, d.port
	d.mu.Unlock()

	if host == "" {
		return ErrNotInitialized
	}
	return d.Initialize(ctx, host, port)
}

// Connected reports whether a channel is held.
func (d *Dispatcher) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch != nil
}

// Send transmits data verbatim. Without a channel it does nothing.
func (d *Dispatcher) Send(ctx context.Context, data string) error {
	d.mu.Lock()
	ch := d.ch
	d.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Send(ctx, data)
}

// Click sends the id of the clicked button.
func (d *Dispatcher) Click(ctx context.Context, ev ClickEvent) error {
	d.logger.Debug("websocket button", zap.String("id", ev.Target.ID))
	return d.Send(ctx, ev.Target.ID)
}

// Close stops the channel and waits for its events to drain. The close
// handler still runs for the stopped channel.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	ch := d.ch
	d.ch = nil
	d.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.Stop()
	}
	d.wg.Wait()
	return err
}

func (d *Dispatcher) pump(ch channel.Channel, gen uint64) {
	defer d.wg.Done()

	for ev := range ch.Events() {
		if !d.current(gen) {
			// Superseded by a later Initialize; drain silently.
			continue
		}
		switch ev.Kind {
		case channel.EventOpen:
			d.onOpen()
		case channel.EventClose:
			d.onClose(gen, ev.Err)
		case channel.EventError:
			d.onError(ev.Err)
		case channel.EventMessage:
			d.onMessage(ev.Frame)
		}
	}
}

func (d *Dispatcher) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen == gen
}

func (d *Dispatcher) onOpen() {
	d.logger.Info("connection received")
	if err := d.sink.SetStatus(StatusConnected); err != nil {
		d.logger.Warn("failed to update status", zap.Error(err))
	}
}

func (d *Dispatcher) onClose(gen uint64, cause error) {
	d.mu.Lock()
	if d.gen == gen {
		d.ch = nil
	}
	d.mu.Unlock()

	d.logger.Info("connection closed", zap.NamedError("cause", cause))
	if err := d.sink.SetStatus(StatusDisconnected); err != nil {
		d.logger.Warn("failed to update status", zap.Error(err))
	}
}

func (d *Dispatcher) onError(err error) {
	d.logger.Error("connection error", zap.Error(err))
}

func (d *Dispatcher) onMessage(f *channel.Frame) {
	if f == nil {
		return
	}
	d.logger.Debug("message received", zap.String("frame", f.Content), zap.String("id", f.ID))
	if err := d.HandleFrame(f.Content); err != nil {
		d.logger.Warn("failed to apply frame", zap.String("frame", f.Content), zap.Error(err))
	}
}

// HandleFrame decodes frame and applies it. Unknown and malformed frames
// are ignored, as are text updates for elements that do not exist.
func (d *Dispatcher) HandleFrame(frame string) error {
	cmd, err := protocol.Parse(frame)
	if err != nil {
		return nil
	}
	return d.Apply(cmd)
}

// Apply performs the UI effect of cmd.
func (d *Dispatcher) Apply(cmd protocol.Command) error {
	if cmd == nil {
		return protocol.ErrUnknownCommand
	}
	switch c := cmd.(type) {
	case protocol.SetAttentionScore:
		if d.attention != nil {
			d.attention(c.Score)
		}
		return nil

	case protocol.SetText:
		err := d.sink.SetText(c.ID, c.Value)
		if errors.Is(err, ErrElementNotFound) {
			return nil
		}
		return err

	case protocol.SetImage:
		return d.sink.SetImageSource(c.Source)

	case protocol.AddButton:
		return d.sink.AddButton(c.Button)

	case protocol.ClearButtons:
		return d.sink.ClearButtons()
	}
	return fmt.Errorf("%w: %s", protocol.ErrUnknownCommand, cmd.Kind())
}
