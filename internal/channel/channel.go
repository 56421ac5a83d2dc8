// Package channel defines the duplex text channel to the MODIM server.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultPath is the endpoint the MODIM websocket server listens on.
const DefaultPath = "/modimwebsocketserver"

// ErrNotConnected is returned by Send when the channel is not open.
var ErrNotConnected = errors.New("channel not connected")

// Channel is a duplex text channel (websocket, in-memory, etc).
type Channel interface {
	// Start begins connecting. Connection failures are reported as events,
	// not as a returned error.
	Start(ctx context.Context) error

	// Send transmits one frame verbatim.
	Send(ctx context.Context, frame string) error

	// Events returns lifecycle and message events in order. The channel is
	// closed after EventClose.
	Events() <-chan Event

	// Stop closes the channel.
	Stop() error

	// Name returns the channel identifier.
	Name() string
}

// EventKind identifies a channel lifecycle event.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is emitted by a Channel.
type Event struct {
	Kind  EventKind
	Frame *Frame // EventMessage only
	Err   error  // EventError, and EventClose when the close was not clean
}

// Frame is one inbound text message.
type Frame struct {
	ID         string
	Content    string
	ReceivedAt time.Time
}

// URL builds the websocket address of a MODIM server.
func URL(host string, port int, path string) string {
	if path == "" {
		path = DefaultPath
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}
