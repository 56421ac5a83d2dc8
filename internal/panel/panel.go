// Package panel holds the in-memory UI tree driven by MODIM frames. A Panel
// is the dispatch.UISink used by the TUI and the console.
//
// A Panel owns a status element, the default image, a button container and
// a set of registered text elements. Text updates addressed to an element
// that was never registered are rejected with dispatch.ErrElementNotFound,
// matching a page on which the element does not exist.
package panel

import (
	"fmt"
	"sync"

	"github.com/eachlabs/modimui/internal/dispatch"
	"github.com/eachlabs/modimui/internal/protocol"
)

// Well-known element ids.
const (
	StatusID  = "status"
	ImageID   = "image_default"
	ButtonsID = "buttons"
)

// DefaultTextID is the text element every MODIM demo writes to.
var DefaultTextID = protocol.TextID("default")

var _ dispatch.UISink = (*Panel)(nil)

// Text is a text element and its current content.
type Text struct {
	ID    string
	Value string
}

// Snapshot is a point-in-time copy of the panel.
type Snapshot struct {
	Status       dispatch.Status
	Texts        []Text
	Image        string
	Buttons      []protocol.Button
	Attention    int
	HasAttention bool
}

// Text returns the content of element id and whether it exists.
func (s Snapshot) Text(id string) (string, bool) {
	for _, t := range s.Texts {
		if t.ID == id {
			return t.Value, true
		}
	}
	return "", false
}

// Panel is safe for concurrent use.
type Panel struct {
	mu        sync.RWMutex
	status    dispatch.Status
	order     []string
	texts     map[string]string
	image     string
	buttons   []protocol.Button
	attention int
	hasScore  bool

	updates chan struct{}
}

// New creates a panel with the given text elements registered.
func New(elements ...string) *Panel {
	p := &Panel{
		texts:   make(map[string]string),
		updates: make(chan struct{}, 1),
	}
	for _, id := range elements {
		p.register(id)
	}
	return p
}

// Register adds a text element. Registering an existing id is a no-op.
func (p *Panel) Register(id string) {
	p.mu.Lock()
	p.register(id)
	p.mu.Unlock()
	p.notify()
}

func (p *Panel) register(id string) {
	if _, ok := p.texts[id]; ok {
		return
	}
	p.texts[id] = ""
	p.order = append(p.order, id)
}

// SetText replaces the content of a registered text element.
func (p *Panel) SetText(id, value string) error {
	p.mu.Lock()
	if _, ok := p.texts[id]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", dispatch.ErrElementNotFound, id)
	}
	p.texts[id] = value
	p.mu.Unlock()

	p.notify()
	return nil
}

// SetImageSource sets the source of the default image.
func (p *Panel) SetImageSource(src string) error {
	p.mu.Lock()
	p.image = src
	p.mu.Unlock()

	p.notify()
	return nil
}

// AddButton appends b to the button container.
func (p *Panel) AddButton(b protocol.Button) error {
	p.mu.Lock()
	p.buttons = append(p.buttons, b)
	p.mu.Unlock()

	p.notify()
	return nil
}

// ClearButtons empties the button container.
func (p *Panel) ClearButtons() error {
	p.mu.Lock()
	p.buttons = nil
	p.mu.Unlock()

	p.notify()
	return nil
}

// SetStatus updates the connection indicator.
func (p *Panel) SetStatus(s dispatch.Status) error {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()

	p.notify()
	return nil
}

// SetAttention records the latest attention score. It has the signature of
// an attention hook.
func (p *Panel) SetAttention(score int) {
	p.mu.Lock()
	p.attention = score
	p.hasScore = true
	p.mu.Unlock()

	p.notify()
}

// Buttons returns a copy of the current buttons.
func (p *Panel) Buttons() []protocol.Button {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]protocol.Button(nil), p.buttons...)
}

// Button returns the button at index i in arrival order.
func (p *Panel) Button(i int) (protocol.Button, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.buttons) {
		return protocol.Button{}, false
	}
	return p.buttons[i], true
}

// FindButton returns the first button with the given id.
func (p *Panel) FindButton(id string) (protocol.Button, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, b := range p.buttons {
		if b.ID == id {
			return b, true
		}
	}
	return protocol.Button{}, false
}

// Snapshot returns a copy of the panel state.
func (p *Panel) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		Status:       p.status,
		Texts:        make([]Text, 0, len(p.order)),
		Image:        p.image,
		Buttons:      append([]protocol.Button(nil), p.buttons...),
		Attention:    p.attention,
		HasAttention: p.hasScore,
	}
	for _, id := range p.order {
		s.Texts = append(s.Texts, Text{ID: id, Value: p.texts[id]})
	}
	return s
}

// Updates signals that the panel changed. Bursts of changes are coalesced
// into a single notification.
func (p *Panel) Updates() <-chan struct{} {
	return p.updates
}

func (p *Panel) notify() {
	select {
	case p.updates <- struct{}{}:
	default:
	}
}
