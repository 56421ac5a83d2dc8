// Package tui provides the terminal control panel for modimui.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/eachlabs/modimui/internal/dispatch"
	"github.com/eachlabs/modimui/internal/panel"
	"github.com/eachlabs/modimui/internal/protocol"
)

// Colors
var (
	purple   = lipgloss.Color("#7C3AED")
	green    = lipgloss.Color("#10B981")
	red      = lipgloss.Color("#EF4444")
	gray     = lipgloss.Color("#6B7280")
	darkGray = lipgloss.Color("#374151")
	white    = lipgloss.Color("#F9FAFB")
)

// Styles
var (
	logoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(white).
			Background(purple).
			Padding(0, 2)

	urlStyle = lipgloss.NewStyle().
			Foreground(gray)

	statusOKStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(green)

	statusDownStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(red)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(darkGray).
			Padding(0, 1).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(gray)

	valueStyle = lipgloss.NewStyle().
			Foreground(white)

	buttonStyle = lipgloss.NewStyle().
			Foreground(white).
			Background(darkGray).
			Padding(0, 2).
			MarginRight(1)

	buttonSelectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(white).
				Background(lipgloss.Color("#E11D48")).
				Padding(0, 2).
				MarginRight(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(red)
)

const clickTimeout = 5 * time.Second

// Controller is what the panel needs from the dispatcher.
type Controller interface {
	Click(ctx context.Context, ev dispatch.ClickEvent) error
	Reconnect(ctx context.Context) error
}

type keyMap struct {
	Left      key.Binding
	Right     key.Binding
	Click     key.Binding
	Reconnect key.Binding
	Quit      key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.Click, k.Reconnect, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Left: key.NewBinding(
		key.WithKeys("left", "h", "shift+tab"),
		key.WithHelp("←", "prev button"),
	),
	Right: key.NewBinding(
		key.WithKeys("right", "l", "tab"),
		key.WithHelp("→", "next button"),
	),
	Click: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter", "click"),
	),
	Reconnect: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reconnect"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Messages
type panelUpdatedMsg struct{}
type clickedMsg struct {
	id  string
	err error
}
type reconnectedMsg struct{ err error }

// Options configures the panel model.
type Options struct {
	// URL is shown in the header.
	URL string
	// AttentionThreshold colors the attention bar red below this percentage.
	AttentionThreshold int
}

// Model is the bubbletea model for the control panel.
type Model struct {
	panel *panel.Panel
	ctrl  Controller
	opts  Options

	snap     panel.Snapshot
	selected int
	lastSent string
	err      error
	width    int

	spinner  spinner.Model
	progress progress.Model
	help     help.Model

	ctx    context.Context
	cancel context.CancelFunc
}

// NewModel creates a panel model.
func NewModel(p *panel.Panel, ctrl Controller, opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(purple)

	bar := progress.New(progress.WithSolidFill(string(green)), progress.WithWidth(40))

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		panel:    p,
		ctrl:     ctrl,
		opts:     opts,
		snap:     p.Snapshot(),
		spinner:  sp,
		progress: bar,
		help:     help.New(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdate(),
	)
}

func (m Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case <-m.panel.Updates():
			return panelUpdatedMsg{}
		}
	}
}

func (m Model) click(btn protocol.Button) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), clickTimeout)
		defer cancel()
		err := ctrl.Click(ctx, dispatch.ClickEvent{Target: btn})
		return clickedMsg{id: btn.ID, err: err}
	}
}

func (m Model) reconnect() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return reconnectedMsg{err: ctrl.Reconnect(context.Background())}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.cancel()
			return m, tea.Quit

		case key.Matches(msg, keys.Left):
			if n := len(m.snap.Buttons); n > 0 {
				m.selected = (m.selected - 1 + n) % n
			}

		case key.Matches(msg, keys.Right):
			if n := len(m.snap.Buttons); n > 0 {
				m.selected = (m.selected + 1) % n
			}

		case key.Matches(msg, keys.Click):
			if m.selected < len(m.snap.Buttons) {
				return m, m.click(m.snap.Buttons[m.selected])
			}

		case key.Matches(msg, keys.Reconnect):
			m.err = nil
			return m, m.reconnect()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		if w := msg.Width - 8; w > 10 {
			m.progress.Width = w
		}
		return m, nil

	case panelUpdatedMsg:
		m.snap = m.panel.Snapshot()
		if m.selected >= len(m.snap.Buttons) {
			m.selected = 0
		}
		return m, m.waitForUpdate()

	case clickedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.lastSent = msg.id
		}
		return m, nil

	case reconnectedMsg:
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(logoStyle.Render("modimui") + "  " + m.statusView())
	if m.opts.URL != "" {
		b.WriteString("  " + urlStyle.Render(m.opts.URL))
	}
	b.WriteString("\n")

	// Text elements
	var texts strings.Builder
	for i, t := range m.snap.Texts {
		if i > 0 {
			texts.WriteString("\n")
		}
		texts.WriteString(labelStyle.Render(t.ID) + "\n")
		texts.WriteString(valueStyle.Render(t.Value))
	}
	if len(m.snap.Texts) > 0 {
		b.WriteString(m.card(texts.String()) + "\n")
	}

	// Image
	img := m.snap.Image
	if img == "" {
		img = "(none)"
	}
	b.WriteString(m.card(labelStyle.Render(panel.ImageID) + "  " + valueStyle.Render(img)) + "\n")

	// Attention bar
	if m.snap.HasAttention {
		b.WriteString(m.card(m.attentionView()) + "\n")
	}

	// Buttons
	b.WriteString(m.card(m.buttonsView()) + "\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	} else if m.lastSent != "" {
		b.WriteString(labelStyle.Render("sent "+m.lastSent) + "\n")
	}

	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m Model) card(content string) string {
	style := cardStyle
	if m.width > 4 {
		style = style.Width(m.width - 4)
	}
	return style.Render(content)
}

func (m Model) statusView() string {
	switch m.snap.Status {
	case dispatch.StatusConnected:
		return statusOKStyle.Render("● " + m.snap.Status.String())
	case dispatch.StatusDisconnected:
		return statusDownStyle.Render("● " + m.snap.Status.String())
	}
	return m.spinner.View() + " " + urlStyle.Render("connecting...")
}

func (m Model) attentionView() string {
	score := m.snap.Attention
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	bar := m.progress
	label := statusOKStyle
	if score < m.opts.AttentionThreshold {
		bar.FullColor = string(red)
		label = statusDownStyle
	}
	return labelStyle.Render("attention ") + label.Render(fmt.Sprintf("%3d%%", score)) +
		"\n" + bar.ViewAs(float64(score)/100)
}

func (m Model) buttonsView() string {
	if len(m.snap.Buttons) == 0 {
		return labelStyle.Render(panel.ButtonsID + "  (empty)")
	}
	rendered := make([]string, 0, len(m.snap.Buttons))
	for i, btn := range m.snap.Buttons {
		label := btn.Label
		if label == "" {
			label = btn.ID
		}
		style := buttonStyle
		if i == m.selected {
			style = buttonSelectedStyle
		}
		rendered = append(rendered, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// Selected returns the index of the highlighted button.
func (m Model) Selected() int {
	return m.selected
}

// Run starts the panel TUI and blocks until the user quits.
func Run(p *panel.Panel, ctrl Controller, opts Options) error {
	model := NewModel(p, ctrl, opts)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
