// Package console is the line-mode panel for terminals without alt-screen
// support. It prints every panel change as a styled line and reads
// commands with readline.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/eachlabs/modimui/internal/dispatch"
	"github.com/eachlabs/modimui/internal/panel"
	"github.com/eachlabs/modimui/internal/protocol"
	"go.uber.org/zap"
)

var (
	purple = lipgloss.Color("#A855F7")
	green  = lipgloss.Color("#22C55E")
	yellow = lipgloss.Color("#EAB308")
	red    = lipgloss.Color("#EF4444")
	gray   = lipgloss.Color("#6B7280")
	white  = lipgloss.Color("#F9FAFB")

	logoStyle   = lipgloss.NewStyle().Bold(true).Foreground(purple)
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(green)
	downStyle   = lipgloss.NewStyle().Bold(true).Foreground(red)
	buttonStyle = lipgloss.NewStyle().Foreground(yellow).Bold(true)
	textStyle   = lipgloss.NewStyle().Foreground(white)
	mutedStyle  = lipgloss.NewStyle().Foreground(gray)
	errorStyle  = lipgloss.NewStyle().Foreground(red).Bold(true)
)

const clickTimeout = 5 * time.Second

// ErrQuit is returned by Execute when the user asked to leave.
var ErrQuit = errors.New("quit")

// Controller is what the console needs from the dispatcher.
type Controller interface {
	Click(ctx context.Context, ev dispatch.ClickEvent) error
	Reconnect(ctx context.Context) error
}

// Console renders a panel line by line.
type Console struct {
	panel  *panel.Panel
	ctrl   Controller
	logger *zap.Logger

	mu   sync.Mutex // guards out and prev
	out  io.Writer
	prev panel.Snapshot
}

// New creates a console writing to out.
func New(p *panel.Panel, ctrl Controller, out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		panel:  p,
		ctrl:   ctrl,
		logger: logger,
		out:    out,
		prev:   p.Snapshot(),
	}
}

// Run prints the header, then reads commands until /quit, EOF or ctx is
// cancelled.
func (c *Console) Run(ctx context.Context, url string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/buttons"),
			readline.PcItem("/reconnect"),
			readline.PcItem("/help"),
			readline.PcItem("/quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to start readline: %w", err)
	}
	defer rl.Close()

	c.setOutput(rl.Stdout())
	c.printHeader(url)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.watch(ctx)

	// Readline blocks on stdin; closing it unblocks the loop on cancel.
	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			c.println(errorStyle.Render("error: " + err.Error()))
		}
	}
}

// Execute runs one input line. A button number (1-based) or a button id
// clicks that button.
func (c *Console) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	switch line {
	case "/quit", "/exit", "quit", "exit":
		return ErrQuit
	case "/help":
		c.printHelp()
		return nil
	case "/buttons":
		c.printButtons()
		return nil
	case "/reconnect":
		c.println(mutedStyle.Render("reconnecting..."))
		return c.ctrl.Reconnect(ctx)
	}
	if strings.HasPrefix(line, "/") {
		return fmt.Errorf("unknown command %s (try /help)", line)
	}

	btn, ok := c.panel.FindButton(line)
	if !ok {
		if n, err := strconv.Atoi(line); err == nil {
			btn, ok = c.panel.Button(n - 1)
		}
	}
	if !ok {
		return fmt.Errorf("no button %q", line)
	}

	ctx, cancel := context.WithTimeout(ctx, clickTimeout)
	defer cancel()
	if err := c.ctrl.Click(ctx, dispatch.ClickEvent{Target: btn}); err != nil {
		return fmt.Errorf("failed to send %s: %w", btn.ID, err)
	}
	c.logger.Debug("button clicked", zap.String("id", btn.ID))
	c.println(mutedStyle.Render("→ sent " + btn.ID))
	return nil
}

func (c *Console) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.panel.Updates():
			c.Refresh()
		}
	}
}

// Refresh prints what changed since the last refresh.
func (c *Console) Refresh() {
	next := c.panel.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range Diff(c.prev, next) {
		fmt.Fprintln(c.out, line)
	}
	c.prev = next
}

// Diff renders the changes between two snapshots, one line per change.
func Diff(prev, next panel.Snapshot) []string {
	var lines []string

	if next.Status != prev.Status {
		switch next.Status {
		case dispatch.StatusConnected:
			lines = append(lines, okStyle.Render("● "+next.Status.String()))
		case dispatch.StatusDisconnected:
			lines = append(lines, downStyle.Render("● "+next.Status.String()))
		}
	}

	for _, t := range next.Texts {
		if old, ok := prev.Text(t.ID); ok && old == t.Value {
			continue
		}
		lines = append(lines, mutedStyle.Render(t.ID+": ")+textStyle.Render(t.Value))
	}

	if next.Image != prev.Image {
		lines = append(lines, mutedStyle.Render(panel.ImageID+": ")+textStyle.Render(next.Image))
	}

	if next.HasAttention && (!prev.HasAttention || next.Attention != prev.Attention) {
		lines = append(lines, mutedStyle.Render("attention: ")+textStyle.Render(fmt.Sprintf("%d%%", next.Attention)))
	}

	return append(lines, diffButtons(prev.Buttons, next.Buttons)...)
}

// diffButtons prints only the appended buttons when next extends prev, and
// the whole set otherwise, so the printed numbers always match the panel.
func diffButtons(prev, next []protocol.Button) []string {
	if slices.Equal(prev, next) {
		return nil
	}
	if len(next) == 0 {
		return []string{mutedStyle.Render("buttons cleared")}
	}

	from := 0
	if len(next) > len(prev) && slices.Equal(prev, next[:len(prev)]) {
		from = len(prev)
	}
	lines := make([]string, 0, len(next)-from)
	for i := from; i < len(next); i++ {
		lines = append(lines, buttonLine(i, next[i].ID, next[i].Label))
	}
	return lines
}

func buttonLine(i int, id, label string) string {
	if label == "" {
		label = id
	}
	return buttonStyle.Render(fmt.Sprintf("[%d] %s", i+1, label)) + " " + mutedStyle.Render("("+id+")")
}

func (c *Console) printHeader(url string) {
	c.println("")
	c.println(logoStyle.Render("  modimui") + "  " + mutedStyle.Render(url))
	c.println(mutedStyle.Render("  type a button number or id to click it • /help for commands"))
	c.println(mutedStyle.Render("  ─────────────────────────────────────"))
}

func (c *Console) printHelp() {
	c.println("")
	c.println("Commands:")
	c.println("  <n> | <id>   - Click button n or the button with that id")
	c.println("  /buttons     - List buttons")
	c.println("  /reconnect   - Re-initialize the connection")
	c.println("  /help        - Show this help")
	c.println("  /quit        - Exit")
}

func (c *Console) printButtons() {
	buttons := c.panel.Buttons()
	if len(buttons) == 0 {
		c.println(mutedStyle.Render("no buttons"))
		return
	}
	for i, b := range buttons {
		c.println(buttonLine(i, b.ID, b.Label))
	}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Console) setOutput(w io.Writer) {
	c.mu.Lock()
	c.out = w
	c.mu.Unlock()
}
