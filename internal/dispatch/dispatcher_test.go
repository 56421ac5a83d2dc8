package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eachlabs/modimui/internal/channel"
	"github.com/eachlabs/modimui/internal/dispatch"
	"github.com/eachlabs/modimui/internal/panel"
	"github.com/eachlabs/modimui/internal/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeChannel is an in-memory channel.Channel driven by the test.
type fakeChannel struct {
	url    string
	events chan channel.Event

	mu      sync.Mutex
	sent    []string
	started bool
	stopped bool
	closed  bool
}

func newFakeChannel(url string) *fakeChannel {
	return &fakeChannel{url: url, events: make(chan channel.Event, 16)}
}

func (f *fakeChannel) Name() string                  { return "fake" }
func (f *fakeChannel) Events() <-chan channel.Event { return f.events }

func (f *fakeChannel) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return channel.ErrNotConnected
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeChannel) Stop() error {
	f.mu.Lock()
	already := f.stopped
	f.stopped = true
	f.mu.Unlock()
	if !already {
		f.emit(channel.Event{Kind: channel.EventClose})
		f.finish()
	}
	return nil
}

func (f *fakeChannel) emit(ev channel.Event) {
	f.events <- ev
}

func (f *fakeChannel) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *fakeChannel) message(s string) {
	f.emit(channel.Event{Kind: channel.EventMessage, Frame: &channel.Frame{ID: "id", Content: s}})
}

func (f *fakeChannel) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// factory records every channel it creates.
type factory struct {
	mu       sync.Mutex
	channels []*fakeChannel
}

func (fa *factory) New(url string) channel.Channel {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	ch := newFakeChannel(url)
	fa.channels = append(fa.channels, ch)
	return ch
}

func (fa *factory) last() *fakeChannel {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.channels[len(fa.channels)-1]
}

// recordingSink records every call.
type recordingSink struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingSink) record(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return r.err
}

func (r *recordingSink) SetText(id, value string) error  { return r.record("text %s=%s", id, value) }
func (r *recordingSink) SetImageSource(src string) error { return r.record("image %s", src) }
func (r *recordingSink) AddButton(b protocol.Button) error {
	return r.record("button %s/%s", b.ID, b.Label)
}
func (r *recordingSink) ClearButtons() error             { return r.record("clear") }
func (r *recordingSink) SetStatus(s dispatch.Status) error { return r.record("status %s", s) }

func (r *recordingSink) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandleFrame_Text(t *testing.T) {
	p := panel.New(panel.DefaultTextID, "text_title")
	d := dispatch.New(p)

	tests := []struct {
		frame string
		id    string
		want  string
	}{
		{"display_text_default_Hello", "text_default", "Hello"},
		{"display_text_default_Correct answer! Well done.", "text_default", "Correct answer! Well done."},
		{"display_text_title_snake_case__value", "text_title", "snake_case__value"},
		{"display_text_title_", "text_title", ""},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			if err := d.HandleFrame(tt.frame); err != nil {
				t.Fatalf("HandleFrame error: %v", err)
			}
			got, _ := p.Snapshot().Text(tt.id)
			if got != tt.want {
				t.Errorf("%s = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestHandleFrame_MissingTextElementIgnored(t *testing.T) {
	p := panel.New(panel.DefaultTextID)
	d := dispatch.New(p)

	if err := d.HandleFrame("display_text_nowhere_value"); err != nil {
		t.Errorf("HandleFrame error = %v, want nil", err)
	}
	if _, ok := p.Snapshot().Text("text_nowhere"); ok {
		t.Error("element should not have been created")
	}
}

func TestHandleFrame_AttentionScore(t *testing.T) {
	var scores []int
	sink := &recordingSink{}
	d := dispatch.New(sink, dispatch.WithAttentionHook(func(score int) {
		scores = append(scores, score)
	}))

	for _, frame := range []string{
		"display_text_attentionscore_42",
		"display_text_attentionscore_abc",
		"display_text_attentionscore_",
	} {
		if err := d.HandleFrame(frame); err != nil {
			t.Fatalf("HandleFrame(%q) error: %v", frame, err)
		}
	}

	want := []int{42, 0, 0}
	if fmt.Sprint(scores) != fmt.Sprint(want) {
		t.Errorf("scores = %v, want %v", scores, want)
	}
	if calls := sink.Calls(); len(calls) != 0 {
		t.Errorf("attention frames touched the sink: %v", calls)
	}
}

func TestHandleFrame_AttentionScoreWithoutHook(t *testing.T) {
	p := panel.New(protocol.TextID(protocol.AttentionScoreKey))
	d := dispatch.New(p)

	if err := d.HandleFrame("display_text_attentionscore_42"); err != nil {
		t.Fatalf("HandleFrame error: %v", err)
	}
	// The reserved key never falls through to a text update.
	if got, _ := p.Snapshot().Text("text_attentionscore"); got != "" {
		t.Errorf("text_attentionscore = %q, want empty", got)
	}
}

func TestHandleFrame_Image(t *testing.T) {
	p := panel.New()
	d := dispatch.New(p)

	if err := d.HandleFrame("display_image_x_path/to/pic.png"); err != nil {
		t.Fatalf("HandleFrame error: %v", err)
	}
	if got := p.Snapshot().Image; got != "path/to/pic.png" {
		t.Errorf("Image = %q, want %q", got, "path/to/pic.png")
	}
}

func TestHandleFrame_Buttons(t *testing.T) {
	p := panel.New()
	d := dispatch.New(p)

	if err := d.HandleFrame("display_button_btn1$Go"); err != nil {
		t.Fatalf("HandleFrame error: %v", err)
	}
	buttons := p.Snapshot().Buttons
	if len(buttons) != 1 || buttons[0] != (protocol.Button{ID: "btn1", Label: "Go"}) {
		t.Fatalf("Buttons = %+v", buttons)
	}

	d.HandleFrame("display_button_lonely")
	if b, ok := p.FindButton("lonely"); !ok || b.Label != "" {
		t.Errorf("button without label = %+v, %v", b, ok)
	}

	for i := 0; i < 2; i++ {
		if err := d.HandleFrame("remove_buttons"); err != nil {
			t.Fatalf("remove_buttons #%d error: %v", i+1, err)
		}
		if n := len(p.Snapshot().Buttons); n != 0 {
			t.Errorf("got %d buttons after remove, want 0", n)
		}
	}
}

func TestHandleFrame_UnknownIgnored(t *testing.T) {
	sink := &recordingSink{}
	d := dispatch.New(sink)

	for _, frame := range []string{"", "hello", "display_video_a_b", "remove_text", "display_text"} {
		if err := d.HandleFrame(frame); err != nil {
			t.Errorf("HandleFrame(%q) error = %v", frame, err)
		}
	}
	if calls := sink.Calls(); len(calls) != 0 {
		t.Errorf("unexpected sink calls: %v", calls)
	}
}

func TestHandleFrame_SinkError(t *testing.T) {
	boom := errors.New("no image element")
	sink := &recordingSink{err: boom}
	d := dispatch.New(sink)

	if err := d.HandleFrame("display_image_x_a.png"); !errors.Is(err, boom) {
		t.Errorf("HandleFrame error = %v, want %v", err, boom)
	}
}

func TestHandleFrame_SinkElementNotFound(t *testing.T) {
	sink := &recordingSink{err: fmt.Errorf("%w: text_title", dispatch.ErrElementNotFound)}
	d := dispatch.New(sink)

	if err := d.HandleFrame("display_text_title_Hi"); err != nil {
		t.Errorf("HandleFrame error = %v, want nil", err)
	}
	// Only text updates swallow a missing element.
	if err := d.HandleFrame("display_image_x_a.png"); !errors.Is(err, dispatch.ErrElementNotFound) {
		t.Errorf("image error = %v, want ErrElementNotFound", err)
	}
}

func TestApply_NilCommand(t *testing.T) {
	sink := &recordingSink{}
	d := dispatch.New(sink)

	if err := d.Apply(nil); !errors.Is(err, protocol.ErrUnknownCommand) {
		t.Errorf("Apply(nil) error = %v, want ErrUnknownCommand", err)
	}
	if calls := sink.Calls(); len(calls) != 0 {
		t.Errorf("unexpected sink calls: %v", calls)
	}
}

func TestSend_Uninitialized(t *testing.T) {
	d := dispatch.New(&recordingSink{})

	if err := d.Send(context.Background(), "btn1"); err != nil {
		t.Errorf("Send error = %v, want nil", err)
	}
	if err := d.Click(context.Background(), dispatch.ClickEvent{Target: protocol.Button{ID: "btn1"}}); err != nil {
		t.Errorf("Click error = %v, want nil", err)
	}
	if d.Connected() {
		t.Error("Connected() = true before Initialize")
	}
}

func TestLifecycle(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fa := &factory{}
	p := panel.New(panel.DefaultTextID)
	d := dispatch.New(p, dispatch.WithChannelFactory(fa.New), dispatch.WithLogger(zap.New(core)))

	ctx := context.Background()
	if err := d.Initialize(ctx, "10.0.0.2", 9100); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	ch := fa.last()
	if ch.url != "ws://10.0.0.2:9100/modimwebsocketserver" {
		t.Errorf("url = %q", ch.url)
	}
	if !d.Connected() {
		t.Error("Connected() = false after Initialize")
	}

	ch.emit(channel.Event{Kind: channel.EventOpen})
	waitFor(t, "status OK", func() bool { return p.Snapshot().Status == dispatch.StatusConnected })

	ch.message("display_text_default_Welcome_back")
	ch.message("display_button_lessons$Lessons")
	waitFor(t, "button", func() bool { return len(p.Snapshot().Buttons) == 1 })
	if got, _ := p.Snapshot().Text(panel.DefaultTextID); got != "Welcome_back" {
		t.Errorf("text_default = %q", got)
	}

	b := p.Snapshot().Buttons[0]
	if err := d.Click(ctx, dispatch.ClickEvent{Target: b}); err != nil {
		t.Fatalf("Click error: %v", err)
	}
	if sent := ch.Sent(); len(sent) != 1 || sent[0] != "lessons" {
		t.Errorf("sent = %v, want [lessons]", sent)
	}

	// Errors are logged only.
	ch.emit(channel.Event{Kind: channel.EventError, Err: errors.New("network down")})
	waitFor(t, "error log", func() bool {
		return logs.FilterMessage("connection error").Len() == 1
	})
	if p.Snapshot().Status != dispatch.StatusConnected {
		t.Error("error event changed the status")
	}

	ch.emit(channel.Event{Kind: channel.EventClose})
	ch.finish()
	waitFor(t, "status NOT CONNECTED", func() bool {
		return p.Snapshot().Status == dispatch.StatusDisconnected
	})
	if d.Connected() {
		t.Error("Connected() = true after close")
	}
	if err := d.Send(ctx, "late"); err != nil {
		t.Errorf("Send after close error = %v", err)
	}
	if sent := ch.Sent(); len(sent) != 1 {
		t.Errorf("frame sent after close: %v", sent)
	}

	if logs.FilterMessage("connection received").Len() != 1 {
		t.Error("missing open log")
	}
	if logs.FilterMessage("connection closed").Len() != 1 {
		t.Error("missing close log")
	}
	d.Close()
}

func TestInitialize_ReplacesPreviousChannel(t *testing.T) {
	fa := &factory{}
	sink := &recordingSink{}
	d := dispatch.New(sink, dispatch.WithChannelFactory(fa.New))
	ctx := context.Background()

	if err := d.Initialize(ctx, "a", 1); err != nil {
		t.Fatal(err)
	}
	first := fa.last()

	if err := d.Initialize(ctx, "b", 2); err != nil {
		t.Fatal(err)
	}
	second := fa.last()

	first.mu.Lock()
	stopped := first.stopped
	first.mu.Unlock()
	if !stopped {
		t.Error("previous channel was not stopped")
	}

	second.emit(channel.Event{Kind: channel.EventOpen})
	waitFor(t, "open", func() bool { return len(sink.Calls()) == 1 })

	// The first channel's close event is stale and must not flip the status.
	calls := sink.Calls()
	if calls[0] != "status OK" {
		t.Errorf("calls = %v, want [status OK]", calls)
	}

	if err := d.Send(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if len(first.Sent()) != 0 || len(second.Sent()) != 1 {
		t.Errorf("sent first=%v second=%v", first.Sent(), second.Sent())
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if got := sink.Calls(); got[len(got)-1] != "status NOT CONNECTED" {
		t.Errorf("last call = %q, want status NOT CONNECTED", got[len(got)-1])
	}
	if err := d.Send(ctx, "after close"); err != nil {
		t.Errorf("Send after Close error = %v", err)
	}
}

func TestReconnect(t *testing.T) {
	fa := &factory{}
	d := dispatch.New(&recordingSink{}, dispatch.WithChannelFactory(fa.New), dispatch.WithPath("/ws"))

	if err := d.Reconnect(context.Background()); !errors.Is(err, dispatch.ErrNotInitialized) {
		t.Errorf("Reconnect before Initialize error = %v", err)
	}

	d.Initialize(context.Background(), "robot", 9100)
	if err := d.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect error: %v", err)
	}
	if got := fa.last().url; got != "ws://robot:9100/ws" {
		t.Errorf("url = %q", got)
	}
	d.Close()
}
