package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/eachlabs/modimui/internal/protocol"
	"go.uber.org/zap"
)

// StepKind identifies a script step.
type StepKind int

const (
	StepFrame StepKind = iota
	StepWait
	StepAsk
)

// Step is one line of a script.
type Step struct {
	Kind    StepKind
	Frame   string
	Timeout time.Duration // StepWait: duration; StepAsk: 0 waits forever
	Line    int
}

// ErrAskTimeout is reported to the answer callback when an ask step times out.
var ErrAskTimeout = errors.New("ask timed out")

// LoadScript reads a script file.
func LoadScript(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

// ParseScript reads one step per line:
//
//	# comment
//	display_text_default_Hello     a frame, sent as written minus indentation
//	wait 3s                        pause
//	ask                            block until a panel clicks a button
//	ask 15s                        same, giving up after 15s
//
// Frames are checked with protocol.Parse so typos fail early.
func ParseScript(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSuffix(scanner.Text(), "\r")
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "wait":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: usage: wait <duration>", lineNo)
			}
			d, err := time.ParseDuration(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			steps = append(steps, Step{Kind: StepWait, Timeout: d, Line: lineNo})

		case "ask":
			step := Step{Kind: StepAsk, Line: lineNo}
			if len(fields) > 2 {
				return nil, fmt.Errorf("line %d: usage: ask [timeout]", lineNo)
			}
			if len(fields) == 2 {
				d, err := time.ParseDuration(fields[1])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				step.Timeout = d
			}
			steps = append(steps, step)

		default:
			// Trailing whitespace belongs to the payload.
			frame := strings.TrimLeft(raw, " \t")
			if _, err := protocol.Parse(frame); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			steps = append(steps, Step{Kind: StepFrame, Frame: frame, Line: lineNo})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return steps, nil
}

// AnswerFunc receives the result of each ask step.
type AnswerFunc func(step Step, click Click, err error)

// Play runs steps against the connected panels. Clicks received before an
// ask step are discarded so that each ask waits for a fresh answer.
func (s *Server) Play(ctx context.Context, steps []Step, answered AnswerFunc) error {
	for _, step := range steps {
		switch step.Kind {
		case StepFrame:
			if n := s.Broadcast(step.Frame); n == 0 {
				s.logger.Warn("no panel connected", zap.Int("line", step.Line))
			}

		case StepWait:
			if err := sleep(ctx, step.Timeout); err != nil {
				return err
			}

		case StepAsk:
			s.drainClicks()
			click, err := s.awaitClick(ctx, step.Timeout)
			if err != nil && !errors.Is(err, ErrAskTimeout) {
				return err
			}
			if answered != nil {
				answered(step, click, err)
			}
		}
	}
	return nil
}

func (s *Server) drainClicks() {
	for {
		select {
		case <-s.clicks:
		default:
			return
		}
	}
}

func (s *Server) awaitClick(ctx context.Context, timeout time.Duration) (Click, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case c := <-s.clicks:
		return c, nil
	case <-expired:
		return Click{}, ErrAskTimeout
	case <-ctx.Done():
		return Click{}, ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SampleScript is a short lesson flow written by `modimui init`.
const SampleScript = `# modimui sample script
# One frame per line. "wait <duration>" pauses, "ask [timeout]" waits for a click.

remove_buttons
display_text_attentionscore_0
display_image_default_img/welcome.png
display_text_default_Welcome! What would you like to do?
display_button_lessons$Lessons
display_button_quiz$Quiz
display_button_exit$Exit
ask 30s

remove_buttons
display_text_default_Photosynthesis
display_image_default_img/photosynthesis.png
wait 3s
display_text_default_Photosynthesis is the process used by plants to turn sunlight into chemical energy.
wait 5s
display_text_attentionscore_72
display_text_default_Your Attention Score: 72%
wait 3s

display_text_default_What do plants need for photosynthesis?
display_button_sunlight$Sunlight
display_button_moonlight$Moonlight
ask 15s

remove_buttons
display_text_attentionscore_0
display_text_default_Today's class ends here. Goodbye!
`
