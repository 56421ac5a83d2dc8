package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/eachlabs/modimui/internal/protocol"
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse <frame>...",
	Short: "Decode display frames",
	Long: `Decode MODIM display frames and print the resulting commands.

Frames the panel would ignore are reported with the reason.

Examples:
  modimui parse display_text_default_Hello_there
  modimui parse 'display_button_yes$Yes please' remove_buttons
  modimui parse --json display_text_attentionscore_42`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printFrames(os.Stdout, args, jsonOut)
	},
}

type parsedFrame struct {
	Frame   string           `json:"frame"`
	Kind    string           `json:"kind,omitempty"`
	Command protocol.Command `json:"command,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func parseFrames(frames []string) []parsedFrame {
	out := make([]parsedFrame, 0, len(frames))
	for _, f := range frames {
		pf := parsedFrame{Frame: f}
		c, err := protocol.Parse(f)
		if err != nil {
			pf.Error = err.Error()
		} else {
			pf.Kind = c.Kind()
			pf.Command = c
		}
		out = append(out, pf)
	}
	return out
}

func printFrames(w io.Writer, frames []string, asJSON bool) error {
	parsed := parseFrames(frames)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(parsed)
	}

	for _, pf := range parsed {
		if pf.Error != "" {
			fmt.Fprintf(w, "%s\n  ignored: %s\n", pf.Frame, pf.Error)
			continue
		}
		fmt.Fprintf(w, "%s\n  %s %s\n", pf.Frame, pf.Kind, describe(pf.Command))
	}
	return nil
}

func describe(c protocol.Command) string {
	switch c := c.(type) {
	case protocol.SetText:
		return fmt.Sprintf("id=%q value=%q", c.ID, c.Value)
	case protocol.SetAttentionScore:
		return fmt.Sprintf("score=%d", c.Score)
	case protocol.SetImage:
		return fmt.Sprintf("source=%q", c.Source)
	case protocol.AddButton:
		return fmt.Sprintf("id=%q label=%q", c.Button.ID, c.Button.Label)
	}
	return ""
}
