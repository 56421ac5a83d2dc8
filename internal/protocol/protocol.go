// Package protocol decodes and encodes MODIM display frames.
//
// A frame is a single text message made of underscore-delimited tokens:
//
//	display_text_default_Hello_there    set element text_default to "Hello_there"
//	display_text_attentionscore_42      report an attention score of 42
//	display_image_default_img/a.png     set the default image source
//	display_button_yes$Yes please       create a button with id "yes"
//	remove_buttons                      remove every created button
//
// Only the first three tokens are structural. Everything after them is
// rejoined with "_" so payloads may contain underscores.
package protocol

import (
	"errors"
	"strconv"
	"strings"
)

const (
	// Sep splits a frame into tokens.
	Sep = "_"
	// ButtonSep splits a button payload into id and label.
	ButtonSep = "$"

	VerbDisplay = "display"
	VerbRemove  = "remove"

	CategoryText    = "text"
	CategoryImage   = "image"
	CategoryButton  = "button"
	CategoryButtons = "buttons"

	// AttentionScoreKey is the text target reserved for attention score updates.
	AttentionScoreKey = "attentionscore"

	// DefaultImageKey is the image slot written by Frame; Parse ignores it.
	DefaultImageKey = "default"
)

var (
	// ErrUnknownCommand is returned for frames whose verb/category pair is not recognized.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedFrame is returned for recognized commands missing a required token.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Command is a decoded frame.
type Command interface {
	// Kind returns a short name for the command.
	Kind() string
	// Frame returns the wire encoding of the command.
	Frame() string
}

// SetText replaces the content of a text element.
type SetText struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// SetAttentionScore reports the user's attention level.
type SetAttentionScore struct {
	Score int `json:"score"`
}

// SetImage changes the source of the default image.
type SetImage struct {
	Source string `json:"source"`
}

// Button is the (identifier, label) pair of a created button.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// AddButton appends a button to the button container.
type AddButton struct {
	Button Button `json:"button"`
}

// ClearButtons removes every button from the button container.
type ClearButtons struct{}

func (SetText) Kind() string           { return "set_text" }
func (SetAttentionScore) Kind() string { return "set_attention_score" }
func (SetImage) Kind() string          { return "set_image" }
func (AddButton) Kind() string         { return "add_button" }
func (ClearButtons) Kind() string      { return "clear_buttons" }

// Frame encodes c. ID is expected to carry the "text_" prefix.
func (c SetText) Frame() string {
	return VerbDisplay + Sep + c.ID + Sep + c.Value
}

func (c SetAttentionScore) Frame() string {
	return join(VerbDisplay, CategoryText, AttentionScoreKey, strconv.Itoa(c.Score))
}

func (c SetImage) Frame() string {
	return join(VerbDisplay, CategoryImage, DefaultImageKey, c.Source)
}

func (c AddButton) Frame() string {
	return join(VerbDisplay, CategoryButton, c.Button.ID+ButtonSep+c.Button.Label)
}

func (ClearButtons) Frame() string {
	return join(VerbRemove, CategoryButtons)
}

// TextID returns the element id addressed by a display_text frame for key.
func TextID(key string) string {
	return CategoryText + Sep + key
}

func join(tokens ...string) string {
	return strings.Join(tokens, Sep)
}
