package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Parse decodes a single inbound frame.
//
// Frames with an unrecognized verb or category return ErrUnknownCommand;
// callers are expected to ignore those.
func Parse(frame string) (Command, error) {
	tokens := strings.Split(frame, Sep)

	switch {
	case token(tokens, 0) == VerbDisplay:
		return parseDisplay(frame, tokens)
	case token(tokens, 0) == VerbRemove && token(tokens, 1) == CategoryButtons:
		return ClearButtons{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, frame)
}

func parseDisplay(frame string, tokens []string) (Command, error) {
	switch token(tokens, 1) {
	case CategoryText:
		if len(tokens) < 3 {
			return nil, fmt.Errorf("%w: %q: missing text target", ErrMalformedFrame, frame)
		}
		value := tail(tokens, 3)
		if tokens[2] == AttentionScoreKey {
			return SetAttentionScore{Score: ParseScore(value)}, nil
		}
		return SetText{ID: TextID(tokens[2]), Value: value}, nil

	case CategoryImage:
		return SetImage{Source: tail(tokens, 3)}, nil

	case CategoryButton:
		return AddButton{Button: ParseButton(tail(tokens, 2))}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, frame)
}

// ParseButton splits a button payload on "$". Only the first two fields are
// used; a missing label is empty.
func ParseButton(payload string) Button {
	fields := strings.SplitN(payload, ButtonSep, 3)
	b := Button{ID: fields[0]}
	if len(fields) > 1 {
		b.Label = fields[1]
	}
	return b
}

// ParseScore reads the leading integer of s. Leading whitespace, an optional
// sign and an optional 0x prefix are accepted; trailing garbage is ignored.
// Anything without a leading integer yields 0.
func ParseScore(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	base := 10
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	end := 0
	for end < len(s) && isDigit(s[end], base) {
		end++
	}
	if end == 0 {
		return 0
	}

	n, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil {
		// Only a range error is possible here.
		n = math.MaxInt64
	}
	if neg {
		n = -n
	}
	if n > math.MaxInt {
		return math.MaxInt
	}
	if n < math.MinInt {
		return math.MinInt
	}
	return int(n)
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && c >= 'a' && c <= 'f':
		return true
	case base == 16 && c >= 'A' && c <= 'F':
		return true
	}
	return false
}

func token(tokens []string, i int) string {
	if i < len(tokens) {
		return tokens[i]
	}
	return ""
}

func tail(tokens []string, from int) string {
	if from >= len(tokens) {
		return ""
	}
	return strings.Join(tokens[from:], Sep)
}
