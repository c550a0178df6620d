// Package shortcut resolves raw key events against the configured bindings.
package shortcut

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBinding indicates a binding string that cannot be parsed.
var ErrInvalidBinding = errors.New("invalid key binding")

// Binding is a parsed key combination. Key is the lower-cased target key
// token, empty when the binding is modifiers only.
type Binding struct {
	Ctrl  bool
	Meta  bool
	Shift bool
	Alt   bool
	Key   string
	Raw   string
}

// ParseBinding parses a combination such as "CommandOrControl+Alt+K".
// CommandOrControl means Meta on macOS and Control elsewhere.
func ParseBinding(s string, mac bool) (Binding, error) {
	b := Binding{Raw: s}
	s = strings.TrimSpace(s)
	if s == "" {
		return Binding{}, fmt.Errorf("%w: empty", ErrInvalidBinding)
	}
	// "Ctrl++" names the plus key.
	if strings.HasSuffix(s, "++") {
		s = strings.TrimSuffix(s, "++") + "+plus"
	}
	for _, tok := range strings.Split(s, "+") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		switch tok {
		case "":
			return Binding{}, fmt.Errorf("%w: %q has an empty token", ErrInvalidBinding, b.Raw)
		case "control", "ctrl":
			b.Ctrl = true
		case "command", "cmd", "meta", "super":
			b.Meta = true
		case "commandorcontrol", "cmdorctrl":
			if mac {
				b.Meta = true
			} else {
				b.Ctrl = true
			}
		case "shift":
			b.Shift = true
		case "alt", "option":
			b.Alt = true
		default:
			if b.Key != "" {
				return Binding{}, fmt.Errorf("%w: %q has more than one key", ErrInvalidBinding, b.Raw)
			}
			b.Key = tok
		}
	}
	return b, nil
}

// codeAliases names the binding token produced by punctuation keys whose
// logical key changes with Shift.
var codeAliases = map[string]string{
	"equal":          "=",
	"minus":          "-",
	"numpadadd":      "plus",
	"numpadsubtract": "-",
}

// KeyEvent is a raw keyboard event as reported by the content engine.
type KeyEvent struct {
	Type    string `json:"type,omitempty"`
	Key     string `json:"key"`
	Code    string `json:"code,omitempty"`
	Control bool   `json:"control"`
	Meta    bool   `json:"meta"`
	Shift   bool   `json:"shift"`
	Alt     bool   `json:"alt"`
}

// Matches reports whether ev triggers the binding. Modifiers must match
// exactly; extra held modifiers prevent a match.
func (b Binding) Matches(ev KeyEvent) bool {
	if ev.Control != b.Ctrl || ev.Meta != b.Meta || ev.Shift != b.Shift || ev.Alt != b.Alt {
		return false
	}
	if b.Key == "" {
		return true
	}
	key := strings.ToLower(ev.Key)
	code := strings.ToLower(ev.Code)
	switch {
	case key == b.Key:
		return true
	case code != "" && (code == "key"+b.Key || code == "digit"+b.Key || code == b.Key):
		return true
	case codeAliases[code] == b.Key && code != "":
		return true
	case b.Key == "space":
		return ev.Key == " " || code == "space"
	case b.Key == "plus":
		return ev.Key == "+"
	}
	return false
}
