package drawer

import (
	"errors"
	"fmt"
	"strings"
)

const DefaultShortcut = "Ctrl+Shift+E"

var ErrBadShortcut = errors.New("invalid shortcut")

// KeyEvent is a key press as reported by the view layer.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// Shortcut is a parsed key combination such as "Ctrl+Shift+E".
type Shortcut struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
}

// ParseShortcut accepts modifiers in any order and case. The last token is
// the key.
func ParseShortcut(s string) (Shortcut, error) {
	parts := strings.Split(strings.TrimSpace(s), "+")
	if len(parts) == 0 || strings.TrimSpace(s) == "" {
		return Shortcut{}, fmt.Errorf("%w: empty", ErrBadShortcut)
	}
	var sc Shortcut
	for i, raw := range parts {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			return Shortcut{}, fmt.Errorf("%w: %q", ErrBadShortcut, s)
		}
		if i == len(parts)-1 {
			if isModifier(p) {
				return Shortcut{}, fmt.Errorf("%w: %q has no key", ErrBadShortcut, s)
			}
			sc.Key = p
			break
		}
		switch p {
		case "ctrl", "control":
			sc.Ctrl = true
		case "shift":
			sc.Shift = true
		case "alt", "option":
			sc.Alt = true
		case "meta", "cmd", "command", "super":
			sc.Meta = true
		default:
			return Shortcut{}, fmt.Errorf("%w: unknown modifier %q", ErrBadShortcut, raw)
		}
	}
	return sc, nil
}

func isModifier(p string) bool {
	switch p {
	case "ctrl", "control", "shift", "alt", "option", "meta", "cmd", "command", "super":
		return true
	}
	return false
}

// Matches reports whether k is exactly this combination.
func (s Shortcut) Matches(k KeyEvent) bool {
	return strings.EqualFold(strings.TrimSpace(k.Key), s.Key) &&
		k.Ctrl == s.Ctrl && k.Shift == s.Shift && k.Alt == s.Alt && k.Meta == s.Meta
}

func (s Shortcut) String() string {
	var b strings.Builder
	for _, m := range []struct {
		on   bool
		name string
	}{{s.Ctrl, "Ctrl"}, {s.Alt, "Alt"}, {s.Shift, "Shift"}, {s.Meta, "Meta"}} {
		if m.on {
			b.WriteString(m.name)
			b.WriteByte('+')
		}
	}
	b.WriteString(strings.ToUpper(s.Key))
	return b.String()
}
