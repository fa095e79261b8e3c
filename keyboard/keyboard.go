// Package keyboard turns finalized text into keystrokes: word mappings,
// discard filtering, a serialized typing queue and the OS injection
// backends.
package keyboard

import (
	"fmt"
	"slices"
	"strings"
)

// Output injects keystrokes into whatever window has focus.
type Output interface {
	Type(text string) error
	PressCombo(name string) error
	Backspace(n int) error
}

// Combo is a parsed key combination such as "ctrl+shift+s".
type Combo struct {
	Mods []string // sorted, canonical: alt, ctrl, shift, super
	Key  string   // a single character or a named key
}

var modNames = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"cmd":     "super",
	"win":     "super",
	"super":   "super",
	"meta":    "super",
}

var keyNames = map[string]string{
	"enter":     "enter",
	"return":    "enter",
	"tab":       "tab",
	"esc":       "escape",
	"escape":    "escape",
	"backspace": "backspace",
	"delete":    "delete",
	"del":       "delete",
	"space":     "space",
}

// ParseCombo parses "mod+...+key". A bare named key like "enter" is allowed.
func ParseCombo(s string) (Combo, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	var c Combo
	for _, p := range parts[:len(parts)-1] {
		m, ok := modNames[strings.TrimSpace(p)]
		if !ok {
			return Combo{}, fmt.Errorf("combo %q: unknown modifier %q", s, p)
		}
		if !slices.Contains(c.Mods, m) {
			c.Mods = append(c.Mods, m)
		}
	}
	slices.Sort(c.Mods)
	key := strings.TrimSpace(parts[len(parts)-1])
	if name, ok := keyNames[key]; ok {
		c.Key = name
	} else if len([]rune(key)) == 1 {
		c.Key = key
	} else {
		return Combo{}, fmt.Errorf("combo %q: unknown key %q", s, key)
	}
	return c, nil
}

func (c Combo) Has(mod string) bool { return slices.Contains(c.Mods, mod) }

func (c Combo) String() string {
	return strings.Join(append(slices.Clone(c.Mods), c.Key), "+")
}
