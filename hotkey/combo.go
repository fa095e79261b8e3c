package hotkey

import (
	"fmt"
	"slices"
	"strings"
)

// Combo is a parsed hotkey such as "ctrl+shift+space". Modifier and key
// names are lower-case and canonical.
type Combo struct {
	Mods []string
	Key  string
}

var modAliases = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"super":   "super",
	"cmd":     "super",
	"win":     "super",
	"meta":    "super",
}

var keyAliases = map[string]string{
	"space":  "space",
	"enter":  "enter",
	"return": "enter",
	"tab":    "tab",
	"esc":    "escape",
	"escape": "escape",
}

// ParseCombo parses "mod+mod+key". At least one modifier is required so
// the hotkey cannot swallow ordinary typing.
func ParseCombo(s string) (Combo, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) < 2 {
		return Combo{}, fmt.Errorf("hotkey %q: need at least one modifier and a key", s)
	}
	var c Combo
	for _, p := range parts[:len(parts)-1] {
		m, ok := modAliases[strings.TrimSpace(p)]
		if !ok {
			return Combo{}, fmt.Errorf("hotkey %q: unknown modifier %q", s, p)
		}
		if !slices.Contains(c.Mods, m) {
			c.Mods = append(c.Mods, m)
		}
	}
	key := strings.TrimSpace(parts[len(parts)-1])
	switch {
	case keyAliases[key] != "":
		c.Key = keyAliases[key]
	case len(key) == 1 && (key[0] >= 'a' && key[0] <= 'z' || key[0] >= '0' && key[0] <= '9'):
		c.Key = key
	case isFunctionKey(key):
		c.Key = key
	default:
		return Combo{}, fmt.Errorf("hotkey %q: unsupported key %q", s, key)
	}
	slices.Sort(c.Mods)
	return c, nil
}

func isFunctionKey(k string) bool {
	var n int
	if _, err := fmt.Sscanf(k, "f%d", &n); err != nil {
		return false
	}
	return n >= 1 && n <= 12 && k == fmt.Sprintf("f%d", n)
}

func (c Combo) Has(mod string) bool { return slices.Contains(c.Mods, mod) }

func (c Combo) String() string {
	parts := make([]string, 0, len(c.Mods)+1)
	for _, m := range c.Mods {
		parts = append(parts, strings.ToUpper(m[:1])+m[1:])
	}
	k := c.Key
	if len(k) > 1 {
		k = strings.ToUpper(k[:1]) + k[1:]
	} else {
		k = strings.ToUpper(k)
	}
	return strings.Join(append(parts, k), "+")
}
