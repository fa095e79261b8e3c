package keyboard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ActionKind int

const (
	ActionText ActionKind = iota
	ActionCombo
)

// Action is one unit of output: literal text or a key combo name.
type Action struct {
	Kind ActionKind
	Text string
}

func Text(s string) Action        { return Action{Kind: ActionText, Text: s} }
func ComboAction(s string) Action { return Action{Kind: ActionCombo, Text: s} }

// IsCombo reports whether a mapping replacement names a key combination
// rather than literal text.
func IsCombo(replacement string) bool {
	return strings.Contains(replacement, "+") && utf8.RuneCountInString(replacement) < 20
}

// WordMap replaces spoken phrases with text or key combos. It is immutable
// after ParseWordMap and safe for concurrent use.
type WordMap struct {
	re      *regexp.Regexp
	repl    map[string]string // lower-cased phrase -> replacement
	phrases []string
}

// ParseWordMap compiles the mapping table. Phrases are matched longest
// first, case-insensitively, on word boundaries, and swallow trailing
// commas, periods and spaces.
func ParseWordMap(m map[string]string) (*WordMap, error) {
	wm := &WordMap{repl: make(map[string]string, len(m))}
	for phrase, r := range m {
		p := strings.ToLower(strings.TrimSpace(phrase))
		if p == "" {
			return nil, fmt.Errorf("word mapping: empty phrase for %q", r)
		}
		if _, dup := wm.repl[p]; dup {
			return nil, fmt.Errorf("word mapping %q: phrase defined twice (phrases are case-insensitive)", phrase)
		}
		if IsCombo(r) {
			if _, err := ParseCombo(r); err != nil {
				return nil, fmt.Errorf("word mapping %q: %w", phrase, err)
			}
		}
		wm.repl[p] = r
		wm.phrases = append(wm.phrases, p)
	}
	if len(wm.phrases) == 0 {
		return wm, nil
	}
	sort.Slice(wm.phrases, func(i, j int) bool {
		if len(wm.phrases[i]) != len(wm.phrases[j]) {
			return len(wm.phrases[i]) > len(wm.phrases[j])
		}
		return wm.phrases[i] < wm.phrases[j]
	})
	alts := make([]string, len(wm.phrases))
	for i, p := range wm.phrases {
		alts[i] = "(" + boundary(p, true) + regexp.QuoteMeta(p) + boundary(p, false) + ")"
	}
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)[,.\s]*`)
	if err != nil {
		return nil, fmt.Errorf("word mappings: %w", err)
	}
	wm.re = re
	return wm, nil
}

func boundary(p string, leading bool) string {
	var r rune
	if leading {
		r, _ = utf8.DecodeRuneInString(p)
	} else {
		r, _ = utf8.DecodeLastRuneInString(p)
	}
	if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
		return `\b`
	}
	return ""
}

func (w *WordMap) Len() int { return len(w.phrases) }

// Apply splits text into actions. Whitespace-only text between mappings is
// dropped; text with any content is kept as is.
func (w *WordMap) Apply(text string) []Action {
	if w == nil || w.re == nil {
		return nonEmpty(text)
	}
	var out []Action
	last := 0
	for _, m := range w.re.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, nonEmpty(text[last:m[0]])...)
		last = m[1]
		for g := 1; g <= len(w.phrases); g++ {
			if m[2*g] < 0 {
				continue
			}
			r := w.repl[w.phrases[g-1]]
			switch {
			case r == "":
			case IsCombo(r):
				out = append(out, ComboAction(r))
			default:
				out = append(out, Text(r))
			}
			break
		}
	}
	return append(out, nonEmpty(text[last:])...)
}

func nonEmpty(s string) []Action {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []Action{Text(s)}
}
