package keyboard

import (
	"strings"
)

// Filter drops transcripts that are known hallucinations on silence and
// tidies the rest before mappings apply.
type Filter struct {
	discard map[string]bool
}

func NewFilter(phrases []string) *Filter {
	f := &Filter{discard: make(map[string]bool, len(phrases))}
	for _, p := range phrases {
		if n := normalize(p); n != "" {
			f.discard[n] = true
		}
	}
	return f
}

const edgePunct = " \t\r\n.,!?;:"

func normalize(s string) string {
	return strings.Trim(strings.ToLower(s), edgePunct)
}

// Discard reports whether text is empty or a discard phrase.
func (f *Filter) Discard(text string) bool {
	n := normalize(text)
	return n == "" || f.discard[n]
}

// Prepare returns text ready for mapping, or false if it should be dropped.
// A single trailing period is removed.
func (f *Filter) Prepare(text string) (string, bool) {
	if f.Discard(text) {
		return "", false
	}
	text = strings.TrimRight(text, " \t\r\n")
	text = strings.TrimSuffix(text, ".")
	return strings.TrimSpace(text), true
}
