// Package agent collects finalized speech in AGENT mode and turns it into
// shell commands: the first spoken word names the agent, the rest is the
// prompt. Commands run one at a time with stdout streamed line by line.
package agent

import (
	"strings"
	"time"
	"unicode"
)

// Command is one flushed buffer.
type Command struct {
	Agent  string
	Prompt string
}

// Buffer accumulates tokens until speech has been idle for Timeout. It has
// no lock; the pipeline goroutine owns it.
type Buffer struct {
	Timeout time.Duration

	tokens     []string
	lastAppend time.Time
	armed      bool
}

func NewBuffer(timeout time.Duration) *Buffer {
	return &Buffer{Timeout: timeout}
}

// Append splits text on whitespace and arms the flush timer from now.
func (b *Buffer) Append(text string, now time.Time) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	b.tokens = append(b.tokens, fields...)
	b.lastAppend = now
	b.armed = true
}

// Due reports whether the buffer holds tokens and has been idle for Timeout.
func (b *Buffer) Due(now time.Time) bool {
	return b.armed && len(b.tokens) > 0 && now.Sub(b.lastAppend) >= b.Timeout
}

// Flush empties the buffer and parses what it held. ok is false when the
// buffer was empty or the agent word normalized to nothing.
func (b *Buffer) Flush() (Command, bool) {
	tokens := b.tokens
	b.reset()
	return Parse(tokens)
}

// Discard empties the buffer without producing a command.
func (b *Buffer) Discard() { b.reset() }

func (b *Buffer) Len() int { return len(b.tokens) }

// Tokens returns a copy of the pending tokens.
func (b *Buffer) Tokens() []string { return append([]string(nil), b.tokens...) }

func (b *Buffer) reset() {
	b.tokens = nil
	b.armed = false
	b.lastAppend = time.Time{}
}

// Parse splits tokens into an agent and a prompt. The agent is the first
// token lower-cased with punctuation and symbols removed.
func Parse(tokens []string) (Command, bool) {
	if len(tokens) == 0 {
		return Command{}, false
	}
	agent := NormalizeAgent(tokens[0])
	if agent == "" {
		return Command{}, false
	}
	return Command{Agent: agent, Prompt: strings.Join(tokens[1:], " ")}, true
}

func NormalizeAgent(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
