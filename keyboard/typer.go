package keyboard

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

var ErrQueueFull = errors.New("output queue full")

const queueSize = 256

type taskKind int

const (
	taskPreview taskKind = iota
	taskFinal
	taskCombo
)

type task struct {
	kind    taskKind
	id      uint64
	text    string
	actions []Action
}

// Typer serializes all keyboard output on one worker so text from
// different utterances never interleaves.
type Typer struct {
	out   Output
	delay time.Duration

	// OnError is called from the worker for every failed injection.
	OnError func(error)

	queue chan task
	wg    sync.WaitGroup
	mu    sync.Mutex
	done  bool

	previews map[uint64]string // worker-owned: preview text currently on screen
}

// NewTyper starts the worker. delay is slept between typed chunks.
func NewTyper(out Output, delay time.Duration) *Typer {
	t := &Typer{
		out:      out,
		delay:    delay,
		queue:    make(chan task, queueSize),
		previews: make(map[uint64]string),
	}
	t.wg.Add(1)
	go t.work()
	return t
}

// Preview replaces the preview text typed so far for the utterance.
func (t *Typer) Preview(id uint64, text string) error {
	return t.enqueue(task{kind: taskPreview, id: id, text: strings.TrimSpace(text)})
}

// Final erases any typed preview for the utterance, performs actions and
// types a trailing space.
func (t *Typer) Final(id uint64, actions []Action) error {
	return t.enqueue(task{kind: taskFinal, id: id, actions: actions})
}

// Combo presses a key combination outside any utterance.
func (t *Typer) Combo(name string) error {
	return t.enqueue(task{kind: taskCombo, text: name})
}

func (t *Typer) enqueue(tk task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return errors.New("typer closed")
	}
	select {
	case t.queue <- tk:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close finishes queued output and stops the worker.
func (t *Typer) Close() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	close(t.queue)
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Typer) work() {
	defer t.wg.Done()
	for tk := range t.queue {
		var err error
		switch tk.kind {
		case taskPreview:
			err = t.preview(tk.id, tk.text)
		case taskFinal:
			err = t.final(tk.id, tk.actions)
		case taskCombo:
			err = t.out.PressCombo(tk.text)
		}
		if err != nil && t.OnError != nil {
			t.OnError(err)
		}
	}
}

// preview edits the on-screen preview in place: it keeps the common prefix
// and only retypes what changed.
func (t *Typer) preview(id uint64, text string) error {
	old := t.previews[id]
	keep := commonPrefix(old, text)
	if n := utf8.RuneCountInString(old[keep:]); n > 0 {
		if err := t.out.Backspace(n); err != nil {
			delete(t.previews, id)
			return err
		}
	}
	t.previews[id] = old[:keep]
	if err := t.typeText(text[keep:]); err != nil {
		return err
	}
	t.previews[id] = text
	return nil
}

func (t *Typer) final(id uint64, actions []Action) error {
	if old, ok := t.previews[id]; ok {
		delete(t.previews, id)
		if n := utf8.RuneCountInString(old); n > 0 {
			if err := t.out.Backspace(n); err != nil {
				return err
			}
		}
	}
	for _, a := range actions {
		var err error
		if a.Kind == ActionCombo {
			err = t.out.PressCombo(a.Text)
		} else {
			err = t.typeText(a.Text)
		}
		if err != nil {
			return err
		}
	}
	return t.out.Type(" ")
}

// typeText types word by word, sleeping delay between chunks.
func (t *Typer) typeText(s string) error {
	if s == "" {
		return nil
	}
	if t.delay <= 0 {
		return t.out.Type(s)
	}
	for i, chunk := range chunks(s) {
		if i > 0 {
			time.Sleep(t.delay)
		}
		if err := t.out.Type(chunk); err != nil {
			return err
		}
	}
	return nil
}

// chunks splits s after each run of whitespace, keeping every byte.
func chunks(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		space := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !space {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = space
	}
	return append(out, s[start:])
}

// commonPrefix returns the byte length of the shared prefix of a and b,
// never splitting a rune.
func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) {
		ra, sa := utf8.DecodeRuneInString(a[n:])
		rb, sb := utf8.DecodeRuneInString(b[n:])
		if ra != rb || sa != sb {
			break
		}
		n += sa
	}
	return n
}
