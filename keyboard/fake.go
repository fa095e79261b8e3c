package keyboard

import (
	"fmt"
	"strings"
	"sync"
)

// Fake records output and keeps a simulated text field.
type Fake struct {
	mu     sync.Mutex
	screen []rune
	log    []string
	Err    error
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Type(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.screen = append(f.screen, []rune(text)...)
	f.log = append(f.log, "type:"+text)
	return nil
}

func (f *Fake) PressCombo(name string) error {
	if _, err := ParseCombo(name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.log = append(f.log, "combo:"+name)
	return nil
}

func (f *Fake) Backspace(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.screen = f.screen[:max(len(f.screen)-n, 0)]
	f.log = append(f.log, fmt.Sprintf("backspace:%d", n))
	return nil
}

// Screen returns the simulated text field.
func (f *Fake) Screen() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.screen)
}

// Log returns every call in order.
func (f *Fake) Log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func (f *Fake) String() string { return strings.Join(f.Log(), "|") }
