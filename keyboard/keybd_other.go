//go:build !linux

package keyboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// keybd injects combos with keybd_event and text by pasting it from the
// clipboard.
type keybd struct {
	mu   sync.Mutex
	kb   keybd_event.KeyBonding
	hold time.Duration
}

func New(keyHold time.Duration) (Output, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("keyboard: %w", err)
	}
	return &keybd{kb: kb, hold: keyHold}, nil
}

func (k *keybd) launch(keys []int, ctrl, shift, alt, super bool) error {
	k.kb.Clear()
	k.kb.SetKeys(keys...)
	k.kb.HasCTRL(ctrl)
	k.kb.HasSHIFT(shift)
	k.kb.HasALT(alt)
	k.kb.HasSuper(super)
	if k.hold <= 0 {
		return k.kb.Launching()
	}
	if err := k.kb.Press(); err != nil {
		return err
	}
	time.Sleep(k.hold)
	return k.kb.Release()
}

func (k *keybd) Type(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.launch([]int{keybd_event.VK_V}, !pasteWithSuper, false, false, pasteWithSuper)
}

func (k *keybd) Backspace(n int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for range n {
		if err := k.launch([]int{vkBackspace}, false, false, false, false); err != nil {
			return err
		}
	}
	return nil
}

func (k *keybd) PressCombo(name string) error {
	c, err := ParseCombo(name)
	if err != nil {
		return err
	}
	vk, ok := comboKeys[c.Key]
	if !ok {
		return fmt.Errorf("combo %s: no key code for %q", name, c.Key)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.launch([]int{vk}, c.Has("ctrl"), c.Has("shift"), c.Has("alt"), c.Has("super"))
}

// Verify checks that the keyboard event binding is initialized.
func Verify() (string, error) {
	if _, err := keybd_event.NewKeyBonding(); err != nil {
		return "", err
	}
	return "keyboard event binding OK", nil
}

var comboKeys = map[string]int{
	"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C, "d": keybd_event.VK_D,
	"e": keybd_event.VK_E, "f": keybd_event.VK_F, "g": keybd_event.VK_G, "h": keybd_event.VK_H,
	"i": keybd_event.VK_I, "j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
	"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O, "p": keybd_event.VK_P,
	"q": keybd_event.VK_Q, "r": keybd_event.VK_R, "s": keybd_event.VK_S, "t": keybd_event.VK_T,
	"u": keybd_event.VK_U, "v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
	"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,
	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2, "3": keybd_event.VK_3,
	"4": keybd_event.VK_4, "5": keybd_event.VK_5, "6": keybd_event.VK_6, "7": keybd_event.VK_7,
	"8": keybd_event.VK_8, "9": keybd_event.VK_9,
	"enter":     keybd_event.VK_ENTER,
	"tab":       keybd_event.VK_TAB,
	"space":     keybd_event.VK_SPACE,
	"escape":    vkEscape,
	"backspace": vkBackspace,
}
