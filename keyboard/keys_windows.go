//go:build windows

package keyboard

import "github.com/micmonay/keybd_event"

const (
	pasteWithSuper = false // Ctrl+V
	vkBackspace    = keybd_event.VK_BACKSPACE
	vkEscape       = keybd_event.VK_ESC
)
