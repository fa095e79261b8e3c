//go:build darwin

package keyboard

import "github.com/micmonay/keybd_event"

const (
	pasteWithSuper = true // Cmd+V
	vkBackspace    = keybd_event.VK_DELETE
	vkEscape       = keybd_event.VK_ESCAPE
)
