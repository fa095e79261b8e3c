package hotkey

// Hotkey delivers presses and releases of one global key combination.
// Channels are buffered by one and drop events the reader is too slow for.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Default is used when no hotkey is configured.
const Default = "ctrl+shift+space"
