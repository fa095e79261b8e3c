//go:build linux

package keyboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
)

// ioctl constants from linux/uinput.h
const (
	uiSetEvbit   = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit  = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate  = 0x5501     // UI_DEV_CREATE
	uiDevDestroy = 0x5502     // UI_DEV_DESTROY
)

// input event types from linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
)

const busUSB = 0x03

const deviceName = "voxkey-keyboard"

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// uinput is a virtual keyboard. Text outside the US layout goes through
// the clipboard and Ctrl+V.
type uinput struct {
	mu   sync.Mutex
	f    *os.File
	hold time.Duration
}

// New creates the virtual keyboard. keyHold is how long each key stays down.
func New(keyHold time.Duration) (Output, error) {
	f, err := openUinput()
	if err != nil {
		return nil, err
	}
	return &uinput{f: f, hold: keyHold}, nil
}

func openUinput() (*os.File, error) {
	path := "/dev/uinput"
	if _, err := os.Stat(path); err != nil {
		path = "/dev/input/uinput"
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New("uinput device not found, try: sudo modprobe uinput")
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	ioctl := func(req, arg uintptr) error {
		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
			return errno
		}
		return nil
	}
	fail := func(err error) (*os.File, error) {
		f.Close()
		return nil, fmt.Errorf("uinput setup: %w", err)
	}
	if err := ioctl(uiSetEvbit, evKey); err != nil {
		return fail(err)
	}
	if err := ioctl(uiSetEvbit, evSyn); err != nil {
		return fail(err)
	}
	// Register all standard keys so udev classifies this as a keyboard
	for i := uintptr(0); i < 256; i++ {
		if err := ioctl(uiSetKeybit, i); err != nil {
			return fail(err)
		}
	}
	dev := uinputUserDev{}
	copy(dev.Name[:], deviceName)
	dev.ID.Bustype = busUSB
	dev.ID.Vendor = 0x1234
	dev.ID.Product = 0x5679
	dev.ID.Version = 1
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return fail(err)
	}
	if err := ioctl(uiDevCreate, 0); err != nil {
		return fail(err)
	}
	// Give compositor time to recognize the new input device
	time.Sleep(200 * time.Millisecond)
	return f, nil
}

func (u *uinput) writeEvent(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	return binary.Write(u.f, binary.LittleEndian, &ev)
}

func (u *uinput) key(code uint16, down bool) error {
	v := int32(0)
	if down {
		v = 1
	}
	if err := u.writeEvent(evKey, code, v); err != nil {
		return err
	}
	return u.writeEvent(evSyn, 0, 0)
}

// chord presses codes in order, holds, and releases them in reverse.
func (u *uinput) chord(codes ...uint16) error {
	for i, c := range codes {
		if err := u.key(c, true); err != nil {
			return err
		}
		if i < len(codes)-1 {
			// Let compositor register modifier state
			time.Sleep(5 * time.Millisecond)
		}
	}
	if u.hold > 0 {
		time.Sleep(u.hold)
	}
	for i := len(codes) - 1; i >= 0; i-- {
		if err := u.key(codes[i], false); err != nil {
			return err
		}
	}
	return nil
}

func (u *uinput) keyTap(code uint16, shift bool) error {
	if shift {
		return u.chord(keyLeftShift, code)
	}
	return u.chord(code)
}

func (u *uinput) Type(text string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !typeable(text) {
		return u.paste(text)
	}
	for i := 0; i < len(text); i++ {
		code, shift, _ := charToKey(text[i])
		if err := u.keyTap(code, shift); err != nil {
			return err
		}
	}
	return nil
}

func (u *uinput) paste(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return u.chord(keyLeftCtrl, 47) // Ctrl+V
}

func (u *uinput) Backspace(n int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for range n {
		if err := u.chord(keyBackspace); err != nil {
			return err
		}
	}
	return nil
}

func (u *uinput) PressCombo(name string) error {
	c, err := ParseCombo(name)
	if err != nil {
		return err
	}
	var codes []uint16
	for _, m := range c.Mods {
		codes = append(codes, modKeys[m])
	}
	code, shift, ok := comboKey(c.Key)
	if !ok {
		return fmt.Errorf("combo %s: no key code for %q", name, c.Key)
	}
	if shift && !c.Has("shift") {
		codes = append(codes, keyLeftShift)
	}
	codes = append(codes, code)

	u.mu.Lock()
	defer u.mu.Unlock()
	return u.chord(codes...)
}

func (u *uinput) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	syscall.Syscall(syscall.SYS_IOCTL, u.f.Fd(), uiDevDestroy, 0)
	return u.f.Close()
}

// Verify creates a virtual keyboard, taps Shift and reads the event back
// from the kernel input layer to confirm delivery.
func Verify() (string, error) {
	out, err := New(0)
	if err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}
	u := out.(*uinput)
	defer u.Close()

	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}

	var evdevPath string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == deviceName {
			evdevPath = filepath.Join("/dev/input", e.Name())
			break
		}
	}
	if evdevPath == "" {
		return "", errors.New(deviceName + " evdev device not found")
	}

	evdev, err := os.Open(evdevPath)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", evdevPath, err)
	}
	defer evdev.Close()

	if err := u.keyTap(keyLeftShift, false); err != nil {
		return "", fmt.Errorf("key send: %w", err)
	}

	ch := make(chan error, 1)
	go func() {
		buf := make([]byte, 24*32)
		n, err := evdev.Read(buf)
		if err != nil {
			ch <- err
			return
		}
		for i := 0; i+24 <= n; i += 24 {
			if binary.LittleEndian.Uint16(buf[i+16:]) == evKey && binary.LittleEndian.Uint16(buf[i+18:]) == keyLeftShift {
				ch <- nil
				return
			}
		}
		ch <- errors.New("shift event missing")
	}()

	select {
	case err := <-ch:
		if err != nil {
			return "", fmt.Errorf("reading events: %w", err)
		}
		return fmt.Sprintf("keystroke verified via %s", evdevPath), nil
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("timed out waiting for keystroke events")
	}
}
