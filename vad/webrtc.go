package vad

import (
	"encoding/binary"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"voxkey/encoder"
)

const (
	subFrameMs      = 20
	subFrameSamples = encoder.SampleRate * subFrameMs / 1000 // 320
)

// WebRTC wraps the WebRTC VAD. It is cheap enough to run on every 20ms
// frame. Not safe for concurrent use.
type WebRTC struct {
	vad *webrtcvad.VAD
	buf []byte
}

// NewWebRTC creates a detector with aggressiveness 0 (least) to 3 (most).
func NewWebRTC(mode int) (*WebRTC, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("webrtc vad mode %d: %w", mode, err)
	}
	return &WebRTC{vad: v, buf: make([]byte, subFrameSamples*2)}, nil
}

// IsSpeech accepts 10, 20 or 30ms of 16kHz audio.
func (w *WebRTC) IsSpeech(samples []int16) (bool, error) {
	n := len(samples)
	if n != 160 && n != 320 && n != 480 {
		return false, fmt.Errorf("%w: %d samples", ErrFrameSize, n)
	}
	if cap(w.buf) < n*2 {
		w.buf = make([]byte, n*2)
	}
	b := w.buf[:n*2]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return w.vad.Process(encoder.SampleRate, b)
}
