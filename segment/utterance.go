package segment

import (
	"time"

	"voxkey/audio"
)

type UtteranceState int

const (
	UtteranceOpen UtteranceState = iota
	UtteranceClosed
)

func (s UtteranceState) String() string {
	if s == UtteranceClosed {
		return "closed"
	}
	return "open"
}

// Utterance is one speech segment. Frames holds pre-roll audio followed by
// everything captured from onset until close.
type Utterance struct {
	ID     uint64
	Start  time.Duration // stream offset of the onset frame
	End    time.Duration // stream offset at close, zero while open
	Frames []audio.Frame
	State  UtteranceState

	frameDur   time.Duration
	preRoll    int // leading frames captured before onset
	lastSpeech int // index+1 of the last frame either detector voiced
	confirmed  bool
}

func (u *Utterance) Confirmed() bool { return u.confirmed }

// Voiced is the span from onset to the last voiced frame. Pre-roll and the
// trailing hangover do not count.
func (u *Utterance) Voiced() time.Duration {
	n := u.lastSpeech - u.preRoll
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * u.frameDur
}

// Length is the duration of all captured frames.
func (u *Utterance) Length() time.Duration {
	return time.Duration(len(u.Frames)) * u.frameDur
}

// Samples returns a contiguous copy of the utterance audio.
func (u *Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// tail returns up to n frames counted back from the end, never reaching
// into pre-roll.
func (u *Utterance) tail(n int) []audio.Frame {
	start := max(len(u.Frames)-n, u.preRoll)
	return u.Frames[start:]
}

func (u *Utterance) sinceOnset() int {
	return len(u.Frames) - u.preRoll
}
