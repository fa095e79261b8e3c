// Package segment turns a frame stream into utterance events using two
// voice-activity detectors: a fast one that opens an utterance on the first
// voiced frame and an accurate windowed one that confirms it and decides
// when it ends.
package segment

import (
	"fmt"
	"time"

	"voxkey/audio"
	"voxkey/vad"
)

type State int

const (
	StateSilence State = iota
	StatePending       // opened by the fast detector, waiting for confirmation
	StateOpen
	StateClosing // both detectors silent, hangover running
)

func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type EventKind int

const (
	EventNone EventKind = iota
	EventOpen
	EventConfirm
	EventClose
	EventDiscard
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventOpen:
		return "open"
	case EventConfirm:
		return "confirm"
	case EventClose:
		return "close"
	case EventDiscard:
		return "discard"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Close and discard reasons.
const (
	ReasonHangover    = "hangover"
	ReasonMaxLength   = "max_length"
	ReasonUnconfirmed = "unconfirmed"
	ReasonTooShort    = "too_short"
)

type Event struct {
	Kind      EventKind
	Utterance *Utterance
	Reason    string
}

type Config struct {
	FrameDuration time.Duration
	ConfirmWindow time.Duration
	ConfirmGrace  time.Duration
	Hangover      time.Duration
	MinUtterance  time.Duration
	MaxUtterance  time.Duration // 0 disables
	PreRoll       time.Duration
}

// Segmenter is driven from a single goroutine. Time advances by
// FrameDuration per processed frame, never by the wall clock.
type Segmenter struct {
	cfg      Config
	fast     vad.Detector
	accurate vad.Detector

	state   State
	cur     *Utterance
	nextID  uint64
	offset  time.Duration
	pending time.Duration
	silence time.Duration

	preRoll []audio.Frame
	window  []int16

	windowFrames  int
	preRollFrames int

	// OnDetectorError is called when a detector fails. The frame is treated
	// as silence.
	OnDetectorError func(err error)
}

func New(cfg Config, fast, accurate vad.Detector) *Segmenter {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = audio.FrameMs * time.Millisecond
	}
	windowFrames := max(1, int(cfg.ConfirmWindow/cfg.FrameDuration))
	preRollFrames := int(cfg.PreRoll / cfg.FrameDuration)
	return &Segmenter{
		cfg:           cfg,
		fast:          fast,
		accurate:      accurate,
		windowFrames:  windowFrames,
		preRollFrames: preRollFrames,
		preRoll:       make([]audio.Frame, 0, preRollFrames),
	}
}

func (s *Segmenter) State() State { return s.state }

// Current returns the utterance being built, or nil in silence.
func (s *Segmenter) Current() *Utterance { return s.cur }

// Process consumes one frame and reports at most one event.
func (s *Segmenter) Process(f audio.Frame) Event {
	s.offset += s.cfg.FrameDuration

	switch s.state {
	case StateSilence:
		if !s.classify(s.fast, f.Samples) {
			s.keepPreRoll(f)
			return Event{}
		}
		s.open(f)
		return Event{Kind: EventOpen, Utterance: s.cur}

	case StatePending:
		u := s.cur
		u.Frames = append(u.Frames, f)
		if s.classify(s.fast, f.Samples) {
			u.lastSpeech = len(u.Frames)
		}
		s.pending += s.cfg.FrameDuration
		if u.sinceOnset() >= s.windowFrames && s.classify(s.accurate, s.windowSamples()) {
			u.confirmed = true
			u.lastSpeech = len(u.Frames)
			s.state = StateOpen
			s.silence = 0
			return Event{Kind: EventConfirm, Utterance: u}
		}
		if s.pending >= s.cfg.ConfirmGrace {
			s.reset()
			return Event{Kind: EventDiscard, Utterance: u, Reason: ReasonUnconfirmed}
		}
		return Event{}

	case StateOpen, StateClosing:
		u := s.cur
		u.Frames = append(u.Frames, f)
		fast := s.classify(s.fast, f.Samples)
		if fast || s.classify(s.accurate, s.windowSamples()) {
			u.lastSpeech = len(u.Frames)
			s.silence = 0
			s.state = StateOpen
		} else {
			s.silence += s.cfg.FrameDuration
			s.state = StateClosing
			if s.silence >= s.cfg.Hangover {
				return s.close(ReasonHangover)
			}
		}
		if s.cfg.MaxUtterance > 0 && u.Length() >= s.cfg.MaxUtterance {
			return s.close(ReasonMaxLength)
		}
		return Event{}
	}
	return Event{}
}

// ForceClose ends the current utterance immediately with the frames
// accumulated so far. A confirmed utterance closes (subject to the minimum
// length), an unconfirmed one is discarded. The segmenter is always back in
// silence afterwards.
func (s *Segmenter) ForceClose(reason string) Event {
	switch s.state {
	case StatePending:
		u := s.cur
		s.reset()
		return Event{Kind: EventDiscard, Utterance: u, Reason: ReasonUnconfirmed}
	case StateOpen, StateClosing:
		return s.close(reason)
	}
	return Event{}
}

// Reset drops the current utterance and pre-roll without reporting it.
func (s *Segmenter) Reset() {
	s.reset()
	s.preRoll = s.preRoll[:0]
}

func (s *Segmenter) open(f audio.Frame) {
	s.nextID++
	u := &Utterance{
		ID:       s.nextID,
		Start:    s.offset - s.cfg.FrameDuration,
		State:    UtteranceOpen,
		frameDur: s.cfg.FrameDuration,
	}
	u.Frames = make([]audio.Frame, 0, len(s.preRoll)+s.windowFrames*4)
	u.Frames = append(u.Frames, s.preRoll...)
	u.preRoll = len(s.preRoll)
	u.Frames = append(u.Frames, f)
	u.lastSpeech = len(u.Frames)
	s.preRoll = s.preRoll[:0]

	s.cur = u
	s.state = StatePending
	s.pending = s.cfg.FrameDuration
	s.silence = 0
}

func (s *Segmenter) close(reason string) Event {
	u := s.cur
	u.End = s.offset
	u.State = UtteranceClosed
	s.reset()
	if u.Voiced() < s.cfg.MinUtterance {
		return Event{Kind: EventDiscard, Utterance: u, Reason: ReasonTooShort}
	}
	return Event{Kind: EventClose, Utterance: u, Reason: reason}
}

func (s *Segmenter) reset() {
	if s.cur != nil {
		s.cur.State = UtteranceClosed
		if s.cur.End == 0 {
			s.cur.End = s.offset
		}
	}
	s.cur = nil
	s.state = StateSilence
	s.pending = 0
	s.silence = 0
}

func (s *Segmenter) keepPreRoll(f audio.Frame) {
	if s.preRollFrames == 0 {
		return
	}
	if len(s.preRoll) == s.preRollFrames {
		copy(s.preRoll, s.preRoll[1:])
		s.preRoll = s.preRoll[:len(s.preRoll)-1]
	}
	s.preRoll = append(s.preRoll, f)
}

func (s *Segmenter) windowSamples() []int16 {
	s.window = s.window[:0]
	for _, f := range s.cur.tail(s.windowFrames) {
		s.window = append(s.window, f.Samples...)
	}
	return s.window
}

func (s *Segmenter) classify(d vad.Detector, samples []int16) bool {
	ok, err := d.IsSpeech(samples)
	if err != nil {
		if s.OnDetectorError != nil {
			s.OnDetectorError(err)
		}
		return false
	}
	return ok
}
