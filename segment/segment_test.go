package segment

import (
	"math/rand"
	"testing"
	"time"

	"voxkey/audio"
	"voxkey/vad"
)

func testConfig() Config {
	return Config{
		FrameDuration: 20 * time.Millisecond,
		ConfirmWindow: 100 * time.Millisecond, // 5 frames
		ConfirmGrace:  200 * time.Millisecond,
		Hangover:      200 * time.Millisecond,
		MinUtterance:  300 * time.Millisecond,
		PreRoll:       60 * time.Millisecond, // 3 frames
	}
}

var voiced = vad.Func(func(s []int16) (bool, error) { return s[0] != 0, nil })

func newTestSegmenter(cfg Config) *Segmenter {
	return New(cfg, voiced, vad.NewConfirm(voiced, 0, 0.5))
}

type feeder struct {
	seq uint64
}

func (f *feeder) frame(speech bool) audio.Frame {
	s := make([]int16, audio.FrameSamples)
	if speech {
		for i := range s {
			s[i] = 1000
		}
	}
	f.seq++
	return audio.Frame{Samples: s, Seq: f.seq}
}

// feed pushes n frames and returns the non-empty events.
func (f *feeder) feed(seg *Segmenter, n int, speech bool) []Event {
	var out []Event
	for range n {
		if ev := seg.Process(f.frame(speech)); ev.Kind != EventNone {
			out = append(out, ev)
		}
	}
	return out
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

func equalKinds(a, b []EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSegmenterOpenConfirmClose(t *testing.T) {
	seg := newTestSegmenter(testConfig())
	var f feeder

	evs := f.feed(seg, 5, false)
	evs = append(evs, f.feed(seg, 30, true)...)
	evs = append(evs, f.feed(seg, 20, false)...)

	want := []EventKind{EventOpen, EventConfirm, EventClose}
	if got := kinds(evs); !equalKinds(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	u := evs[2].Utterance
	if evs[2].Reason != ReasonHangover {
		t.Errorf("close reason = %q", evs[2].Reason)
	}
	if u.State != UtteranceClosed {
		t.Error("closed utterance still open")
	}
	if u.Voiced() < 600*time.Millisecond {
		t.Errorf("Voiced = %v, want >= 600ms", u.Voiced())
	}
	if u.Start != 100*time.Millisecond {
		t.Errorf("Start = %v, want 100ms", u.Start)
	}
	if seg.State() != StateSilence || seg.Current() != nil {
		t.Errorf("state after close = %v", seg.State())
	}
}

func TestSegmenterPreRoll(t *testing.T) {
	seg := newTestSegmenter(testConfig())
	var f feeder

	f.feed(seg, 10, false)
	evs := f.feed(seg, 1, true)
	if len(evs) != 1 || evs[0].Kind != EventOpen {
		t.Fatalf("events = %v", kinds(evs))
	}
	u := evs[0].Utterance
	if len(u.Frames) != 4 {
		t.Fatalf("frames = %d, want 3 pre-roll + onset", len(u.Frames))
	}
	if u.Frames[0].Seq != 8 || u.Frames[3].Seq != 11 {
		t.Errorf("pre-roll seqs = %d..%d, want 8..11", u.Frames[0].Seq, u.Frames[3].Seq)
	}
	if got := len(u.Samples()); got != 4*audio.FrameSamples {
		t.Errorf("Samples len = %d", got)
	}
}

func TestSegmenterHangoverResetBySpeech(t *testing.T) {
	seg := newTestSegmenter(testConfig())
	var f feeder

	f.feed(seg, 20, true)
	// gaps shorter than the hangover keep the utterance open
	for range 3 {
		if evs := f.feed(seg, 6, false); len(evs) != 0 {
			t.Fatalf("short gap produced %v", kinds(evs))
		}
		f.feed(seg, 4, true)
	}
	if seg.State() != StateOpen {
		t.Fatalf("state = %v, want open", seg.State())
	}
	evs := f.feed(seg, 20, false)
	if len(evs) != 1 || evs[0].Kind != EventClose {
		t.Fatalf("events = %v, want close", kinds(evs))
	}
}

func TestSegmenterShortUtteranceDiscarded(t *testing.T) {
	seg := newTestSegmenter(testConfig())
	var f feeder

	evs := f.feed(seg, 6, true)
	evs = append(evs, f.feed(seg, 20, false)...)

	want := []EventKind{EventOpen, EventConfirm, EventDiscard}
	if got := kinds(evs); !equalKinds(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if evs[2].Reason != ReasonTooShort {
		t.Errorf("reason = %q, want %q", evs[2].Reason, ReasonTooShort)
	}
}

func TestSegmenterUnconfirmedDiscarded(t *testing.T) {
	never := vad.Func(func([]int16) (bool, error) { return false, nil })
	seg := New(testConfig(), voiced, never)
	var f feeder

	evs := f.feed(seg, 20, true)
	if len(evs) < 2 || evs[0].Kind != EventOpen || evs[1].Kind != EventDiscard {
		t.Fatalf("events = %v", kinds(evs))
	}
	if evs[1].Reason != ReasonUnconfirmed {
		t.Errorf("reason = %q", evs[1].Reason)
	}
	// a fresh utterance is opened by the next voiced frame after the discard
	if evs[len(evs)-1].Utterance.ID <= evs[0].Utterance.ID && len(evs) > 2 {
		t.Error("utterance ids must increase")
	}
}

func TestSegmenterMaxLength(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUtterance = 400 * time.Millisecond
	seg := newTestSegmenter(cfg)
	var f feeder

	evs := f.feed(seg, 25, true)
	var closed *Event
	for i := range evs {
		if evs[i].Kind == EventClose {
			closed = &evs[i]
			break
		}
	}
	if closed == nil {
		t.Fatalf("no close event in %v", kinds(evs))
	}
	if closed.Reason != ReasonMaxLength {
		t.Errorf("reason = %q", closed.Reason)
	}
}

func TestSegmenterForceCloseOpen(t *testing.T) {
	seg := newTestSegmenter(testConfig())
	var f feeder

	f.feed(seg, 30, true)
	if seg.State() != StateOpen {
		t.Fatalf("state = %v, want open", seg.State())
	}
	ev := seg.ForceClose("capture_error")
	if ev.Kind != EventClose || ev.Reason != "capture_error" {
		t.Fatalf("ForceClose = %v %q, want close", ev.Kind, ev.Reason)
	}
	if ev.Utterance.State != UtteranceClosed {
		t.Error("utterance left open")
	}
	if seg.State() != StateSilence {
		t.Errorf("state = %v, want silence", seg.State())
	}
	// the segmenter keeps working afterwards
	evs := f.feed(seg, 1, true)
	if len(evs) != 1 || evs[0].Kind != EventOpen || evs[0].Utterance.ID != 2 {
		t.Fatalf("after force close: %v", kinds(evs))
	}
}

func TestSegmenterForceClosePendingAndSilence(t *testing.T) {
	seg := newTestSegmenter(testConfig())
	var f feeder

	if ev := seg.ForceClose("stop"); ev.Kind != EventNone {
		t.Errorf("ForceClose in silence = %v", ev.Kind)
	}
	f.feed(seg, 2, true)
	if seg.State() != StatePending {
		t.Fatalf("state = %v, want pending", seg.State())
	}
	if ev := seg.ForceClose("stop"); ev.Kind != EventDiscard {
		t.Errorf("ForceClose in pending = %v, want discard", ev.Kind)
	}
	if seg.State() != StateSilence {
		t.Errorf("state = %v", seg.State())
	}
}

func TestSegmenterDetectorErrorIsSilence(t *testing.T) {
	var errs int
	broken := vad.Func(func([]int16) (bool, error) { return false, vad.ErrFrameSize })
	seg := New(testConfig(), broken, broken)
	seg.OnDetectorError = func(error) { errs++ }
	var f feeder

	if evs := f.feed(seg, 5, true); len(evs) != 0 {
		t.Errorf("events = %v", kinds(evs))
	}
	if errs != 5 {
		t.Errorf("errors reported = %d, want 5", errs)
	}
}

// Over a long random trace at most one utterance is open at any time and
// every opened utterance is resolved exactly once.
func TestSegmenterSingleOpenUtterance(t *testing.T) {
	seg := newTestSegmenter(testConfig())
	var f feeder
	rng := rand.New(rand.NewSource(7))

	open := map[uint64]bool{}
	var lastID uint64
	check := func(ev Event) {
		switch ev.Kind {
		case EventOpen:
			if len(open) != 0 {
				t.Fatalf("utterance %d opened while %v open", ev.Utterance.ID, open)
			}
			if ev.Utterance.ID <= lastID {
				t.Fatalf("id %d not increasing", ev.Utterance.ID)
			}
			lastID = ev.Utterance.ID
			open[ev.Utterance.ID] = true
		case EventConfirm:
			if !open[ev.Utterance.ID] {
				t.Fatalf("confirm for unknown utterance %d", ev.Utterance.ID)
			}
		case EventClose, EventDiscard:
			if !open[ev.Utterance.ID] {
				t.Fatalf("%v for unknown utterance %d", ev.Kind, ev.Utterance.ID)
			}
			delete(open, ev.Utterance.ID)
		}
	}

	speech := false
	for i := range 5000 {
		if rng.Intn(12) == 0 {
			speech = !speech
		}
		check(seg.Process(f.frame(speech)))
		if i%997 == 0 {
			check(seg.ForceClose("capture_error"))
		}
	}
	check(seg.ForceClose("stop"))
	if len(open) != 0 {
		t.Errorf("utterances left open: %v", open)
	}
	if lastID == 0 {
		t.Error("trace produced no utterances")
	}
}
