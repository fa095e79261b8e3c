package vad

import (
	"errors"
	"math"
	"testing"
)

func genTone(freq float64, durationMs int, amp float64) []int16 {
	n := 16000 * durationMs / 1000
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func genSilence(durationMs int) []int16 {
	return make([]int16, 16000*durationMs/1000)
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v", got)
	}
	if got := RMS(genSilence(20)); got != 0 {
		t.Errorf("RMS(silence) = %v", got)
	}
	// sine RMS is amplitude/sqrt(2)
	got := RMS(genTone(440, 100, 16384))
	if math.Abs(got-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("RMS(tone) = %v, want ~%v", got, 0.5/math.Sqrt2)
	}
}

func TestEnergy(t *testing.T) {
	e := NewEnergy(0.01)
	if ok, _ := e.IsSpeech(genSilence(20)); ok {
		t.Error("silence classified as speech")
	}
	if ok, _ := e.IsSpeech(genTone(300, 20, 8000)); !ok {
		t.Error("loud tone classified as silence")
	}
}

func TestConfirmRatio(t *testing.T) {
	// inner says speech for every sub-frame it sees
	always := Func(func([]int16) (bool, error) { return true, nil })
	c := NewConfirm(always, 0.01, 0.5)

	window := append(genTone(300, 60, 8000), genSilence(40)...) // 3 loud of 5
	if ok, err := c.IsSpeech(window); err != nil || !ok {
		t.Errorf("3/5 voiced with ratio 0.5: got %v, %v", ok, err)
	}

	window = append(genTone(300, 40, 8000), genSilence(60)...) // 2 loud of 5
	if ok, _ := c.IsSpeech(window); ok {
		t.Error("2/5 voiced with ratio 0.5 should be silence")
	}

	if ok, _ := c.IsSpeech(genTone(300, 10, 8000)); ok {
		t.Error("window shorter than a sub-frame should be silence")
	}
}

func TestConfirmPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	c := NewConfirm(Func(func([]int16) (bool, error) { return false, boom }), 0, 0.5)
	if _, err := c.IsSpeech(genTone(300, 40, 8000)); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestWebRTCSilence(t *testing.T) {
	w, err := NewWebRTC(3)
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		ok, err := w.IsSpeech(genSilence(20))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected no voice on silence")
		}
	}
}

func TestWebRTCFrameSize(t *testing.T) {
	w, err := NewWebRTC(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.IsSpeech(make([]int16, 100)); !errors.Is(err, ErrFrameSize) {
		t.Errorf("err = %v, want ErrFrameSize", err)
	}
	for _, ms := range []int{10, 20, 30} {
		if _, err := w.IsSpeech(genSilence(ms)); err != nil {
			t.Errorf("%dms frame: %v", ms, err)
		}
	}
}
