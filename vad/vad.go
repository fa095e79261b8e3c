// Package vad holds the voice-activity classifiers used by the segmenter.
// Each Detector answers one question for the audio it is given: is this
// speech. Callers own any smoothing over time.
package vad

import (
	"errors"
	"math"
)

type Detector interface {
	IsSpeech(samples []int16) (bool, error)
}

var ErrFrameSize = errors.New("vad: unsupported frame size")

// RMS returns the root mean square of samples normalized to 0..1.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Energy classifies audio as speech when its RMS reaches Floor.
type Energy struct {
	Floor float64
}

func NewEnergy(floor float64) *Energy {
	return &Energy{Floor: floor}
}

func (e *Energy) IsSpeech(samples []int16) (bool, error) {
	return RMS(samples) >= e.Floor, nil
}

// Func adapts a plain function to Detector.
type Func func(samples []int16) (bool, error)

func (f Func) IsSpeech(samples []int16) (bool, error) { return f(samples) }
