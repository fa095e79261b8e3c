// Package encoder turns utterance samples into upload and file formats:
// FLAC for the HTTP transcribers and WAV for local programs.
package encoder

import (
	"iter"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Blocks yields samples in BlockSize chunks; the last one may be shorter.
func Blocks(samples []int16) iter.Seq[[]int16] {
	return func(yield func([]int16) bool) {
		for i := 0; i < len(samples); i += BlockSize {
			if !yield(samples[i:min(i+BlockSize, len(samples))]) {
				return
			}
		}
	}
}

// Duration returns the playback length of n mono samples.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}
