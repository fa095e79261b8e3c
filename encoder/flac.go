package encoder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// utteranceFlac writes one closed utterance. The sample count is known before
// the first block, so the stream header is exact without seeking back.
type utteranceFlac struct {
	buf     bytes.Buffer
	enc     *flac.Encoder
	written int
}

func newUtteranceFlac(nsamples int) (*utteranceFlac, error) {
	u := &utteranceFlac{}
	info := &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
		NSamples:      uint64(nsamples),
	}
	enc, err := flac.NewEncoder(&u.buf, info)
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	u.enc = enc
	return u, nil
}

func (u *utteranceFlac) writeBlock(block []int16) error {
	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(block),
		}},
	}
	if err := u.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame at sample %d: %w", u.written, err)
	}
	u.written += len(block)
	return nil
}

// EncodeFLAC encodes a whole utterance in BlockSize blocks and returns the
// FLAC stream and the time spent encoding.
func EncodeFLAC(samples []int16) ([]byte, time.Duration, error) {
	start := time.Now()
	u, err := newUtteranceFlac(len(samples))
	if err != nil {
		return nil, 0, err
	}
	for block := range Blocks(samples) {
		if err := u.writeBlock(block); err != nil {
			return nil, 0, err
		}
	}
	if err := u.enc.Close(); err != nil {
		return nil, 0, fmt.Errorf("closing flac stream: %w", err)
	}
	return u.buf.Bytes(), time.Since(start), nil
}
