package transcriber

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeTranscriber returns a fixed text or error after an optional delay.
// Respond overrides both when set.
type FakeTranscriber struct {
	text  string
	err   error
	Delay time.Duration

	// Respond, when set, decides the result for each call.
	Respond func(call int, pcm []int16) (string, error)

	mu    sync.Mutex
	calls int
	lens  []int
}

func NewFake(text string, err error) *FakeTranscriber {
	return &FakeTranscriber{text: text, err: err}
}

func (f *FakeTranscriber) Name() string { return "fake" }

func (f *FakeTranscriber) Transcribe(ctx context.Context, pcm []int16) (*Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lens = append(f.lens, len(pcm))
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	text, err := f.text, f.err
	if f.Respond != nil {
		text, err = f.Respond(call, pcm)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fake: %w", ErrTranscription, err)
	}
	return &Result{Text: text, AudioS: audioSeconds(pcm), Metrics: &NetworkMetrics{Total: 10 * time.Millisecond}}, nil
}

// Calls returns how many times Transcribe was called.
func (f *FakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Lengths returns the sample count of each call in order.
func (f *FakeTranscriber) Lengths() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.lens...)
}
