package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"voxkey/encoder"
)

// ErrTranscription wraps every backend failure so callers can tell a failed
// pass from a cancelled one.
var ErrTranscription = errors.New("transcription failure")

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Result struct {
	Text         string
	Metrics      *NetworkMetrics
	RateLimit    string
	Confidence   float64
	NoSpeechProb float64
	AvgLogProb   float64
	AudioS       float64
	EncodeTime   time.Duration
	Elapsed      time.Duration
}

// Transcriber turns one buffer of 16kHz mono PCM into text. Calls may be
// slow and may fail; an empty Text means nothing was recognized.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, pcm []int16) (*Result, error)
}

type baseTranscriber struct {
	client *TracedClient
	apiURL string
	model  string
	lang   string
}

func (b *baseTranscriber) Language() string { return b.lang }

func (b *baseTranscriber) Model() string { return b.model }

// Options selects a backend and its parameters.
type Options struct {
	Provider string // groq, openai, deepgram, command, fake
	Model    string
	Language string
	Command  string // command provider only
}

// New builds the transcriber named by opts.Provider. HTTP providers read
// their API key from the environment.
func New(opts Options) (Transcriber, error) {
	switch strings.ToLower(opts.Provider) {
	case "groq":
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("groq: set GROQ_API_KEY")
		}
		return NewGroq(key, opts.Model, opts.Language), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("openai: set OPENAI_API_KEY")
		}
		return NewOpenAI(key, opts.Model, opts.Language), nil
	case "deepgram":
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("deepgram: set DEEPGRAM_API_KEY")
		}
		return NewDeepgram(key, opts.Model, opts.Language), nil
	case "command":
		return NewCommand(opts.Command)
	case "fake":
		return NewFake("", nil), nil
	}
	return nil, fmt.Errorf("unknown transcription provider %q", opts.Provider)
}

// audioSeconds reports the length of pcm at the capture rate.
func audioSeconds(pcm []int16) float64 {
	return encoder.Duration(len(pcm)).Seconds()
}

func wrapErr(provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTranscription, provider, err)
}
