package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestNetworkMetricsSum(t *testing.T) {
	m := &NetworkMetrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := firstNonEmpty(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := firstNonEmpty(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func tone(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(i % 1000)
	}
	return pcm
}

func TestGroqTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-large-v3" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		head := make([]byte, 4)
		io.ReadFull(f, head)
		if string(head) != "fLaC" {
			t.Errorf("upload is not FLAC: %q", head)
		}
		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("x-ratelimit-limit-requests", "10")
		io.WriteString(w, `{"text":" hello world","duration":1.5,"segments":[{"no_speech_prob":0.2,"avg_logprob":-0.1},{"no_speech_prob":0.4,"avg_logprob":-0.3}]}`)
	}))
	defer srv.Close()

	g := NewGroq("k", "whisper-large-v3", "en")
	g.apiURL = srv.URL
	res, err := g.Transcribe(context.Background(), tone(8000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != " hello world" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.RateLimit != "9/10" {
		t.Errorf("RateLimit = %q", res.RateLimit)
	}
	if res.NoSpeechProb != 0.4 {
		t.Errorf("NoSpeechProb = %v", res.NoSpeechProb)
	}
	if res.AudioS != 1.5 {
		t.Errorf("AudioS = %v", res.AudioS)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	o := NewOpenAI("k", "", "")
	o.apiURL = srv.URL
	_, err := o.Transcribe(context.Background(), tone(1600))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("err = %v, want ErrTranscription", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want status code", err)
	}
}

func TestDeepgramTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("model"); got != "nova-3" {
			t.Errorf("model = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/flac" {
			t.Errorf("Content-Type = %q", got)
		}
		io.WriteString(w, `{"metadata":{"duration":0.5},"results":{"channels":[{"alternatives":[{"transcript":"turn on the lights","confidence":0.93}]}]}}`)
	}))
	defer srv.Close()

	d := NewDeepgram("k", "", "en")
	d.apiURL = srv.URL
	res, err := d.Transcribe(context.Background(), tone(8000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "turn on the lights" || res.Confidence != 0.93 {
		t.Errorf("result = %+v", res)
	}
}

func TestTranscribeCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	g := NewGroq("k", "", "")
	g.apiURL = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := g.Transcribe(ctx, tone(1600))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if errors.Is(err, ErrTranscription) {
		t.Error("cancellation must not be reported as a transcription failure")
	}
}

func TestCommandTranscribe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	c, err := NewCommand(`test -s $FILE && echo "  hello   there "`)
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Transcribe(context.Background(), tone(1600))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello there" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestCommandFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	c, err := NewCommand(`echo oops >&2; exit 3 # $FILE`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Transcribe(context.Background(), tone(160))
	if !errors.Is(err, ErrTranscription) || !strings.Contains(err.Error(), "oops") {
		t.Errorf("err = %v", err)
	}
}

func TestCommandTemplateNeedsFile(t *testing.T) {
	if _, err := NewCommand("whisper-cli"); err == nil {
		t.Error("expected error without $FILE")
	}
}

func TestNewProviders(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "g")
	t.Setenv("OPENAI_API_KEY", "")
	for _, tt := range []struct {
		opts    Options
		name    string
		wantErr bool
	}{
		{Options{Provider: "groq"}, "groq", false},
		{Options{Provider: "GROQ"}, "groq", false},
		{Options{Provider: "openai"}, "", true},
		{Options{Provider: "command", Command: "x $FILE"}, "command", false},
		{Options{Provider: "fake"}, "fake", false},
		{Options{Provider: "nope"}, "", true},
	} {
		t.Run(tt.opts.Provider, func(t *testing.T) {
			tr, err := New(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tr.Name() != tt.name {
				t.Errorf("Name = %q, want %q", tr.Name(), tt.name)
			}
		})
	}
}

func TestFakeRespond(t *testing.T) {
	f := NewFake("x", nil)
	f.Respond = func(call int, pcm []int16) (string, error) {
		if call == 2 {
			return "", errors.New("down")
		}
		return "ok", nil
	}
	if r, err := f.Transcribe(context.Background(), tone(10)); err != nil || r.Text != "ok" {
		t.Errorf("call 1 = %v, %v", r, err)
	}
	if _, err := f.Transcribe(context.Background(), tone(10)); !errors.Is(err, ErrTranscription) {
		t.Errorf("call 2 err = %v", err)
	}
	if f.Calls() != 2 {
		t.Errorf("Calls = %d", f.Calls())
	}
}
