package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"voxkey/audio"
	"voxkey/beep"
	"voxkey/config"
	"voxkey/keyboard"
	"voxkey/mode"
	"voxkey/transcriber"
	"voxkey/transcript"
	"voxkey/vad"
)

func TestMain(m *testing.M) {
	beep.Disable()
	os.Exit(m.Run())
}

var voiced = vad.Func(func(s []int16) (bool, error) { return s[0] != 0, nil })

type harness struct {
	t     *testing.T
	p     *pipeline
	ring  *audio.Ring
	trans chan mode.Transition
	out   *keyboard.Fake
	msgs  chan any
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.DrainInterval = 5 * time.Millisecond
	cfg.Output.TypingDelay = 0
	cfg.Agent.BufferTimeout = 100 * time.Millisecond
	return cfg
}

// startPipeline runs a pipeline fed directly through its ring, starting
// inactive in listen mode.
func startPipeline(t *testing.T, cfg *config.Config, final transcriber.Transcriber, prefill ...[]int16) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ring:  audio.NewRing(cfg.Audio.RingFrames, audio.FrameSamples),
		trans: make(chan mode.Transition, 4),
		out:   keyboard.NewFake(),
		msgs:  make(chan any, 4096),
	}
	for _, s := range prefill {
		h.ring.Push(s)
	}
	p, err := newPipeline(cfg, pipelineDeps{
		Ring:        h.ring,
		Fast:        voiced,
		Accurate:    vad.NewConfirm(voiced, 0, 0.5),
		Final:       final,
		Output:      h.out,
		Transitions: h.trans,
		Initial:     mode.State{Mode: mode.Listen},
		UI: func(msg any) {
			select {
			case h.msgs <- msg:
			default:
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.p = p

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitMsg[T any](t *testing.T, h *harness, match func(T) bool) T {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-h.msgs:
			if m, ok := msg.(T); ok && (match == nil || match(m)) {
				return m
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// noMsg fails if a message of type T arrives within d.
func noMsg[T any](t *testing.T, h *harness, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case msg := <-h.msgs:
			if m, ok := msg.(T); ok {
				t.Fatalf("unexpected %T: %+v", m, m)
			}
		case <-deadline:
			return
		}
	}
}

func (h *harness) transition(kind mode.TransitionKind, from, to mode.State) {
	h.t.Helper()
	h.trans <- mode.Transition{Kind: kind, From: from, To: to, At: time.Now()}
	waitMsg(h.t, h, func(m StateMsg) bool { return m.State == to })
}

func (h *harness) activate(m mode.Mode) {
	h.t.Helper()
	h.transition(mode.Toggle, mode.State{Mode: m}, mode.State{Active: true, Mode: m})
}

func frame(speech bool) []int16 {
	s := make([]int16, audio.FrameSamples)
	if speech {
		for i := range s {
			s[i] = 1000
		}
	}
	return s
}

func (h *harness) speak(speech, silence int) {
	for range speech {
		h.ring.Push(frame(true))
	}
	for range silence {
		h.ring.Push(frame(false))
	}
}

func (h *harness) waitScreen(want string) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.out.Screen() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("screen = %q, want %q (log %s)", h.out.Screen(), want, h.out)
}

func (h *harness) waitDrained() {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for h.ring.Len() > 0 {
		if time.Now().After(deadline) {
			h.t.Fatal("ring not drained")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestListenFinalIsTyped(t *testing.T) {
	fin := transcriber.NewFake("Hello world.", nil)
	h := startPipeline(t, testConfig(), fin)
	h.activate(mode.Listen)

	h.speak(40, 50)
	ev := waitMsg[FinalMsg](t, h, nil)
	if ev.Discarded {
		t.Fatalf("final discarded: %+v", ev)
	}
	h.waitScreen("Hello world ")
	if fin.Calls() != 1 {
		t.Errorf("final calls = %d", fin.Calls())
	}
}

func TestListenMappedCombo(t *testing.T) {
	h := startPipeline(t, testConfig(), transcriber.NewFake("oops now undo.", nil))
	h.activate(mode.Listen)

	h.speak(40, 50)
	waitMsg[FinalMsg](t, h, nil)
	h.waitScreen("oops  ")
	if want := "type:oops |combo:ctrl+z|type: "; h.out.String() != want {
		t.Errorf("log = %s, want %s", h.out, want)
	}
}

func TestDiscardPhraseNotTyped(t *testing.T) {
	h := startPipeline(t, testConfig(), transcriber.NewFake("Thank you.", nil))
	h.activate(mode.Listen)

	h.speak(40, 50)
	if ev := waitMsg[FinalMsg](t, h, nil); !ev.Discarded {
		t.Errorf("final %+v not discarded", ev)
	}
	time.Sleep(50 * time.Millisecond)
	if got := h.out.Screen(); got != "" {
		t.Errorf("screen = %q", got)
	}
}

func TestInactiveIgnoresAudio(t *testing.T) {
	fin := transcriber.NewFake("hello", nil)
	h := startPipeline(t, testConfig(), fin)

	h.speak(40, 50)
	h.waitDrained()
	noMsg[UtteranceMsg](t, h, 100*time.Millisecond)
	if fin.Calls() != 0 {
		t.Errorf("final calls = %d while inactive", fin.Calls())
	}
}

func TestAgentFlushRunsCommand(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Template = `printf '%s|%s\n' $AGENT $PROMPT`
	h := startPipeline(t, cfg, transcriber.NewFake("Home, turn on the lights", nil))
	h.activate(mode.Agent)

	h.speak(40, 50)
	buf := waitMsg(t, h, func(m BufferMsg) bool { return len(m.Tokens) > 0 })
	if len(buf.Tokens) != 5 {
		t.Errorf("buffer tokens = %q", buf.Tokens)
	}

	out := waitMsg[AgentOutputMsg](t, h, nil)
	if out.Agent != "home" || out.Line != "home|turn on the lights" {
		t.Errorf("output = %+v", out)
	}
	if done := waitMsg[AgentDoneMsg](t, h, nil); done.ExitCode != 0 || done.Err != nil {
		t.Errorf("done = %+v", done)
	}
	if got := h.out.Screen(); got != "" {
		t.Errorf("agent mode typed %q", got)
	}
}

func TestModeSwitchDiscardsAgentBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Template = "echo $AGENT $PROMPT"
	cfg.Agent.BufferTimeout = 300 * time.Millisecond
	h := startPipeline(t, cfg, transcriber.NewFake("home turn on the lights", nil))
	h.activate(mode.Agent)

	h.speak(40, 50)
	waitMsg(t, h, func(m BufferMsg) bool { return len(m.Tokens) == 5 })

	agentOn := mode.State{Active: true, Mode: mode.Agent}
	listenOn := mode.State{Active: true, Mode: mode.Listen}
	h.transition(mode.ModeSwitch, agentOn, listenOn)

	noMsg[AgentStartMsg](t, h, 2*cfg.Agent.BufferTimeout)
	if got := h.out.Screen(); got != "" {
		t.Errorf("screen = %q", got)
	}
}

func TestCaptureErrorForcesFinal(t *testing.T) {
	fin := transcriber.NewFake("", nil)
	fin.Respond = func(call int, _ []int16) (string, error) {
		return fmt.Sprintf("part %d", call), nil
	}
	h := startPipeline(t, testConfig(), fin)
	h.activate(mode.Listen)

	h.speak(30, 0)
	waitMsg(t, h, func(m UtteranceMsg) bool { return m.Kind == "confirm" })
	h.waitDrained()

	h.p.captureError(fmt.Errorf("%w: device unplugged", audio.ErrCapture))
	waitMsg(t, h, func(m WarningMsg) bool { return strings.Contains(m.Text, "unplugged") })
	if ev := waitMsg[FinalMsg](t, h, nil); ev.Text != "part 1" {
		t.Errorf("final = %+v", ev)
	}

	// still listening
	h.speak(40, 50)
	if ev := waitMsg[FinalMsg](t, h, nil); ev.Text != "part 2" {
		t.Errorf("second final = %+v", ev)
	}
	h.waitScreen("part 1 part 2 ")
}

func TestDeactivateDropsInFlightFinal(t *testing.T) {
	fin := transcriber.NewFake("too late", nil)
	fin.Delay = 300 * time.Millisecond
	h := startPipeline(t, testConfig(), fin)
	h.activate(mode.Listen)

	h.speak(40, 50)
	deadline := time.Now().Add(3 * time.Second)
	for fin.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("final never dispatched")
		}
		time.Sleep(2 * time.Millisecond)
	}
	h.transition(mode.Toggle, mode.State{Active: true, Mode: mode.Listen}, mode.State{Mode: mode.Listen})

	noMsg[FinalMsg](t, h, 500*time.Millisecond)
	if got := h.out.Screen(); got != "" {
		t.Errorf("screen = %q", got)
	}
}

// newIdlePipeline builds a pipeline without running it, so handlers can be
// driven directly from the test goroutine.
func newIdlePipeline(t *testing.T, cfg *config.Config, initial mode.State) (*pipeline, *keyboard.Fake) {
	t.Helper()
	out := keyboard.NewFake()
	p, err := newPipeline(cfg, pipelineDeps{
		Ring:     audio.NewRing(cfg.Audio.RingFrames, audio.FrameSamples),
		Fast:     voiced,
		Accurate: vad.NewConfirm(voiced, 0, 0.5),
		Final:    transcriber.NewFake("x", nil),
		Output:   out,
		Initial:  initial,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.shutdown)
	return p, out
}

func finalEvent(p *pipeline, id uint64, text string) transcript.Event {
	return transcript.Event{UtteranceID: id, Kind: transcript.Final, Text: text, Seq: id, Gen: p.coord.Gen()}
}

func TestFinalAfterModeSwitchIsDropped(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.Template = "echo $AGENT $PROMPT"
	listenOn := mode.State{Active: true, Mode: mode.Listen}
	agentOn := mode.State{Active: true, Mode: mode.Agent}
	agentOff := mode.State{Mode: mode.Agent}
	p, out := newIdlePipeline(t, cfg, listenOn)

	// dispatched while listening, delivered after the switch
	stale := finalEvent(p, 1, "delete everything now")
	p.handleTransition(mode.Transition{Kind: mode.ModeSwitch, From: listenOn, To: agentOn, At: time.Now()})
	p.handleEvent(stale)
	if n := p.buf.Len(); n != 0 {
		t.Fatalf("listen final reached the agent buffer: %q", p.buf.Tokens())
	}

	p.handleEvent(finalEvent(p, 2, "home turn on the lights"))
	if p.buf.Len() == 0 {
		t.Fatal("current agent final was dropped")
	}

	p.handleTransition(mode.Transition{Kind: mode.Toggle, From: agentOn, To: agentOff, At: time.Now()})
	p.handleEvent(finalEvent(p, 3, "home lights off"))
	p.handleTransition(mode.Transition{Kind: mode.Toggle, From: agentOff, To: agentOn, At: time.Now()})
	if p.buf.Len() != 0 {
		t.Fatalf("buffer survived reactivation: %q", p.buf.Tokens())
	}

	p.now = func() time.Time { return time.Now().Add(time.Hour) }
	p.tick()
	if p.commands != 0 {
		t.Errorf("commands submitted = %d", p.commands)
	}
	if got := out.Screen(); got != "" {
		t.Errorf("screen = %q", got)
	}
}

func TestFinalWhileInactiveNotTyped(t *testing.T) {
	listenOn := mode.State{Active: true, Mode: mode.Listen}
	listenOff := mode.State{Mode: mode.Listen}
	p, out := newIdlePipeline(t, testConfig(), listenOn)

	p.handleTransition(mode.Transition{Kind: mode.Toggle, From: listenOn, To: listenOff, At: time.Now()})
	p.handleEvent(finalEvent(p, 1, "hello there"))
	time.Sleep(50 * time.Millisecond)
	if got := out.Screen(); got != "" {
		t.Errorf("typed %q while inactive", got)
	}
	if p.finals != 0 {
		t.Errorf("finals = %d", p.finals)
	}
}

func TestDroppedFramesReported(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.RingFrames = 4
	var pre [][]int16
	for range 10 {
		pre = append(pre, frame(false))
	}
	h := startPipeline(t, cfg, transcriber.NewFake("x", nil), pre...)

	if m := waitMsg[DroppedMsg](t, h, nil); m.Total != 6 {
		t.Errorf("dropped = %d, want 6", m.Total)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, flags{mode: "agent", final: "command", preview: "none", lang: "de", device: "USB Mic"})
	if cfg.Mode.Initial != "agent" || cfg.Transcription.Final.Provider != "command" ||
		cfg.Transcription.Preview.Provider != "none" || cfg.Transcription.Language != "de" ||
		cfg.Audio.Device != "USB Mic" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.PreviewEnabled() {
		t.Error("preview still enabled")
	}
}
