package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voxkey/agent"
	"voxkey/audio"
	"voxkey/beep"
	"voxkey/config"
	"voxkey/keyboard"
	"voxkey/log"
	"voxkey/mode"
	"voxkey/segment"
	"voxkey/transcriber"
	"voxkey/transcript"
	"voxkey/vad"
)

// source starts and stops the microphone feeding the ring. Nil means the
// ring is fed externally.
type source interface {
	Start() error
	Stop()
}

type pipelineDeps struct {
	Ring        *audio.Ring
	Source      source
	Fast        vad.Detector
	Accurate    vad.Detector
	Preview     transcriber.Transcriber // nil disables previews
	Final       transcriber.Transcriber
	Output      keyboard.Output
	Transitions <-chan mode.Transition
	Initial     mode.State
	UI          func(msg any)
}

// pipeline owns everything downstream of the ring. All fields are used from
// the Run goroutine only, except captureErr.
type pipeline struct {
	cfg *config.Config

	ring   *audio.Ring
	src    source
	seg    *segment.Segmenter
	coord  *transcript.Coordinator
	recon  *transcript.Reconciler
	buf    *agent.Buffer
	runner *agent.Runner // nil without an agent template
	typer  *keyboard.Typer
	filter *keyboard.Filter
	words  *keyboard.WordMap

	transitions <-chan mode.Transition
	state       mode.State
	captureErr  chan error
	ui          func(msg any)
	now         func() time.Time

	frames      []audio.Frame
	lastDropped uint64
	finals      int
	commands    int
}

func segmentConfig(cfg *config.Config) segment.Config {
	return segment.Config{
		FrameDuration: audio.FrameMs * time.Millisecond,
		ConfirmWindow: cfg.VAD.ConfirmWindow,
		ConfirmGrace:  cfg.VAD.ConfirmGrace,
		Hangover:      cfg.VAD.Hangover,
		MinUtterance:  cfg.VAD.MinUtterance,
		MaxUtterance:  cfg.VAD.MaxUtterance,
		PreRoll:       cfg.VAD.PreRoll,
	}
}

// newDetectors builds the fast and accurate detectors. Without a working
// WebRTC VAD both fall back to the energy detector.
func newDetectors(cfg *config.Config) (fast, accurate vad.Detector) {
	w, err := vad.NewWebRTC(cfg.VAD.FastAggressiveness)
	if err != nil {
		log.Warnf("webrtc vad unavailable, using energy detector: %v", err)
		e := vad.NewEnergy(cfg.VAD.EnergyFloor)
		return e, e
	}
	inner, err := vad.NewWebRTC(cfg.VAD.AccurateAggressiveness)
	if err != nil {
		log.Warnf("accurate vad: %v", err)
		return w, vad.NewConfirm(vad.NewEnergy(cfg.VAD.EnergyFloor), cfg.VAD.EnergyFloor, cfg.VAD.ConfirmRatio)
	}
	return w, vad.NewConfirm(inner, cfg.VAD.EnergyFloor, cfg.VAD.ConfirmRatio)
}

// newTranscribers builds the preview and final passes. The preview is nil
// when disabled in the config.
func newTranscribers(cfg *config.Config) (preview, final transcriber.Transcriber, err error) {
	t := cfg.Transcription
	final, err = transcriber.New(transcriber.Options{
		Provider: t.Final.Provider, Model: t.Final.Model, Language: t.Language, Command: t.Command,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("final transcriber: %w", err)
	}
	if !cfg.PreviewEnabled() {
		return nil, final, nil
	}
	preview, err = transcriber.New(transcriber.Options{
		Provider: t.Preview.Provider, Model: t.Preview.Model, Language: t.Language, Command: t.Command,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("preview transcriber: %w", err)
	}
	return preview, final, nil
}

func newPipeline(cfg *config.Config, deps pipelineDeps) (*pipeline, error) {
	words, err := keyboard.ParseWordMap(cfg.WordMappings)
	if err != nil {
		return nil, err
	}
	p := &pipeline{
		cfg:         cfg,
		ring:        deps.Ring,
		src:         deps.Source,
		seg:         segment.New(segmentConfig(cfg), deps.Fast, deps.Accurate),
		recon:       transcript.NewReconciler(),
		buf:         agent.NewBuffer(cfg.Agent.BufferTimeout),
		typer:       keyboard.NewTyper(deps.Output, cfg.Output.TypingDelay),
		filter:      keyboard.NewFilter(cfg.Output.DiscardPhrases),
		words:       words,
		transitions: deps.Transitions,
		state:       deps.Initial,
		captureErr:  make(chan error, 1),
		ui:          deps.UI,
		now:         time.Now,
	}
	if p.ui == nil {
		p.ui = func(any) {}
	}

	p.coord = transcript.NewCoordinator(deps.Preview, deps.Final, transcript.Config{
		PreviewInterval: cfg.Transcription.PreviewInterval,
		MinUtterance:    cfg.VAD.MinUtterance,
		Timeout:         cfg.Transcription.Timeout,
	})
	p.coord.OnResult = logOutcome

	p.seg.OnDetectorError = func(err error) {
		log.Warnf("vad: %v", err)
	}
	p.typer.OnError = func(err error) {
		log.Warnf("output: %v", err)
		p.ui(WarningMsg{Text: "output: " + err.Error()})
	}

	if cfg.Agent.Template != "" {
		p.runner, err = agent.NewRunner(cfg.Agent.Template, cfg.Agent.CommandTimeout, func(cmd agent.Command, line string) {
			p.ui(AgentOutputMsg{Agent: cmd.Agent, Line: line})
		})
		if err != nil {
			p.coord.Shutdown()
			p.typer.Close()
			return nil, err
		}
		p.runner.OnStart = func(cmd agent.Command, line string) {
			log.TranscriptText("AGENT", line)
			p.ui(AgentStartMsg{Agent: cmd.Agent, Line: line})
		}
		p.runner.OnDone = func(r agent.Run) {
			log.AgentRun(r.Command.Agent, r.ExitCode, r.Elapsed, r.Err)
			p.ui(AgentDoneMsg{Agent: r.Command.Agent, ExitCode: r.ExitCode, Err: r.Err})
		}
	}
	return p, nil
}

func logOutcome(o transcript.Outcome) {
	pass := o.Kind.String()
	if o.Reason == "error" || o.Reason == "timeout" {
		log.TranscriptionFailure(o.UtteranceID, pass, o.Provider, o.Err)
		return
	}
	var m log.Metrics
	if r := o.Result; r != nil {
		m.AudioLengthS = r.AudioS
		m.EncodeTimeMs = float64(r.EncodeTime.Microseconds()) / 1000
		m.RateLimit = r.RateLimit
		m.NoSpeechProb = r.NoSpeechProb
		m.Confidence = r.Confidence
		if nm := r.Metrics; nm != nil {
			m.DNSTimeMs = float64(nm.DNS.Microseconds()) / 1000
			m.TLSTimeMs = float64(nm.TLS.Microseconds()) / 1000
			m.TTFBMs = float64(nm.TTFB.Microseconds()) / 1000
			m.TotalTimeMs = float64(nm.Total.Microseconds()) / 1000
			m.ConnReused = nm.ConnReused
			m.TLSProto = nm.TLSProtocol
		}
	}
	if m.TotalTimeMs == 0 {
		m.TotalTimeMs = float64(o.Elapsed.Microseconds()) / 1000
	}
	log.Transcription(o.UtteranceID, pass, o.Provider, o.Emitted, o.Reason, m)
}

// captureError reports a capture failure from the driver callback. It never
// blocks; errors arriving faster than they are handled collapse into one.
func (p *pipeline) captureError(err error) {
	select {
	case p.captureErr <- err:
	default:
	}
}

// Run processes audio and transcription results until ctx is done, then
// shuts the pipeline down.
func (p *pipeline) Run(ctx context.Context) {
	defer p.shutdown()

	interval := p.cfg.Audio.DrainInterval
	if interval <= 0 {
		interval = audio.FrameMs * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.ui(StateMsg{State: p.state})
	if p.state.Active {
		p.startSource()
	}

	events := p.coord.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-p.transitions:
			if !ok {
				p.transitions = nil
				continue
			}
			p.handleTransition(tr)
		case err := <-p.captureErr:
			p.handleCaptureError(err)
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *pipeline) tick() {
	p.frames = p.ring.Drain(p.frames[:0])
	if d := p.ring.Dropped(); d != p.lastDropped {
		p.lastDropped = d
		log.Dropped(d)
		p.ui(DroppedMsg{Total: d})
	}

	if p.state.Active {
		for _, f := range p.frames {
			p.handleSegment(p.seg.Process(f))
		}
		if n := len(p.frames); n > 0 {
			p.ui(AudioLevelMsg{Level: vad.RMS(p.frames[n-1].Samples)})
		}
		if u := p.seg.Current(); u != nil && u.Confirmed() && p.coord.PreviewDue(u.ID, u.Voiced()) {
			p.coord.Preview(u.ID, u.Samples(), u.Voiced())
		}
	}

	if p.state.Active && p.state.Mode == mode.Agent && p.buf.Due(p.now()) {
		p.flushAgent()
	}
}

func (p *pipeline) handleSegment(ev segment.Event) {
	if ev.Kind == segment.EventNone || ev.Utterance == nil {
		return
	}
	u := ev.Utterance
	log.Utterance(u.ID, ev.Kind.String(), ev.Reason, u.Length(), u.Voiced())
	switch ev.Kind {
	case segment.EventOpen:
		p.coord.Open(u.ID)
	case segment.EventConfirm:
		p.coord.Confirm(u.ID)
	case segment.EventClose:
		p.coord.Close(u.ID, u.Samples(), u.Voiced())
	case segment.EventDiscard:
		p.coord.Discard(u.ID)
	}
	p.ui(UtteranceMsg{ID: u.ID, Kind: ev.Kind.String()})
}

func (p *pipeline) handleTransition(tr mode.Transition) {
	log.Transition(tr.Kind.String(), tr.From.String(), tr.To.String())
	p.state = tr.To

	if tr.LeavesActive() {
		// results for the abandoned utterance must never reach the new
		// state: the segmenter result is dropped rather than finalized
		if ev := p.seg.ForceClose("mode_change"); ev.Utterance != nil {
			log.Utterance(ev.Utterance.ID, segment.EventDiscard.String(), "mode_change", ev.Utterance.Length(), ev.Utterance.Voiced())
			p.coord.Discard(ev.Utterance.ID)
		}
		p.seg.Reset()
		p.coord.CancelAll()
		if p.buf.Len() > 0 {
			log.Infof("agent buffer discarded (%d tokens)", p.buf.Len())
		}
		p.buf.Discard()
		p.ui(BufferMsg{})
	}

	switch {
	case !tr.From.Active && tr.To.Active:
		p.buf.Discard()
		p.startSource()
		beep.PlayStart()
	case tr.From.Active && !tr.To.Active:
		p.stopSource()
		beep.PlayEnd()
	}
	if tr.Kind == mode.ModeSwitch {
		beep.PlayMode(tr.To.Mode.String())
	}
	p.ui(StateMsg{State: tr.To})
}

func (p *pipeline) startSource() {
	p.ring.Reset()
	if p.src == nil {
		return
	}
	if err := p.src.Start(); err != nil {
		log.Errorf("capture start: %v", err)
		p.ui(WarningMsg{Text: "capture: " + err.Error()})
	}
}

func (p *pipeline) stopSource() {
	if p.src != nil {
		p.src.Stop()
	}
	p.ring.Reset()
}

// handleCaptureError closes the open utterance so what was heard still gets
// a FINAL. The listening state is kept.
func (p *pipeline) handleCaptureError(err error) {
	log.Warnf("capture error: %v", err)
	p.ui(WarningMsg{Text: err.Error()})
	beep.PlayError()
	p.handleSegment(p.seg.ForceClose("capture_error"))
}

func (p *pipeline) handleEvent(ev transcript.Event) {
	// results from before the last stop or mode switch, or arriving while
	// inactive, belong to a state that no longer exists
	if ev.Gen != p.coord.Gen() || !p.state.Active {
		log.Infof("stale %s for utterance %d dropped", ev.Kind, ev.UtteranceID)
		return
	}
	if !p.recon.Accept(ev) {
		return
	}
	if ev.Kind == transcript.Preview {
		p.ui(PreviewMsg{ID: ev.UtteranceID, Text: ev.Text})
		if p.cfg.Output.TypePreviews && p.state.Active && p.state.Mode == mode.Listen {
			if err := p.typer.Preview(ev.UtteranceID, ev.Text); err != nil {
				log.Warnf("preview output: %v", err)
			}
		}
		return
	}

	log.TranscriptText("FINAL", ev.Text)
	if p.state.Mode == mode.Agent {
		p.buf.Append(ev.Text, p.now())
		p.ui(FinalMsg{ID: ev.UtteranceID, Text: ev.Text})
		p.ui(BufferMsg{Tokens: p.buf.Tokens()})
		return
	}

	text, ok := p.filter.Prepare(ev.Text)
	if !ok {
		log.Infof("final discarded: %q", ev.Text)
		if p.cfg.Output.TypePreviews {
			p.typer.Preview(ev.UtteranceID, "")
		}
		p.ui(FinalMsg{ID: ev.UtteranceID, Text: ev.Text, Discarded: true})
		return
	}
	if err := p.typer.Final(ev.UtteranceID, p.words.Apply(text)); err != nil {
		log.Warnf("final output: %v", err)
	}
	p.finals++
	p.ui(FinalMsg{ID: ev.UtteranceID, Text: ev.Text})
}

func (p *pipeline) flushAgent() {
	cmd, ok := p.buf.Flush()
	p.ui(BufferMsg{})
	if !ok {
		log.Warn("agent command dropped: no agent name")
		p.ui(WarningMsg{Text: "agent command dropped: no agent name"})
		return
	}
	if p.runner == nil {
		log.Warnf("no agent template configured, dropping %s %q", cmd.Agent, cmd.Prompt)
		p.ui(WarningMsg{Text: "no agent.template configured"})
		return
	}
	if err := p.runner.Submit(cmd); err != nil {
		log.Warnf("agent submit: %v", err)
		p.ui(WarningMsg{Text: err.Error()})
		return
	}
	p.commands++
}

func (p *pipeline) shutdown() {
	p.stopSource()
	p.coord.Shutdown()
	if p.runner != nil {
		p.runner.Close()
	}
	p.typer.Close()
	log.SessionEnd(p.finals, p.commands)
}

// status is the one-line summary shown under the TUI eye.
func status(cfg *config.Config, preview, final transcriber.Transcriber) string {
	parts := []string{"final: " + final.Name()}
	if preview != nil {
		parts = append([]string{"preview: " + preview.Name()}, parts...)
	}
	if cfg.Transcription.Language != "" {
		parts = append(parts, cfg.Transcription.Language)
	}
	return "[" + strings.Join(parts, " | ") + "]"
}
