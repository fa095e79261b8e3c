package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"voxkey/audio"
	"voxkey/beep"
	"voxkey/config"
	"voxkey/encoder"
	"voxkey/hotkey"
	"voxkey/keyboard"
	"voxkey/log"
	"voxkey/mode"
	"voxkey/shutdown"
)

// testUI prints pipeline messages as lines on stdout so a driver can follow
// along, and lets WAIT_FINAL block until the next FINAL.
type testUI struct {
	mu     sync.Mutex
	finals chan string
}

func (u *testUI) send(msg any) {
	var line string
	switch m := msg.(type) {
	case StateMsg:
		line = "STATE " + m.State.String()
	case FinalMsg:
		line = "FINAL " + m.Text
		if m.Discarded {
			line = "DISCARDED " + m.Text
		}
		select {
		case u.finals <- m.Text:
		default:
		}
	case AgentStartMsg:
		line = "AGENT_START " + m.Line
	case AgentOutputMsg:
		line = "AGENT_OUT " + m.Line
	case AgentDoneMsg:
		line = fmt.Sprintf("AGENT_DONE %d", m.ExitCode)
	case WarningMsg:
		line = "WARN " + m.Text
	default:
		return
	}
	u.mu.Lock()
	fmt.Println(line)
	u.mu.Unlock()
}

// runTestMode drives the pipeline from a WAV file and stdin commands:
// PRESS, DOUBLE, WAIT_AUDIO_DONE, WAIT_FINAL, SLEEP <ms>, SCREEN, QUIT.
// Keystrokes go to an in-memory keyboard printed by SCREEN.
func runTestMode(cfg *config.Config, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: voxkey -test <wav-file>")
		os.Exit(1)
	}
	beep.Disable()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	fakeCtx, err := audio.NewFakeContext(args[0], true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}
	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: encoder.SampleRate, Channels: encoder.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()
	fakeCapture := capture.(*audio.FakeCapture)

	preview, final, err := newTranscribers(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ring := audio.NewRing(cfg.Audio.RingFrames, audio.FrameSamples)
	framer := audio.NewFramer(ring)
	capture.SetCallback(func(data []byte, _ uint32) { framer.Write(data) })

	hk := hotkey.NewFake()
	initial, _ := mode.ParseMode(cfg.Mode.Initial)
	machine := mode.NewMachine(initial, cfg.Mode.DoubleTap)
	ctrl := mode.NewController(hk, machine)
	defer ctrl.Stop()

	screen := keyboard.NewFake()
	ui := &testUI{finals: make(chan string, 16)}
	fast, accurate := newDetectors(cfg)
	p, err := newPipeline(cfg, pipelineDeps{
		Ring:        ring,
		Source:      &micSource{dev: capture, framer: framer},
		Fast:        fast,
		Accurate:    accurate,
		Preview:     preview,
		Final:       final,
		Output:      screen,
		Transitions: ctrl.Transitions(),
		Initial:     machine.State(),
		UI:          ui.send,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	capture.OnError(p.captureError)

	previewName := "none"
	if preview != nil {
		previewName = preview.Name()
	}
	log.SessionStart(previewName, final.Name(), initial.String())

	ctx, cancel := shutdown.Context(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "PRESS":
			hk.SimTap()
			// let the double-tap window commit the toggle
			time.Sleep(cfg.Mode.DoubleTap + 50*time.Millisecond)
		case cmd == "DOUBLE":
			hk.SimTap()
			time.Sleep(cfg.Mode.DoubleTap / 4)
			hk.SimTap()
			time.Sleep(50 * time.Millisecond)
		case cmd == "WAIT_AUDIO_DONE":
			<-fakeCapture.AudioDone()
		case cmd == "WAIT_FINAL":
			select {
			case <-ui.finals:
			case <-time.After(30 * time.Second):
				fmt.Fprintln(os.Stderr, "timed out waiting for FINAL")
			}
		case cmd == "SCREEN":
			fmt.Printf("SCREEN %q\n", screen.Screen())
		case cmd == "QUIT":
			cancel()
			<-done
			return
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		}
	}
	cancel()
	<-done
}
