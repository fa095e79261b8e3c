package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"voxkey/agent"
	"voxkey/audio"
	"voxkey/config"
	"voxkey/encoder"
	"voxkey/hotkey"
	"voxkey/keyboard"
	"voxkey/shutdown"
	"voxkey/transcriber"
	"voxkey/vad"
)

const recordFor = 3 * time.Second

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(cfg *config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("voxkey doctor - interactive system diagnostics")
	fmt.Println("==============================================")

	checks := []func(*config.Config) bool{
		checkHotkeyAccess,
		checkHotkeyPress,
		checkKeyboard,
		checkTranscribers,
		checkAgent,
		checkMicAndVAD,
	}
	allPass := true
	for i, check := range checks {
		fmt.Println()
		fmt.Printf("[%d/%d] ", i+1, len(checks))
		if !check(cfg) {
			allPass = false
		}
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		resetTerminal()
		fmt.Println("\nInterrupted")
		os.Exit(1)
	}()
}

func checkHotkeyAccess(cfg *config.Config) bool {
	fmt.Println("Hotkey access")
	combo, err := hotkey.ParseCombo(cfg.Hotkey)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	msg, err := hotkey.Diagnose(combo)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: %s\n", msg)
	return true
}

func checkHotkeyPress(cfg *config.Config) bool {
	combo, err := hotkey.ParseCombo(cfg.Hotkey)
	if err != nil {
		fmt.Println("Hotkey detection")
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Println("Hotkey detection")
	fmt.Printf("Press %s...\n", combo)

	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		// Wait for keyup to avoid triggering next step
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// Reset terminal after hotkey - it may leave terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkKeyboard(cfg *config.Config) bool {
	fmt.Println("Keystroke injection")
	out, err := keyboard.New(cfg.Output.KeyHold)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		fmt.Println("  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return false
	}
	if c, ok := out.(interface{ Close() error }); ok {
		c.Close()
	}
	msg, err := keyboard.Verify()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: %s\n", msg)
	return true
}

func checkTranscribers(cfg *config.Config) bool {
	fmt.Println("Transcription providers")
	ok := true
	passes := []struct {
		name string
		pass config.Pass
	}{
		{"final", cfg.Transcription.Final},
	}
	if cfg.PreviewEnabled() {
		passes = append(passes, struct {
			name string
			pass config.Pass
		}{"preview", cfg.Transcription.Preview})
	} else {
		fmt.Println("  preview: disabled")
	}
	for _, p := range passes {
		_, err := transcriber.New(options(cfg, p.pass))
		if err != nil {
			fmt.Printf("  FAIL: %s: %v\n", p.name, err)
			ok = false
			continue
		}
		fmt.Printf("  PASS: %s: %s %s\n", p.name, p.pass.Provider, p.pass.Model)
	}
	return ok
}

func checkAgent(cfg *config.Config) bool {
	fmt.Println("Agent command")
	if cfg.Agent.Template == "" {
		fmt.Println("  SKIP: no agent template configured")
		return true
	}
	if err := agent.ValidateTemplate(cfg.Agent.Template); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	line := agent.Expand(cfg.Agent.Template, agent.Command{Agent: "home", Prompt: "turn on the lights"})
	fmt.Printf("  PASS: example: %s\n", line)
	return true
}

func options(cfg *config.Config, p config.Pass) transcriber.Options {
	return transcriber.Options{
		Provider: p.Provider,
		Model:    p.Model,
		Language: cfg.Transcription.Language,
		Command:  cfg.Transcription.Command,
	}
}

func checkMicAndVAD(cfg *config.Config) bool {
	fmt.Println("Microphone and voice detection")

	reader := bufio.NewReader(os.Stdin)

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	device, err := audio.FindDevice(ctx, cfg.Audio.Device)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if device == nil {
		device, err = audio.SelectDevice(ctx)
		if err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			return false
		}
	}
	fmt.Printf("Using device: %s\n", device.Name)

	fast, err := vad.NewWebRTC(cfg.VAD.FastAggressiveness)
	if err != nil {
		fmt.Printf("  FAIL: vad: %v\n", err)
		return false
	}

	fmt.Println()
	fmt.Printf("Press Enter and speak for %d seconds...", int(recordFor.Seconds()))
	reader.ReadString('\n')

	stop := make(chan struct{})
	go func() {
		time.Sleep(recordFor)
		close(stop)
	}()

	pcm, err := recordAudio(ctx, device, stop)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(pcm) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	r := analyze(pcm, fast, cfg.VAD.EnergyFloor)
	fmt.Printf("  Recorded %.1fs, peak level %.3f, %d/%d frames voiced\n",
		encoder.Duration(len(pcm)).Seconds(), r.peak, r.voiced, r.frames)
	if r.peak < cfg.VAD.EnergyFloor {
		fmt.Printf("  FAIL: input never rises above energy_floor %.3f (muted microphone?)\n", cfg.VAD.EnergyFloor)
		return false
	}
	if r.voiced == 0 {
		fmt.Println("  FAIL: no speech detected")
		return false
	}
	fmt.Println("  PASS: speech detected")

	final, err := transcriber.New(options(cfg, cfg.Transcription.Final))
	if err != nil {
		// already reported by the provider check
		return true
	}
	fmt.Println("  Transcribing...")
	tctx, cancel := context.WithTimeout(context.Background(), cfg.Transcription.Timeout)
	defer cancel()
	result, err := final.Transcribe(tctx, pcm)
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	// Ask user to confirm - fresh reader to clear any buffered input
	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}

	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

type vadReport struct {
	frames int
	voiced int
	peak   float64
}

// analyze runs the fast detector over every 20ms frame of pcm. Frames
// below floor never count as voiced.
func analyze(pcm []int16, det vad.Detector, floor float64) vadReport {
	var r vadReport
	for i := 0; i+audio.FrameSamples <= len(pcm); i += audio.FrameSamples {
		frame := pcm[i : i+audio.FrameSamples]
		r.frames++
		level := vad.RMS(frame)
		r.peak = max(r.peak, level)
		if level < floor {
			continue
		}
		if ok, err := det.IsSpeech(frame); err == nil && ok {
			r.voiced++
		}
	}
	return r
}

func recordAudio(ctx audio.Context, device *audio.DeviceInfo, stop <-chan struct{}) ([]int16, error) {
	ring := audio.NewRing(int(recordFor/(audio.FrameMs*time.Millisecond))+50, audio.FrameSamples)
	framer := audio.NewFramer(ring)
	var mu sync.Mutex
	done := make(chan struct{})

	captureConfig := audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}

	captureDevice, err := ctx.NewCapture(device, captureConfig)
	if err != nil {
		return nil, err
	}

	captureDevice.SetCallback(func(data []byte, frameCount uint32) {
		mu.Lock()
		framer.Write(data)
		mu.Unlock()
	})

	if err := captureDevice.Start(); err != nil {
		captureDevice.Close()
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	<-stop
	close(done)

	captureDevice.ClearCallback()
	captureDevice.Stop()
	fmt.Println(" done")
	captureDevice.Close()

	var pcm []int16
	for _, f := range ring.Drain(nil) {
		pcm = append(pcm, f.Samples...)
	}
	return pcm, nil
}
