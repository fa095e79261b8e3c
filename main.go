package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"time"

	"voxkey/audio"
	"voxkey/beep"
	"voxkey/config"
	"voxkey/doctor"
	"voxkey/encoder"
	"voxkey/hotkey"
	"voxkey/keyboard"
	"voxkey/log"
	"voxkey/mode"
	"voxkey/shutdown"
)

var version = "dev"

type flags struct {
	config      string
	logPath     string
	device      string
	setup       bool
	doctor      bool
	version     bool
	test        bool
	tui         bool
	mode        string
	preview     string
	final       string
	lang        string
	printConfig bool
	profile     string
	crash       bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", "", "config file path (default: "+config.DefaultPath()+")")
	flag.StringVar(&f.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.StringVar(&f.device, "device", "", "Use named microphone device")
	flag.BoolVar(&f.setup, "setup", false, "Select microphone device interactively")
	flag.BoolVar(&f.doctor, "doctor", false, "Run system diagnostics and exit")
	flag.BoolVar(&f.version, "version", false, "Print version and exit")
	flag.BoolVar(&f.test, "test", false, "Test mode (headless, stdin-driven)")
	flag.BoolVar(&f.tui, "tui", true, "Run with terminal UI")
	flag.StringVar(&f.mode, "mode", "", "Initial mode: listen or agent")
	flag.StringVar(&f.preview, "preview", "", "Preview transcription provider (none disables previews)")
	flag.StringVar(&f.final, "final", "", "Final transcription provider")
	flag.StringVar(&f.lang, "lang", "", "Language code for transcription (e.g., en, es, fr)")
	flag.BoolVar(&f.printConfig, "print-config", false, "Print the effective configuration and exit")
	flag.StringVar(&f.profile, "profile", "", "Enable pprof profiling server (e.g., localhost:6060)")
	flag.BoolVar(&f.crash, "crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()
	return f
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cfg *config.Config, f flags) {
	if f.device != "" {
		cfg.Audio.Device = f.device
	}
	if f.mode != "" {
		cfg.Mode.Initial = f.mode
	}
	if f.preview != "" {
		cfg.Transcription.Preview.Provider = f.preview
	}
	if f.final != "" {
		cfg.Transcription.Final.Provider = f.final
	}
	if f.lang != "" {
		cfg.Transcription.Language = f.lang
	}
}

// loadConfig loads and validates the configuration. Any error wraps
// config.ErrConfig.
func loadConfig(f flags) (*config.Config, error) {
	path := f.config
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, f)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Error(msg)
	fmt.Fprintln(os.Stderr, "Error: "+msg)
	log.Close()
	os.Exit(1)
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// micSource starts and stops the capture device for the pipeline.
type micSource struct {
	dev    audio.CaptureDevice
	framer *audio.Framer
}

func (m *micSource) Start() error {
	m.framer.Reset()
	return m.dev.Start()
}

func (m *micSource) Stop() { m.dev.Stop() }

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func run() {
	f := parseFlags()

	// Resolve log directory early
	logPath, err := log.ResolveDir(f.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if f.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", f.profile)
			if err := http.ListenAndServe(f.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if f.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if f.version {
		fmt.Printf("voxkey %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, "Invalid configuration:")
			for _, p := range verr.Problems {
				fmt.Fprintln(os.Stderr, "  - "+p)
			}
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if f.printConfig {
		out, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		os.Exit(0)
	}

	if f.doctor {
		os.Exit(doctor.Run(cfg))
	}

	if !cfg.Sounds.Enabled {
		beep.Disable()
	}

	if f.test {
		runTestMode(cfg, flag.Args())
		return
	}

	// Resolve -setup into a device name early (before daemonization)
	if f.setup && cfg.Audio.Device == "" {
		actx, err := audio.NewContext()
		if err != nil {
			fatal("initializing audio: %v", err)
		}
		if dev, err := audio.SelectDevice(actx); err == nil && dev != nil {
			cfg.Audio.Device = dev.Name
		}
		actx.Close()
	}

	// Daemonize in non-TUI mode: re-exec in background, return shell prompt
	if !f.tui && os.Getenv("_VOXKEY_BG") == "" {
		args := os.Args[1:]
		if cfg.Audio.Device != "" {
			args = append(args, "-device", cfg.Audio.Device)
		}
		exe, _ := os.Executable()
		cmd := exec.Command(exe, args...)
		cmd.Env = append(os.Environ(), "_VOXKEY_BG=1")
		devnull, _ := os.Open(os.DevNull)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
		if err := cmd.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	preview, final, err := newTranscribers(cfg)
	if err != nil {
		fatal("%v", err)
	}

	out, err := keyboard.New(cfg.Output.KeyHold)
	if err != nil {
		fatal("keyboard output: %v (on linux: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput)", err)
	}
	if c, ok := out.(interface{ Close() error }); ok {
		defer c.Close()
	}

	actx, err := audio.NewContext()
	if err != nil {
		fatal("initializing audio context: %v", err)
	}
	defer actx.Close()

	device, err := audio.FindDevice(actx, cfg.Audio.Device)
	if err != nil {
		fatal("%v", err)
	}
	capture, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		fatal("initializing capture device: %v", err)
	}
	defer capture.Close()

	ring := audio.NewRing(cfg.Audio.RingFrames, audio.FrameSamples)
	framer := audio.NewFramer(ring)
	capture.SetCallback(func(data []byte, _ uint32) { framer.Write(data) })

	combo, _ := hotkey.ParseCombo(cfg.Hotkey) // validated
	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		fatal("registering hotkey %s: %v", combo, err)
	}
	defer hk.Unregister()

	initial, _ := mode.ParseMode(cfg.Mode.Initial) // validated
	machine := mode.NewMachine(initial, cfg.Mode.DoubleTap)
	ctrl := mode.NewController(hk, machine)
	defer ctrl.Stop()

	fast, accurate := newDetectors(cfg)
	p, err := newPipeline(cfg, pipelineDeps{
		Ring:        ring,
		Source:      &micSource{dev: capture, framer: framer},
		Fast:        fast,
		Accurate:    accurate,
		Preview:     preview,
		Final:       final,
		Output:      out,
		Transitions: ctrl.Transitions(),
		Initial:     machine.State(),
		UI:          tuiSend,
	})
	if err != nil {
		fatal("%v", err)
	}
	capture.OnError(p.captureError)

	previewName := "none"
	if preview != nil {
		previewName = preview.Name()
	}
	log.SessionStart(previewName, final.Name(), initial.String())
	log.Info("recording_device: " + capture.DeviceName())

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	if f.tui {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram(combo.String(), machine.State())
		tuiMu.Unlock()

		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			cancel()
		}()
		defer tuiProgram.Quit()
	}

	go beep.Init()

	tuiSend(ModeLineMsg{Text: status(cfg, preview, final)})
	tuiSend(DeviceLineMsg{Text: deviceLineText(device)})

	p.Run(ctx)
}
